// Package msdp decodes MUD Server Data Protocol subnegotiation payloads
// (C3) into typed trees and encodes client→server MSDP commands.
package msdp

// Token bytes, per the MSDP specification.
const (
	varToken        = 1
	valToken        = 2
	tableOpenToken  = 3
	tableCloseToken = 4
	arrayOpenToken  = 5
	arrayCloseToken = 6
)

// ValueKind discriminates the MsdpValue variants.
type ValueKind int

const (
	KindString ValueKind = iota
	KindList
	KindTable
)

// Value is a tagged MSDP value: a scalar string, an ordered list of
// values, or a table mapping names to values. Table key order is
// preserved for diagnostic purposes only; semantic equality ignores it.
type Value struct {
	Kind  ValueKind
	Str   string
	List  []Value
	Table *Table
}

// Table is an insertion-ordered string→Value map.
type Table struct {
	keys   []string
	values map[string]Value
}

// NewTable returns an empty Table.
func NewTable() *Table {
	return &Table{values: make(map[string]Value)}
}

// Set assigns name to value, appending name to the key order on first
// write and overwriting the value (without reordering) on subsequent
// writes, per §3's "overwritten by key" rule.
func (t *Table) Set(name string, v Value) {
	if _, exists := t.values[name]; !exists {
		t.keys = append(t.keys, name)
	}
	t.values[name] = v
}

// Get returns the value stored under name.
func (t *Table) Get(name string) (Value, bool) {
	v, ok := t.values[name]
	return v, ok
}

// Keys returns the table's keys in insertion order.
func (t *Table) Keys() []string {
	out := make([]string, len(t.keys))
	copy(out, t.keys)
	return out
}

// Len returns the number of entries in the table.
func (t *Table) Len() int {
	return len(t.values)
}

func stringValue(s string) Value { return Value{Kind: KindString, Str: s} }

// Parse decodes an MSDP subnegotiation payload per the grammar in §4.3:
//
//	doc     := (VAR name VAL value)*
//	value   := scalar | TABLE_OPEN (VAR name VAL value)* TABLE_CLOSE
//	                  | ARRAY_OPEN (VAL scalar)*        ARRAY_CLOSE
//	scalar  := bytes until next sentinel token
//
// Parse never fails: malformed fragments are discarded and parsing
// resumes at the next recognizable token, matching §7's "MalformedMsdp:
// log + preserve previous snapshot" policy — the caller applies the
// returned delta onto its own snapshot, and Parse always returns
// whatever well-formed entries it could recover.
func Parse(payload []byte) *Table {
	p := &parser{data: payload}
	root := NewTable()
	for p.pos < len(p.data) {
		if !p.expect(varToken) {
			// Resync: skip one byte and keep trying.
			p.pos++
			continue
		}
		name := p.readUntilSentinel()
		if !p.expect(valToken) {
			continue
		}
		val := p.readValue()
		root.Set(name, val)
	}
	return root
}

type parser struct {
	data []byte
	pos  int
}

func (p *parser) expect(tok byte) bool {
	if p.pos < len(p.data) && p.data[p.pos] == tok {
		p.pos++
		return true
	}
	return false
}

func (p *parser) peek() (byte, bool) {
	if p.pos < len(p.data) {
		return p.data[p.pos], true
	}
	return 0, false
}

// readUntilSentinel reads raw bytes (interpreted as UTF-8, replacement on
// error is the caller's concern at the text layer — here we simply slice
// valid UTF-8 as-is since Go strings tolerate arbitrary bytes) up to the
// next sentinel token byte.
func (p *parser) readUntilSentinel() string {
	start := p.pos
	for p.pos < len(p.data) && !isSentinel(p.data[p.pos]) {
		p.pos++
	}
	return string(p.data[start:p.pos])
}

func isSentinel(b byte) bool {
	switch b {
	case varToken, valToken, tableOpenToken, tableCloseToken, arrayOpenToken, arrayCloseToken:
		return true
	default:
		return false
	}
}

// readValue parses a single `value` production.
func (p *parser) readValue() Value {
	b, ok := p.peek()
	if !ok {
		return stringValue("")
	}

	switch b {
	case tableOpenToken:
		p.pos++
		table := NewTable()
		for {
			if tok, ok := p.peek(); !ok || tok == tableCloseToken {
				if ok {
					p.pos++ // consume TABLE_CLOSE
				}
				break
			}
			if !p.expect(varToken) {
				p.pos++
				continue
			}
			name := p.readUntilSentinel()
			if !p.expect(valToken) {
				continue
			}
			table.Set(name, p.readValue())
		}
		return Value{Kind: KindTable, Table: table}

	case arrayOpenToken:
		p.pos++
		var list []Value
		for {
			if tok, ok := p.peek(); !ok || tok == arrayCloseToken {
				if ok {
					p.pos++ // consume ARRAY_CLOSE
				}
				break
			}
			if p.expect(valToken) {
				list = append(list, p.readValue())
				continue
			}
			// §9 open question: defensively accept a nested structured
			// value appearing directly inside an array without a
			// preceding VAL token, rather than looping forever.
			if tok, _ := p.peek(); tok == tableOpenToken || tok == arrayOpenToken {
				list = append(list, p.readValue())
				continue
			}
			p.pos++
		}
		return Value{Kind: KindList, List: list}

	default:
		return stringValue(p.readUntilSentinel())
	}
}

// Encode formats an MSDP client command such as REPORT/UNREPORT/LIST/
// SEND/RESET into the wire bytes that belong inside IAC SB 69 ... IAC SE
// (the IAC/SB/SE framing itself is the connection manager's job).
func Encode(verb string, vars ...string) []byte {
	buf := []byte{varToken}
	buf = append(buf, []byte(verb)...)
	buf = append(buf, valToken)
	buf = append(buf, []byte(joinVars(vars))...)
	return buf
}

func joinVars(vars []string) string {
	if len(vars) == 0 {
		return ""
	}
	if len(vars) == 1 {
		return vars[0]
	}
	out := string([]byte{arrayOpenToken})
	for _, v := range vars {
		out += string([]byte{valToken}) + v
	}
	out += string([]byte{arrayCloseToken})
	return out
}
