// Package negotiate implements the Telnet option negotiator (C5): it
// answers DO/DONT/WILL/WONT per option against a policy table and emits
// the subnegotiation responses the policy calls for (TERMINAL_TYPE).
package negotiate

import "github.com/anicolao/dikuclient/internal/telnet"

// Well-known Telnet option codes handled by this negotiator.
const (
	OptEcho         = 1
	OptTerminalType = 24
	OptNAWS         = 31
	OptMSDP         = 69
	OptGMCP         = 201
)

// Policy describes how the negotiator answers DO/WILL for one option.
type Policy struct {
	WeWill bool // answer WILL (not WONT) when the server sends DO
	WeDo   bool // answer DO (not DONT) when the server sends WILL
}

// defaultPolicies is the initial table from §4.5. Option 1 (ECHO) is
// handled specially: the negotiator has no local echo policy of its own
// to assert, so it simply accepts whatever the server asserts (see
// SPEC_FULL.md §12) rather than refusing it via the "unlisted option"
// fallback.
var defaultPolicies = map[byte]Policy{
	OptTerminalType: {WeWill: true},
	OptNAWS:         {WeDo: true},
	OptMSDP:         {WeWill: true, WeDo: true},
	OptGMCP:         {WeDo: true},
}

// direction distinguishes the two negotiation channels for loop
// suppression: "they told us WILL/WONT" vs "they told us DO/DONT".
type direction int

const (
	dirTheyWill direction = iota
	dirTheyDo
)

type agreementKey struct {
	option byte
	dir    direction
	value  bool // true = WILL/DO asserted, false = WONT/DONT asserted
}

// Negotiator tracks per-option policy and already-answered agreements so
// it never re-emits an identical response for an option it has already
// settled, per §4.5's loop-avoidance rule.
type Negotiator struct {
	policies map[byte]Policy
	answered map[agreementKey]bool

	// EchoSuppressed is true once the server has asserted WILL ECHO
	// (server-controlled echo, typically password entry); see
	// SPEC_FULL.md §12. Callers read this after each HandleCommand call.
	EchoSuppressed bool

	// OnOptionEnabled, if set, is invoked with the option code the first
	// time a server WILL for an option whose policy has WeDo is answered
	// with DO. Connection does not set it.
	OnOptionEnabled func(option byte)
}

// New returns a Negotiator seeded with the default policy table.
func New() *Negotiator {
	policies := make(map[byte]Policy, len(defaultPolicies))
	for k, v := range defaultPolicies {
		policies[k] = v
	}
	return &Negotiator{
		policies: policies,
		answered: make(map[agreementKey]bool),
	}
}

// SetPolicy overrides (or adds) the policy for an option.
func (n *Negotiator) SetPolicy(option byte, p Policy) {
	n.policies[option] = p
}

// InitialFrames returns the bytes for the proactive negotiation the
// client sends on connect: WILL TERMINAL_TYPE, DO NAWS, WILL MSDP, DO
// GMCP.
func (n *Negotiator) InitialFrames() []byte {
	var out []byte
	out = append(out, telnet.IAC, telnet.WILL, OptTerminalType)
	out = append(out, telnet.IAC, telnet.DO, OptNAWS)
	out = append(out, telnet.IAC, telnet.WILL, OptMSDP)
	out = append(out, telnet.IAC, telnet.DO, OptGMCP)
	n.markAnswered(OptTerminalType, dirTheyDo, true)
	n.markAnswered(OptNAWS, dirTheyWill, true)
	n.markAnswered(OptMSDP, dirTheyDo, true)
	n.markAnswered(OptGMCP, dirTheyWill, true)
	return out
}

func (n *Negotiator) markAnswered(option byte, dir direction, value bool) bool {
	key := agreementKey{option: option, dir: dir, value: value}
	if n.answered[key] {
		return false
	}
	n.answered[key] = true
	return true
}

// HandleCommand answers one negotiation command (DO/DONT/WILL/WONT,
// option) from the server. It returns the raw bytes to send in
// response, or nil if no response is warranted (either nothing to say,
// or the identical agreement was already sent once).
func (n *Negotiator) HandleCommand(cmd telnet.CommandKind, option byte) []byte {
	switch cmd {
	case telnet.KindDO:
		return n.handleDo(option)
	case telnet.KindDONT:
		return n.handleDont(option)
	case telnet.KindWILL:
		return n.handleWill(option)
	case telnet.KindWONT:
		return n.handleWont(option)
	default:
		return nil
	}
}

func (n *Negotiator) handleDo(option byte) []byte {
	policy, known := n.policies[option]
	weWill := known && policy.WeWill
	if option == OptEcho {
		// The negotiator asserts nothing for ECHO on its own; DO ECHO
		// from a server is unusual but answered like any other
		// unlisted option (refuse).
		weWill = false
	}
	if !n.markAnswered(option, dirTheyDo, weWill) {
		return nil
	}
	if weWill {
		return []byte{telnet.IAC, telnet.WILL, option}
	}
	return []byte{telnet.IAC, telnet.WONT, option}
}

func (n *Negotiator) handleDont(option byte) []byte {
	if !n.markAnswered(option, dirTheyDo, false) {
		return nil
	}
	return []byte{telnet.IAC, telnet.WONT, option}
}

func (n *Negotiator) handleWill(option byte) []byte {
	if option == OptEcho {
		n.EchoSuppressed = true
		if !n.markAnswered(option, dirTheyWill, true) {
			return nil
		}
		return []byte{telnet.IAC, telnet.DO, option}
	}

	policy, known := n.policies[option]
	weDo := known && policy.WeDo
	first := n.markAnswered(option, dirTheyWill, weDo)
	if weDo && first && n.OnOptionEnabled != nil {
		n.OnOptionEnabled(option)
	}
	if !first {
		return nil
	}
	if weDo {
		return []byte{telnet.IAC, telnet.DO, option}
	}
	return []byte{telnet.IAC, telnet.DONT, option}
}

func (n *Negotiator) handleWont(option byte) []byte {
	if option == OptEcho {
		n.EchoSuppressed = false
	}
	if !n.markAnswered(option, dirTheyWill, false) {
		return nil
	}
	return []byte{telnet.IAC, telnet.DONT, option}
}

// TerminalTypeResponse builds the subnegotiation reply for a server's
// "SB TERMINAL-TYPE SEND IAC SE" request: IAC SB 24 0 "xterm-256color"
// IAC SE. Subnegotiation sub-codes: 0 = IS, 1 = SEND.
func TerminalTypeResponse(terminalName string) []byte {
	const subIS = 0
	out := []byte{telnet.IAC, telnet.SB, OptTerminalType, subIS}
	out = append(out, []byte(terminalName)...)
	out = append(out, telnet.IAC, telnet.SE)
	return out
}

// IsTerminalTypeSendRequest reports whether a TERMINAL_TYPE
// subnegotiation payload is a SEND request (sub-code 1).
func IsTerminalTypeSendRequest(payload []byte) bool {
	const subSEND = 1
	return len(payload) >= 1 && payload[0] == subSEND
}
