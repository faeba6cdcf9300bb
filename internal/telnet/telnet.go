// Package telnet implements the byte-level Telnet framing state machine.
//
// It splits a raw socket byte stream into inline text runs and Telnet
// command/subnegotiation frames, persisting partial state across calls so
// that a sequence split across two TCP reads is parsed identically to the
// same sequence delivered in one call.
package telnet

// Telnet IAC (Interpret As Command) constants, per RFC 854.
const (
	SE   = 240 // Subnegotiation End
	GA   = 249 // Go Ahead
	SB   = 250 // Subnegotiation Begin
	WILL = 251
	WONT = 252
	DO   = 253
	DONT = 254
	IAC  = 255
)

// CommandKind identifies a negotiation command byte.
type CommandKind byte

const (
	KindWILL CommandKind = WILL
	KindWONT CommandKind = WONT
	KindDO   CommandKind = DO
	KindDONT CommandKind = DONT
)

// FrameKind discriminates the RawFrame variants.
type FrameKind int

const (
	FrameText FrameKind = iota
	FrameCommand
	FrameSubnegotiation
)

// RawFrame is one decoded unit of the telnet byte stream: a run of inline
// text, a two-byte negotiation command, or a subnegotiation payload.
type RawFrame struct {
	Kind    FrameKind
	Text    []byte      // valid when Kind == FrameText
	Command CommandKind // valid when Kind == FrameCommand
	Option  byte        // valid when Kind == FrameCommand or FrameSubnegotiation
	Payload []byte      // valid when Kind == FrameSubnegotiation
}

type state int

const (
	stateNormal state = iota
	stateIACSeen
	stateCommand
	stateSubneg
	stateSubnegIAC
)

// Machine is a persistent Telnet byte-stream parser. The zero value is
// ready to use. A Machine must not be shared across connections; create
// one per connection and discard it on disconnect.
type Machine struct {
	st         state
	pendingCmd CommandKind
	sbOption   byte
	sbStarted  bool // whether sbOption has been captured yet for the current SB
	text       []byte
	payload    []byte
}

// New returns a fresh Machine in the NORMAL state.
func New() *Machine {
	return &Machine{}
}

// Parse consumes data and returns the RawFrames it produces. Any trailing
// text run not yet terminated by an IAC byte is flushed as a FrameText
// frame at the end of the call, matching §4.1's read-boundary rule; state
// that spans the boundary (the partial telnet sequence) is retained on
// the Machine and resumed on the next call.
func (m *Machine) Parse(data []byte) []RawFrame {
	var frames []RawFrame

	emitText := func() {
		if len(m.text) > 0 {
			frames = append(frames, RawFrame{Kind: FrameText, Text: m.text})
			m.text = nil
		}
	}

	for _, b := range data {
		switch m.st {
		case stateNormal:
			if b == IAC {
				m.st = stateIACSeen
			} else {
				m.text = append(m.text, b)
			}

		case stateIACSeen:
			switch b {
			case WILL, WONT, DO, DONT:
				m.pendingCmd = CommandKind(b)
				m.st = stateCommand
			case SB:
				m.sbOption = 0
				m.sbStarted = false
				m.payload = nil
				m.st = stateSubneg
			case IAC:
				// Escaped IAC: literal 0xFF in text.
				m.text = append(m.text, IAC)
				m.st = stateNormal
			default:
				// Unknown two-byte command; dropped silently to preserve liveness.
				m.st = stateNormal
			}

		case stateCommand:
			emitText()
			frames = append(frames, RawFrame{
				Kind:    FrameCommand,
				Command: m.pendingCmd,
				Option:  b,
			})
			m.st = stateNormal

		case stateSubneg:
			if b == IAC {
				m.st = stateSubnegIAC
				continue
			}
			if !m.sbStarted {
				m.sbOption = b
				m.sbStarted = true
			} else {
				m.payload = append(m.payload, b)
			}

		case stateSubnegIAC:
			switch b {
			case SE:
				emitText()
				frames = append(frames, RawFrame{
					Kind:    FrameSubnegotiation,
					Option:  m.sbOption,
					Payload: m.payload,
				})
				m.payload = nil
				m.sbStarted = false
				m.st = stateNormal
			case IAC:
				m.payload = append(m.payload, IAC)
				m.st = stateSubneg
			default:
				// Malformed: IAC followed by neither SE nor IAC inside a
				// subnegotiation. Discard the frame and resync to NORMAL.
				m.payload = nil
				m.sbStarted = false
				m.st = stateNormal
			}
		}
	}

	emitText()
	return frames
}
