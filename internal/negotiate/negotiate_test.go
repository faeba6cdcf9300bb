package negotiate

import (
	"bytes"
	"testing"

	"github.com/anicolao/dikuclient/internal/telnet"
)

func TestScenarioUnlistedDOReplyWONT(t *testing.T) {
	// From §8 scenario 1: server sends DO 1 (an option with no policy);
	// negotiator replies WONT 1.
	n := New()
	resp := n.HandleCommand(telnet.KindDO, 1)
	// Option 1 is ECHO, handled specially but still refused for DO since
	// the negotiator never asserts WILL ECHO on its own.
	want := []byte{telnet.IAC, telnet.WONT, 1}
	if !bytes.Equal(resp, want) {
		t.Errorf("got %v, want %v", resp, want)
	}
}

func TestTrulyUnknownOptionDOIsRefused(t *testing.T) {
	n := New()
	resp := n.HandleCommand(telnet.KindDO, 99)
	want := []byte{telnet.IAC, telnet.WONT, 99}
	if !bytes.Equal(resp, want) {
		t.Errorf("got %v, want %v", resp, want)
	}
}

func TestMSDPWillIsAcceptedWithDO(t *testing.T) {
	n := New()
	var enabled []byte
	n.OnOptionEnabled = func(option byte) { enabled = append(enabled, option) }

	resp := n.HandleCommand(telnet.KindWILL, OptMSDP)
	want := []byte{telnet.IAC, telnet.DO, OptMSDP}
	if !bytes.Equal(resp, want) {
		t.Errorf("got %v, want %v", resp, want)
	}
	if len(enabled) != 1 || enabled[0] != OptMSDP {
		t.Errorf("expected OnOptionEnabled(MSDP) once, got %v", enabled)
	}
}

func TestGMCPWillIsAcceptedWithDO(t *testing.T) {
	n := New()
	resp := n.HandleCommand(telnet.KindWILL, OptGMCP)
	want := []byte{telnet.IAC, telnet.DO, OptGMCP}
	if !bytes.Equal(resp, want) {
		t.Errorf("got %v, want %v", resp, want)
	}
}

func TestUnknownOptionWillIsRefused(t *testing.T) {
	n := New()
	resp := n.HandleCommand(telnet.KindWILL, 50)
	want := []byte{telnet.IAC, telnet.DONT, 50}
	if !bytes.Equal(resp, want) {
		t.Errorf("got %v, want %v", resp, want)
	}
}

func TestNoDuplicateAgreementEchoed(t *testing.T) {
	n := New()
	first := n.HandleCommand(telnet.KindWILL, OptMSDP)
	second := n.HandleCommand(telnet.KindWILL, OptMSDP)
	if first == nil {
		t.Fatal("expected a response to the first WILL")
	}
	if second != nil {
		t.Errorf("expected no response to a repeated identical WILL, got %v", second)
	}
}

func TestInitialFramesSequence(t *testing.T) {
	n := New()
	out := n.InitialFrames()
	want := []byte{
		telnet.IAC, telnet.WILL, OptTerminalType,
		telnet.IAC, telnet.DO, OptNAWS,
		telnet.IAC, telnet.WILL, OptMSDP,
		telnet.IAC, telnet.DO, OptGMCP,
	}
	if !bytes.Equal(out, want) {
		t.Errorf("got %v, want %v", out, want)
	}
}

func TestEchoWillSuppressesAndWontReveals(t *testing.T) {
	n := New()
	resp := n.HandleCommand(telnet.KindWILL, OptEcho)
	if !n.EchoSuppressed {
		t.Error("expected EchoSuppressed = true after server WILL ECHO")
	}
	want := []byte{telnet.IAC, telnet.DO, OptEcho}
	if !bytes.Equal(resp, want) {
		t.Errorf("got %v, want %v", resp, want)
	}

	resp = n.HandleCommand(telnet.KindWONT, OptEcho)
	if n.EchoSuppressed {
		t.Error("expected EchoSuppressed = false after server WONT ECHO")
	}
	wantWont := []byte{telnet.IAC, telnet.DONT, OptEcho}
	if !bytes.Equal(resp, wantWont) {
		t.Errorf("got %v, want %v", resp, wantWont)
	}
}

func TestTerminalTypeSendResponse(t *testing.T) {
	if !IsTerminalTypeSendRequest([]byte{1}) {
		t.Error("expected SEND sub-code to be recognized")
	}
	resp := TerminalTypeResponse("xterm-256color")
	want := append([]byte{telnet.IAC, telnet.SB, OptTerminalType, 0}, []byte("xterm-256color")...)
	want = append(want, telnet.IAC, telnet.SE)
	if !bytes.Equal(resp, want) {
		t.Errorf("got %v, want %v", resp, want)
	}
}
