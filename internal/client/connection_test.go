package client

import (
	"bufio"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/anicolao/dikuclient/internal/status"
)

func listenAndAccept(t *testing.T) (port int, accepted <-chan net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	ch := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			ch <- conn
		}
	}()

	return ln.Addr().(*net.TCPAddr).Port, ch
}

func TestNewConnectionSendsInitialNegotiationFrames(t *testing.T) {
	port, accepted := listenAndAccept(t)

	conn, err := NewConnection("127.0.0.1", port, "xterm-256color", nil)
	if err != nil {
		t.Fatalf("NewConnection failed: %v", err)
	}
	defer conn.Close()

	server := <-accepted
	defer server.Close()

	server.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 64)
	n, err := server.Read(buf)
	if err != nil {
		t.Fatalf("server read: %v", err)
	}
	if n == 0 || buf[0] != 255 {
		t.Fatalf("expected initial frames to start with IAC (255), got %v", buf[:n])
	}
}

func TestSendAndReceiveRoundTrip(t *testing.T) {
	port, accepted := listenAndAccept(t)

	conn, err := NewConnection("127.0.0.1", port, "xterm", nil)
	if err != nil {
		t.Fatalf("NewConnection failed: %v", err)
	}
	defer conn.Close()

	server := <-accepted
	defer server.Close()

	server.SetReadDeadline(time.Now().Add(2 * time.Second))
	drain := make([]byte, 64)
	server.Read(drain)

	go func() {
		server.Write([]byte("hello world\r\n"))
	}()

	select {
	case text := <-conn.Receive():
		if !strings.Contains(text, "hello world") {
			t.Errorf("got %q", text)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for decoded text")
	}

	conn.Send("look")
	r := bufio.NewReader(server)
	server.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("server read: %v", err)
	}
	if strings.TrimRight(line, "\r\n") != "look" {
		t.Errorf("got %q, want look", line)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	port, accepted := listenAndAccept(t)

	conn, err := NewConnection("127.0.0.1", port, "xterm", nil)
	if err != nil {
		t.Fatalf("NewConnection failed: %v", err)
	}
	server := <-accepted
	defer server.Close()

	if err := conn.Close(); err != nil {
		t.Fatalf("first Close failed: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("second Close should be a no-op, got: %v", err)
	}
	if !conn.IsClosed() {
		t.Error("expected IsClosed to be true after Close")
	}
}

func TestSendAfterCloseReportsErrNotConnected(t *testing.T) {
	port, accepted := listenAndAccept(t)

	conn, err := NewConnection("127.0.0.1", port, "xterm", nil)
	if err != nil {
		t.Fatalf("NewConnection failed: %v", err)
	}
	server := <-accepted
	defer server.Close()

	if err := conn.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	conn.Send("look")

	select {
	case sendErr := <-conn.Errors():
		if !errors.Is(sendErr, ErrNotConnected) {
			t.Errorf("expected ErrNotConnected, got %v", sendErr)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for ErrNotConnected on Errors()")
	}
}

func TestConnectionPublishesLifecycleTransitions(t *testing.T) {
	port, accepted := listenAndAccept(t)

	state := status.NewBroadcaster[status.ConnectionState]()
	ch, unsubscribe := state.Subscribe(10)
	defer unsubscribe()

	conn, err := NewConnection("127.0.0.1", port, "xterm", state)
	if err != nil {
		t.Fatalf("NewConnection failed: %v", err)
	}
	server := <-accepted
	defer server.Close()

	if got := <-ch; got != status.Connecting {
		t.Fatalf("got %v, want Connecting", got)
	}
	if got := <-ch; got != status.Connected {
		t.Fatalf("got %v, want Connected", got)
	}

	if err := conn.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if got := <-ch; got != status.Closing {
		t.Fatalf("got %v, want Closing", got)
	}
	if got := <-ch; got != status.Disconnected {
		t.Fatalf("got %v, want Disconnected", got)
	}
}

func TestOutputBufferTruncatesAtLimitOnNewlineBoundary(t *testing.T) {
	var b outputBuffer
	line := strings.Repeat("x", 100) + "\n"
	iterations := (outputBufferLimit / len(line)) + 100
	for i := 0; i < iterations; i++ {
		b.Append(line)
	}

	content := b.String()
	if len(content) > outputBufferLimit+len(trimmedSentinel)+len(line) {
		t.Errorf("expected buffer to stay bounded, got length %d", len(content))
	}
	if !strings.HasPrefix(content, trimmedSentinel) {
		cut := 40
		if len(content) < cut {
			cut = len(content)
		}
		t.Errorf("expected sentinel prefix after truncation, got prefix %q", content[:cut])
	}
}

func TestOutputBufferUnderLimitIsUntouched(t *testing.T) {
	var b outputBuffer
	b.Append("line one\n")
	b.Append("line two\n")

	if b.String() != "line one\nline two\n" {
		t.Errorf("got %q", b.String())
	}
}
