// Package client implements the connection manager (C6): it owns the
// socket, the read loop, and a serialized write path, wiring the
// Telnet/codec/negotiation layers together the way the pipeline
// orchestrator expects.
package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/anicolao/dikuclient/internal/codec"
	"github.com/anicolao/dikuclient/internal/negotiate"
	"github.com/anicolao/dikuclient/internal/status"
	"github.com/anicolao/dikuclient/internal/telnet"
)

// ErrNotConnected is reported on the Errors() stream when Send is
// called after the connection has already closed.
var ErrNotConnected = errors.New("client: not connected")

// outputBufferLimit bounds the observable accumulated text buffer to 1
// MiB by character count, per §4.6.
const outputBufferLimit = 1 << 20

const trimmedSentinel = "[buffer trimmed]\n"

// outputBuffer is the bounded, append-only scrollback C6 exposes as an
// observable. Truncation keeps the tail, rounding the cut point up to
// the next newline so no line is split.
type outputBuffer struct {
	mu   sync.RWMutex
	data []byte
}

func (b *outputBuffer) Append(s string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.data = append(b.data, s...)
	if len(b.data) <= outputBufferLimit {
		return
	}

	target := outputBufferLimit * 80 / 100
	cut := len(b.data) - target
	for cut < len(b.data) && b.data[cut-1] != '\n' {
		cut++
	}
	b.data = append([]byte(trimmedSentinel), b.data[cut:]...)
}

func (b *outputBuffer) String() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return string(b.data)
}

// Connection represents a connection to a MUD server. It owns the
// socket, decodes Telnet/MSDP/GMCP framing, negotiates options, and
// exposes decoded text and out-of-band payloads to the pipeline
// orchestrator via channels and callbacks.
type Connection struct {
	conn   net.Conn
	writer *bufio.Writer

	telnetMachine *telnet.Machine
	decoder       *codec.Decoder
	negotiator    *negotiate.Negotiator

	outChan  chan string // decoded text chunks, line assembly done by C12
	inChan   chan string
	errChan  chan error
	echoChan chan bool

	buffer outputBuffer

	// OnMSDPPayload / OnGMCPPayload are invoked synchronously from the
	// read loop for each complete subnegotiation of that option. The read
	// loop is started by NewConnection; a subnegotiation that arrives
	// while the callback is still nil is dropped.
	OnMSDPPayload func(payload []byte)
	OnGMCPPayload func(payload []byte)

	// Logger receives connection lifecycle diagnostics. Defaults to
	// log.Default() when nil.
	Logger *log.Logger

	// state publishes Connecting/Connected/Closing/Disconnected
	// transitions for a C13 observer; nil if the caller didn't supply
	// one to NewConnection.
	state *status.Broadcaster[status.ConnectionState]

	mu       sync.RWMutex
	closed   bool
	cancel   context.CancelFunc
	group    *errgroup.Group
	writeMu  sync.Mutex
	termName string
}

// NewConnection dials host:port and starts the reader/writer tasks.
// terminalName is sent in response to a TERMINAL_TYPE SEND request.
// state, if non-nil, receives this connection's lifecycle transitions
// (Connecting immediately, then Connected or Disconnected on dial
// outcome, then Closing/Disconnected from Close), per §3's "only the
// owner (C6) mutates; transitions are observable".
func NewConnection(host string, port int, terminalName string, state *status.Broadcaster[status.ConnectionState]) (*Connection, error) {
	if state != nil {
		state.Publish(status.Connecting)
	}

	address := fmt.Sprintf("%s:%d", host, port)
	conn, err := net.Dial("tcp", address)
	if err != nil {
		if state != nil {
			state.Publish(status.Disconnected)
		}
		return nil, fmt.Errorf("client: connect to %s: %w", address, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	group, ctx := errgroup.WithContext(ctx)

	c := &Connection{
		conn:          conn,
		writer:        bufio.NewWriter(conn),
		telnetMachine: telnet.New(),
		decoder:       codec.New(codec.UTF8),
		negotiator:    negotiate.New(),
		outChan:       make(chan string, 100),
		inChan:        make(chan string, 100),
		errChan:       make(chan error, 10),
		echoChan:      make(chan bool, 10),
		cancel:        cancel,
		group:         group,
		termName:      terminalName,
		state:         state,
	}

	if err := c.writeRaw(c.negotiator.InitialFrames()); err != nil {
		conn.Close()
		cancel()
		if state != nil {
			state.Publish(status.Disconnected)
		}
		return nil, fmt.Errorf("client: initial negotiation: %w", err)
	}

	group.Go(func() error { return c.readLoop(ctx) })
	group.Go(func() error { return c.writeLoop(ctx) })

	if state != nil {
		state.Publish(status.Connected)
	}
	return c, nil
}

func (c *Connection) publishState(s status.ConnectionState) {
	if c.state != nil {
		c.state.Publish(s)
	}
}

func (c *Connection) logf(format string, args ...any) {
	if c.Logger != nil {
		c.Logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}

// SetCharset changes the incremental text decoder's charset.
func (c *Connection) SetCharset(name codec.Name) {
	c.decoder.SetCharset(name)
}

func (c *Connection) readLoop(ctx context.Context) error {
	defer c.Close()

	buf := make([]byte, 4096)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		n, err := c.conn.Read(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.errChan <- fmt.Errorf("client: read: %w", err)
			return err
		}
		if n == 0 {
			continue
		}

		for _, frame := range c.telnetMachine.Parse(buf[:n]) {
			c.handleFrame(frame)
		}
	}
}

func (c *Connection) handleFrame(frame telnet.RawFrame) {
	switch frame.Kind {
	case telnet.FrameText:
		text := c.decoder.Decode(frame.Text)
		if text != "" {
			c.buffer.Append(text)
			select {
			case c.outChan <- text:
			default:
			}
		}
	case telnet.FrameCommand:
		resp := c.negotiator.HandleCommand(frame.Command, frame.Option)
		if resp != nil {
			c.writeRaw(resp)
		}
		select {
		case c.echoChan <- c.negotiator.EchoSuppressed:
		default:
		}
	case telnet.FrameSubnegotiation:
		c.handleSubnegotiation(frame.Option, frame.Payload)
	}
}

func (c *Connection) handleSubnegotiation(option byte, payload []byte) {
	switch option {
	case negotiate.OptMSDP:
		if c.OnMSDPPayload != nil {
			c.OnMSDPPayload(payload)
		}
	case negotiate.OptGMCP:
		if c.OnGMCPPayload != nil {
			c.OnGMCPPayload(payload)
		}
	case negotiate.OptTerminalType:
		if negotiate.IsTerminalTypeSendRequest(payload) {
			c.writeRaw(negotiate.TerminalTypeResponse(c.termName))
		}
	}
}

func (c *Connection) writeLoop(ctx context.Context) error {
	defer c.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-c.inChan:
			if err := c.writeRaw([]byte(msg + "\r\n")); err != nil {
				c.errChan <- fmt.Errorf("client: write: %w", err)
				return err
			}
		}
	}
}

func (c *Connection) writeRaw(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if _, err := c.writer.Write(data); err != nil {
		return err
	}
	return c.writer.Flush()
}

// Send queues a command for the write loop. A single command is atomic
// on the wire: CRLF is appended by the writer, never interleaved with
// another command.
func (c *Connection) Send(cmd string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		select {
		case c.errChan <- ErrNotConnected:
		default:
		}
		return
	}
	c.inChan <- cmd
}

// Receive returns the channel of decoded text chunks.
func (c *Connection) Receive() <-chan string { return c.outChan }

// EchoState returns the echo-suppression stream (true = password mode).
func (c *Connection) EchoState() <-chan bool { return c.echoChan }

// Errors returns the connection's error stream.
func (c *Connection) Errors() <-chan error { return c.errChan }

// Buffer returns the current accumulated text buffer, bounded and
// truncated per §4.6.
func (c *Connection) Buffer() string { return c.buffer.String() }

// Close cancels the reader/writer tasks and closes the socket exactly
// once.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.publishState(status.Closing)
	c.logf("client: closing connection to %s", c.conn.RemoteAddr())
	c.cancel()
	err := c.conn.Close()
	c.publishState(status.Disconnected)
	return err
}

// IsClosed reports whether the connection has been closed.
func (c *Connection) IsClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// Wait blocks until the reader and writer tasks have both returned.
func (c *Connection) Wait() error {
	return c.group.Wait()
}
