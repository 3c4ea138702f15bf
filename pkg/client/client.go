// Package client implements the requesting side of the vidforge wire protocol.
package client

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/marmos91/vidforge/pkg/protocol"
)

// ErrServerBusy is returned when the server refuses the connection with a
// plaintext busy notice instead of a framed response.
var ErrServerBusy = errors.New("server busy")

// maxNoticeSize bounds how much of a busy notice is read.
const maxNoticeSize = 512

// Request is one upload.
type Request struct {
	Operation protocol.Operation
	MediaType string
	Payload   []byte
}

// Client sends requests to a vidforge server. The zero value is usable.
type Client struct {
	// DialTimeout bounds connection establishment. Zero means 10s.
	DialTimeout time.Duration

	// MaxResponseSize caps the payload of a response frame. Zero means no
	// limit beyond the wire format.
	MaxResponseSize uint64
}

// Send dials addr, writes req as one frame and reads one response frame.
//
// A Failure response is returned as a frame, not an error; use
// Frame.Failure to inspect it. Cancelling ctx aborts the exchange.
func (c *Client) Send(ctx context.Context, addr string, req Request) (*protocol.Frame, error) {
	if req.Operation == nil {
		return nil, errors.New("request has no operation")
	}
	metadata, err := protocol.MarshalOperation(req.Operation)
	if err != nil {
		return nil, err
	}
	frame := &protocol.Frame{Metadata: metadata, MediaType: req.MediaType, Payload: req.Payload}

	dialTimeout := c.DialTimeout
	if dialTimeout == 0 {
		dialTimeout = 10 * time.Second
	}
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	defer func() { _ = conn.Close() }()

	stop := context.AfterFunc(ctx, func() {
		// unblocks pending reads and writes
		_ = conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	// The response is read concurrently so a busy notice or an early failure
	// response is seen even while the payload is still being written.
	type result struct {
		frame *protocol.Frame
		err   error
	}
	responses := make(chan result, 1)
	go func() {
		f, err := c.readResponse(conn)
		responses <- result{f, err}
	}()

	writeErr := protocol.WriteFrame(conn, frame)
	if tcp, ok := conn.(*net.TCPConn); ok && writeErr == nil {
		_ = tcp.CloseWrite()
	}

	res := <-responses
	if res.err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if writeErr != nil && !errors.Is(res.err, ErrServerBusy) {
			return nil, fmt.Errorf("send request: %w", writeErr)
		}
		return nil, res.err
	}
	return res.frame, nil
}

func (c *Client) readResponse(conn net.Conn) (*protocol.Frame, error) {
	reader := bufio.NewReader(conn)

	prefix, err := reader.Peek(len(protocol.BusyPrefix))
	if bytes.Equal(prefix, []byte(protocol.BusyPrefix)) {
		notice, _ := io.ReadAll(io.LimitReader(reader, maxNoticeSize))
		return nil, fmt.Errorf("%w: %s", ErrServerBusy, bytes.TrimSpace(notice))
	}
	if err != nil && len(prefix) == 0 {
		return nil, fmt.Errorf("read response: %w", err)
	}

	frame, err := protocol.ReadFrame(reader, c.MaxResponseSize)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return frame, nil
}

// Send uses a zero Client.
func Send(ctx context.Context, addr string, req Request) (*protocol.Frame, error) {
	var c Client
	return c.Send(ctx, addr, req)
}
