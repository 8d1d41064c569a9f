package remoteApp

import (
	"context"
	"io"
	"net"
	"sync"

	"github.com/cockroachdb/errors"
)

var (
	// ErrAppCrashed is returned when the application side of a channel went
	// away without a FINALIZE exchange.
	ErrAppCrashed = errors.New("remoteApp: application crashed")
	// ErrAssertionFailed is returned when the application reported a failed
	// assertion while executing a transition.
	ErrAssertionFailed = errors.New("remoteApp: application assertion failed")
	// ErrTimeout is returned when the application did not answer in time.
	ErrTimeout = errors.New("remoteApp: application timed out")
)

// Channel is a bidirectional datagram transport between the checker and one
// application instance. Datagrams are never split or merged.
type Channel interface {
	Send(data []byte) error
	// Receive blocks until a datagram arrives or ctx is done.
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}

// memChannel is one end of an in-memory channel pair.
type memChannel struct {
	in   <-chan []byte
	out  chan<- []byte
	done chan struct{}
	once *sync.Once
}

// NewPipe returns both ends of an in-memory channel. Closing either end
// closes the pair.
func NewPipe() (Channel, Channel) {
	a, b := make(chan []byte, 16), make(chan []byte, 16)
	done := make(chan struct{})
	once := &sync.Once{}
	return &memChannel{in: a, out: b, done: done, once: once},
		&memChannel{in: b, out: a, done: done, once: once}
}

func (c *memChannel) Send(data []byte) error {
	select {
	case <-c.done:
		return ErrAppCrashed
	default:
	}
	select {
	case c.out <- data:
		return nil
	case <-c.done:
		return ErrAppCrashed
	}
}

func (c *memChannel) Receive(ctx context.Context) ([]byte, error) {
	select {
	case data := <-c.in:
		return data, nil
	case <-c.done:
		// datagrams sent before the close are still delivered
		select {
		case data := <-c.in:
			return data, nil
		default:
			return nil, ErrAppCrashed
		}
	case <-ctx.Done():
		return nil, errors.Wrap(ErrTimeout, ctx.Err().Error())
	}
}

func (c *memChannel) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

// connChannel carries datagrams over a stream connection. The message tag
// gives the size of the datagram, so no framing is added.
type connChannel struct {
	conn net.Conn
}

// NewConnChannel returns a channel sending datagrams over conn.
func NewConnChannel(conn net.Conn) Channel {
	return &connChannel{conn: conn}
}

func (c *connChannel) Send(data []byte) error {
	if _, err := c.conn.Write(data); err != nil {
		return connError(err)
	}
	return nil
}

func (c *connChannel) Receive(ctx context.Context) ([]byte, error) {
	deadline, _ := ctx.Deadline()
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return nil, connError(err)
	}
	var tag [1]byte
	if _, err := io.ReadFull(c.conn, tag[:]); err != nil {
		return nil, connError(err)
	}
	size, err := MessageSize(MessageType(tag[0]))
	if err != nil {
		return nil, err
	}
	data := make([]byte, size)
	data[0] = tag[0]
	if _, err := io.ReadFull(c.conn, data[1:]); err != nil {
		return nil, connError(err)
	}
	return data, nil
}

func (c *connChannel) Close() error {
	return c.conn.Close()
}

func connError(err error) error {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return errors.Wrap(ErrTimeout, err.Error())
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.ErrClosedPipe) || errors.Is(err, net.ErrClosed) {
		return errors.Wrap(ErrAppCrashed, err.Error())
	}
	return err
}
