package remoteApp

import (
	"context"
	"io"
	"sync"

	"github.com/cockroachdb/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const exchangeMethod = "/simcheck.remote.App/Exchange"

// frame is the message type carried by the App service. It holds one
// datagram without any further encoding.
type frame struct {
	data []byte
}

type datagramCodec struct{}

func (datagramCodec) Marshal(v any) ([]byte, error) {
	f, ok := v.(*frame)
	if !ok {
		return nil, errors.Newf("datagramCodec: cannot marshal %T", v)
	}
	return f.data, nil
}

func (datagramCodec) Unmarshal(data []byte, v any) error {
	f, ok := v.(*frame)
	if !ok {
		return errors.Newf("datagramCodec: cannot unmarshal into %T", v)
	}
	f.data = append(f.data[:0], data...)
	return nil
}

func (datagramCodec) Name() string {
	return "simcheck-datagram"
}

// exchangeServer is implemented by the App service. Every Exchange stream
// serves one application instance.
type exchangeServer interface {
	Exchange(stream grpc.ServerStream) error
}

var appServiceDesc = grpc.ServiceDesc{
	ServiceName: "simcheck.remote.App",
	HandlerType: (*exchangeServer)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Exchange",
			Handler:       exchangeHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
}

func exchangeHandler(srv any, stream grpc.ServerStream) error {
	return srv.(exchangeServer).Exchange(stream)
}

type appService struct {
	factory func() Application
}

func (s *appService) Exchange(stream grpc.ServerStream) error {
	side := NewAppSide(s.factory(), &serverStreamChannel{stream: stream})
	return side.Serve(stream.Context())
}

// NewServer returns a gRPC server exposing one application instance created
// by factory per client stream.
func NewServer(factory func() Application, opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts, grpc.ForceServerCodec(datagramCodec{}))
	srv := grpc.NewServer(opts...)
	srv.RegisterService(&appServiceDesc, &appService{factory: factory})
	return srv
}

type serverStreamChannel struct {
	stream grpc.ServerStream
}

func (c *serverStreamChannel) Send(data []byte) error {
	return streamError(c.stream.SendMsg(&frame{data: data}))
}

func (c *serverStreamChannel) Receive(ctx context.Context) ([]byte, error) {
	f := &frame{}
	if err := c.stream.RecvMsg(f); err != nil {
		return nil, streamError(err)
	}
	return f.data, nil
}

func (c *serverStreamChannel) Close() error {
	return nil
}

// clientStreamChannel reads the stream from a pump goroutine so that
// Receive can give up when its context is done.
type clientStreamChannel struct {
	stream grpc.ClientStream
	cancel context.CancelFunc
	in     chan []byte
	closed chan struct{}
	pumped chan struct{}
	err    error
	once   sync.Once
}

func newClientStreamChannel(ctx context.Context, conn *grpc.ClientConn) (*clientStreamChannel, error) {
	ctx, cancel := context.WithCancel(ctx)
	stream, err := conn.NewStream(ctx, &appServiceDesc.Streams[0], exchangeMethod,
		grpc.ForceCodec(datagramCodec{}))
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, "opening the exchange stream")
	}
	c := &clientStreamChannel{
		stream: stream,
		cancel: cancel,
		in:     make(chan []byte),
		closed: make(chan struct{}),
		pumped: make(chan struct{}),
	}
	go c.pump()
	return c, nil
}

func (c *clientStreamChannel) pump() {
	defer close(c.pumped)
	defer close(c.in)
	for {
		f := &frame{}
		if err := c.stream.RecvMsg(f); err != nil {
			c.err = err
			return
		}
		select {
		case c.in <- f.data:
		case <-c.closed:
			return
		}
	}
}

func (c *clientStreamChannel) Send(data []byte) error {
	return streamError(c.stream.SendMsg(&frame{data: data}))
}

func (c *clientStreamChannel) Receive(ctx context.Context) ([]byte, error) {
	select {
	case data, ok := <-c.in:
		if !ok {
			return nil, streamError(c.err)
		}
		return data, nil
	case <-ctx.Done():
		return nil, errors.Wrap(ErrTimeout, ctx.Err().Error())
	}
}

func (c *clientStreamChannel) Close() error {
	c.once.Do(func() {
		close(c.closed)
		_ = c.stream.CloseSend()
		c.cancel()
	})
	<-c.pumped
	return nil
}

func streamError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, io.EOF) {
		return errors.Wrap(ErrAppCrashed, err.Error())
	}
	switch status.Code(err) {
	case codes.Canceled, codes.Unavailable, codes.Aborted, codes.Internal, codes.Unknown:
		return errors.Wrap(ErrAppCrashed, err.Error())
	case codes.DeadlineExceeded:
		return errors.Wrap(ErrTimeout, err.Error())
	}
	return err
}
