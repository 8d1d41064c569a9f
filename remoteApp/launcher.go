package remoteApp

import (
	"context"
	"net"

	"github.com/cockroachdb/errors"
	"google.golang.org/grpc"
)

// Launcher starts application instances.
type Launcher interface {
	Launch(ctx context.Context) (*RemoteApp, error)
}

// LauncherFunc adapts a function to the Launcher interface.
type LauncherFunc func(ctx context.Context) (*RemoteApp, error)

func (f LauncherFunc) Launch(ctx context.Context) (*RemoteApp, error) {
	return f(ctx)
}

// InProcess returns a launcher serving every instance created by factory
// from its own goroutine. Closing the RemoteApp waits for that goroutine.
func InProcess(factory func() Application) Launcher {
	return LauncherFunc(func(ctx context.Context) (*RemoteApp, error) {
		checker, app := NewPipe()
		served := make(chan error, 1)
		go func() {
			served <- NewAppSide(factory(), app).Serve(context.Background())
		}()
		return NewRemoteApp(checker, func() error {
			if err := <-served; err != nil {
				plog.Debugf("in-process application stopped: %v", err)
			}
			return nil
		}), nil
	})
}

// GRPC returns a launcher opening one Exchange stream per instance on conn.
// The server must have been created by NewServer.
func GRPC(conn *grpc.ClientConn) Launcher {
	return LauncherFunc(func(ctx context.Context) (*RemoteApp, error) {
		ch, err := newClientStreamChannel(context.Background(), conn)
		if err != nil {
			return nil, err
		}
		return NewRemoteApp(ch, nil), nil
	})
}

// Dial returns a launcher connecting to an application listening on
// address. Every connection serves one instance.
func Dial(network, address string) Launcher {
	return LauncherFunc(func(ctx context.Context) (*RemoteApp, error) {
		var d net.Dialer
		conn, err := d.DialContext(ctx, network, address)
		if err != nil {
			return nil, errors.Wrapf(err, "dialing %s", address)
		}
		return NewRemoteApp(NewConnChannel(conn), nil), nil
	})
}

// ServeConn serves one application instance over conn.
func ServeConn(ctx context.Context, conn net.Conn, app Application) error {
	return NewAppSide(app, NewConnChannel(conn)).Serve(ctx)
}
