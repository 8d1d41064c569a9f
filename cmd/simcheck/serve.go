package main

import (
	"context"
	"fmt"
	"net"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"simcheck/examples"
	"simcheck/logger"
	"simcheck/remoteApp"
)

var plog = logger.GetLogger("simcheck")

var listen string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve a model to a checker running elsewhere",
	RunE:  runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringVarP(&modelName, "model", "m", "", "name of the model to serve")
	f.StringVarP(&transport, "transport", "t", transportGRPC, "grpc or tcp")
	f.StringVarP(&listen, "listen", "l", "127.0.0.1:7420", "address to listen on")
}

func runServe(cmd *cobra.Command, args []string) error {
	factory, err := examples.Lookup(modelName)
	if err != nil {
		return err
	}
	lis, err := net.Listen("tcp", listen)
	if err != nil {
		return errors.Wrapf(err, "listening on %s", listen)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "serving %s over %s on %s\n", modelName, transport, lis.Addr())
	switch transport {
	case transportGRPC:
		return remoteApp.NewServer(factory).Serve(lis)
	case transportTCP:
		return serveTCP(cmd.Context(), lis, factory)
	}
	_ = lis.Close()
	return errors.Newf("unknown transport %q", transport)
}

// serveTCP serves a new application instance on every accepted connection.
func serveTCP(ctx context.Context, lis net.Listener, factory func() remoteApp.Application) error {
	for {
		conn, err := lis.Accept()
		if err != nil {
			return errors.Wrap(err, "accepting")
		}
		go func() {
			if err := remoteApp.ServeConn(ctx, conn, factory()); err != nil {
				plog.Warningf("serving %v: %v", conn.RemoteAddr(), err)
			}
		}()
	}
}
