package main

import (
	"github.com/cockroachdb/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"simcheck/examples"
	"simcheck/remoteApp"
)

const (
	transportGRPC = "grpc"
	transportTCP  = "tcp"
)

var (
	modelName string
	remote    string
	transport string
)

// launcherFlags are shared by the commands running an application.
func launcherFlags(flags interface {
	StringVarP(p *string, name, shorthand, value, usage string)
}) {
	flags.StringVarP(&modelName, "model", "m", "", "name of the in-process model to check")
	flags.StringVarP(&remote, "remote", "r", "", "address of an application served by \"simcheck serve\"")
	flags.StringVarP(&transport, "transport", "t", transportGRPC, "transport to the remote application: grpc or tcp")
}

// newLauncher returns the launcher selected by the flags and a function
// releasing it.
func newLauncher() (remoteApp.Launcher, func(), error) {
	switch {
	case modelName != "" && remote != "":
		return nil, nil, errors.New("--model and --remote are exclusive")
	case modelName != "":
		factory, err := examples.Lookup(modelName)
		if err != nil {
			return nil, nil, err
		}
		return remoteApp.InProcess(factory), func() {}, nil
	case remote == "":
		return nil, nil, errors.New("one of --model and --remote is required")
	}
	switch transport {
	case transportTCP:
		return remoteApp.Dial("tcp", remote), func() {}, nil
	case transportGRPC:
		conn, err := grpc.Dial(remote, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return nil, nil, errors.Wrapf(err, "dialing %s", remote)
		}
		return remoteApp.GRPC(conn), func() { _ = conn.Close() }, nil
	}
	return nil, nil, errors.Newf("unknown transport %q", transport)
}
