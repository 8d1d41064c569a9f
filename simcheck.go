// Package simcheck explores every relevant interleaving of the actors of an
// application, looking for failed assertions, crashes and deadlocks.
package simcheck

import (
	"context"

	"simcheck/config"
	"simcheck/explorer"
	"simcheck/logger"
	"simcheck/remoteApp"
)

var plog = logger.GetLogger("simcheck")

// Exploration is a configured exploration, ready to be run.
type Exploration struct {
	launcher remoteApp.Launcher
	cfg      explorer.Config
}

// PrepareExploration configures the exploration of the application started
// by launcher.
func PrepareExploration(launcher remoteApp.Launcher, opts ...config.Option) Exploration {
	return Exploration{
		launcher: launcher,
		cfg:      config.Apply(opts...),
	}
}

// PrepareInProcess configures the exploration of applications created by
// factory in the checker process.
func PrepareInProcess(factory func() remoteApp.Application, opts ...config.Option) Exploration {
	return PrepareExploration(remoteApp.InProcess(factory), opts...)
}

// Config returns the configuration the exploration runs with.
func (e Exploration) Config() explorer.Config {
	return e.cfg
}

// Run explores the application. An error is returned when the exploration
// could not be carried out, a found bug is reported by the response.
func (e Exploration) Run(ctx context.Context) (*Response, error) {
	res, err := explorer.Explore(ctx, e.launcher, e.cfg)
	if err != nil {
		plog.Errorf("exploration failed: %v", err)
		return nil, err
	}
	if res.Warning != nil {
		plog.Warningf("%v", res.Warning)
	}
	return &Response{Result: res}, nil
}
