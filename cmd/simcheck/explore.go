package main

import (
	"fmt"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"simcheck"
	"simcheck/config"
	"simcheck/explorer"
	"simcheck/reduction"
)

var (
	configPath  string
	reductionF  string
	explorerF   string
	strategyF   string
	threshold   int
	workers     int
	maxDepth    int
	cpInterval  int
	noCritical  bool
	optimality  bool
	withMetrics bool
	dotPath     string
	traceOut    string
)

var exploreCmd = &cobra.Command{
	Use:   "explore",
	Short: "Explore the interleavings of an application",
	Long: `Explore the interleavings of an application until a failed assertion,
a crash or a deadlock is found, or every relevant interleaving was explored.

Flags override the values of the --config file.`,
	RunE: runExplore,
}

func init() {
	f := exploreCmd.Flags()
	launcherFlags(f)
	f.StringVarP(&configPath, "config", "c", "", "YAML file holding the exploration options")
	f.StringVar(&reductionF, "reduction", "", "reduction: none, dpor, sdpor or odpor (default dpor)")
	f.StringVar(&explorerF, "explorer", "", "explorer: dfs, befs, ooo or parallel (default dfs)")
	f.StringVar(&strategyF, "strategy", "", "valuation of the best-first explorers: none, uniform, min_match or max_match")
	f.IntVar(&threshold, "threshold", 0, "percent of the current value under which the best-first explorer changes state")
	f.IntVarP(&workers, "workers", "w", 0, "application instances of the parallel explorer (default GOMAXPROCS)")
	f.IntVar(&maxDepth, "max-depth", 0, "number of transitions after which a branch is cut (default 1000)")
	f.IntVar(&cpInterval, "checkpoint-interval", 0, "checkpoint the application every n created states")
	f.BoolVar(&noCritical, "no-critical", false, "do not search the critical transition of a found bug")
	f.BoolVar(&optimality, "optimality-check", false, "fail when two explored traces are equivalent (odpor only)")
	f.BoolVar(&withMetrics, "metrics", false, "print the exploration counters in the Prometheus text format")
	f.StringVar(&dotPath, "dot", "", "write the explored graph to this file in the Graphviz format")
	f.StringVar(&traceOut, "trace-out", "", "write the binary form of a found trace to this file")
}

// exploreOptions collects the options of the config file followed by the
// options of the flags that were set.
func exploreOptions(cmd *cobra.Command) ([]config.Option, error) {
	var opts []config.Option
	if configPath != "" {
		file, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		if opts, err = file.Options(); err != nil {
			return nil, err
		}
	}
	flags := cmd.Flags()
	if flags.Changed("reduction") {
		kind, err := reduction.ParseKind(reductionF)
		if err != nil {
			return nil, err
		}
		opts = append(opts, simcheck.WithReduction(kind))
	}
	if flags.Changed("explorer") {
		kind, err := explorer.ParseKind(explorerF)
		if err != nil {
			return nil, err
		}
		opts = append(opts, config.ExplorerOption{Explorer: kind})
	}
	if flags.Changed("strategy") {
		opts = append(opts, config.StrategyOption{Name: strategyF})
	}
	if flags.Changed("threshold") {
		opts = append(opts, config.BeFSThresholdOption{Threshold: threshold})
	}
	if flags.Changed("workers") {
		opts = append(opts, config.WorkersOption{N: workers})
	}
	if flags.Changed("max-depth") {
		opts = append(opts, simcheck.MaxDepth(maxDepth))
	}
	if flags.Changed("checkpoint-interval") {
		opts = append(opts, config.CheckpointIntervalOption{Interval: cpInterval})
	}
	if noCritical {
		opts = append(opts, simcheck.SkipCriticalTransition())
	}
	if optimality {
		opts = append(opts, simcheck.CheckOptimality())
	}
	return opts, nil
}

func runExplore(cmd *cobra.Command, args []string) error {
	opts, err := exploreOptions(cmd)
	if err != nil {
		return err
	}
	if dotPath != "" {
		dot, err := os.Create(dotPath)
		if err != nil {
			return errors.Wrap(err, "creating the dot file")
		}
		defer dot.Close()
		opts = append(opts, simcheck.ExportDot(dot))
	}
	launcher, release, err := newLauncher()
	if err != nil {
		return err
	}
	defer release()

	resp, err := simcheck.PrepareExploration(launcher, opts...).Run(cmd.Context())
	if err != nil {
		return err
	}
	_, desc := resp.Response()
	fmt.Fprintln(cmd.OutOrStdout(), desc)
	if withMetrics {
		resp.WriteMetrics(cmd.OutOrStdout())
	}
	if traceOut != "" && len(resp.Export().Steps) > 0 {
		out, err := os.Create(traceOut)
		if err != nil {
			return errors.Wrap(err, "creating the trace file")
		}
		defer out.Close()
		if _, err := resp.WriteTo(out); err != nil {
			return errors.Wrap(err, "writing the trace")
		}
	}
	exitCode = resp.ExitCode()
	return nil
}
