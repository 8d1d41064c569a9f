package main

import (
	"fmt"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"simcheck/record"
)

var (
	traceText string
	traceFile string
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay a trace found by explore",
	RunE:  runReplay,
}

func init() {
	f := replayCmd.Flags()
	launcherFlags(f)
	f.StringVar(&traceText, "trace", "", `trace in its textual form, as in "0/0;1/0"`)
	f.StringVar(&traceFile, "trace-file", "", "trace written by explore --trace-out")
}

func loadTrace() (record.RecordTrace, error) {
	switch {
	case traceText != "" && traceFile != "":
		return record.RecordTrace{}, errors.New("--trace and --trace-file are exclusive")
	case traceFile != "":
		data, err := os.ReadFile(traceFile)
		if err != nil {
			return record.RecordTrace{}, errors.Wrap(err, "reading the trace")
		}
		var trace record.RecordTrace
		err = trace.UnmarshalBinary(data)
		return trace, err
	}
	return record.Parse(traceText)
}

func runReplay(cmd *cobra.Command, args []string) error {
	trace, err := loadTrace()
	if err != nil {
		return err
	}
	launcher, release, err := newLauncher()
	if err != nil {
		return err
	}
	defer release()

	status, err := record.Replay(cmd.Context(), launcher, trace)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Replayed %d steps: %s\n", len(trace.Steps), status)
	if trace.Status != record.Success && status != trace.Status {
		fmt.Fprintf(cmd.OutOrStdout(), "The trace was recorded as a %s\n", trace.Status)
	}
	exitCode = status.ExitCode()
	return nil
}
