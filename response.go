package simcheck

import (
	"bytes"
	"fmt"
	"io"
	"text/tabwriter"

	"simcheck/explorer"
	"simcheck/record"
)

// Response is the result of an exploration.
type Response struct {
	*explorer.Result
}

// Generate a response
// Returns two parameters, result, and description.
// Result is true if no bug was found, false otherwise.
// If result is false the description contains the trace leading to the bug
// and its critical transition when one was found.
func (r *Response) Response() (bool, string) {
	var buffer bytes.Buffer
	if r.Status == record.Success {
		fmt.Fprintf(&buffer, "No property violation found. %d traces explored.", r.Stats.Traces)
		if r.Unsound {
			buffer.WriteString(" Some branches were cut, the result is not exhaustive.")
		}
		return true, buffer.String()
	}
	fmt.Fprintf(&buffer, "%s found. Trace: \n", capitalize(r.Status.String()))
	wrt := tabwriter.NewWriter(&buffer, 4, 4, 0, ' ', 0)
	for i, line := range r.TextualTrace {
		marker := ""
		if r.Critical != nil && r.Critical.Index == i {
			marker = "\t<- critical transition"
		}
		fmt.Fprintf(wrt, "-> %s%s \n", line, marker)
	}
	wrt.Flush()
	fmt.Fprintf(&buffer, "Replay with: %q\n", r.Trace.String())
	return false, buffer.String()
}

// Export the trace leading to the bug, to be replayed by record.Replay. The
// trace has no step if no bug was found.
func (r *Response) Export() record.RecordTrace {
	return r.Trace
}

// ExitCode is the process exit code reporting the response.
func (r *Response) ExitCode() int {
	return r.Status.ExitCode()
}

// WriteTo writes the binary form of the exported trace to w.
func (r *Response) WriteTo(w io.Writer) (int64, error) {
	data, err := r.Trace.MarshalBinary()
	if err != nil {
		return 0, err
	}
	n, err := w.Write(data)
	return int64(n), err
}

func capitalize(s string) string {
	if s == "" || s[0] < 'a' || s[0] > 'z' {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}
