// Package batch wraps tool invocations for the SLURM batch scheduler.
package batch

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tastythames/polyrun/internal/cmdline"
)

// ScriptName is the file the wrapper script is uploaded as.
const ScriptName = "slurm_job.sh"

// Script is a batch submission script for one tool invocation.
type Script struct {
	JobName string
	// Partition is passed as "#SBATCH --partition" when set.
	Partition string
	PreRun    string
	PostRun   string
	Activate  string
	WorkDir   string
	Command   string
}

// StdoutFile and StderrFile are where the scheduler writes the job's streams.
func (s Script) StdoutFile() string { return s.JobName + ".out" }
func (s Script) StderrFile() string { return s.JobName + ".err" }

// Render returns the script text. Directives come before any command so
// the scheduler honours them.
func (s Script) Render() string {
	var b strings.Builder
	b.WriteString("#!/bin/bash\n")
	fmt.Fprintf(&b, "#SBATCH --job-name=%s\n", s.JobName)
	fmt.Fprintf(&b, "#SBATCH --output=%s\n", s.StdoutFile())
	fmt.Fprintf(&b, "#SBATCH --error=%s\n", s.StderrFile())
	if s.Partition != "" {
		fmt.Fprintf(&b, "#SBATCH --partition=%s\n", s.Partition)
	}
	if s.PreRun != "" {
		b.WriteString(strings.TrimRight(s.PreRun, "\n"))
		b.WriteString("\n")
	}
	if s.Activate != "" {
		fmt.Fprintf(&b, "source %s\n", cmdline.Quote(s.Activate))
	}
	if s.WorkDir != "" {
		fmt.Fprintf(&b, "cd %s\n", cmdline.Quote(s.WorkDir))
	}
	b.WriteString(s.Command)
	b.WriteString("\n")
	if s.PostRun != "" {
		b.WriteString(strings.TrimRight(s.PostRun, "\n"))
		b.WriteString("\n")
	}
	return b.String()
}

// SubmitCommand submits the script from within dir.
func SubmitCommand(dir string) string {
	return fmt.Sprintf("cd %s && sbatch %s", cmdline.Quote(dir), ScriptName)
}

// StatusCommand queries the queue for one job.
func StatusCommand(jobID string) string {
	return "squeue -j " + cmdline.Quote(jobID)
}

var ErrNoJobID = errors.New("batch: no job id in submission output")

// ParseJobID takes the last whitespace-delimited token of the submission
// output, e.g. "Submitted batch job 4821" yields "4821".
func ParseJobID(stdout string) (string, error) {
	f := strings.Fields(stdout)
	if len(f) == 0 {
		return "", ErrNoJobID
	}
	return f[len(f)-1], nil
}

// Listed reports whether jobID appears as a field in the status output.
func Listed(statusOut, jobID string) bool {
	for _, ln := range strings.Split(statusOut, "\n") {
		for _, f := range strings.Fields(ln) {
			if f == jobID {
				return true
			}
		}
	}
	return false
}
