// Package runner executes one tool invocation on a remote host, directly or
// through the batch scheduler, and recovers its output files.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tastythames/polyrun/internal/batch"
	"github.com/tastythames/polyrun/internal/cmdline"
	"github.com/tastythames/polyrun/internal/job"
	"github.com/tastythames/polyrun/internal/profile"
	"github.com/tastythames/polyrun/internal/sshclient"
)

// Remote is an open session to the compute host.
type Remote interface {
	Run(ctx context.Context, cmd string) (stdout, stderr string, err error)
	Upload(local, remote string) error
	Exists(remote string) (bool, error)
	IsDir(remote string) (bool, error)
	Download(remote, local string) error
	List(dir string) ([]string, error)
	Remove(remote string) error
	Close() error
}

// Dialer opens sessions. Probe is a trial connection that is closed at once.
type Dialer interface {
	Dial(ctx context.Context, p profile.Profile) (Remote, error)
	Probe(ctx context.Context, p profile.Profile) error
}

type sshDialer struct{ c *sshclient.Client }

// SSH adapts an sshclient.Client to a Dialer.
func SSH(c *sshclient.Client) Dialer { return sshDialer{c: c} }

func (d sshDialer) Dial(ctx context.Context, p profile.Profile) (Remote, error) {
	s, err := d.c.Dial(ctx, p)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (d sshDialer) Probe(ctx context.Context, p profile.Profile) error { return d.c.Probe(ctx, p) }

// DefaultLogWindow is how recent a log file found in the home directory must be.
const DefaultLogWindow = 10 * time.Minute

// Options select how a job is run.
type Options struct {
	// Queue wraps the command in a batch script and submits it.
	Queue bool
	// Partition is the scheduler partition directive, if any.
	Partition string
	PreRun    string
	PostRun   string
	// Poll waits for a queued job to leave the queue before fetching outputs.
	Poll         bool
	PollInterval time.Duration
	// PollJitter adds up to this much random delay to each poll interval.
	PollJitter time.Duration
	// PollTimeout bounds the wait; zero waits until ctx is done.
	PollTimeout time.Duration

	// NoLogFallback disables the home directory search for missing logs.
	NoLogFallback bool
	LogWindow     time.Duration
}

type Status string

const (
	StatusCompleted Status = "completed"
	// StatusSubmitted is a queued job that was not waited for.
	StatusSubmitted Status = "submitted"
	StatusRejected  Status = "rejected"
)

// Result of one run. Missing lists expected outputs that could not be
// retrieved; they never fail the run.
type Result struct {
	Status    Status   `json:"status"`
	JobID     string   `json:"job_id,omitempty"`
	Stdout    string   `json:"stdout"`
	Stderr    string   `json:"stderr"`
	OutputDir string   `json:"output_dir,omitempty"`
	Retrieved []string `json:"retrieved"`
	Missing   []string `json:"missing"`
	Polls     int      `json:"polls,omitempty"`
}

// SubmissionError is returned when the scheduler wrote to stderr on submit.
type SubmissionError struct {
	Stderr string
}

func (e *SubmissionError) Error() string {
	return "batch submission rejected: " + strings.TrimSpace(e.Stderr)
}

var ErrNoWorkDir = errors.New("runner: remote working directory does not exist")

type Runner struct {
	dialer Dialer
	// root holds per-run output and staging directories.
	root string
}

// New returns a runner that keeps outputs under root, or the system temp
// directory when root is empty.
func New(d Dialer, root string) *Runner {
	return &Runner{dialer: d, root: root}
}

// SubmitAndCollect stages spec's inputs on the host described by p, runs
// the tool, and downloads its outputs into a fresh local directory.
//
// Connectivity failures return a *sshclient.ConnectError from the dialer.
// A rejected batch submission returns the Result together with a
// *SubmissionError.
func (r *Runner) SubmitAndCollect(ctx context.Context, p profile.Profile, spec job.Spec, opts Options) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if err := r.dialer.Probe(ctx, p); err != nil {
		return nil, err
	}

	sess, err := r.dialer.Dial(ctx, p)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := sess.Close(); err != nil {
			log.Printf("runner: close session: %v", err)
		}
	}()

	ok, err := sess.IsDir(p.WorkDir)
	if err != nil {
		return nil, fmt.Errorf("runner: stat %s: %w", p.WorkDir, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoWorkDir, p.WorkDir)
	}

	outDir, err := r.newDir("out")
	if err != nil {
		return nil, err
	}

	var res *Result
	if opts.Queue {
		res, err = r.queued(ctx, sess, p, spec, opts, outDir)
	} else {
		res, err = r.direct(ctx, sess, p, spec, opts, outDir)
	}
	if err != nil {
		removeDir(outDir)
		if res != nil {
			res.OutputDir = ""
		}
		return res, err
	}
	return res, nil
}

func (r *Runner) direct(ctx context.Context, sess Remote, p profile.Profile, spec job.Spec, opts Options, outDir string) (*Result, error) {
	staged, err := stage(sess, p.WorkDir, spec.Inputs)
	defer cleanup(sess, staged)
	if err != nil {
		return nil, err
	}

	line := fmt.Sprintf("cd %s && source %s && %s",
		cmdline.Quote(p.WorkDir), cmdline.Quote(p.VirtualenvPath), spec.Command(remoteResolver(p.WorkDir)))
	log.Printf("runner: %s: %s", p.Host, line)

	stdout, stderr, err := sess.Run(ctx, line)
	if err != nil {
		return nil, fmt.Errorf("runner: run %s: %w", spec.Executable, err)
	}

	res := &Result{Status: StatusCompleted, Stdout: stdout, Stderr: stderr, OutputDir: outDir}
	res.Retrieved, res.Missing = r.fetch(ctx, sess, p.WorkDir, spec.Outputs, spec.Collect, outDir, opts)
	return res, nil
}

func (r *Runner) queued(ctx context.Context, sess Remote, p profile.Profile, spec job.Spec, opts Options, outDir string) (*Result, error) {
	name := spec.Name
	if name == "" {
		name = "polyrun_job"
	}
	script := batch.Script{
		JobName:   name,
		Partition: opts.Partition,
		PreRun:    opts.PreRun,
		PostRun:   opts.PostRun,
		Activate:  p.VirtualenvPath,
		WorkDir:   p.WorkDir,
		Command:   spec.Command(remoteResolver(p.WorkDir)),
	}

	tmp, err := r.newDir("script")
	if err != nil {
		return nil, err
	}
	defer removeDir(tmp)

	local := filepath.Join(tmp, batch.ScriptName)
	if err := os.WriteFile(local, []byte(script.Render()), 0o755); err != nil {
		return nil, fmt.Errorf("runner: write script: %w", err)
	}

	staged, err := stage(sess, p.WorkDir, append([]string{local}, spec.Inputs...))
	if err != nil {
		cleanup(sess, staged)
		return nil, err
	}

	stdout, stderr, err := sess.Run(ctx, batch.SubmitCommand(p.WorkDir))
	if err != nil {
		cleanup(sess, staged)
		return nil, fmt.Errorf("runner: submit: %w", err)
	}
	if strings.TrimSpace(stderr) != "" {
		cleanup(sess, staged)
		log.Printf("runner: %s: submission rejected: %s", p.Host, strings.TrimSpace(stderr))
		return &Result{
			Status: StatusRejected,
			Stdout: "Error submitting job: " + stderr,
			Stderr: stderr,
		}, &SubmissionError{Stderr: stderr}
	}
	id, err := batch.ParseJobID(stdout)
	if err != nil {
		cleanup(sess, staged)
		return nil, err
	}
	log.Printf("runner: %s: submitted batch job %s", p.Host, id)

	// Inputs stay on the host while the job may still be queued or running.
	res := &Result{Status: StatusSubmitted, JobID: id, OutputDir: outDir}
	if opts.Poll {
		poller := batch.Poller{Interval: opts.PollInterval, Jitter: opts.PollJitter, Timeout: opts.PollTimeout}
		res.Polls, err = poller.Wait(ctx, id, func(ctx context.Context, id string) (string, error) {
			out, _, err := sess.Run(ctx, batch.StatusCommand(id))
			return out, err
		})
		if err != nil {
			log.Printf("runner: %s: job %s: %v, staged inputs left in %s", p.Host, id, err, p.WorkDir)
			return res, err
		}
		defer cleanup(sess, staged)
		res.Status = StatusCompleted
		res.Stdout = fmt.Sprintf("Job %s completed successfully", id)
	} else {
		res.Stdout = fmt.Sprintf("Job %s submitted", id)
	}

	outputs := append(append([]job.Output{}, spec.Outputs...),
		job.Output{Name: script.StdoutFile()}, job.Output{Name: script.StderrFile()})
	res.Retrieved, res.Missing = r.fetch(ctx, sess, p.WorkDir, outputs, spec.Collect, outDir, opts)
	return res, nil
}

func remoteResolver(workDir string) cmdline.Resolver {
	return func(local string) string { return path.Join(workDir, job.StagedName(local)) }
}

// stage uploads files into dir under their base names and returns the
// remote paths written so far.
func stage(sess Remote, dir string, files []string) ([]string, error) {
	staged := make([]string, 0, len(files))
	for _, f := range files {
		remote := path.Join(dir, job.StagedName(f))
		if err := sess.Upload(f, remote); err != nil {
			return staged, fmt.Errorf("runner: upload %s: %w", f, err)
		}
		staged = append(staged, remote)
	}
	return staged, nil
}

// cleanup removes staged files; failures are only logged.
func cleanup(sess Remote, staged []string) {
	for _, f := range staged {
		if err := sess.Remove(f); err != nil {
			log.Printf("runner: cleanup %s: %v", f, err)
		}
	}
}

func (r *Runner) newDir(kind string) (string, error) {
	root := r.root
	if root == "" {
		root = os.TempDir()
	}
	dir := filepath.Join(root, "polyrun-"+kind+"-"+uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("runner: create %s dir: %w", kind, err)
	}
	return dir, nil
}

func removeDir(dir string) {
	if err := os.RemoveAll(dir); err != nil {
		log.Printf("runner: remove %s: %v", dir, err)
	}
}
