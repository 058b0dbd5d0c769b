package scheduler

import (
	"context"

	"github.com/tastythames/polyrun/internal/job"
	"github.com/tastythames/polyrun/internal/profile"
	"github.com/tastythames/polyrun/internal/runner"
)

// Job is one run waiting for a worker.
type Job struct {
	ID   string
	Tool string
	Spec job.Spec

	// Profile is nil for runs on the local machine.
	Profile *profile.Profile
	Options runner.Options

	// Scratch is a local directory removed once the run is over.
	Scratch string
}

// Executor runs jobs. *runner.Runner implements it.
type Executor interface {
	SubmitAndCollect(ctx context.Context, p profile.Profile, spec job.Spec, opts runner.Options) (*runner.Result, error)
	RunLocal(ctx context.Context, spec job.Spec) (*runner.Result, error)
}
