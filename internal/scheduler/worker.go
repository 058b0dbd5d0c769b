package scheduler

import (
	"context"
	"errors"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/tastythames/polyrun/internal/archive"
	"github.com/tastythames/polyrun/internal/runner"
	"github.com/tastythames/polyrun/internal/runstore"
)

// ArchiveName is the bundle written into each run's output directory.
const ArchiveName = "output_files.tar.gz"

// StartWorker executes jobs until the channel is closed. Each run is
// bounded by timeout when it is positive; cancelling ctx aborts the run
// in progress.
func StartWorker(ctx context.Context, id int, jobs <-chan Job, store runstore.Store, exec Executor, timeout time.Duration) {
	log.Printf("worker %d started", id)
	for j := range jobs {
		runJob(ctx, id, j, store, exec, timeout)
	}
	log.Printf("worker %d stopped", id)
}

func runJob(ctx context.Context, id int, j Job, store runstore.Store, exec Executor, timeout time.Duration) {
	if j.Scratch != "" {
		defer func() {
			if err := os.RemoveAll(j.Scratch); err != nil {
				log.Printf("worker %d: run %s: %v", id, j.ID, err)
			}
		}()
	}
	start := time.Now()
	store.Update(j.ID, func(r *runstore.Run) {
		r.State = runstore.StateRunning
		r.Started = start
	})

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var (
		res *runner.Result
		err error
	)
	if j.Profile != nil {
		res, err = exec.SubmitAndCollect(ctx, *j.Profile, j.Spec, j.Options)
	} else {
		res, err = exec.RunLocal(ctx, j.Spec)
	}

	var bundle, logPath string
	if err == nil && res != nil && res.OutputDir != "" {
		bundle = filepath.Join(res.OutputDir, ArchiveName)
		if _, aerr := archive.Bundle(res.OutputDir, res.Retrieved, bundle); aerr != nil {
			log.Printf("worker %d: run %s: %v", id, j.ID, aerr)
			bundle = ""
		}
		if j.Spec.LogFile != "" && contains(res.Retrieved, j.Spec.LogFile) {
			logPath = filepath.Join(res.OutputDir, filepath.Base(j.Spec.LogFile))
		}
	}

	state := stateFor(res, err)
	store.Update(j.ID, func(r *runstore.Run) {
		r.State = state
		r.Finished = time.Now()
		r.Result = res
		r.Archive = bundle
		r.LogPath = logPath
		if err != nil {
			r.Err = err.Error()
		}
	})

	if err != nil {
		log.Printf("worker %d: run %s (%s) %s after %s: %v", id, j.ID, j.Tool, state, time.Since(start).Round(time.Millisecond), err)
		return
	}
	log.Printf("worker %d: run %s (%s) %s in %s, %d outputs, %d missing",
		id, j.ID, j.Tool, state, time.Since(start).Round(time.Millisecond), len(res.Retrieved), len(res.Missing))
}

func stateFor(res *runner.Result, err error) runstore.State {
	var se *runner.SubmissionError
	switch {
	case errors.As(err, &se):
		return runstore.StateRejected
	case err != nil:
		return runstore.StateFailed
	case res.Status == runner.StatusSubmitted:
		return runstore.StateSubmitted
	default:
		return runstore.StateCompleted
	}
}

func contains(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}
