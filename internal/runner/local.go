package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"sort"

	"github.com/tastythames/polyrun/internal/job"
)

// RunLocal runs spec on this machine inside a scratch directory holding
// copies of its inputs. Outputs are moved into a fresh output directory.
func (r *Runner) RunLocal(ctx context.Context, spec job.Spec) (*Result, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	stage, err := r.newDir("stage")
	if err != nil {
		return nil, err
	}
	defer removeDir(stage)

	for _, in := range spec.Inputs {
		if err := copyFile(in, filepath.Join(stage, job.StagedName(in))); err != nil {
			return nil, fmt.Errorf("runner: stage %s: %w", in, err)
		}
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, spec.Executable, spec.Tokens(job.StagedName)...)
	cmd.Dir = stage
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var ee *exec.ExitError
		if !errors.As(err, &ee) {
			return nil, fmt.Errorf("runner: run %s: %w", spec.Executable, err)
		}
		log.Printf("runner: %s exited with status %d", spec.Executable, ee.ExitCode())
	}

	outDir, err := r.newDir("out")
	if err != nil {
		return nil, err
	}
	res := &Result{Status: StatusCompleted, Stdout: stdout.String(), Stderr: stderr.String(), OutputDir: outDir}

	names := spec.OutputNames()
	if len(spec.Collect) > 0 {
		entries, err := os.ReadDir(stage)
		if err != nil {
			log.Printf("runner: list %s: %v", stage, err)
		}
		var extra []string
		for _, e := range entries {
			for _, m := range spec.Collect {
				if e.Type().IsRegular() && m.Matches(e.Name()) {
					extra = append(extra, e.Name())
					break
				}
			}
		}
		sort.Strings(extra)
		names = append(names, extra...)
	}

	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if seen[n] {
			continue
		}
		seen[n] = true
		if !job.LocalName(n) {
			log.Printf("runner: output %q outside the staging directory, skipped", n)
			res.Missing = append(res.Missing, n)
			continue
		}
		src := filepath.Join(stage, n)
		if _, err := os.Stat(src); err != nil {
			log.Printf("runner: output %s not found", n)
			res.Missing = append(res.Missing, n)
			continue
		}
		if err := moveFile(src, filepath.Join(outDir, filepath.Base(n))); err != nil {
			log.Printf("runner: collect %s: %v", n, err)
			res.Missing = append(res.Missing, n)
			continue
		}
		res.Retrieved = append(res.Retrieved, n)
	}
	return res, nil
}

func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	return copyFile(src, dst)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}
