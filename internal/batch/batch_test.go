package batch

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestParseJobID(t *testing.T) {
	tests := []struct {
		in, want string
		err      bool
	}{
		{in: "Submitted batch job 4821\n", want: "4821"},
		{in: "  123  ", want: "123"},
		{in: "", err: true},
		{in: " \n\t", err: true},
	}
	for _, tt := range tests {
		got, err := ParseJobID(tt.in)
		if tt.err {
			if !errors.Is(err, ErrNoJobID) {
				t.Errorf("ParseJobID(%q) err = %v, want ErrNoJobID", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseJobID(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}
}

func TestRender(t *testing.T) {
	s := Script{
		JobName:   "topology_job",
		Partition: "test",
		PreRun:    "module load gcc\n",
		PostRun:   "echo finished",
		Activate:  "/home/u/venv/bin/activate",
		WorkDir:   "/scratch/u",
		Command:   "topology_cmd -i poly.pdb -p topology",
	}
	want := "#!/bin/bash\n" +
		"#SBATCH --job-name=topology_job\n" +
		"#SBATCH --output=topology_job.out\n" +
		"#SBATCH --error=topology_job.err\n" +
		"#SBATCH --partition=test\n" +
		"module load gcc\n" +
		"source /home/u/venv/bin/activate\n" +
		"cd /scratch/u\n" +
		"topology_cmd -i poly.pdb -p topology\n" +
		"echo finished\n"
	if got := s.Render(); got != want {
		t.Fatalf("script mismatch:\n%s", got)
	}

	s.Partition, s.PreRun, s.PostRun = "", "", ""
	got := s.Render()
	if want := "#!/bin/bash\n#SBATCH --job-name=topology_job\n#SBATCH --output=topology_job.out\n#SBATCH --error=topology_job.err\nsource /home/u/venv/bin/activate\ncd /scratch/u\ntopology_cmd -i poly.pdb -p topology\n"; got != want {
		t.Fatalf("minimal script mismatch:\n%s", got)
	}
}

func TestCommands(t *testing.T) {
	if got := SubmitCommand("/scratch/u"); got != "cd /scratch/u && sbatch slurm_job.sh" {
		t.Fatalf("SubmitCommand = %q", got)
	}
	if got := StatusCommand("4821"); got != "squeue -j 4821" {
		t.Fatalf("StatusCommand = %q", got)
	}
	if Listed("JOBID PARTITION\n48211 test\n", "4821") {
		t.Fatal("prefix of another id must not match")
	}
	if !Listed("JOBID PARTITION\n 4821 test\n", "4821") {
		t.Fatal("listed job not found")
	}
}

func TestWaitQueriesUntilGone(t *testing.T) {
	calls := 0
	query := func(ctx context.Context, id string) (string, error) {
		calls++
		if calls <= 2 {
			return "JOBID PARTITION NAME\n" + id + " test topology_job\n", nil
		}
		return "", nil
	}
	polls, err := Poller{Interval: time.Millisecond}.Wait(context.Background(), "4821", query)
	if err != nil {
		t.Fatal(err)
	}
	if calls != 3 || polls != 3 {
		t.Fatalf("calls=%d polls=%d, want 3", calls, polls)
	}
}

func TestWaitTimeout(t *testing.T) {
	query := func(ctx context.Context, id string) (string, error) { return id, nil }
	p := Poller{Interval: 5 * time.Millisecond, Timeout: 30 * time.Millisecond}
	polls, err := p.Wait(context.Background(), "7", query)
	if !errors.Is(err, ErrPollTimeout) {
		t.Fatalf("expected ErrPollTimeout, got %v", err)
	}
	if polls < 1 {
		t.Fatalf("polls = %d", polls)
	}
}

func TestWaitCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	query := func(context.Context, string) (string, error) {
		cancel()
		return "7", nil
	}
	_, err := Poller{Interval: time.Hour}.Wait(ctx, "7", query)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if errors.Is(err, ErrPollTimeout) {
		t.Fatal("cancel must not be reported as timeout")
	}
}

func TestWaitQueryError(t *testing.T) {
	boom := errors.New("connection lost")
	query := func(context.Context, string) (string, error) { return "", boom }
	polls, err := Poller{Interval: time.Millisecond}.Wait(context.Background(), "7", query)
	if !errors.Is(err, boom) || polls != 1 {
		t.Fatalf("polls=%d err=%v", polls, err)
	}
}
