package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"github.com/tastythames/polyrun/internal/config"
	"github.com/tastythames/polyrun/internal/metrics"
	"github.com/tastythames/polyrun/internal/profile"
	"github.com/tastythames/polyrun/internal/runner"
	"github.com/tastythames/polyrun/internal/runstore"
	"github.com/tastythames/polyrun/internal/scheduler"
	"github.com/tastythames/polyrun/internal/sshclient"
)

type fakeQueue struct {
	jobs  []scheduler.Job
	store runstore.Store
	err   error
}

func (q *fakeQueue) Enqueue(j scheduler.Job) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, j)
	q.store.Put(runstore.Run{ID: j.ID, Tool: j.Tool, State: runstore.StateQueued})
	return nil
}

type fakeChecker struct {
	rep runner.ProfileReport
	err error
}

func (c fakeChecker) CheckProfile(context.Context, profile.Profile) (runner.ProfileReport, error) {
	return c.rep, c.err
}

type fixture struct {
	srv   *httptest.Server
	store *runstore.MemStore
	queue *fakeQueue
	cfg   *config.Config
}

func newFixture(t *testing.T, checker Checker) *fixture {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	store := runstore.NewMemStore()
	queue := &fakeQueue{store: store}
	h := NewHandler(&cfg, store, queue, checker, metrics.NewRenderer(store, nil))
	n := 0
	h.newID = func() string {
		n++
		return "run-" + string(rune('0'+n))
	}
	r := mux.NewRouter()
	SetupRoutes(r, h)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, store: store, queue: queue, cfg: &cfg}
}

func (f *fixture) post(t *testing.T, path, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(f.srv.URL+path, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (f *fixture) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(f.srv.URL + path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealthAndTools(t *testing.T) {
	f := newFixture(t, fakeChecker{})
	if resp := f.get(t, "/health"); resp.StatusCode != http.StatusOK {
		t.Fatalf("health = %d", resp.StatusCode)
	}

	var body struct{ Tools []string }
	if err := json.NewDecoder(f.get(t, "/api/v1/tools").Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if len(body.Tools) != 11 {
		t.Fatalf("tools = %v", body.Tools)
	}

	resp := f.get(t, "/metrics")
	var b bytes.Buffer
	b.ReadFrom(resp.Body)
	if !strings.Contains(b.String(), "polyrun_up 1") {
		t.Fatalf("metrics body:\n%s", b.String())
	}
}

func TestSubmitLocalRun(t *testing.T) {
	f := newFixture(t, fakeChecker{})
	in := filepath.Join(t.TempDir(), "polymer.pdb")
	if err := os.WriteFile(in, []byte("ATOM\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	body := `{"tool":"topology","options":{"input":"` + in + `","pattern":"topology"}}`
	resp := f.post(t, "/api/v1/runs", body)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var out SubmitRunResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.ID != "run-1" || out.State != runstore.StateQueued {
		t.Fatalf("response %+v", out)
	}
	if len(f.queue.jobs) != 1 {
		t.Fatalf("queued %d jobs", len(f.queue.jobs))
	}
	j := f.queue.jobs[0]
	if j.Profile != nil || j.Spec.Executable != "topology_cmd" || j.Options.LogWindow != runner.DefaultLogWindow {
		t.Fatalf("job %+v", j)
	}
}

func TestSubmitMultipartRewritesUploads(t *testing.T) {
	f := newFixture(t, fakeChecker{})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("request", `{"tool":"topology","options":{"input":"polymer.pdb","pattern":"topology"},"queue":true,"poll":true}`)
	fw, _ := mw.CreateFormFile("files", "polymer.pdb")
	_, _ = fw.Write([]byte("ATOM\n"))
	mw.Close()

	resp, err := http.Post(f.srv.URL+"/api/v1/runs", mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	j := f.queue.jobs[0]
	want := filepath.Join(f.cfg.DataDir, "polyrun-upload-run-1", "polymer.pdb")
	if len(j.Spec.Inputs) != 1 || j.Spec.Inputs[0] != want {
		t.Fatalf("inputs = %v, want %s", j.Spec.Inputs, want)
	}
	if j.Scratch != filepath.Dir(want) || !j.Options.Queue || !j.Options.Poll {
		t.Fatalf("job %+v", j)
	}
	if b, err := os.ReadFile(want); err != nil || string(b) != "ATOM\n" {
		t.Fatalf("upload = %q, %v", b, err)
	}
}

func TestSubmitMultipartKeepsPlainOptions(t *testing.T) {
	f := newFixture(t, fakeChecker{})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("request", `{"tool":"topology","options":{"input":"polymer.pdb","pattern":"topology"}}`)
	for _, name := range []string{"polymer.pdb", "topology"} {
		fw, _ := mw.CreateFormFile("files", name)
		_, _ = fw.Write([]byte("ATOM\n"))
	}
	mw.Close()

	resp, err := http.Post(f.srv.URL+"/api/v1/runs", mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	j := f.queue.jobs[0]
	scratch := filepath.Join(f.cfg.DataDir, "polyrun-upload-run-1")
	if fmt.Sprint(j.Spec.Inputs) != "["+filepath.Join(scratch, "polymer.pdb")+"]" {
		t.Fatalf("inputs = %v", j.Spec.Inputs)
	}
	for _, a := range j.Spec.Args {
		if a.Flag == "-p" && fmt.Sprint(a.Values) != "[topology]" {
			t.Fatalf("pattern rewritten to %v", a.Values)
		}
		if a.Flag == "-i" && fmt.Sprint(a.Values) != "["+filepath.Join(scratch, "polymer.pdb")+"]" {
			t.Fatalf("input arg = %v", a.Values)
		}
	}
	if j.Spec.Outputs[0].Name != "topology.pdb" {
		t.Fatalf("outputs = %+v", j.Spec.Outputs)
	}
}

func TestSubmitErrors(t *testing.T) {
	f := newFixture(t, fakeChecker{})
	tests := []struct {
		body string
		code int
	}{
		{`{`, http.StatusBadRequest},
		{`{"tool":"nope"}`, http.StatusNotFound},
		{`{"tool":"topology","options":{"bogus":1}}`, http.StatusBadRequest},
		{`{"tool":"topology","options":{"input":"/no/such.pdb"}}`, http.StatusBadRequest},
		{`{"tool":"topology","options":{"input":"/etc/hostname"},"profile":"missing"}`, http.StatusBadRequest},
		{`{"tool":"topology","options":{"input":"/etc/hostname","pattern":"../victim"}}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		if resp := f.post(t, "/api/v1/runs", tt.body); resp.StatusCode != tt.code {
			t.Errorf("POST %s = %d, want %d", tt.body, resp.StatusCode, tt.code)
		}
	}
	if len(f.queue.jobs) != 0 {
		t.Fatalf("invalid requests queued %d jobs", len(f.queue.jobs))
	}
}

func TestSubmitQueueFull(t *testing.T) {
	f := newFixture(t, fakeChecker{})
	f.queue.err = scheduler.ErrQueueFull
	in := filepath.Join(t.TempDir(), "polymer.pdb")
	if err := os.WriteFile(in, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	resp := f.post(t, "/api/v1/runs", `{"tool":"topology","options":{"input":"`+in+`"}}`)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestRunArtifacts(t *testing.T) {
	f := newFixture(t, fakeChecker{})
	dir := t.TempDir()
	logPath := filepath.Join(dir, "Info.log")
	if err := os.WriteFile(logPath, []byte("replicate finished\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	bundle := filepath.Join(dir, scheduler.ArchiveName)
	if err := os.WriteFile(bundle, []byte("gz"), 0o644); err != nil {
		t.Fatal(err)
	}
	f.store.Put(runstore.Run{ID: "done", Tool: "replicate", State: runstore.StateCompleted,
		Created: time.Now(), Archive: bundle, LogPath: logPath})
	f.store.Put(runstore.Run{ID: "bare", Tool: "replicate", State: runstore.StateRejected, Created: time.Now()})

	resp := f.get(t, "/api/v1/runs/done")
	var run runstore.Run
	if err := json.NewDecoder(resp.Body).Decode(&run); err != nil || run.State != runstore.StateCompleted {
		t.Fatalf("run = %+v, %v", run, err)
	}

	resp = f.get(t, "/api/v1/runs/done/log")
	var b bytes.Buffer
	b.ReadFrom(resp.Body)
	if resp.StatusCode != http.StatusOK || b.String() != "replicate finished\n" {
		t.Fatalf("log %d %q", resp.StatusCode, b.String())
	}

	resp = f.get(t, "/api/v1/runs/done/archive")
	if resp.StatusCode != http.StatusOK || !strings.Contains(resp.Header.Get("Content-Disposition"), "replicate_done.tar.gz") {
		t.Fatalf("archive %d %q", resp.StatusCode, resp.Header.Get("Content-Disposition"))
	}

	for _, path := range []string{"/api/v1/runs/bare/archive", "/api/v1/runs/bare/log", "/api/v1/runs/none"} {
		if resp := f.get(t, path); resp.StatusCode != http.StatusNotFound {
			t.Errorf("GET %s = %d", path, resp.StatusCode)
		}
	}

	var list struct{ Runs []runstore.Run }
	if err := json.NewDecoder(f.get(t, "/api/v1/runs").Body).Decode(&list); err != nil || len(list.Runs) != 2 {
		t.Fatalf("list = %+v, %v", list, err)
	}
}

func TestCheckProfile(t *testing.T) {
	conn := `{"connection":{"Name Server*":"hpc","Username*":"u","Key SSH file path*":"/k","Virtual environment path*":"/v","Working directory*":"/w"}}`

	f := newFixture(t, fakeChecker{rep: runner.ProfileReport{Reachable: true, Virtualenv: true, WorkDir: true}})
	var out CheckProfileResponse
	if err := json.NewDecoder(f.post(t, "/api/v1/profiles/check", conn).Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if !out.OK || !out.WorkDir {
		t.Fatalf("response %+v", out)
	}

	f = newFixture(t, fakeChecker{err: &sshclient.ConnectError{Host: "hpc", Err: errors.New("refused")}})
	resp := f.post(t, "/api/v1/profiles/check", conn)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unreachable host status = %d", resp.StatusCode)
	}
	out = CheckProfileResponse{}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.OK || out.Reachable || out.Error == "" {
		t.Fatalf("response %+v", out)
	}

	f = newFixture(t, fakeChecker{err: profile.ErrIncomplete})
	if resp := f.post(t, "/api/v1/profiles/check", conn); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("incomplete profile status = %d", resp.StatusCode)
	}
	if resp := f.post(t, "/api/v1/profiles/check", `{}`); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty request status = %d", resp.StatusCode)
	}
}
