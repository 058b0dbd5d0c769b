package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gorilla/mux"

	"github.com/tastythames/polyrun/internal/archive"
	"github.com/tastythames/polyrun/internal/job"
	"github.com/tastythames/polyrun/internal/profile"
	"github.com/tastythames/polyrun/internal/runstore"
	"github.com/tastythames/polyrun/internal/scheduler"
	"github.com/tastythames/polyrun/internal/tools"
)

// RunRequest submits one tool invocation. Without Profile or Connection
// the tool runs on the service host.
type RunRequest struct {
	Tool    string          `json:"tool"`
	Options json.RawMessage `json:"options"`

	// Profile names a profile from the service configuration.
	Profile    string           `json:"profile,omitempty"`
	Connection *profile.Profile `json:"connection,omitempty"`

	Queue     bool   `json:"queue,omitempty"`
	Poll      bool   `json:"poll,omitempty"`
	Partition string `json:"partition,omitempty"`
}

type SubmitRunResponse struct {
	ID    string         `json:"id"`
	State runstore.State `json:"state"`
}

// SubmitRun handles POST /api/v1/runs. The body is either a RunRequest or
// a multipart form with the request in the "request" field and input
// files in "files"; file arguments naming an uploaded file are replaced by
// its stored path. Other option values are passed through untouched.
func (h *Handler) SubmitRun(w http.ResponseWriter, r *http.Request) {
	id := h.newID()

	req, scratch, uploads, err := h.decodeRun(w, r, id)
	if err != nil {
		removeScratch(scratch)
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	spec, err := tools.Build(req.Tool, req.Options)
	if err != nil {
		removeScratch(scratch)
		code := http.StatusBadRequest
		if errors.Is(err, tools.ErrUnknownTool) {
			code = http.StatusNotFound
		}
		http.Error(w, err.Error(), code)
		return
	}
	bindUploads(&spec, uploads)
	if err := spec.Validate(); err != nil {
		removeScratch(scratch)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	j := scheduler.Job{ID: id, Tool: req.Tool, Spec: spec, Options: h.cfg.RunOptions(), Scratch: scratch}
	j.Options.Queue = req.Queue
	j.Options.Poll = req.Poll
	if req.Partition != "" {
		j.Options.Partition = req.Partition
	}

	switch {
	case req.Connection != nil:
		p := *req.Connection
		j.Profile = &p
	case req.Profile != "":
		p, err := h.cfg.Profile(req.Profile)
		if err != nil {
			removeScratch(scratch)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		j.Profile = &p
	}
	if j.Profile != nil {
		if err := j.Profile.Validate(); err != nil {
			removeScratch(scratch)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	if err := h.queue.Enqueue(j); err != nil {
		removeScratch(scratch)
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusAccepted, SubmitRunResponse{ID: id, State: runstore.StateQueued})
}

func (h *Handler) decodeRun(w http.ResponseWriter, r *http.Request, id string) (RunRequest, string, map[string]string, error) {
	var req RunRequest
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return req, "", nil, err
		}
		return req, "", nil, nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUpload)
	mr, err := r.MultipartReader()
	if err != nil {
		return req, "", nil, err
	}
	scratch := filepath.Join(h.cfg.DataDir, "polyrun-upload-"+id)
	if err := os.MkdirAll(scratch, 0o755); err != nil {
		return req, "", nil, err
	}

	uploads := map[string]string{}
	var raw []byte
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return req, scratch, nil, err
		}
		switch part.FormName() {
		case "request":
			raw, err = io.ReadAll(part)
		case "files":
			err = saveUpload(part, scratch, uploads)
		}
		part.Close()
		if err != nil {
			return req, scratch, nil, err
		}
	}
	if raw == nil {
		return req, scratch, nil, errors.New(`missing "request" field`)
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		return req, scratch, nil, err
	}
	return req, scratch, uploads, nil
}

func saveUpload(part *multipart.Part, dir string, uploads map[string]string) error {
	name := filepath.Base(part.FileName())
	if name == "." || name == string(filepath.Separator) || name == "" {
		return errors.New("upload without file name")
	}
	dst := filepath.Join(dir, name)
	f, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, part); err != nil {
		f.Close()
		return fmt.Errorf("save %s: %w", name, err)
	}
	uploads[name] = dst
	return f.Close()
}

// bindUploads points file arguments and inputs that name an uploaded
// file at its stored copy.
func bindUploads(spec *job.Spec, uploads map[string]string) {
	if len(uploads) == 0 {
		return
	}
	for i := range spec.Args {
		a := &spec.Args[i]
		if !a.File {
			continue
		}
		vals := make([]string, len(a.Values))
		for k, v := range a.Values {
			vals[k] = v
			if p, ok := uploads[v]; ok {
				vals[k] = p
			}
		}
		a.Values = vals
	}
	for i, in := range spec.Inputs {
		if p, ok := uploads[in]; ok {
			spec.Inputs[i] = p
		}
	}
}

func removeScratch(dir string) {
	if dir == "" {
		return
	}
	if err := os.RemoveAll(dir); err != nil {
		log.Printf("api: remove %s: %v", dir, err)
	}
}

// ListRuns handles GET /api/v1/runs
func (h *Handler) ListRuns(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"runs": h.store.Snapshot()})
}

// GetRun handles GET /api/v1/runs/{id}
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := h.store.Get(mux.Vars(r)["id"])
	if !ok {
		http.Error(w, "Run not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// GetArchive handles GET /api/v1/runs/{id}/archive
func (h *Handler) GetArchive(w http.ResponseWriter, r *http.Request) {
	run, ok := h.store.Get(mux.Vars(r)["id"])
	if !ok {
		http.Error(w, "Run not found", http.StatusNotFound)
		return
	}
	if run.Archive == "" {
		http.Error(w, "No archive for run in state "+string(run.State), http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/gzip")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s_%s.tar.gz"`, run.Tool, run.ID))
	http.ServeFile(w, r, run.Archive)
}

// GetLog handles GET /api/v1/runs/{id}/log
func (h *Handler) GetLog(w http.ResponseWriter, r *http.Request) {
	run, ok := h.store.Get(mux.Vars(r)["id"])
	if !ok {
		http.Error(w, "Run not found", http.StatusNotFound)
		return
	}
	if run.LogPath == "" {
		http.Error(w, "No log retrieved for run", http.StatusNotFound)
		return
	}
	text, err := archive.ReadLog(run.LogPath, h.cfg.LogLimit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, text)
}
