// Package httpapi exposes the intake workflow over HTTP. It is a thin
// transport: request decoding, artifact staging for uploads, and envelope
// mapping live here; every workflow decision belongs to the orchestrator.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rosterflow/rosterflow/core"
	"github.com/rosterflow/rosterflow/job"
	"github.com/rosterflow/rosterflow/logging"
	"github.com/rosterflow/rosterflow/orchestrator"
	"github.com/rosterflow/rosterflow/routine"
)

const maxUploadBytes int64 = 10 << 20
const maxJSONBytes int64 = 1 << 20

type server struct {
	orch      *orchestrator.Orchestrator
	artifacts core.ArtifactStore
	logger    logging.Logger
}

// NewServer builds the HTTP server for the intake API.
func NewServer(addr string, orch *orchestrator.Orchestrator, artifacts core.ArtifactStore, logger logging.Logger) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           NewHandler(orch, artifacts, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// NewHandler returns the routed handler, separate from the server so tests
// can drive it through httptest.
func NewHandler(orch *orchestrator.Orchestrator, artifacts core.ArtifactStore, logger logging.Logger) http.Handler {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	s := &server{orch: orch, artifacts: artifacts, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("POST /chat", s.handleChat)
	mux.HandleFunc("POST /upload", s.handleUpload(true))
	mux.HandleFunc("POST /upload-async", s.handleUpload(false))
	mux.HandleFunc("GET /upload-status/{job_id}", s.handleUploadStatus)
	mux.HandleFunc("POST /reset", s.handleReset)
	return mux
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type chatRequest struct {
	SessionID   string         `json:"session_id,omitempty"`
	UserMessage string         `json:"user_message"`
	ResumeHints map[string]any `json:"resume_hint_fields,omitempty"`
}

func (s *server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if req.UserMessage == "" {
		http.Error(w, "user_message is required", http.StatusBadRequest)
		return
	}

	resp, err := s.orch.HandleTurn(r.Context(), orchestrator.TurnRequest{
		SessionID: req.SessionID,
		Input:     routine.Input{Text: req.UserMessage, Payload: req.ResumeHints},
	})
	if err != nil {
		s.fail(w, "chat turn failed", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleUpload stages the file in the artifact store and hands the turn to
// the orchestrator. The sync variant exists for gateways whose timeout is
// known to exceed worst-case processing; everything else uses async.
func (s *server) handleUpload(sync bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			http.Error(w, "invalid multipart form", http.StatusBadRequest)
			return
		}
		sessionID := r.FormValue("session_id")
		if sessionID == "" {
			http.Error(w, "session_id is required", http.StatusBadRequest)
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "file is required", http.StatusBadRequest)
			return
		}
		defer file.Close()

		data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
		if err != nil {
			http.Error(w, "read upload failed", http.StatusBadRequest)
			return
		}

		artifactID := core.NewID()
		if err := s.artifacts.Save(sessionID, artifactID, data); err != nil {
			s.fail(w, "stage upload failed", err)
			return
		}

		resp, err := s.orch.HandleTurn(r.Context(), orchestrator.TurnRequest{
			SessionID: sessionID,
			Input: routine.Input{File: &routine.FileRef{
				ArtifactID:  artifactID,
				Name:        header.Filename,
				ContentType: http.DetectContentType(data),
			}},
			ForceSync: sync,
		})
		if err != nil {
			s.fail(w, "upload turn failed", err)
			return
		}
		if resp.JobID != "" {
			writeJSON(w, http.StatusAccepted, map[string]any{
				"session_id":    resp.SessionID,
				"job_id":        resp.JobID,
				"status":        resp.JobStatus,
				"response_text": resp.Message,
			})
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

type jobStatusResponse struct {
	JobID     string    `json:"job_id"`
	Status    string    `json:"status"`
	Result    any       `json:"result,omitempty"`
	ErrorCode string    `json:"error_code,omitempty"`
	Error     string    `json:"error,omitempty"`
	Created   time.Time `json:"created"`
	Finished  time.Time `json:"finished,omitzero"`
}

func (s *server) handleUploadStatus(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("job_id")
	j, err := s.orch.JobStatus(jobID)
	if err != nil {
		if errors.Is(err, job.ErrJobNotFound) {
			http.Error(w, "job not found", http.StatusNotFound)
			return
		}
		s.fail(w, "job status failed", err)
		return
	}

	resp := jobStatusResponse{
		JobID:    j.ID,
		Status:   string(j.Status),
		Created:  j.Created,
		Finished: j.Finished,
	}
	switch j.Status {
	case job.StatusSucceeded:
		if j.Result != nil {
			resp.Result = j.Result.Payload
		}
	case job.StatusFailed:
		resp.ErrorCode = string(j.ErrorCode)
		resp.Error = j.ErrorDetail
	}
	writeJSON(w, http.StatusOK, resp)
}

type resetRequest struct {
	SessionID string `json:"session_id,omitempty"`
}

func (s *server) handleReset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	fresh, err := s.orch.Reset(r.Context(), req.SessionID)
	if err != nil {
		s.fail(w, "reset failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session_id": fresh})
}

func (s *server) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		http.Error(w, fmt.Sprintf("invalid json: %v", err), http.StatusBadRequest)
		return false
	}
	if dec.More() {
		http.Error(w, "invalid json: trailing content", http.StatusBadRequest)
		return false
	}
	return true
}

// fail hides internals from the client; the detail goes to the log only.
func (s *server) fail(w http.ResponseWriter, msg string, err error) {
	s.logger.Error(msg, "error", err.Error())
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
