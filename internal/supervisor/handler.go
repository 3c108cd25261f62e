package supervisor

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
)

// Handler exposes supervisor HTTP endpoints using go-chi.
type Handler struct {
	sup *Supervisor
	log *slog.Logger
}

// NewHandler returns a Handler that drives the given Supervisor.
func NewHandler(sup *Supervisor, log *slog.Logger) *Handler {
	return &Handler{sup: sup, log: log}
}

type startBatchRequest struct {
	URLs []SingleSpec `json:"urls"`
}

// BatchItem is the per-URL outcome of a batch start.
type BatchItem struct {
	Key       StreamKey `json:"key"`
	FileName  string    `json:"fileName,omitempty"`
	StreamURL string    `json:"streamUrl,omitempty"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
}

type stopRequest struct {
	Key     StreamKey `json:"key"`
	ID      string    `json:"id"`
	Project string    `json:"project"`
}

type messageResponse struct {
	Message string    `json:"message"`
	Key     StreamKey `json:"key,omitempty"`
	Error   string    `json:"error,omitempty"`
}

// StartBatch handles POST /rtsp/start.
// Body: { "urls": [ { "url": "rtsp://...", "id": "7", "project": "p" } ] }.
// Each item is started independently; one failure does not affect the rest.
func (h *Handler) StartBatch(w http.ResponseWriter, r *http.Request) {
	var req startBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Debug("invalid start body", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: "invalid request body", Error: err.Error()})
		return
	}
	if len(req.URLs) == 0 {
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: "urls must be a non-empty array"})
		return
	}

	items := make([]BatchItem, 0, len(req.URLs))
	for _, spec := range req.URLs {
		item := BatchItem{Key: spec.Key()}
		res, err := h.sup.Start(spec)
		if err != nil {
			item.Status = "error"
			item.Error = err.Error()
		} else {
			item.FileName = res.FileName
			item.StreamURL = res.URL
			item.Status = batchStatus(res.Status)
		}
		items = append(items, item)
	}
	writeJSON(w, http.StatusOK, items)
}

// StartCombined handles POST /rtsp/start-combined.
// Body: { "urls": [ { "url": "rtsp://...", "rotate": 90 } ], "id": "7", "project": "p" }.
func (h *Handler) StartCombined(w http.ResponseWriter, r *http.Request) {
	var spec CompositeSpec
	if !h.decode(w, r, &spec) {
		return
	}
	res, err := h.sup.StartCombined(spec)
	h.writeResult(w, res, err)
}

// Resume handles POST /rtsp/resume. Body as one item of StartBatch.
func (h *Handler) Resume(w http.ResponseWriter, r *http.Request) {
	var spec SingleSpec
	if !h.decode(w, r, &spec) {
		return
	}
	res, err := h.sup.Resume(spec)
	h.writeResult(w, res, err)
}

// ResumeCombined handles POST /rtsp/resume-combined. Body as StartCombined.
func (h *Handler) ResumeCombined(w http.ResponseWriter, r *http.Request) {
	var spec CompositeSpec
	if !h.decode(w, r, &spec) {
		return
	}
	res, err := h.sup.ResumeCombined(spec)
	h.writeResult(w, res, err)
}

// Stop handles POST /rtsp/stop. Body: { "key": "p-7" } or { "id": "7", "project": "p" }.
func (h *Handler) Stop(w http.ResponseWriter, r *http.Request) {
	var req stopRequest
	if !h.decode(w, r, &req) {
		return
	}
	key := req.Key
	if key == "" {
		if req.ID == "" || req.Project == "" {
			writeJSON(w, http.StatusBadRequest, messageResponse{Message: "key or id and project are required"})
			return
		}
		key = NewStreamKey(req.Project, req.ID)
	}

	msg := "stream stopped"
	if !h.sup.Stop(key) {
		msg = "stream was not running; marked as stopped"
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: msg, Key: key})
}

// StopAll handles POST /rtsp/stop-all.
func (h *Handler) StopAll(w http.ResponseWriter, r *http.Request) {
	n := h.sup.StopAll()
	h.log.Info("stop-all requested", slog.Int("stopped", n))
	writeJSON(w, http.StatusOK, messageResponse{Message: "all streams stopped"})
}

// Streams handles GET /rtsp/streams.
func (h *Handler) Streams(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sup.Streams())
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.log.Debug("invalid request body", slog.String("path", r.URL.Path), slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: "invalid request body", Error: err.Error()})
		return false
	}
	return true
}

func (h *Handler) writeResult(w http.ResponseWriter, res StartResult, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, res)
	case errors.Is(err, ErrInvalidSpec):
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: "invalid stream spec", Error: err.Error()})
	case errors.Is(err, ErrSpawn):
		writeJSON(w, http.StatusBadGateway, messageResponse{Message: "failed to start transcoder", Error: err.Error()})
	default:
		h.log.Error("start failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, messageResponse{Message: "internal error", Error: err.Error()})
	}
}

func batchStatus(s Status) string {
	if s == StatusStarted {
		return "success"
	}
	return string(s)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
