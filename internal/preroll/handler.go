package preroll

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"preroll-buffer/internal/platform/metrics"

	"github.com/go-chi/chi/v5"
)

// Handler exposes the pre-roll buffer service over HTTP using go-chi.
type Handler struct {
	svc     *Service
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewHandler returns a Handler for the given Service. Metrics may be nil to
// disable metric recording (e.g. in tests).
func NewHandler(svc *Service, log *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{svc: svc, log: log, metrics: m}
}

// Routes mounts all stream endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/streams/{stream_id}", func(r chi.Router) {
		r.Post("/frames", h.AdmitFrame)
		r.Post("/events", h.AdmitEvent)
		r.Post("/signals/{name}", h.Signal)
		r.Put("/config", h.SetConfig)
		r.Get("/stats", h.Stats)
		r.Get("/output", h.Output)
	})
}

// frameRequest is the wire form of a frame admission. Times are in
// milliseconds; dts_ms and duration_ms are optional.
type frameRequest struct {
	PTSMs      int64  `json:"pts_ms"`
	DTSMs      *int64 `json:"dts_ms"`
	DurationMs *int64 `json:"duration_ms"`
	Keyframe   bool   `json:"keyframe"`
	Size       int    `json:"size"`
	PayloadRef string `json:"payload_ref"`
}

// eventRequest is the wire form of a control event admission.
type eventRequest struct {
	Kind       string          `json:"kind"`
	DurationMs int64           `json:"duration_ms"`
	Payload    json.RawMessage `json:"payload"`
}

// resetEndRequest is the optional body of the reset-end signal.
type resetEndRequest struct {
	PreserveTimeline bool `json:"preserve_timeline"`
}

// configRequest is the wire form of a runtime configuration update.
type configRequest struct {
	CapacitySeconds  int    `json:"capacity_seconds"`
	EOSPolicy        string `json:"eos_policy"`
	FlushTriggerName string `json:"flush_trigger_name"`
	Silent           bool   `json:"silent"`
}

// statsResponse extends the counter snapshot with mode and buffered duration.
type statsResponse struct {
	Stats
	Mode       string `json:"mode"`
	ResidentMs int64  `json:"resident_ms"`
}

// outputItem is the wire form of one emitted item.
type outputItem struct {
	Type       string          `json:"type"` // "frame" or "event"
	PTSMs      int64           `json:"pts_ms,omitempty"`
	GroupID    uint64          `json:"group_id,omitempty"`
	Keyframe   bool            `json:"keyframe,omitempty"`
	Size       int             `json:"size,omitempty"`
	PayloadRef string          `json:"payload_ref,omitempty"`
	Kind       string          `json:"kind,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// outputResponse lists emitted items in emission order.
type outputResponse struct {
	Items []outputItem `json:"items"`
	EOS   bool         `json:"eos"`
}

// AdmitFrame handles POST /streams/{stream_id}/frames.
func (h *Handler) AdmitFrame(w http.ResponseWriter, r *http.Request) {
	id := StreamID(chi.URLParam(r, "stream_id"))
	if id == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	var req frameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Debug("invalid frame body", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	f := Frame{
		PTS:        time.Duration(req.PTSMs) * time.Millisecond,
		Keyframe:   req.Keyframe,
		Size:       req.Size,
		PayloadRef: req.PayloadRef,
	}
	if req.DTSMs != nil {
		f.DTS = time.Duration(*req.DTSMs) * time.Millisecond
		f.HasDTS = true
	}
	if req.DurationMs != nil {
		f.Duration = time.Duration(*req.DurationMs) * time.Millisecond
		f.HasDuration = true
	}

	if err := h.svc.AdmitFrame(id, f); err != nil {
		switch {
		case errors.Is(err, ErrFlushing), errors.Is(err, ErrEOS):
			h.log.Info("frame rejected",
				slog.String("stream_id", string(id)),
				slog.Int64("pts_ms", req.PTSMs),
				slog.String("error", err.Error()))
			writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
			return
		default:
			h.log.Error("admit frame failed", slog.String("error", err.Error()))
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	}

	w.WriteHeader(http.StatusAccepted)
	if h.metrics != nil {
		h.metrics.IncFramesAdmitted()
	}
}

// AdmitEvent handles POST /streams/{stream_id}/events.
func (h *Handler) AdmitEvent(w http.ResponseWriter, r *http.Request) {
	id := StreamID(chi.URLParam(r, "stream_id"))
	if id == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Debug("invalid event body", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	ev := ControlEvent{
		Kind:     ParseEventKind(req.Kind),
		Duration: time.Duration(req.DurationMs) * time.Millisecond,
		Payload:  req.Payload,
	}

	if err := h.svc.AdmitEvent(id, ev); err != nil {
		switch {
		case errors.Is(err, ErrFlushing), errors.Is(err, ErrEOS):
			writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
			return
		default:
			h.log.Error("admit event failed", slog.String("error", err.Error()))
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	}

	w.WriteHeader(http.StatusAccepted)
}

// Signal handles POST /streams/{stream_id}/signals/{name}.
// The name is matched against the stream's flush trigger plus the fixed
// signal names; unknown names get 400. The response reports whether the
// signal was accepted: flush and re-arm are idempotent no-ops in the wrong
// mode and report accepted=false.
func (h *Handler) Signal(w http.ResponseWriter, r *http.Request) {
	id := StreamID(chi.URLParam(r, "stream_id"))
	name := chi.URLParam(r, "name")
	if id == "" || name == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	var req resetEndRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
	}

	kind, accepted, err := h.svc.Signal(id, name, req.PreserveTimeline)
	if err != nil {
		switch {
		case errors.Is(err, ErrStreamNotFound):
			w.WriteHeader(http.StatusNotFound)
			return
		case errors.Is(err, ErrUnknownSignal):
			h.log.Debug("unknown signal",
				slog.String("stream_id", string(id)),
				slog.String("name", name))
			w.WriteHeader(http.StatusBadRequest)
			return
		default:
			h.log.Error("signal failed", slog.String("error", err.Error()))
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	}

	if h.metrics != nil && accepted {
		switch kind {
		case SignalKindFlush:
			h.metrics.IncFlushes()
		case SignalKindRearm:
			h.metrics.IncRearms()
		}
	}

	writeJSON(w, http.StatusOK, map[string]bool{"accepted": accepted})
}

// SetConfig handles PUT /streams/{stream_id}/config.
func (h *Handler) SetConfig(w http.ResponseWriter, r *http.Request) {
	id := StreamID(chi.URLParam(r, "stream_id"))
	if id == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	var req configRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	h.svc.SetConfig(id, Config{
		CapacitySeconds:  req.CapacitySeconds,
		EOSPolicy:        ParseEOSPolicy(req.EOSPolicy),
		FlushTriggerName: req.FlushTriggerName,
		Silent:           req.Silent,
	})
	w.WriteHeader(http.StatusNoContent)
}

// Stats handles GET /streams/{stream_id}/stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	id := StreamID(chi.URLParam(r, "stream_id"))
	st, mode, resident, err := h.svc.Stats(id)
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{
		Stats:      st,
		Mode:       mode.String(),
		ResidentMs: resident.Milliseconds(),
	})
}

// Output handles GET /streams/{stream_id}/output: consumes and returns
// everything emitted downstream since the previous call.
func (h *Handler) Output(w http.ResponseWriter, r *http.Request) {
	id := StreamID(chi.URLParam(r, "stream_id"))
	items, eos, err := h.svc.TakeOutput(id)
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	resp := outputResponse{Items: make([]outputItem, 0, len(items)), EOS: eos}
	for _, it := range items {
		if f := it.Frame; f != nil {
			resp.Items = append(resp.Items, outputItem{
				Type:       "frame",
				PTSMs:      f.PTS.Milliseconds(),
				GroupID:    f.GroupID,
				Keyframe:   f.Keyframe,
				Size:       f.Size,
				PayloadRef: f.PayloadRef,
			})
		} else if e := it.Event; e != nil {
			resp.Items = append(resp.Items, outputItem{
				Type:    "event",
				Kind:    e.Kind.String(),
				Payload: e.Payload,
			})
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
