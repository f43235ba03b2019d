package http

import (
	"context"

	nethttp "net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-surveys/internal/draft"
	"github.com/mind-engage/mindengage-surveys/internal/survey"
)

// Drafts serves the draft store of the calling client's partition.
type Drafts struct {
	backend draft.Backend
	opts    []draft.Option
}

func NewDrafts(b draft.Backend, opts ...draft.Option) *Drafts {
	return &Drafts{backend: b, opts: opts}
}

// Store returns the draft store for clientID. Sessions use the same
// partitioning so HTTP and session drafts are interchangeable.
func (h *Drafts) Store(clientID string) *draft.Store {
	return draft.NewStore(draft.Namespace(h.backend, clientID), h.opts...)
}

func (h *Drafts) Register(r chi.Router) {
	r.Route("/api/drafts", func(r chi.Router) {
		r.Get("/", h.list)
		r.Get("/{surveyId}", h.load)
		r.Put("/{surveyId}", h.save)
		r.Delete("/{surveyId}", h.clear)
	})
}

func (h *Drafts) list(w nethttp.ResponseWriter, r *nethttp.Request) {
	list := h.Store(ClientID(r)).ListAll(r.Context())
	writeJSON(w, nethttp.StatusOK, map[string]any{"success": true, "data": list, "count": len(list)})
}

func (h *Drafts) load(w nethttp.ResponseWriter, r *nethttp.Request) {
	d, ok := h.Store(ClientID(r)).Load(r.Context(), chi.URLParam(r, "surveyId"))
	if !ok {
		writeFailure(w, nethttp.StatusNotFound, "Draft not found", nil)
		return
	}
	writeJSON(w, nethttp.StatusOK, map[string]any{"success": true, "data": d})
}

func (h *Drafts) save(w nethttp.ResponseWriter, r *nethttp.Request) {
	var req struct {
		Responses survey.ResponseSet `json:"responses"`
	}
	if err := decodeJSON(w, r, &req); err != nil || req.Responses == nil {
		writeFailure(w, nethttp.StatusBadRequest, "Responses are required", nil)
		return
	}
	st := h.Store(ClientID(r))
	id := chi.URLParam(r, "surveyId")
	if !st.Save(r.Context(), id, req.Responses) {
		writeFailure(w, nethttp.StatusInternalServerError, msgInternal, nil)
		return
	}
	d, _ := st.Load(r.Context(), id)
	writeJSON(w, nethttp.StatusOK, map[string]any{"success": true, "data": d})
}

func (h *Drafts) clear(w nethttp.ResponseWriter, r *nethttp.Request) {
	if !h.Store(ClientID(r)).Clear(r.Context(), chi.URLParam(r, "surveyId")) {
		writeFailure(w, nethttp.StatusInternalServerError, msgInternal, nil)
		return
	}
	w.WriteHeader(nethttp.StatusNoContent)
}

// Pinger is anything readiness depends on.
type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthzHandler() nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, _ *nethttp.Request) {
		w.WriteHeader(nethttp.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}

func ReadyzHandler(deps ...Pinger) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		for _, d := range deps {
			if err := d.Ping(r.Context()); err != nil {
				nethttp.Error(w, "not ready: "+err.Error(), nethttp.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(nethttp.StatusOK)
		_, _ = w.Write([]byte("ready"))
	}
}
