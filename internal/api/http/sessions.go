package http

import (
	"encoding/json"
	"errors"
	"fmt"

	nethttp "net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-surveys/internal/catalog"
	"github.com/mind-engage/mindengage-surveys/internal/engine"
	"github.com/mind-engage/mindengage-surveys/internal/logging"
	"github.com/mind-engage/mindengage-surveys/internal/session"
	"github.com/mind-engage/mindengage-surveys/internal/sink"
	"github.com/mind-engage/mindengage-surveys/internal/storage"
	"github.com/mind-engage/mindengage-surveys/internal/survey"
)

// EngineFactory builds a fresh engine whose drafts live in the caller's
// partition.
type EngineFactory func(clientID string) *engine.Engine

// Sessions exposes server-side form engines, one per session id.
type Sessions struct {
	reg       *session.Registry
	newEngine EngineFactory
	exports   storage.BlobStore
	log       *zap.Logger
}

func NewSessions(reg *session.Registry, f EngineFactory, log *zap.Logger) *Sessions {
	return &Sessions{reg: reg, newEngine: f, log: logging.OrNop(log)}
}

// WithExports enables POST /api/sessions/{id}/export, which keeps the
// export document in bs.
func (h *Sessions) WithExports(bs storage.BlobStore) *Sessions {
	h.exports = bs
	return h
}

func (h *Sessions) Register(r chi.Router) {
	r.Route("/api/sessions", func(r chi.Router) {
		r.Post("/", h.create)
		r.Route("/{sessionId}", func(r chi.Router) {
			r.Get("/", h.get)
			r.Delete("/", h.remove)
			r.Put("/answers/{questionId}", h.answer)
			r.Post("/toggle/{questionId}", h.toggle)
			r.Post("/next", h.step((*engine.Engine).Next))
			r.Post("/previous", h.step((*engine.Engine).Previous))
			r.Post("/edit", h.step((*engine.Engine).Edit))
			r.Post("/submit", h.submit)
			r.Post("/copy", h.copy)
			r.Get("/export", h.export)
			r.Post("/export", h.storeExport)
		})
	})
}

type sessionResponse struct {
	Success   bool            `json:"success"`
	SessionID string          `json:"sessionId"`
	Error     string          `json:"error,omitempty"`
	Errors    survey.ErrorMap `json:"errors,omitempty"`
	Data      engine.View     `json:"data"`
}

func (h *Sessions) create(w nethttp.ResponseWriter, r *nethttp.Request) {
	var req struct {
		SurveyID string `json:"surveyId"`
	}
	if err := decodeJSON(w, r, &req); err != nil || req.SurveyID == "" {
		writeFailure(w, nethttp.StatusBadRequest, "Survey ID is required", nil)
		return
	}
	e := h.newEngine(ClientID(r))
	if err := e.SelectSurvey(r.Context(), req.SurveyID); err != nil {
		e.Close()
		if errors.Is(err, catalog.ErrNotFound) {
			writeFailure(w, nethttp.StatusNotFound, sink.MsgSurveyNotFound, nil)
			return
		}
		h.log.Error("select survey", zap.String("survey_id", req.SurveyID), zap.Error(err))
		writeFailure(w, nethttp.StatusInternalServerError, msgInternal, nil)
		return
	}
	s := h.reg.Add(ClientID(r), e)
	writeJSON(w, nethttp.StatusCreated, sessionResponse{Success: true, SessionID: s.ID, Data: e.Snapshot()})
}

// lookup resolves the session named in the path, writing a 404 when the
// caller does not own a live session with that id.
func (h *Sessions) lookup(w nethttp.ResponseWriter, r *nethttp.Request) (*session.Session, bool) {
	s, err := h.reg.Get(chi.URLParam(r, "sessionId"), ClientID(r))
	if err != nil {
		writeFailure(w, nethttp.StatusNotFound, "Session not found", nil)
		return nil, false
	}
	return s, true
}

func (h *Sessions) get(w nethttp.ResponseWriter, r *nethttp.Request) {
	if s, ok := h.lookup(w, r); ok {
		h.reply(w, s, nil)
	}
}

func (h *Sessions) remove(w nethttp.ResponseWriter, r *nethttp.Request) {
	if err := h.reg.Remove(chi.URLParam(r, "sessionId"), ClientID(r)); err != nil {
		writeFailure(w, nethttp.StatusNotFound, "Session not found", nil)
		return
	}
	w.WriteHeader(nethttp.StatusNoContent)
}

func (h *Sessions) answer(w nethttp.ResponseWriter, r *nethttp.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var req struct {
		Value any `json:"value"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeFailure(w, nethttp.StatusBadRequest, msgBadBody, nil)
		return
	}
	h.reply(w, s, s.Engine.Answer(chi.URLParam(r, "questionId"), survey.NormalizeValue(req.Value)))
}

func (h *Sessions) toggle(w nethttp.ResponseWriter, r *nethttp.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var req struct {
		Option string `json:"option"`
	}
	if err := decodeJSON(w, r, &req); err != nil || req.Option == "" {
		writeFailure(w, nethttp.StatusBadRequest, "Option is required", nil)
		return
	}
	h.reply(w, s, s.Engine.Toggle(chi.URLParam(r, "questionId"), req.Option))
}

func (h *Sessions) step(fn func(*engine.Engine) error) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if s, ok := h.lookup(w, r); ok {
			h.reply(w, s, fn(s.Engine))
		}
	}
}

func (h *Sessions) submit(w nethttp.ResponseWriter, r *nethttp.Request) {
	if s, ok := h.lookup(w, r); ok {
		_, err := s.Engine.Submit(r.Context())
		h.reply(w, s, err)
	}
}

func (h *Sessions) copy(w nethttp.ResponseWriter, r *nethttp.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var req struct {
		Email string `json:"email"`
	}
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeFailure(w, nethttp.StatusBadRequest, msgBadBody, nil)
			return
		}
	}
	_, err := s.Engine.SendCopy(r.Context(), req.Email)
	h.reply(w, s, err)
}

func (h *Sessions) export(w nethttp.ResponseWriter, r *nethttp.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	doc, err := s.Engine.Export()
	if err != nil {
		writeFailure(w, statusFor(err), messageFor(err), nil)
		return
	}
	var meta engine.Export
	_ = json.Unmarshal(doc, &meta)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", engine.ExportFileName(meta.SurveyID, meta.SubmittedAt)))
	_, _ = w.Write(doc)
}

func (h *Sessions) storeExport(w nethttp.ResponseWriter, r *nethttp.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if h.exports == nil {
		writeFailure(w, nethttp.StatusNotImplemented, "Export storage is not configured", nil)
		return
	}
	doc, err := s.Engine.Export()
	if err != nil {
		writeFailure(w, statusFor(err), messageFor(err), nil)
		return
	}
	var meta engine.Export
	_ = json.Unmarshal(doc, &meta)
	key, err := storage.PutExport(h.exports, meta.SurveyID, meta.SubmittedAt, doc)
	if err != nil {
		h.log.Error("store export", zap.String("session_id", s.ID), zap.Error(err))
		writeFailure(w, nethttp.StatusInternalServerError, msgInternal, nil)
		return
	}
	writeJSON(w, nethttp.StatusCreated, map[string]any{"success": true, "key": key, "url": "/api/exports/" + key})
}

// reply writes the session view, with the failure envelope fields set
// when err is non-nil.
func (h *Sessions) reply(w nethttp.ResponseWriter, s *session.Session, err error) {
	resp := sessionResponse{Success: err == nil, SessionID: s.ID, Data: s.Engine.Snapshot()}
	status := nethttp.StatusOK
	if err != nil {
		status = statusFor(err)
		resp.Error = messageFor(err)
		var (
			ve *survey.ValidationError
			se *sink.SubmissionError
		)
		switch {
		case errors.As(err, &ve):
			resp.Errors = ve.Errors
		case errors.As(err, &se):
			resp.Errors = se.Fields
		}
		if status == nethttp.StatusInternalServerError {
			h.log.Error("session operation", zap.String("session_id", s.ID), zap.Error(err))
		}
	}
	writeJSON(w, status, resp)
}

func statusFor(err error) int {
	var (
		ve *survey.ValidationError
		se *sink.SubmissionError
		ce *sink.CopyError
	)
	switch {
	case errors.As(err, &ve):
		return nethttp.StatusUnprocessableEntity
	case errors.Is(err, engine.ErrInvalidTransition), errors.Is(err, engine.ErrSubmitInProgress):
		return nethttp.StatusConflict
	case errors.Is(err, engine.ErrUnknownQuestion), errors.Is(err, engine.ErrNoDestination):
		return nethttp.StatusBadRequest
	case errors.Is(err, engine.ErrNoCopier):
		return nethttp.StatusNotImplemented
	case errors.As(err, &se), errors.As(err, &ce):
		return nethttp.StatusBadRequest
	default:
		return nethttp.StatusInternalServerError
	}
}

func messageFor(err error) string {
	var (
		ve *survey.ValidationError
		se *sink.SubmissionError
	)
	switch {
	case errors.As(err, &ve):
		return sink.MsgValidation
	case errors.As(err, &se):
		return se.Message
	case statusFor(err) == nethttp.StatusInternalServerError:
		return msgInternal
	default:
		return err.Error()
	}
}
