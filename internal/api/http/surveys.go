package http

import (
	"errors"
	"time"

	nethttp "net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-surveys/internal/catalog"
	"github.com/mind-engage/mindengage-surveys/internal/logging"
	"github.com/mind-engage/mindengage-surveys/internal/receipt"
	"github.com/mind-engage/mindengage-surveys/internal/sink"
	"github.com/mind-engage/mindengage-surveys/internal/survey"
)

const (
	msgInternal       = "Internal server error"
	msgBadBody        = "Invalid request body"
	msgSubmitted      = "Survey submitted successfully"
	msgCopySent       = "Email copy sent successfully"
	msgReceiptMissing = "Receipt is required"
)

func ListSurveysHandler(c catalog.Catalog, log *zap.Logger) nethttp.HandlerFunc {
	log = logging.OrNop(log)
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		list, err := c.List(r.Context())
		if err != nil {
			log.Error("list surveys", zap.Error(err))
			writeFailure(w, nethttp.StatusInternalServerError, msgInternal, nil)
			return
		}
		writeJSON(w, nethttp.StatusOK, map[string]any{"success": true, "data": list, "count": len(list)})
	}
}

func SurveyConfigHandler(c catalog.Catalog, log *zap.Logger) nethttp.HandlerFunc {
	log = logging.OrNop(log)
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		def, err := c.Get(r.Context(), chi.URLParam(r, "surveyId"))
		switch {
		case errors.Is(err, catalog.ErrNotFound):
			writeFailure(w, nethttp.StatusNotFound, sink.MsgSurveyNotFound, nil)
			return
		case err != nil:
			log.Error("load survey", zap.Error(err))
			writeFailure(w, nethttp.StatusInternalServerError, msgInternal, nil)
			return
		}
		writeJSON(w, nethttp.StatusOK, map[string]any{"success": true, "data": def})
	}
}

type submitData struct {
	SurveyID    string             `json:"surveyId"`
	SurveyTitle string             `json:"surveyTitle"`
	Responses   survey.ResponseSet `json:"responses"`
	SubmittedAt time.Time          `json:"submittedAt"`
}

type submitResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	sink.Ack
	Data submitData `json:"data"`
}

func SubmitHandler(sub sink.Submitter, log *zap.Logger) nethttp.HandlerFunc {
	log = logging.OrNop(log)
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		var req struct {
			SurveyID  string             `json:"surveyId"`
			Responses survey.ResponseSet `json:"responses"`
		}
		if err := decodeJSON(w, r, &req); err != nil {
			writeFailure(w, nethttp.StatusBadRequest, msgBadBody, nil)
			return
		}
		ack, err := sub.Submit(r.Context(), req.SurveyID, req.Responses)
		if err != nil {
			writeSubmitError(w, log, err)
			return
		}
		writeJSON(w, nethttp.StatusOK, submitResponse{
			Success: true,
			Message: msgSubmitted,
			Ack:     ack,
			Data: submitData{
				SurveyID:    ack.SurveyID,
				SurveyTitle: ack.SurveyTitle,
				Responses:   req.Responses,
				SubmittedAt: ack.Timestamp,
			},
		})
	}
}

func writeSubmitError(w nethttp.ResponseWriter, log *zap.Logger, err error) {
	var se *sink.SubmissionError
	switch {
	case errors.As(err, &se) && errors.Is(se, catalog.ErrNotFound):
		writeFailure(w, nethttp.StatusNotFound, se.Message, nil)
	case errors.As(err, &se):
		writeFailure(w, nethttp.StatusBadRequest, se.Message, se.Fields)
	default:
		log.Error("submit survey", zap.Error(err))
		writeFailure(w, nethttp.StatusInternalServerError, msgInternal, nil)
	}
}

type copyResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	sink.CopyAck
}

func CopyHandler(cp sink.Copier, log *zap.Logger) nethttp.HandlerFunc {
	log = logging.OrNop(log)
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		var req struct {
			Email     string             `json:"email"`
			SurveyID  string             `json:"surveyId"`
			Responses survey.ResponseSet `json:"responses"`
		}
		if err := decodeJSON(w, r, &req); err != nil {
			writeFailure(w, nethttp.StatusBadRequest, msgBadBody, nil)
			return
		}
		ack, err := cp.SendCopy(r.Context(), req.Email, req.SurveyID, req.Responses)
		if err != nil {
			writeCopyError(w, log, err)
			return
		}
		writeJSON(w, nethttp.StatusOK, copyResponse{Success: true, Message: msgCopySent, CopyAck: ack})
	}
}

func writeCopyError(w nethttp.ResponseWriter, log *zap.Logger, err error) {
	var ce *sink.CopyError
	if errors.As(err, &ce) {
		writeFailure(w, nethttp.StatusBadRequest, ce.Message, nil)
		return
	}
	log.Error("send copy", zap.Error(err))
	writeFailure(w, nethttp.StatusInternalServerError, msgInternal, nil)
}

func VerifyReceiptHandler(iss *receipt.Issuer) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		var req struct {
			Receipt string `json:"receipt"`
		}
		if err := decodeJSON(w, r, &req); err != nil {
			writeFailure(w, nethttp.StatusBadRequest, msgBadBody, nil)
			return
		}
		if req.Receipt == "" {
			writeFailure(w, nethttp.StatusBadRequest, msgReceiptMissing, nil)
			return
		}
		claims, err := iss.Verify(req.Receipt)
		if err != nil {
			writeFailure(w, nethttp.StatusBadRequest, err.Error(), nil)
			return
		}
		writeJSON(w, nethttp.StatusOK, map[string]any{
			"success":      true,
			"submissionId": claims.Subject,
			"surveyId":     claims.SurveyID,
			"fingerprint":  claims.Fingerprint,
			"issuedAt":     claims.IssuedAt,
		})
	}
}
