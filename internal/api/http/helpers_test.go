package http

import (
	"bytes"
	"encoding/json"
	"io"
	"testing"
	"time"

	nethttp "net/http"
	"net/http/httptest"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-surveys/internal/catalog"
	"github.com/mind-engage/mindengage-surveys/internal/draft"
	"github.com/mind-engage/mindengage-surveys/internal/engine"
	"github.com/mind-engage/mindengage-surveys/internal/receipt"
	"github.com/mind-engage/mindengage-surveys/internal/session"
	"github.com/mind-engage/mindengage-surveys/internal/sink"
	"github.com/mind-engage/mindengage-surveys/internal/storage"
	"github.com/mind-engage/mindengage-surveys/internal/survey"
)

var feedback = survey.Definition{
	ID:    "feedback",
	Title: "Feedback",
	Questions: []survey.Question{
		{ID: "rating", Type: survey.TypeRating, Label: "Overall", Required: true},
		{ID: "email", Type: survey.TypeEmail, Label: "Email"},
	},
}

type fixture struct {
	router   chi.Router
	receipts *receipt.Issuer
	backend  *draft.MemoryBackend
	sessions *session.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cat, err := catalog.New(feedback)
	require.NoError(t, err)

	f := &fixture{
		receipts: receipt.NewIssuer("test-secret", "surveys-test"),
		backend:  draft.NewMemoryBackend(),
		sessions: session.NewRegistry(),
	}
	mock := sink.NewMock(cat,
		sink.WithSubmitDelay(0),
		sink.WithCopyDelay(0),
		sink.WithReceipts(f.receipts))
	drafts := NewDrafts(f.backend)
	exports, err := storage.NewFSStore(t.TempDir())
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Get("/healthz", HealthzHandler())
	r.Get("/readyz", ReadyzHandler(draft.NewStore(f.backend)))
	r.Get("/api/surveys", ListSurveysHandler(cat, nil))
	r.Get("/api/survey/config/{surveyId}", SurveyConfigHandler(cat, nil))
	r.Post("/api/survey/submit", SubmitHandler(mock, nil))
	r.Post("/api/email/copy", CopyHandler(mock, nil))
	r.Post("/api/receipts/verify", VerifyReceiptHandler(f.receipts))
	drafts.Register(r)
	NewSessions(f.sessions, func(clientID string) *engine.Engine {
		return engine.New(cat, drafts.Store(clientID), mock,
			engine.WithCopier(mock),
			engine.WithSaveTimeout(time.Second))
	}, nil).WithExports(exports).Register(r)
	r.Route("/api/exports", func(r chi.Router) { MountExports(r, exports) })

	f.router = r
	t.Cleanup(f.sessions.CloseAll)
	return f
}

// call issues one request and decodes the JSON body into a generic map.
func (f *fixture) call(t *testing.T, method, path, clientID string, body any) (int, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(buf)
	}
	req := httptest.NewRequest(method, path, rd)
	if clientID != "" {
		req.Header.Set(ClientIDHeader, clientID)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	out := map[string]any{}
	if rec.Body.Len() > 0 && rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec.Code, out
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	code, _ := f.call(t, nethttp.MethodGet, "/healthz", "", nil)
	require.Equal(t, nethttp.StatusOK, code)
	code, _ = f.call(t, nethttp.MethodGet, "/readyz", "", nil)
	require.Equal(t, nethttp.StatusOK, code)
}
