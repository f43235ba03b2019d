package draft

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-surveys/internal/logging"
	"github.com/mind-engage/mindengage-surveys/internal/metrics"
	"github.com/mind-engage/mindengage-surveys/internal/survey"
)

// KeyPrefix scopes draft records; the key of a draft is KeyPrefix+surveyID.
const KeyPrefix = "cyient_survey_"

// Draft is the persisted, in-progress answers for one survey.
type Draft struct {
	Responses survey.ResponseSet `json:"responses"`
	LastSaved time.Time          `json:"lastSaved"`
	SurveyID  string             `json:"surveyId"`
}

// Summary describes one stored draft.
type Summary struct {
	SurveyID       string    `json:"surveyId"`
	LastSaved      time.Time `json:"lastSaved"`
	ResponsesCount int       `json:"responsesCount"`
}

// Store keeps at most one draft per survey id on top of a Backend. Its
// operations never fail: persistence problems are logged and reported
// as false or empty results.
type Store struct {
	backend Backend
	log     *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

type Option func(*Store)

func WithLogger(l *zap.Logger) Option       { return func(s *Store) { s.log = logging.OrNop(l) } }
func WithMetrics(m *metrics.Metrics) Option { return func(s *Store) { s.metrics = m } }
func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

func NewStore(b Backend, opts ...Option) *Store {
	s := &Store{backend: b, log: zap.NewNop(), now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

func key(surveyID string) string { return KeyPrefix + surveyID }

// Save writes rs as the draft for surveyID, replacing any previous one.
func (s *Store) Save(ctx context.Context, surveyID string, rs survey.ResponseSet) bool {
	if surveyID == "" {
		return false
	}
	if rs == nil {
		rs = survey.ResponseSet{}
	}
	d := Draft{Responses: rs, LastSaved: s.now().UTC().Truncate(time.Millisecond), SurveyID: surveyID}
	buf, err := json.Marshal(d)
	if err == nil {
		err = s.backend.Set(ctx, key(surveyID), string(buf))
	}
	s.observe("save", err)
	if err != nil {
		s.log.Warn("draft save failed", zap.String("survey_id", surveyID), zap.Error(err))
		return false
	}
	return true
}

// Load returns the stored draft. Missing and unreadable records both
// report false.
func (s *Store) Load(ctx context.Context, surveyID string) (Draft, bool) {
	raw, err := s.backend.Get(ctx, key(surveyID))
	if errors.Is(err, ErrNotFound) {
		s.observe("load", nil)
		return Draft{}, false
	}
	if err != nil {
		s.observe("load", err)
		s.log.Warn("draft load failed", zap.String("survey_id", surveyID), zap.Error(err))
		return Draft{}, false
	}
	var d Draft
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		s.observe("load", err)
		s.log.Warn("draft record unreadable", zap.String("survey_id", surveyID), zap.Error(err))
		return Draft{}, false
	}
	s.observe("load", nil)
	if d.Responses == nil {
		d.Responses = survey.ResponseSet{}
	}
	return d, true
}

// Clear removes the draft for surveyID. Clearing a missing draft succeeds.
func (s *Store) Clear(ctx context.Context, surveyID string) bool {
	err := s.backend.Delete(ctx, key(surveyID))
	s.observe("clear", err)
	if err != nil {
		s.log.Warn("draft clear failed", zap.String("survey_id", surveyID), zap.Error(err))
		return false
	}
	return true
}

// HasSavedData reports whether a draft with at least one answer exists.
func (s *Store) HasSavedData(ctx context.Context, surveyID string) bool {
	d, ok := s.Load(ctx, surveyID)
	return ok && len(d.Responses) > 0
}

func (s *Store) LastSaved(ctx context.Context, surveyID string) (time.Time, bool) {
	d, ok := s.Load(ctx, surveyID)
	if !ok || d.LastSaved.IsZero() {
		return time.Time{}, false
	}
	return d.LastSaved, true
}

// ListAll summarizes every readable draft in backend enumeration order.
// Records without a survey id are skipped.
func (s *Store) ListAll(ctx context.Context) []Summary {
	keys, err := s.backend.Keys(ctx, KeyPrefix)
	s.observe("list", err)
	if err != nil {
		s.log.Warn("draft listing failed", zap.Error(err))
		return []Summary{}
	}
	out := make([]Summary, 0, len(keys))
	for _, k := range keys {
		d, ok := s.Load(ctx, strings.TrimPrefix(k, KeyPrefix))
		if !ok || d.SurveyID == "" {
			continue
		}
		out = append(out, Summary{SurveyID: d.SurveyID, LastSaved: d.LastSaved, ResponsesCount: len(d.Responses)})
	}
	return out
}

// Ping checks the backend when it supports it.
func (s *Store) Ping(ctx context.Context) error {
	if p, ok := s.backend.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (s *Store) observe(op string, err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.DraftOps.WithLabelValues(op, metrics.Outcome(err == nil)).Inc()
}
