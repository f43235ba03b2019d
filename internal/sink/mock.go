package sink

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"

	"github.com/mind-engage/mindengage-surveys/internal/catalog"
	"github.com/mind-engage/mindengage-surveys/internal/logging"
	"github.com/mind-engage/mindengage-surveys/internal/metrics"
	"github.com/mind-engage/mindengage-surveys/internal/receipt"
	"github.com/mind-engage/mindengage-surveys/internal/survey"
)

const (
	MsgSubmitMissing  = "Survey ID and responses are required"
	MsgSurveyNotFound = "Survey not found"
	MsgValidation     = "Validation failed"
	MsgCopyMissing    = "Email, survey ID, and responses are required"
	MsgInvalidEmail   = "Invalid email format"
)

// Mock is the in-process backend: it re-validates submissions against
// the catalog, waits a configurable delay and acknowledges. Nothing is
// persisted and no mail is sent.
type Mock struct {
	catalog     catalog.Catalog
	submitDelay time.Duration
	copyDelay   time.Duration
	receipts    *receipt.Issuer
	metrics     *metrics.Metrics
	log         *zap.Logger
	now         func() time.Time
}

type MockOption func(*Mock)

func WithSubmitDelay(d time.Duration) MockOption { return func(m *Mock) { m.submitDelay = d } }
func WithCopyDelay(d time.Duration) MockOption   { return func(m *Mock) { m.copyDelay = d } }
func WithReceipts(i *receipt.Issuer) MockOption  { return func(m *Mock) { m.receipts = i } }
func WithMetrics(mt *metrics.Metrics) MockOption { return func(m *Mock) { m.metrics = mt } }
func WithLogger(l *zap.Logger) MockOption        { return func(m *Mock) { m.log = logging.OrNop(l) } }
func WithClock(now func() time.Time) MockOption  { return func(m *Mock) { m.now = now } }

func NewMock(c catalog.Catalog, opts ...MockOption) *Mock {
	m := &Mock{
		catalog:     c,
		submitDelay: time.Second,
		copyDelay:   time.Second,
		log:         zap.NewNop(),
		now:         time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *Mock) Submit(ctx context.Context, surveyID string, rs survey.ResponseSet) (ack Ack, err error) {
	start := m.now()
	// Only catalog ids become label values.
	label := "unknown"
	defer func() {
		if m.metrics != nil {
			m.metrics.Submissions.WithLabelValues(label, metrics.Outcome(err == nil)).Inc()
			m.metrics.SubmitDuration.Observe(time.Since(start).Seconds())
		}
	}()

	if surveyID == "" || rs == nil {
		return Ack{}, &SubmissionError{Message: MsgSubmitMissing}
	}
	def, err := m.catalog.Get(ctx, surveyID)
	if errors.Is(err, catalog.ErrNotFound) {
		return Ack{}, &SubmissionError{Message: MsgSurveyNotFound, Err: err}
	}
	if err != nil {
		return Ack{}, fmt.Errorf("load survey %s: %w", surveyID, err)
	}
	label = def.ID
	if errs := survey.ValidateResponse(def, rs); len(errs) > 0 {
		return Ack{}, &SubmissionError{Message: MsgValidation, Fields: errs}
	}
	if err := sleep(ctx, m.submitDelay); err != nil {
		return Ack{}, err
	}

	now := m.now().UTC()
	ack = Ack{
		ID:             newID("SUB", now),
		SurveyID:       def.ID,
		SurveyTitle:    def.Title,
		Timestamp:      now,
		ResponsesCount: len(rs),
		Fingerprint:    Fingerprint(rs),
	}
	if m.receipts != nil {
		tok, err := m.receipts.Issue(ack.ID, ack.SurveyID, ack.Fingerprint)
		if err != nil {
			return Ack{}, fmt.Errorf("issue receipt: %w", err)
		}
		ack.Receipt = tok
	}
	m.log.Info("survey submitted",
		zap.String("submission_id", ack.ID),
		zap.String("survey_id", ack.SurveyID),
		zap.Int("responses", ack.ResponsesCount))
	return ack, nil
}

func (m *Mock) SendCopy(ctx context.Context, destination, surveyID string, rs survey.ResponseSet) (ack CopyAck, err error) {
	defer func() {
		if m.metrics != nil {
			m.metrics.Copies.WithLabelValues(metrics.Outcome(err == nil)).Inc()
		}
	}()

	if destination == "" || surveyID == "" || rs == nil {
		return CopyAck{}, &CopyError{Message: MsgCopyMissing}
	}
	if !survey.ValidEmail(destination) {
		return CopyAck{}, &CopyError{Message: MsgInvalidEmail}
	}
	if err := sleep(ctx, m.copyDelay); err != nil {
		return CopyAck{}, err
	}

	now := m.now().UTC()
	ack = CopyAck{
		ID:        newID("EMAIL", now),
		Recipient: destination,
		SurveyID:  surveyID,
		SentAt:    now,
		Subject:   "Your Cyient Survey Responses - " + surveyID,
		Preview:   "Dear participant, thank you for your feedback. Here are your survey responses for " + surveyID + "...",
	}
	m.log.Info("response copy sent", zap.String("email_id", ack.ID), zap.String("survey_id", surveyID))
	return ack, nil
}

// Fingerprint is the BLAKE2b-256 digest of the JSON encoding of rs.
// encoding/json sorts map keys, so equal sets hash equally.
func Fingerprint(rs survey.ResponseSet) string {
	buf, err := json.Marshal(rs)
	if err != nil {
		return ""
	}
	sum := blake2b.Sum256(buf)
	return hex.EncodeToString(sum[:])
}

// newID renders PREFIX-<unix ms>-<9 random chars>.
func newID(prefix string, now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("%s-%d-%s", prefix, now.UnixMilli(), suffix)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
