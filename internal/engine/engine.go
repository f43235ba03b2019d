package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-surveys/internal/catalog"
	"github.com/mind-engage/mindengage-surveys/internal/draft"
	"github.com/mind-engage/mindengage-surveys/internal/logging"
	"github.com/mind-engage/mindengage-surveys/internal/sink"
	"github.com/mind-engage/mindengage-surveys/internal/survey"
)

var (
	ErrInvalidTransition = errors.New("operation not allowed in current state")
	ErrUnknownQuestion   = errors.New("unknown question")
	ErrSubmitInProgress  = errors.New("submission already in progress")
	ErrNoCopier          = errors.New("copy sink not configured")
	ErrNoDestination     = errors.New("no copy destination")
)

// DraftStore is the persistence capability the engine needs. *draft.Store
// satisfies it.
type DraftStore interface {
	Save(ctx context.Context, surveyID string, rs survey.ResponseSet) bool
	Load(ctx context.Context, surveyID string) (draft.Draft, bool)
	Clear(ctx context.Context, surveyID string) bool
}

// Engine walks one respondent through one survey at a time. It is safe
// for concurrent use; sink calls run without holding the engine lock.
type Engine struct {
	catalog     catalog.Catalog
	drafts      DraftStore
	submitter   sink.Submitter
	copier      sink.Copier
	log         *zap.Logger
	now         func() time.Time
	saveTimeout time.Duration

	mu        sync.Mutex
	gen       uint64 // bumped by Reset; stale sink results are dropped
	state     State
	def       survey.Definition
	missingID string
	pos       int
	responses survey.ResponseSet
	errs      survey.ErrorMap
	ack       *sink.Ack
	copyAck   *sink.CopyAck
	mirror    *mirror
	closed    bool
}

type Option func(*Engine)

func WithLogger(l *zap.Logger) Option        { return func(e *Engine) { e.log = logging.OrNop(l) } }
func WithCopier(c sink.Copier) Option        { return func(e *Engine) { e.copier = c } }
func WithClock(now func() time.Time) Option  { return func(e *Engine) { e.now = now } }
func WithSaveTimeout(d time.Duration) Option { return func(e *Engine) { e.saveTimeout = d } }

// New returns an engine in the Browsing state. A nil DraftStore disables
// draft persistence.
func New(c catalog.Catalog, drafts DraftStore, submitter sink.Submitter, opts ...Option) *Engine {
	e := &Engine{
		catalog:     c,
		drafts:      drafts,
		submitter:   submitter,
		log:         zap.NewNop(),
		now:         time.Now,
		saveTimeout: 5 * time.Second,
		responses:   survey.ResponseSet{},
		errs:        survey.ErrorMap{},
	}
	for _, o := range opts {
		o(e)
	}
	if e.drafts == nil {
		e.drafts = noDrafts{}
	}
	return e
}

// SelectSurvey starts the survey with the given id, restoring saved
// answers when a non-empty draft exists. An unknown id moves the engine
// to NotFound and returns catalog.ErrNotFound.
func (e *Engine) SelectSurvey(ctx context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return fmt.Errorf("select survey on closed engine: %w", ErrInvalidTransition)
	}
	if e.state != Browsing {
		return fmt.Errorf("select survey in %s: %w", e.state, ErrInvalidTransition)
	}

	def, err := e.catalog.Get(ctx, id)
	if errors.Is(err, catalog.ErrNotFound) {
		e.state = NotFound
		e.missingID = id
		return err
	}
	if err != nil {
		return fmt.Errorf("load survey %s: %w", id, err)
	}

	e.def = def
	e.pos = 0
	e.responses = survey.ResponseSet{}
	e.errs = survey.ErrorMap{}
	e.ack, e.copyAck = nil, nil
	if d, ok := e.drafts.Load(ctx, id); ok && len(d.Responses) > 0 {
		e.responses = d.Responses.Clone()
		e.log.Debug("draft restored", zap.String("survey_id", id), zap.Int("answers", len(d.Responses)))
	}
	e.mirror = newMirror(e.saver(id))
	e.state = Answering
	return nil
}

func (e *Engine) saver(surveyID string) func(survey.ResponseSet) {
	return func(rs survey.ResponseSet) {
		ctx, cancel := context.WithTimeout(context.Background(), e.saveTimeout)
		defer cancel()
		if !e.drafts.Save(ctx, surveyID, rs) {
			e.log.Debug("draft mirror save dropped", zap.String("survey_id", surveyID))
		}
	}
}

// Answer records value for questionID as given; nothing is validated
// here. The answer is mirrored to the draft store in the background.
func (e *Engine) Answer(questionID string, value any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.answerLocked(questionID, value)
}

func (e *Engine) answerLocked(questionID string, value any) error {
	if e.closed {
		return fmt.Errorf("answer on closed engine: %w", ErrInvalidTransition)
	}
	if e.state != Answering && e.state != Reviewing {
		return fmt.Errorf("answer in %s: %w", e.state, ErrInvalidTransition)
	}
	if _, ok := e.def.Question(questionID); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownQuestion, questionID)
	}
	if ss, ok := value.([]string); ok {
		value = append([]string(nil), ss...)
	}
	e.responses[questionID] = value
	delete(e.errs, questionID)
	if e.mirror != nil {
		e.mirror.enqueue(e.responses.Clone())
	}
	return nil
}

// Toggle adds option to, or removes it from, a checkbox or multi_select
// answer. Selection caps are not enforced here.
func (e *Engine) Toggle(questionID, option string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.answerLocked(questionID, survey.Toggle(e.responses[questionID], option))
}

// Next validates the current question and advances, moving to Reviewing
// after the last one. A failed check keeps the position and returns a
// *survey.ValidationError.
func (e *Engine) Next() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != Answering {
		return fmt.Errorf("next in %s: %w", e.state, ErrInvalidTransition)
	}
	n := len(e.def.Questions)
	if n == 0 {
		e.state = Reviewing
		return nil
	}
	q := e.def.Questions[e.pos]
	if msg := survey.ValidateQuestion(q, e.responses[q.ID]); msg != "" {
		e.errs[q.ID] = msg
		return &survey.ValidationError{Errors: survey.ErrorMap{q.ID: msg}}
	}
	delete(e.errs, q.ID)
	if e.pos == n-1 {
		e.state = Reviewing
		return nil
	}
	e.pos++
	return nil
}

// Previous steps back one question without validating.
func (e *Engine) Previous() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != Answering {
		return fmt.Errorf("previous in %s: %w", e.state, ErrInvalidTransition)
	}
	if e.pos > 0 {
		e.pos--
	}
	return nil
}

// Edit returns from Reviewing to Answering at the current position.
func (e *Engine) Edit() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != Reviewing {
		return fmt.Errorf("edit in %s: %w", e.state, ErrInvalidTransition)
	}
	e.state = Answering
	return nil
}

// Submit validates every answer and hands the set to the submission sink.
// While the sink call is outstanding the engine is Submitting and further
// calls return ErrSubmitInProgress without reaching the sink. On success
// the draft is cleared and the engine is Completed; on failure the
// message is recorded under survey.SubmitErrorKey and the engine returns
// to Reviewing with all answers intact.
func (e *Engine) Submit(ctx context.Context) (sink.Ack, error) {
	e.mu.Lock()
	switch e.state {
	case Reviewing:
	case Submitting:
		e.mu.Unlock()
		return sink.Ack{}, ErrSubmitInProgress
	default:
		st := e.state
		e.mu.Unlock()
		return sink.Ack{}, fmt.Errorf("submit in %s: %w", st, ErrInvalidTransition)
	}
	if errs := survey.ValidateResponse(e.def, e.responses); len(errs) > 0 {
		e.errs = errs
		e.mu.Unlock()
		return sink.Ack{}, &survey.ValidationError{Errors: errs.Clone()}
	}
	e.state = Submitting
	e.errs = survey.ErrorMap{}
	gen, surveyID, rs := e.gen, e.def.ID, e.responses.Clone()
	e.mu.Unlock()

	ack, err := e.submitter.Submit(ctx, surveyID, rs)

	e.mu.Lock()
	defer e.mu.Unlock()
	if gen != e.gen {
		// Reset while the sink call was outstanding. A reselected session
		// of the same survey owns the draft now.
		if err == nil && !(e.mirror != nil && e.def.ID == surveyID) {
			e.drafts.Clear(context.WithoutCancel(ctx), surveyID)
		}
		return ack, err
	}
	if err != nil {
		msg := err.Error()
		var se *sink.SubmissionError
		if errors.As(err, &se) {
			msg = se.Message
		}
		e.errs = survey.ErrorMap{survey.SubmitErrorKey: msg}
		e.state = Reviewing
		e.log.Warn("submission failed", zap.String("survey_id", surveyID), zap.Error(err))
		return sink.Ack{}, err
	}
	if e.mirror != nil {
		e.mirror.stop(true)
		e.mirror = nil
	}
	e.drafts.Clear(context.WithoutCancel(ctx), surveyID)
	e.ack = &ack
	e.state = Completed
	e.log.Info("survey completed", zap.String("survey_id", surveyID), zap.String("submission_id", ack.ID))
	return ack, nil
}

// SendCopy forwards the submitted answers to the copy sink. An empty
// destination falls back to the respondent's answer to an email question.
func (e *Engine) SendCopy(ctx context.Context, destination string) (sink.CopyAck, error) {
	e.mu.Lock()
	if e.state != Completed {
		st := e.state
		e.mu.Unlock()
		return sink.CopyAck{}, fmt.Errorf("send copy in %s: %w", st, ErrInvalidTransition)
	}
	if e.copier == nil {
		e.mu.Unlock()
		return sink.CopyAck{}, ErrNoCopier
	}
	if destination == "" {
		destination = e.emailAnswer()
	}
	if destination == "" {
		e.mu.Unlock()
		return sink.CopyAck{}, ErrNoDestination
	}
	gen, surveyID, rs := e.gen, e.def.ID, e.responses.Clone()
	e.mu.Unlock()

	ack, err := e.copier.SendCopy(ctx, destination, surveyID, rs)
	if err != nil {
		e.log.Warn("copy failed", zap.String("survey_id", surveyID), zap.Error(err))
		return sink.CopyAck{}, err
	}
	e.mu.Lock()
	if gen == e.gen {
		e.copyAck = &ack
	}
	e.mu.Unlock()
	return ack, nil
}

// emailAnswer returns the first answered email question, or an answer
// stored under the conventional "email" id.
func (e *Engine) emailAnswer() string {
	for _, q := range e.def.Questions {
		if q.Type != survey.TypeEmail {
			continue
		}
		if s, ok := e.responses[q.ID].(string); ok && survey.ValidEmail(s) {
			return s
		}
	}
	if s, ok := e.responses["email"].(string); ok && survey.ValidEmail(s) {
		return s
	}
	return ""
}

// Reset returns to Browsing from any state. Pending draft saves are
// written before the in-memory answers are discarded.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.mirror != nil {
		e.mirror.stop(false)
		e.mirror = nil
	}
	e.gen++
	e.state = Browsing
	e.def = survey.Definition{}
	e.missingID = ""
	e.pos = 0
	e.responses = survey.ResponseSet{}
	e.errs = survey.ErrorMap{}
	e.ack, e.copyAck = nil, nil
}

// Flush waits until background draft saves have been written.
func (e *Engine) Flush() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.mirror != nil {
		e.mirror.wait()
	}
}

// Close flushes pending saves and stops the background writer. Later
// mutations fail with ErrInvalidTransition.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	if e.mirror != nil {
		e.mirror.stop(false)
		e.mirror = nil
	}
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) Completion() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.def.ID == "" {
		return 0
	}
	return survey.CompletionPercentage(e.def, e.responses)
}

type noDrafts struct{}

func (noDrafts) Save(context.Context, string, survey.ResponseSet) bool { return true }
func (noDrafts) Load(context.Context, string) (draft.Draft, bool)      { return draft.Draft{}, false }
func (noDrafts) Clear(context.Context, string) bool                    { return true }
