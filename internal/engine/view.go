package engine

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mind-engage/mindengage-surveys/internal/sink"
	"github.com/mind-engage/mindengage-surveys/internal/survey"
)

// View is a point-in-time copy of the engine state for presentation.
type View struct {
	State      State              `json:"state"`
	Survey     *survey.Summary    `json:"survey,omitempty"`
	MissingID  string             `json:"missingSurveyId,omitempty"`
	Position   int                `json:"position"`
	Total      int                `json:"total"`
	Question   *survey.Question   `json:"question,omitempty"`
	Widget     *survey.Widget     `json:"widget,omitempty"`
	Responses  survey.ResponseSet `json:"responses"`
	Errors     survey.ErrorMap    `json:"errors"`
	Completion int                `json:"completion"`
	Ack        *sink.Ack          `json:"ack,omitempty"`
	Copy       *sink.CopyAck      `json:"copy,omitempty"`
}

// Snapshot returns the current View. Question and Widget are set while
// Answering.
func (e *Engine) Snapshot() View {
	e.mu.Lock()
	defer e.mu.Unlock()
	v := View{
		State:     e.state,
		MissingID: e.missingID,
		Position:  e.pos,
		Total:     len(e.def.Questions),
		Responses: e.responses.Clone(),
		Errors:    e.errs.Clone(),
		Ack:       e.ack,
		Copy:      e.copyAck,
	}
	if e.def.ID != "" {
		s := e.def.Summary()
		v.Survey = &s
		v.Completion = survey.CompletionPercentage(e.def, e.responses)
	}
	if e.state == Answering && e.pos < len(e.def.Questions) {
		q := e.def.Questions[e.pos]
		w := survey.Describe(q)
		v.Question = &q
		v.Widget = &w
	}
	return v
}

// Definition returns the selected survey, if any.
func (e *Engine) Definition() (survey.Definition, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.def, e.def.ID != ""
}

// Export is the downloadable record of a respondent's answers.
type Export struct {
	SurveyID    string             `json:"surveyId"`
	SurveyTitle string             `json:"surveyTitle"`
	Responses   survey.ResponseSet `json:"responses"`
	SubmittedAt time.Time          `json:"submittedAt"`
}

// Export renders the current answers as an indented JSON document.
func (e *Engine) Export() ([]byte, error) {
	e.mu.Lock()
	if e.def.ID == "" {
		st := e.state
		e.mu.Unlock()
		return nil, fmt.Errorf("export in %s: %w", st, ErrInvalidTransition)
	}
	doc := Export{
		SurveyID:    e.def.ID,
		SurveyTitle: e.def.Title,
		Responses:   e.responses.Clone(),
		SubmittedAt: e.now().UTC(),
	}
	if e.ack != nil {
		doc.SubmittedAt = e.ack.Timestamp
	}
	e.mu.Unlock()
	return json.MarshalIndent(doc, "", "  ")
}

// ExportFileName is the conventional file name for an export taken at t.
func ExportFileName(surveyID string, t time.Time) string {
	return fmt.Sprintf("cyient-survey-%s-%s.json", surveyID, t.UTC().Format(time.DateOnly))
}
