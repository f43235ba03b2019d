package sink

//go:generate mockgen -source=sink.go -destination=mocks/mocks.go -package=mocks Submitter,Copier

import (
	"context"
	"time"

	"github.com/mind-engage/mindengage-surveys/internal/survey"
)

// Ack acknowledges an accepted submission.
type Ack struct {
	ID             string    `json:"submissionId"`
	SurveyID       string    `json:"surveyId"`
	SurveyTitle    string    `json:"surveyTitle"`
	Timestamp      time.Time `json:"submittedAt"`
	ResponsesCount int       `json:"responsesCount"`
	Fingerprint    string    `json:"fingerprint,omitempty"`
	Receipt        string    `json:"receipt,omitempty"`
}

// CopyAck acknowledges a response copy handed to the copy channel.
type CopyAck struct {
	ID        string    `json:"emailId"`
	Recipient string    `json:"recipient"`
	SurveyID  string    `json:"surveyId"`
	SentAt    time.Time `json:"sentAt"`
	Subject   string    `json:"subject"`
	Preview   string    `json:"preview"`
}

// Submitter accepts a completed response set.
type Submitter interface {
	Submit(ctx context.Context, surveyID string, rs survey.ResponseSet) (Ack, error)
}

// Copier sends a copy of a response set to a destination address.
type Copier interface {
	SendCopy(ctx context.Context, destination, surveyID string, rs survey.ResponseSet) (CopyAck, error)
}

// SubmissionError is a rejected submission. Fields holds per-question
// messages when the rejection came from validation.
type SubmissionError struct {
	Message string
	Fields  survey.ErrorMap
	Err     error
}

func (e *SubmissionError) Error() string { return e.Message }
func (e *SubmissionError) Unwrap() error { return e.Err }

type CopyError struct {
	Message string
}

func (e *CopyError) Error() string { return e.Message }
