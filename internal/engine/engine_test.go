package engine

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/goleak"
	"go.uber.org/mock/gomock"

	"github.com/mind-engage/mindengage-surveys/internal/catalog"
	"github.com/mind-engage/mindengage-surveys/internal/draft"
	"github.com/mind-engage/mindengage-surveys/internal/sink"
	"github.com/mind-engage/mindengage-surveys/internal/sink/mocks"
	"github.com/mind-engage/mindengage-surveys/internal/survey"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var (
	twoQuestions = survey.Definition{
		ID:    "two",
		Title: "Two Questions",
		Questions: []survey.Question{
			{ID: "q1", Type: survey.TypeRating, Label: "Rate us", Required: true},
			{ID: "q2", Type: survey.TypeTextShort, Label: "Comments"},
		},
	}
	picker = survey.Definition{
		ID:    "picker",
		Title: "Picker",
		Questions: []survey.Question{
			{ID: "m", Type: survey.TypeMultiSelect, Label: "Pick", Options: []string{"a", "b", "c", "d"}, MaxSelections: 3},
			{ID: "e", Type: survey.TypeEmail, Label: "Email"},
		},
	}
	optionalOnly = survey.Definition{
		ID:        "optional",
		Title:     "Optional",
		Questions: []survey.Question{{ID: "x", Type: survey.TypeTextLong, Label: "Anything"}},
	}
)

type EngineSuite struct {
	suite.Suite
	ctrl      *gomock.Controller
	submitter *mocks.MockSubmitter
	copier    *mocks.MockCopier
	drafts    *draft.Store
	engine    *Engine
	ctx       context.Context
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.ctx = context.Background()
	s.ctrl = gomock.NewController(s.T())
	s.submitter = mocks.NewMockSubmitter(s.ctrl)
	s.copier = mocks.NewMockCopier(s.ctrl)
	s.drafts = draft.NewStore(draft.NewMemoryBackend())
	reg, err := catalog.New(twoQuestions, picker, optionalOnly)
	s.Require().NoError(err)
	s.engine = New(reg, s.drafts, s.submitter, WithCopier(s.copier),
		WithClock(func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) }))
}

func (s *EngineSuite) TearDownTest() {
	s.engine.Close()
}

func (s *EngineSuite) toReviewing(id string, answers survey.ResponseSet) {
	s.Require().NoError(s.engine.SelectSurvey(s.ctx, id))
	for k, v := range answers {
		s.Require().NoError(s.engine.Answer(k, v))
	}
	for s.engine.State() == Answering {
		s.Require().NoError(s.engine.Next())
	}
	s.Require().Equal(Reviewing, s.engine.State())
}

func (s *EngineSuite) TestEndToEnd_TwoQuestions() {
	s.Require().NoError(s.engine.SelectSurvey(s.ctx, "two"))
	s.Equal(Answering, s.engine.State())
	s.Equal(0, s.engine.Snapshot().Position)

	s.Require().NoError(s.engine.Answer("q1", 5))
	s.Require().NoError(s.engine.Next())
	v := s.engine.Snapshot()
	s.Equal(Answering, v.State)
	s.Equal(1, v.Position)
	s.Equal("q2", v.Question.ID)

	s.Require().NoError(s.engine.Next())
	s.Equal(Reviewing, s.engine.State())

	ack := sink.Ack{ID: "SUB-1-abc", SurveyID: "two", Timestamp: time.Now()}
	s.submitter.EXPECT().Submit(gomock.Any(), "two", survey.ResponseSet{"q1": 5}).Return(ack, nil)

	got, err := s.engine.Submit(s.ctx)
	s.Require().NoError(err)
	s.Equal(ack.ID, got.ID)
	s.Equal(Completed, s.engine.State())
	s.Equal(ack.ID, s.engine.Snapshot().Ack.ID)

	_, ok := s.drafts.Load(s.ctx, "two")
	s.False(ok, "draft is cleared after a successful submission")
	s.False(s.drafts.HasSavedData(s.ctx, "two"))
}

func (s *EngineSuite) TestReentrantSubmit_SingleSinkCall() {
	s.toReviewing("two", survey.ResponseSet{"q1": 4})

	release := make(chan struct{})
	entered := make(chan struct{})
	s.submitter.EXPECT().Submit(gomock.Any(), "two", gomock.Any()).
		DoAndReturn(func(context.Context, string, survey.ResponseSet) (sink.Ack, error) {
			close(entered)
			<-release
			return sink.Ack{ID: "SUB-only"}, nil
		}).Times(1)

	var wg sync.WaitGroup
	var firstErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, firstErr = s.engine.Submit(s.ctx)
	}()

	<-entered
	s.Equal(Submitting, s.engine.State())
	_, err := s.engine.Submit(s.ctx)
	s.ErrorIs(err, ErrSubmitInProgress)
	s.ErrorIs(s.engine.Answer("q1", 1), ErrInvalidTransition)

	close(release)
	wg.Wait()
	s.NoError(firstErr)
	s.Equal(Completed, s.engine.State())
}

func (s *EngineSuite) TestLateSubmitResult_KeepsReselectedDraft() {
	s.toReviewing("two", survey.ResponseSet{"q1": 4})
	s.engine.Flush()

	release := make(chan struct{})
	entered := make(chan struct{})
	s.submitter.EXPECT().Submit(gomock.Any(), "two", gomock.Any()).
		DoAndReturn(func(context.Context, string, survey.ResponseSet) (sink.Ack, error) {
			close(entered)
			<-release
			return sink.Ack{ID: "SUB-late"}, nil
		}).Times(1)

	var wg sync.WaitGroup
	var lateErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, lateErr = s.engine.Submit(s.ctx)
	}()
	<-entered

	s.engine.Reset()
	s.Require().NoError(s.engine.SelectSurvey(s.ctx, "two"))
	s.Require().NoError(s.engine.Answer("q2", "fresh"))
	s.engine.Flush()

	close(release)
	wg.Wait()
	s.NoError(lateErr)
	s.Equal(Answering, s.engine.State())

	d, ok := s.drafts.Load(s.ctx, "two")
	s.Require().True(ok, "late result must not clear the reselected session's draft")
	s.Equal(survey.ResponseSet{"q1": 4, "q2": "fresh"}, d.Responses)
}

func (s *EngineSuite) TestLateSubmitResult_ClearsDraftAfterReset() {
	s.toReviewing("two", survey.ResponseSet{"q1": 4})
	s.engine.Flush()

	release := make(chan struct{})
	entered := make(chan struct{})
	s.submitter.EXPECT().Submit(gomock.Any(), "two", gomock.Any()).
		DoAndReturn(func(context.Context, string, survey.ResponseSet) (sink.Ack, error) {
			close(entered)
			<-release
			return sink.Ack{ID: "SUB-late"}, nil
		}).Times(1)

	done := make(chan error, 1)
	go func() {
		_, err := s.engine.Submit(s.ctx)
		done <- err
	}()
	<-entered

	s.engine.Reset()
	close(release)
	s.NoError(<-done)
	s.Equal(Browsing, s.engine.State())
	s.False(s.drafts.HasSavedData(s.ctx, "two"))
}

func (s *EngineSuite) TestClose_RejectsMutations() {
	s.Require().NoError(s.engine.SelectSurvey(s.ctx, "picker"))
	s.Require().NoError(s.engine.Toggle("m", "a"))
	s.engine.Close()

	s.NotPanics(func() {
		s.ErrorIs(s.engine.Answer("e", "a@b.co"), ErrInvalidTransition)
		s.ErrorIs(s.engine.Toggle("m", "b"), ErrInvalidTransition)
	})
	s.Equal(survey.ResponseSet{"m": []string{"a"}}, s.engine.Snapshot().Responses)

	d, ok := s.drafts.Load(s.ctx, "picker")
	s.Require().True(ok, "close writes the pending save")
	s.Equal(survey.ResponseSet{"m": []string{"a"}}, d.Responses)

	s.engine.Reset()
	s.ErrorIs(s.engine.SelectSurvey(s.ctx, "two"), ErrInvalidTransition)
}

func (s *EngineSuite) TestSinkFailure_ReturnsToReviewingAndRetries() {
	s.toReviewing("two", survey.ResponseSet{"q1": 3, "q2": "fine"})

	s.submitter.EXPECT().Submit(gomock.Any(), "two", gomock.Any()).
		Return(sink.Ack{}, &sink.SubmissionError{Message: "Internal server error"})
	_, err := s.engine.Submit(s.ctx)
	s.Require().Error(err)

	v := s.engine.Snapshot()
	s.Equal(Reviewing, v.State)
	s.Equal(survey.ErrorMap{survey.SubmitErrorKey: "Internal server error"}, v.Errors)
	s.Equal(survey.ResponseSet{"q1": 3, "q2": "fine"}, v.Responses)

	s.submitter.EXPECT().Submit(gomock.Any(), "two", survey.ResponseSet{"q1": 3, "q2": "fine"}).
		Return(sink.Ack{ID: "SUB-2"}, nil)
	_, err = s.engine.Submit(s.ctx)
	s.Require().NoError(err)
	s.Equal(Completed, s.engine.State())
	s.Empty(s.engine.Snapshot().Errors)
}

func (s *EngineSuite) TestSinkFailure_PlainErrorMessage() {
	s.toReviewing("two", survey.ResponseSet{"q1": 3})
	s.submitter.EXPECT().Submit(gomock.Any(), "two", gomock.Any()).Return(sink.Ack{}, errors.New("connection refused"))

	_, err := s.engine.Submit(s.ctx)
	s.Require().Error(err)
	s.Equal("connection refused", s.engine.Snapshot().Errors[survey.SubmitErrorKey])
}

func (s *EngineSuite) TestNext_ValidationKeepsPosition() {
	s.Require().NoError(s.engine.SelectSurvey(s.ctx, "two"))

	err := s.engine.Next()
	var ve *survey.ValidationError
	s.Require().ErrorAs(err, &ve)
	s.Equal("Rate us is required", ve.Errors["q1"])

	v := s.engine.Snapshot()
	s.Equal(0, v.Position)
	s.Equal("Rate us is required", v.Errors["q1"])

	s.Require().NoError(s.engine.Answer("q1", 6))
	s.Empty(s.engine.Snapshot().Errors, "answering clears the question's error")
	s.Require().Error(s.engine.Next())
	s.Equal("Please select a rating between 1 and 5", s.engine.Snapshot().Errors["q1"])
}

func (s *EngineSuite) TestPrevious_NeverValidates() {
	s.Require().NoError(s.engine.SelectSurvey(s.ctx, "two"))
	s.Require().NoError(s.engine.Previous())
	s.Equal(0, s.engine.Snapshot().Position)

	s.Require().NoError(s.engine.Answer("q1", 2))
	s.Require().NoError(s.engine.Next())
	s.Require().NoError(s.engine.Answer("q1", "garbage"))
	s.Require().NoError(s.engine.Previous())
	s.Equal(0, s.engine.Snapshot().Position)
}

func (s *EngineSuite) TestEdit_FromReviewingKeepsPosition() {
	s.toReviewing("two", survey.ResponseSet{"q1": 1})
	s.ErrorIs(s.engine.Previous(), ErrInvalidTransition)

	s.Require().NoError(s.engine.Edit())
	v := s.engine.Snapshot()
	s.Equal(Answering, v.State)
	s.Equal(1, v.Position)
	s.ErrorIs(s.engine.Edit(), ErrInvalidTransition)
}

func (s *EngineSuite) TestSubmit_ValidationFailureStaysInReviewing() {
	s.toReviewing("two", survey.ResponseSet{"q1": 4})
	s.Require().NoError(s.engine.Answer("q1", 0))

	_, err := s.engine.Submit(s.ctx)
	var ve *survey.ValidationError
	s.Require().ErrorAs(err, &ve)
	s.Equal(Reviewing, s.engine.State())
	s.Contains(s.engine.Snapshot().Errors, "q1")
}

func (s *EngineSuite) TestSubmit_OnlyFromReviewing() {
	_, err := s.engine.Submit(s.ctx)
	s.ErrorIs(err, ErrInvalidTransition)

	s.Require().NoError(s.engine.SelectSurvey(s.ctx, "two"))
	_, err = s.engine.Submit(s.ctx)
	s.ErrorIs(err, ErrInvalidTransition)
}

func (s *EngineSuite) TestMultiSelectCap_EnforcedOnlyByValidation() {
	s.Require().NoError(s.engine.SelectSurvey(s.ctx, "picker"))
	for _, o := range []string{"a", "b", "c", "d"} {
		s.Require().NoError(s.engine.Toggle("m", o))
	}
	s.Equal([]string{"a", "b", "c", "d"}, s.engine.Snapshot().Responses["m"])

	err := s.engine.Next()
	s.Require().Error(err)
	s.Equal("Please select no more than 3 options", s.engine.Snapshot().Errors["m"])

	s.Require().NoError(s.engine.Toggle("m", "b"))
	s.Equal([]string{"a", "c", "d"}, s.engine.Snapshot().Responses["m"])
	s.NoError(s.engine.Next())
}

func (s *EngineSuite) TestAnswer_UnknownQuestion() {
	s.Require().NoError(s.engine.SelectSurvey(s.ctx, "two"))
	s.ErrorIs(s.engine.Answer("q99", 1), ErrUnknownQuestion)
}

func (s *EngineSuite) TestAnswer_MirrorsToDraftStore() {
	s.Require().NoError(s.engine.SelectSurvey(s.ctx, "two"))
	s.Require().NoError(s.engine.Answer("q1", 2))
	s.Require().NoError(s.engine.Answer("q2", "hello"))
	s.engine.Flush()

	d, ok := s.drafts.Load(s.ctx, "two")
	s.Require().True(ok)
	s.Equal(survey.ResponseSet{"q1": 2, "q2": "hello"}, d.Responses)
}

func (s *EngineSuite) TestSelectSurvey_HydratesFromDraft() {
	s.Require().True(s.drafts.Save(s.ctx, "two", survey.ResponseSet{"q1": 4}))

	s.Require().NoError(s.engine.SelectSurvey(s.ctx, "two"))
	v := s.engine.Snapshot()
	s.Equal(survey.ResponseSet{"q1": 4}, v.Responses)
	s.Equal(100, v.Completion)
	s.Equal(0, v.Position)
}

func (s *EngineSuite) TestSelectSurvey_NotFound() {
	err := s.engine.SelectSurvey(s.ctx, "nope")
	s.ErrorIs(err, catalog.ErrNotFound)

	v := s.engine.Snapshot()
	s.Equal(NotFound, v.State)
	s.Equal("nope", v.MissingID)
	s.ErrorIs(s.engine.SelectSurvey(s.ctx, "two"), ErrInvalidTransition)
	s.ErrorIs(s.engine.Answer("q1", 1), ErrInvalidTransition)

	s.engine.Reset()
	s.Equal(Browsing, s.engine.State())
	s.NoError(s.engine.SelectSurvey(s.ctx, "two"))
}

func (s *EngineSuite) TestReset_FlushesPendingSaves() {
	s.Require().NoError(s.engine.SelectSurvey(s.ctx, "two"))
	s.Require().NoError(s.engine.Answer("q1", 3))
	s.engine.Reset()

	v := s.engine.Snapshot()
	s.Equal(Browsing, v.State)
	s.Empty(v.Responses)
	s.Nil(v.Survey)

	d, ok := s.drafts.Load(s.ctx, "two")
	s.Require().True(ok)
	s.Equal(survey.ResponseSet{"q1": 3}, d.Responses)
}

func (s *EngineSuite) TestSendCopy() {
	_, err := s.engine.SendCopy(s.ctx, "a@b.co")
	s.ErrorIs(err, ErrInvalidTransition)

	s.toReviewing("picker", survey.ResponseSet{"e": "me@example.com"})
	s.submitter.EXPECT().Submit(gomock.Any(), "picker", gomock.Any()).Return(sink.Ack{ID: "SUB-3"}, nil)
	_, err = s.engine.Submit(s.ctx)
	s.Require().NoError(err)

	s.copier.EXPECT().SendCopy(gomock.Any(), "me@example.com", "picker", survey.ResponseSet{"e": "me@example.com"}).
		Return(sink.CopyAck{ID: "EMAIL-1", Recipient: "me@example.com"}, nil)
	ack, err := s.engine.SendCopy(s.ctx, "")
	s.Require().NoError(err)
	s.Equal("EMAIL-1", ack.ID)
	s.Equal("EMAIL-1", s.engine.Snapshot().Copy.ID)
	s.Equal(Completed, s.engine.State())

	s.copier.EXPECT().SendCopy(gomock.Any(), "other@example.com", "picker", gomock.Any()).
		Return(sink.CopyAck{}, &sink.CopyError{Message: "Invalid email format"})
	_, err = s.engine.SendCopy(s.ctx, "other@example.com")
	var ce *sink.CopyError
	s.ErrorAs(err, &ce)
}

func (s *EngineSuite) TestSendCopy_NoDestination() {
	s.toReviewing("two", survey.ResponseSet{"q1": 5})
	s.submitter.EXPECT().Submit(gomock.Any(), "two", gomock.Any()).Return(sink.Ack{ID: "SUB-4"}, nil)
	_, err := s.engine.Submit(s.ctx)
	s.Require().NoError(err)

	_, err = s.engine.SendCopy(s.ctx, "")
	s.ErrorIs(err, ErrNoDestination)
}

func (s *EngineSuite) TestExport() {
	_, err := s.engine.Export()
	s.ErrorIs(err, ErrInvalidTransition)

	s.Require().NoError(s.engine.SelectSurvey(s.ctx, "two"))
	s.Require().NoError(s.engine.Answer("q1", 5))
	b, err := s.engine.Export()
	s.Require().NoError(err)

	var doc Export
	s.Require().NoError(json.Unmarshal(b, &doc))
	s.Equal("two", doc.SurveyID)
	s.Equal("Two Questions", doc.SurveyTitle)
	s.Equal(survey.ResponseSet{"q1": 5}, doc.Responses)
	s.True(doc.SubmittedAt.Equal(time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)))
}

func (s *EngineSuite) TestCompletion_NoRequiredQuestions() {
	s.Require().NoError(s.engine.SelectSurvey(s.ctx, "optional"))
	s.Require().NoError(s.engine.Answer("x", "text"))
	s.Equal(0, s.engine.Completion())
}

func TestNew_WithoutDraftStore(t *testing.T) {
	reg, err := catalog.New(twoQuestions)
	require.NoError(t, err)
	e := New(reg, nil, nil)
	defer e.Close()

	require.NoError(t, e.SelectSurvey(context.Background(), "two"))
	require.NoError(t, e.Answer("q1", 5))
	e.Flush()
	assert.Equal(t, 100, e.Completion())
}

func TestMirror_CoalescesToLatest(t *testing.T) {
	var mu sync.Mutex
	var saved []survey.ResponseSet
	gate := make(chan struct{})
	m := newMirror(func(rs survey.ResponseSet) {
		<-gate
		mu.Lock()
		saved = append(saved, rs)
		mu.Unlock()
	})

	m.enqueue(survey.ResponseSet{"n": 1})
	m.enqueue(survey.ResponseSet{"n": 2})
	m.enqueue(survey.ResponseSet{"n": 3})
	close(gate)
	m.stop(false)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, saved)
	if diff := cmp.Diff(survey.ResponseSet{"n": 3}, saved[len(saved)-1]); diff != "" {
		t.Fatalf("last save mismatch (-want +got):\n%s", diff)
	}
	assert.LessOrEqual(t, len(saved), 2)
}

func TestMirror_StopDropsPending(t *testing.T) {
	var saves int
	m := newMirror(func(survey.ResponseSet) { saves++ })
	m.stop(true)
	m.enqueue(survey.ResponseSet{"n": 1})
	m.stop(true)
	assert.Zero(t, saves)
}

func TestState_Text(t *testing.T) {
	b, err := Reviewing.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "reviewing", string(b))

	var st State
	require.NoError(t, st.UnmarshalText([]byte("not_found")))
	assert.Equal(t, NotFound, st)
	assert.Error(t, st.UnmarshalText([]byte("flying")))
	assert.Equal(t, "state(42)", State(42).String())
}

func TestExportFileName(t *testing.T) {
	ts := time.Date(2025, 6, 30, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, "cyient-survey-hackathon_feedback-2025-06-30.json", ExportFileName("hackathon_feedback", ts))
}
