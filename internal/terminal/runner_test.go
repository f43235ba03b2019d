package terminal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/mind-engage/mindengage-surveys/internal/catalog"
	"github.com/mind-engage/mindengage-surveys/internal/draft"
	"github.com/mind-engage/mindengage-surveys/internal/engine"
	"github.com/mind-engage/mindengage-surveys/internal/sink"
	"github.com/mind-engage/mindengage-surveys/internal/survey"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// scripted answers prompts from fixed queues and fails with ErrAborted
// once a queue runs dry.
type scripted struct {
	inputs  []string
	texts   []string
	selects []int
	multis  [][]int
	infos   []string
	asked   []string
}

func (s *scripted) Input(_ context.Context, cfg InputConfig) (string, error) {
	s.asked = append(s.asked, cfg.Message)
	if len(s.inputs) == 0 {
		return "", ErrAborted
	}
	v := s.inputs[0]
	s.inputs = s.inputs[1:]
	return v, nil
}

func (s *scripted) TextArea(_ context.Context, cfg TextAreaConfig) (string, error) {
	s.asked = append(s.asked, cfg.Message)
	if len(s.texts) == 0 {
		return "", ErrAborted
	}
	v := s.texts[0]
	s.texts = s.texts[1:]
	return v, nil
}

func (s *scripted) Select(_ context.Context, cfg SelectConfig) (int, error) {
	s.asked = append(s.asked, cfg.Message)
	if len(s.selects) == 0 {
		return 0, ErrAborted
	}
	v := s.selects[0]
	s.selects = s.selects[1:]
	return v, nil
}

func (s *scripted) MultiSelect(_ context.Context, cfg SelectConfig) ([]int, error) {
	s.asked = append(s.asked, cfg.Message)
	if len(s.multis) == 0 {
		return nil, ErrAborted
	}
	v := s.multis[0]
	s.multis = s.multis[1:]
	return v, nil
}

func (s *scripted) Info(_ context.Context, msg string) error {
	s.infos = append(s.infos, msg)
	return nil
}

var (
	mixed = survey.Definition{
		ID:    "mixed",
		Title: "Mixed",
		Questions: []survey.Question{
			{ID: "stars", Type: survey.TypeRating, Label: "Stars", Required: true},
			{ID: "pick", Type: survey.TypeRadio, Label: "Pick", Options: []string{"a", "b"}},
			{ID: "many", Type: survey.TypeMultiSelect, Label: "Many", Options: []string{"x", "y", "z"}, MaxSelections: 2},
			{ID: "notes", Type: survey.TypeTextLong, Label: "Notes"},
			{ID: "mail", Type: survey.TypeEmail, Label: "Mail"},
		},
	}
	named = survey.Definition{
		ID:    "named",
		Title: "Named",
		Questions: []survey.Question{
			{ID: "name", Type: survey.TypeTextShort, Label: "Name", Required: true},
			{ID: "score", Type: survey.TypeRating, Label: "Score", Required: true},
		},
	}
)

func newEngine(t *testing.T, id string, drafts engine.DraftStore) *engine.Engine {
	t.Helper()
	cat, err := catalog.New(mixed, named)
	require.NoError(t, err)
	mock := sink.NewMock(cat, sink.WithSubmitDelay(0))
	e := engine.New(cat, drafts, mock)
	t.Cleanup(e.Close)
	_ = e.SelectSurvey(context.Background(), id)
	return e
}

func TestRun_AllWidgets(t *testing.T) {
	e := newEngine(t, "mixed", draft.NewStore(draft.NewMemoryBackend()))
	p := &scripted{
		selects: []int{3, 2, 0}, // 4 stars, skip pick, submit
		multis:  [][]int{{0, 2}},
		texts:   []string{"hello"},
		inputs:  []string{"me@example.io"},
	}

	ack, err := NewRunner(e, p, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, ack.ResponsesCount)
	assert.Equal(t, engine.Completed, e.State())

	v := e.Snapshot()
	assert.Equal(t, survey.ResponseSet{
		"stars": 4,
		"many":  []string{"x", "z"},
		"notes": "hello",
		"mail":  "me@example.io",
	}, v.Responses)
	assert.Equal(t, "[1/5] Stars *", p.asked[0])
}

func TestRun_ValidationChangeAndQuit(t *testing.T) {
	drafts := draft.NewStore(draft.NewMemoryBackend())
	e := newEngine(t, "named", drafts)
	p := &scripted{
		inputs: []string{"", "Ada", "Grace"},
		// score 5, change answer, first question, score 5 again, quit
		selects: []int{4, 1, 0, 4, 2},
	}

	_, err := NewRunner(e, p, nil).Run(context.Background())
	require.ErrorIs(t, err, ErrQuit)
	assert.Contains(t, p.infos, "! Name is required")
	assert.Equal(t, engine.Reviewing, e.State())

	e.Flush()
	d, ok := drafts.Load(context.Background(), "named")
	require.True(t, ok)
	assert.Equal(t, survey.ResponseSet{"name": "Grace", "score": 5}, d.Responses)
}

func TestRun_RestoresDraft(t *testing.T) {
	drafts := draft.NewStore(draft.NewMemoryBackend())
	require.True(t, drafts.Save(context.Background(), "named", survey.ResponseSet{"name": "Lin"}))
	e := newEngine(t, "named", drafts)
	p := &scripted{inputs: []string{"Lin"}}

	_, err := NewRunner(e, p, nil).Run(context.Background())
	assert.ErrorIs(t, err, ErrAborted)
	assert.Contains(t, p.infos, "Restored 1 saved answer(s).")
}

func TestRun_NotFound(t *testing.T) {
	e := newEngine(t, "missing", nil)
	_, err := NewRunner(e, &scripted{}, nil).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"missing"`)
}

func TestFieldValidator(t *testing.T) {
	v := fieldValidator(survey.Question{ID: "p", Type: survey.TypePhone, Label: "Phone"})
	assert.NoError(t, v(""))
	assert.NoError(t, v("+44 20 7946 0958"))
	assert.EqualError(t, v("abc"), "Please enter a valid phone number")
}

func TestDisplay(t *testing.T) {
	assert.Equal(t, "-", display(nil))
	assert.Equal(t, "-", display([]string{}))
	assert.Equal(t, "a, b", display([]string{"a", "b"}))
	assert.Equal(t, "3", display(3))
}
