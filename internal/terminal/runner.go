package terminal

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-surveys/internal/engine"
	"github.com/mind-engage/mindengage-surveys/internal/logging"
	"github.com/mind-engage/mindengage-surveys/internal/sink"
	"github.com/mind-engage/mindengage-surveys/internal/survey"
)

// ErrQuit is returned when the respondent leaves from the review menu.
// Answers stay in the draft store.
var ErrQuit = errors.New("terminal: quit before submitting")

const (
	skipOption = "(skip)"

	menuSubmit = "Submit responses"
	menuChange = "Change an answer"
	menuQuit   = "Save and quit"
)

// Runner walks an engine through a survey with a Prompter.
type Runner struct {
	p   Prompter
	e   *engine.Engine
	log *zap.Logger
}

func NewRunner(e *engine.Engine, p Prompter, log *zap.Logger) *Runner {
	return &Runner{p: p, e: e, log: logging.OrNop(log)}
}

// Run prompts until the survey is submitted and returns the
// acknowledgement. The engine must already have a survey selected.
func (r *Runner) Run(ctx context.Context) (sink.Ack, error) {
	v := r.e.Snapshot()
	if v.State == engine.NotFound {
		return sink.Ack{}, fmt.Errorf("survey %q not found", v.MissingID)
	}
	if v.Survey != nil {
		if err := r.p.Info(ctx, fmt.Sprintf("%s\n%s", v.Survey.Title, v.Survey.Description)); err != nil {
			return sink.Ack{}, err
		}
	}
	if n := len(v.Responses); n > 0 {
		if err := r.p.Info(ctx, fmt.Sprintf("Restored %d saved answer(s).", n)); err != nil {
			return sink.Ack{}, err
		}
	}

	for {
		v = r.e.Snapshot()
		var err error
		switch v.State {
		case engine.Answering:
			err = r.answer(ctx, v)
		case engine.Reviewing:
			err = r.review(ctx, v)
		case engine.Completed:
			return *v.Ack, nil
		default:
			return sink.Ack{}, fmt.Errorf("unexpected state %s", v.State)
		}
		if err != nil {
			return sink.Ack{}, err
		}
	}
}

func (r *Runner) answer(ctx context.Context, v engine.View) error {
	if v.Question == nil {
		return r.e.Next()
	}
	q := *v.Question
	if msg := v.Errors[q.ID]; msg != "" {
		if err := r.p.Info(ctx, "! "+msg); err != nil {
			return err
		}
	}
	label := fmt.Sprintf("[%d/%d] %s", v.Position+1, v.Total, q.Label)
	if q.Required {
		label += " *"
	}
	value, answered, err := r.ask(ctx, q, *v.Widget, label, v.Responses[q.ID])
	if err != nil {
		return err
	}
	if answered {
		if err := r.e.Answer(q.ID, value); err != nil {
			return err
		}
	}
	err = r.e.Next()
	var ve *survey.ValidationError
	if errors.As(err, &ve) {
		// The error is shown on the next pass over the same question.
		return nil
	}
	return err
}

// ask renders one widget. answered is false when an optional question
// was skipped.
func (r *Runner) ask(ctx context.Context, q survey.Question, w survey.Widget, label string, cur any) (any, bool, error) {
	switch w.Kind {
	case survey.WidgetStars:
		opts := make([]string, 0, w.Max-w.Min+1)
		for i := w.Min; i <= w.Max; i++ {
			s := strconv.Itoa(i)
			switch i {
			case w.Min:
				s += " - " + w.MinLabel
			case w.Max:
				s += " - " + w.MaxLabel
			}
			opts = append(opts, s)
		}
		def := -1
		if n, ok := cur.(int); ok {
			def = n - w.Min
		}
		idx, err := r.choose(ctx, q, label, opts, def)
		if err != nil || idx < 0 {
			return nil, false, err
		}
		return w.Min + idx, true, nil

	case survey.WidgetDropdown, survey.WidgetRadio:
		s, _ := cur.(string)
		idx, err := r.choose(ctx, q, label, w.Options, indexOf(w.Options, s))
		if err != nil || idx < 0 {
			return nil, false, err
		}
		return w.Options[idx], true, nil

	case survey.WidgetCheckboxes:
		cfg := SelectConfig{Message: label, Options: w.Options, MaxItems: w.MaxSelections}
		if ss, ok := cur.([]string); ok {
			cfg.Defaults = indicesOf(w.Options, ss)
		}
		if w.MaxSelections > 0 {
			cfg.Help = fmt.Sprintf("Select up to %d", w.MaxSelections)
		}
		idx, err := r.p.MultiSelect(ctx, cfg)
		if err != nil {
			return nil, false, err
		}
		picked := make([]string, 0, len(idx))
		for _, i := range idx {
			picked = append(picked, w.Options[i])
		}
		return picked, true, nil

	case survey.WidgetTextarea:
		s, _ := cur.(string)
		out, err := r.p.TextArea(ctx, TextAreaConfig{Message: label, Default: s, Validator: fieldValidator(q)})
		return out, err == nil, err

	default:
		s, _ := cur.(string)
		out, err := r.p.Input(ctx, InputConfig{Message: label, Default: s, Help: w.Placeholder, Validator: fieldValidator(q)})
		return out, err == nil, err
	}
}

// choose asks a single choice; optional questions get a trailing skip
// entry, reported as -1.
func (r *Runner) choose(ctx context.Context, q survey.Question, label string, opts []string, def int) (int, error) {
	if !q.Required {
		opts = append(append([]string(nil), opts...), skipOption)
	}
	idx, err := r.p.Select(ctx, SelectConfig{Message: label, Options: opts, DefaultIndex: def})
	if err != nil {
		return -1, err
	}
	if idx < 0 || opts[idx] == skipOption {
		return -1, nil
	}
	return idx, nil
}

func fieldValidator(q survey.Question) func(string) error {
	return func(s string) error {
		if msg := survey.ValidateQuestion(q, s); msg != "" {
			return errors.New(msg)
		}
		return nil
	}
}

func (r *Runner) review(ctx context.Context, v engine.View) error {
	def, _ := r.e.Definition()
	var b strings.Builder
	fmt.Fprintf(&b, "Review (%d%% of required answered)\n", v.Completion)
	for _, q := range def.Questions {
		fmt.Fprintf(&b, "  %s: %s\n", q.Label, display(v.Responses[q.ID]))
	}
	if msg := v.Errors[survey.SubmitErrorKey]; msg != "" {
		fmt.Fprintf(&b, "! %s\n", msg)
	}
	if err := r.p.Info(ctx, strings.TrimRight(b.String(), "\n")); err != nil {
		return err
	}

	menu := []string{menuSubmit, menuChange, menuQuit}
	idx, err := r.p.Select(ctx, SelectConfig{Message: "What next?", Options: menu})
	if err != nil || idx < 0 {
		return err
	}
	switch menu[idx] {
	case menuSubmit:
		_, err := r.e.Submit(ctx)
		var ve *survey.ValidationError
		switch {
		case err == nil:
			return nil
		case ctx.Err() != nil:
			return ctx.Err()
		case errors.As(err, &ve):
			return r.p.Info(ctx, ve.Error())
		}
		// Shown with the next review.
		r.log.Debug("submission rejected", zap.Error(err))
		return nil
	case menuChange:
		return r.jump(ctx, def)
	default:
		return ErrQuit
	}
}

// jump re-opens answering at a chosen question.
func (r *Runner) jump(ctx context.Context, def survey.Definition) error {
	labels := make([]string, 0, len(def.Questions))
	for _, q := range def.Questions {
		labels = append(labels, q.Label)
	}
	idx, err := r.p.Select(ctx, SelectConfig{Message: "Which answer?", Options: labels, DefaultIndex: len(labels) - 1})
	if err != nil || idx < 0 {
		return err
	}
	if err := r.e.Edit(); err != nil {
		return err
	}
	for r.e.Snapshot().Position > idx {
		if err := r.e.Previous(); err != nil {
			return err
		}
	}
	return nil
}

func display(v any) string {
	switch t := v.(type) {
	case nil:
		return "-"
	case []string:
		if len(t) == 0 {
			return "-"
		}
		return strings.Join(t, ", ")
	case string:
		if strings.TrimSpace(t) == "" {
			return "-"
		}
		return t
	default:
		return fmt.Sprint(t)
	}
}
