package survey

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern = regexp.MustCompile(`^\+?[1-9]\d{1,14}$`)
	whitespace   = regexp.MustCompile(`\s`)
)

const (
	RatingMin = 1
	RatingMax = 5
)

// rule checks a non-empty value against a type-specific constraint and
// returns a message, or "" when the value passes.
type rule func(q Question, v any) string

// rules routes by question type. Types without an entry (select, radio,
// checkbox and unknown tags) have no constraint beyond "required"; option
// membership is not checked.
var rules = map[QuestionType]rule{
	TypeRating:      ratingRule,
	TypeTextShort:   lengthRule,
	TypeTextLong:    lengthRule,
	TypeEmail:       emailRule,
	TypePhone:       phoneRule,
	TypeMultiSelect: selectionCapRule,
}

// ValidateQuestion returns the error message for value, or "" if valid.
func ValidateQuestion(q Question, value any) string {
	if IsEmpty(value) {
		if q.Required {
			return q.Label + " is required"
		}
		return ""
	}
	if r, ok := rules[q.Type]; ok {
		return r(q, value)
	}
	return ""
}

// ValidateResponse validates every question of d against rs. The result
// is empty when the whole set is acceptable.
func ValidateResponse(d Definition, rs ResponseSet) ErrorMap {
	errs := ErrorMap{}
	for _, q := range d.Questions {
		if msg := ValidateQuestion(q, rs[q.ID]); msg != "" {
			errs[q.ID] = msg
		}
	}
	return errs
}

// CompletedRequiredCount counts required questions with a non-empty answer.
func CompletedRequiredCount(d Definition, rs ResponseSet) int {
	n := 0
	for _, q := range d.Questions {
		if q.Required && !IsEmpty(rs[q.ID]) {
			n++
		}
	}
	return n
}

// CompletionPercentage is the rounded share of required questions that
// have an answer; 0 when the survey has no required questions.
func CompletionPercentage(d Definition, rs ResponseSet) int {
	total := d.RequiredCount()
	if total == 0 {
		return 0
	}
	done := CompletedRequiredCount(d, rs)
	return int(math.Round(float64(done) / float64(total) * 100))
}

func ratingRule(_ Question, v any) string {
	n, ok := asInt(v)
	if !ok || n < RatingMin || n > RatingMax {
		return fmt.Sprintf("Please select a rating between %d and %d", RatingMin, RatingMax)
	}
	return ""
}

func lengthRule(q Question, v any) string {
	if q.MaxLength <= 0 {
		return ""
	}
	if utf8.RuneCountInString(asString(v)) > q.MaxLength {
		return fmt.Sprintf("Response must be %d characters or less", q.MaxLength)
	}
	return ""
}

func emailRule(_ Question, v any) string {
	if !ValidEmail(asString(v)) {
		return "Please enter a valid email address"
	}
	return ""
}

func phoneRule(_ Question, v any) string {
	if !ValidPhone(asString(v)) {
		return "Please enter a valid phone number"
	}
	return ""
}

func selectionCapRule(q Question, v any) string {
	if q.MaxSelections <= 0 {
		return ""
	}
	ss, _ := toStringSlice(v)
	if len(ss) > q.MaxSelections {
		return fmt.Sprintf("Please select no more than %d options", q.MaxSelections)
	}
	return ""
}

func ValidEmail(s string) bool { return emailPattern.MatchString(s) }

// ValidPhone accepts E.164-like numbers; whitespace is ignored.
func ValidPhone(s string) bool {
	return phonePattern.MatchString(whitespace.ReplaceAllString(s, ""))
}

// asInt accepts integer kinds, integral floats and numeric strings.
func asInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int32:
		return int(t), true
	case int64:
		return int(t), true
	case float64:
		if t != math.Trunc(t) {
			return 0, false
		}
		return int(t), true
	case json.Number:
		n, err := strconv.Atoi(t.String())
		return n, err == nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		return n, err == nil
	}
	return 0, false
}

func asString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// ValidationError carries per-question messages from a failed check.
type ValidationError struct {
	Errors ErrorMap
}

func (e *ValidationError) Error() string {
	ids := make([]string, 0, len(e.Errors))
	for id := range e.Errors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, id+": "+e.Errors[id])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}
