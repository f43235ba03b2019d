package survey

// QuestionType is the closed set of question kinds a survey may contain.
// Unrecognized tags are kept as-is and behave like free text.
type QuestionType string

const (
	TypeRating      QuestionType = "rating"
	TypeSelect      QuestionType = "select"
	TypeRadio       QuestionType = "radio"
	TypeCheckbox    QuestionType = "checkbox"
	TypeMultiSelect QuestionType = "multi_select"
	TypeTextShort   QuestionType = "text_short"
	TypeTextLong    QuestionType = "text_long"
	TypeEmail       QuestionType = "email"
	TypePhone       QuestionType = "phone"
)

// Known reports whether t is one of the built-in question types.
func (t QuestionType) Known() bool {
	switch t {
	case TypeRating, TypeSelect, TypeRadio, TypeCheckbox, TypeMultiSelect,
		TypeTextShort, TypeTextLong, TypeEmail, TypePhone:
		return true
	}
	return false
}

// Multiple reports whether answers to t are sequences of strings.
func (t QuestionType) Multiple() bool {
	return t == TypeCheckbox || t == TypeMultiSelect
}

type Question struct {
	ID            string       `json:"id" yaml:"id"`
	Type          QuestionType `json:"type" yaml:"type"`
	Label         string       `json:"label" yaml:"label"`
	Required      bool         `json:"required" yaml:"required"`
	Options       []string     `json:"options,omitempty" yaml:"options,omitempty"`
	MaxLength     int          `json:"maxLength,omitempty" yaml:"max_length,omitempty"`         // text only; 0 = unlimited
	MaxSelections int          `json:"maxSelections,omitempty" yaml:"max_selections,omitempty"` // multi_select only; 0 = unlimited
}

// Definition is an immutable survey: metadata plus an ordered question list.
type Definition struct {
	ID          string     `json:"id" yaml:"id"`
	Title       string     `json:"title" yaml:"title"`
	Description string     `json:"description" yaml:"description"`
	Icon        string     `json:"icon,omitempty" yaml:"icon,omitempty"`
	Color       string     `json:"color,omitempty" yaml:"color,omitempty"`
	Questions   []Question `json:"questions" yaml:"questions"`
}

// Summary is the catalog listing view of a Definition.
type Summary struct {
	ID                     string `json:"id"`
	Title                  string `json:"title"`
	Description            string `json:"description"`
	Icon                   string `json:"icon,omitempty"`
	Color                  string `json:"color,omitempty"`
	QuestionsCount         int    `json:"questionsCount"`
	RequiredQuestionsCount int    `json:"requiredQuestionsCount"`
}

func (d Definition) Summary() Summary {
	return Summary{
		ID:                     d.ID,
		Title:                  d.Title,
		Description:            d.Description,
		Icon:                   d.Icon,
		Color:                  d.Color,
		QuestionsCount:         len(d.Questions),
		RequiredQuestionsCount: d.RequiredCount(),
	}
}

// Question returns the question with the given id.
func (d Definition) Question(id string) (Question, bool) {
	for _, q := range d.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}

func (d Definition) RequiredCount() int {
	n := 0
	for _, q := range d.Questions {
		if q.Required {
			n++
		}
	}
	return n
}

// SubmitErrorKey is the ErrorMap key reserved for submission sink failures.
const SubmitErrorKey = "submit"

// ErrorMap maps question id (or SubmitErrorKey) to a user-facing message.
type ErrorMap map[string]string

func (m ErrorMap) Clone() ErrorMap {
	out := make(ErrorMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
