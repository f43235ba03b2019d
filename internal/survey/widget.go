package survey

// WidgetKind names the input control a question is presented with.
type WidgetKind string

const (
	WidgetStars      WidgetKind = "stars"
	WidgetDropdown   WidgetKind = "dropdown"
	WidgetRadio      WidgetKind = "radio"
	WidgetCheckboxes WidgetKind = "checkboxes"
	WidgetInput      WidgetKind = "input"
	WidgetTextarea   WidgetKind = "textarea"
)

// Widget describes how a presentation layer should render a question.
type Widget struct {
	Kind          WidgetKind `json:"kind"`
	Options       []string   `json:"options,omitempty"`
	Min           int        `json:"min,omitempty"`
	Max           int        `json:"max,omitempty"`
	MinLabel      string     `json:"minLabel,omitempty"`
	MaxLabel      string     `json:"maxLabel,omitempty"`
	Multiple      bool       `json:"multiple,omitempty"`
	MaxLength     int        `json:"maxLength,omitempty"`
	MaxSelections int        `json:"maxSelections,omitempty"`
	InputMode     string     `json:"inputMode,omitempty"` // text|email|tel
	Placeholder   string     `json:"placeholder,omitempty"`
}

// Describe maps a question onto its widget. Unknown types fall back to a
// plain text input.
func Describe(q Question) Widget {
	switch q.Type {
	case TypeRating:
		return Widget{Kind: WidgetStars, Min: RatingMin, Max: RatingMax, MinLabel: "Poor", MaxLabel: "Excellent"}
	case TypeSelect:
		return Widget{Kind: WidgetDropdown, Options: q.Options, Placeholder: "Select an option..."}
	case TypeRadio:
		return Widget{Kind: WidgetRadio, Options: q.Options}
	case TypeCheckbox, TypeMultiSelect:
		return Widget{Kind: WidgetCheckboxes, Options: q.Options, Multiple: true, MaxSelections: q.MaxSelections}
	case TypeTextLong:
		return Widget{Kind: WidgetTextarea, MaxLength: q.MaxLength, InputMode: "text", Placeholder: "Enter your response..."}
	case TypeEmail:
		return Widget{Kind: WidgetInput, InputMode: "email", Placeholder: "your.email@example.com"}
	case TypePhone:
		return Widget{Kind: WidgetInput, InputMode: "tel", Placeholder: "+1 (555) 123-4567"}
	default:
		return Widget{Kind: WidgetInput, MaxLength: q.MaxLength, InputMode: "text", Placeholder: "Enter your response..."}
	}
}
