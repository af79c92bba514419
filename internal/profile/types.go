package profile

import (
	"errors"
	"strings"
	"time"
)

// ErrInvalidCharacter is returned when a character fails validation.
var ErrInvalidCharacter = errors.New("invalid character")

// Character is the persona a conversation is held with. Trait fields are
// free-form: a plain string or a structured object, rendered verbatim into
// the prompt.
type Character struct {
	ID               int64     `json:"id,omitempty" yaml:"id,omitempty"`
	Name             string    `json:"name" yaml:"name"`
	Field            string    `json:"field,omitempty" yaml:"field,omitempty"`
	Description      string    `json:"description,omitempty" yaml:"description,omitempty"`
	StatusMessages   []string  `json:"status_messages,omitempty" yaml:"status_messages,omitempty"`
	Image            string    `json:"image,omitempty" yaml:"image,omitempty"`
	Likes            int       `json:"likes" yaml:"-"`
	Appearance       any       `json:"appearance,omitempty" yaml:"appearance,omitempty"`
	Personality      any       `json:"personality,omitempty" yaml:"personality,omitempty"`
	Background       any       `json:"background,omitempty" yaml:"background,omitempty"`
	SpeechStyle      any       `json:"speech_style,omitempty" yaml:"speech_style,omitempty"`
	ExampleDialogues []any     `json:"example_dialogues,omitempty" yaml:"example_dialogues,omitempty"`
	CreatedAt        time.Time `json:"created_at,omitzero" yaml:"-"`
}

// Validate checks the fields a prompt cannot do without.
func (c Character) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return errors.Join(ErrInvalidCharacter, errors.New("name is required"))
	}
	return nil
}

// traits is the JSON document persisted in the characters.traits column.
type traits struct {
	Appearance       any   `json:"appearance,omitempty"`
	Personality      any   `json:"personality,omitempty"`
	Background       any   `json:"background,omitempty"`
	SpeechStyle      any   `json:"speech_style,omitempty"`
	ExampleDialogues []any `json:"example_dialogues,omitempty"`
}
