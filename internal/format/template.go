package format

import (
	"context"
	"strings"
	"time"

	errs "github.com/tpmb/tpmb2/internal/errors"
)

// Store persists the current template text.
type Store interface {
	SaveTemplate(ctx context.Context, text string) error
}

// Template holds the single current broadcast text. It is not safe for
// concurrent use; the bot event loop owns it.
type Template struct {
	text  string
	store Store
}

// NewTemplate creates a template holding text. store may be nil for an
// in-memory template.
func NewTemplate(text string, store Store) *Template {
	return &Template{text: text, store: store}
}

// Text returns the raw template text.
func (t *Template) Text() string {
	return t.text
}

// Set persists and replaces the template text. The in-memory text changes
// only after the store accepted it.
func (t *Template) Set(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return errs.NewValidationError("message text must not be empty", nil)
	}

	if t.store != nil {
		if err := t.store.SaveTemplate(ctx, text); err != nil {
			return errs.NewPersistenceError("failed to save message template", err)
		}
	}

	t.text = text
	return nil
}

// Render renders the current text at now.
func (t *Template) Render(now time.Time) string {
	return Render(t.text, now)
}
