package format

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "github.com/tpmb/tpmb2/internal/errors"
)

var fixedNow = time.Date(2024, time.March, 7, 9, 5, 3, 0, time.UTC)

func TestRenderVariables(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "timestamp", input: "Now: {timestamp}", want: "Now: 2024-03-07 09:05:03"},
		{name: "date and time", input: "{date} at {time}", want: "2024-03-07 at 09:05:03"},
		{name: "unknown token kept", input: "Hi {name}!", want: "Hi {name}!"},
		{name: "not a token", input: "{ spaced } {}", want: "{ spaced } {}"},
		{name: "repeated", input: "{time}{time}", want: "09:05:0309:05:03"},
		{name: "empty", input: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Render(tt.input, fixedNow))
		})
	}
}

func TestRenderWithCallerVariables(t *testing.T) {
	t.Parallel()

	got := RenderWith("{greeting} {date} {time}", fixedNow, map[string]string{
		"greeting": "Hello",
		"time":     "noon",
	})
	assert.Equal(t, "Hello 2024-03-07 noon", got)
}

func TestRenderMarkup(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "bold", input: "**bold**", want: "<b>bold</b>"},
		{name: "italic", input: "*italic*", want: "<i>italic</i>"},
		{name: "code", input: "`x := 1`", want: "<code>x := 1</code>"},
		{name: "strike", input: "~~gone~~", want: "<s>gone</s>"},
		{name: "underline", input: "__under__", want: "<u>under</u>"},
		{name: "mixed", input: "**a** and *b*", want: "<b>a</b> and <i>b</i>"},
		{name: "nested", input: "**bold *it* end**", want: "<b>bold <i>it</i> end</b>"},
		{name: "code is not formatted", input: "`**raw**`", want: "<code>**raw**</code>"},
		{name: "html escaped", input: "a < b & c > d", want: "a &lt; b &amp; c &gt; d"},
		{name: "html escaped in code", input: "`<tag>`", want: "<code>&lt;tag&gt;</code>"},
		{name: "unbalanced bold", input: "**open", want: "**open"},
		{name: "unbalanced italic", input: "2 * 3", want: "2 * 3"},
		{name: "unbalanced code", input: "a ` b", want: "a ` b"},
		{name: "empty code pair is literal", input: "use `` then `x`", want: "use `` then <code>x</code>"},
		{name: "empty code pair alone", input: "``", want: "``"},
		{name: "trailing backtick", input: "end`", want: "end`"},
		{name: "empty pair literal", input: "****", want: "****"},
		{name: "crossing pairs stay nested", input: "**a *b** c*", want: "<b>a *b</b> c*"},
		{name: "plain", input: "just text", want: "just text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Render(tt.input, fixedNow))
		})
	}
}

func TestRenderIsTotal(t *testing.T) {
	t.Parallel()

	inputs := []string{"*", "**", "***", "`", "``", "~~~", "___", "{", "}", "{timestamp", "\x00\xff", "**`*`**", "__*~~`"}
	for _, in := range inputs {
		assert.NotPanics(t, func() { _ = Render(in, fixedNow) }, "input %q", in)
	}
}

type fakeTemplateStore struct {
	saved []string
	err   error
}

func (s *fakeTemplateStore) SaveTemplate(_ context.Context, text string) error {
	if s.err != nil {
		return s.err
	}
	s.saved = append(s.saved, text)
	return nil
}

func TestTemplateSet(t *testing.T) {
	t.Parallel()

	t.Run("persists then replaces", func(t *testing.T) {
		t.Parallel()
		store := &fakeTemplateStore{}
		tmpl := NewTemplate("old", store)

		require.NoError(t, tmpl.Set(context.Background(), "new {date}"))
		assert.Equal(t, "new {date}", tmpl.Text())
		assert.Equal(t, []string{"new {date}"}, store.saved)
		assert.Equal(t, "new 2024-03-07", tmpl.Render(fixedNow))
	})

	t.Run("blank text rejected", func(t *testing.T) {
		t.Parallel()
		tmpl := NewTemplate("old", nil)

		err := tmpl.Set(context.Background(), "   ")
		require.Error(t, err)
		assert.True(t, errs.IsValidation(err))
		assert.Equal(t, "old", tmpl.Text())
	})

	t.Run("store failure keeps old text", func(t *testing.T) {
		t.Parallel()
		tmpl := NewTemplate("old", &fakeTemplateStore{err: errors.New("disk full")})

		err := tmpl.Set(context.Background(), "new")
		require.Error(t, err)
		assert.True(t, errs.IsPersistence(err))
		assert.Equal(t, "old", tmpl.Text())
	})
}
