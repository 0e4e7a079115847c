// Package format renders broadcast message templates into Telegram HTML.
//
// Rendering is total: unknown placeholders are kept verbatim and unbalanced
// markup is emitted literally, so any input string produces a message.
package format

import (
	"regexp"
	"strings"
	"time"
)

// Layouts used for the built-in placeholders.
const (
	TimestampLayout = "2006-01-02 15:04:05"
	DateLayout      = "2006-01-02"
	TimeLayout      = "15:04:05"
)

var placeholderRe = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// delimiters are matched longest first.
var delimiters = []struct {
	mark string
	tag  string
}{
	{"**", "b"},
	{"~~", "s"},
	{"__", "u"},
	{"*", "i"},
}

// Render substitutes {timestamp}, {date} and {time} using now and translates
// markdown-like markup into Telegram HTML.
func Render(raw string, now time.Time) string {
	return RenderWith(raw, now, nil)
}

// RenderWith is Render with additional caller supplied variables. Caller
// variables take precedence over the built-in ones.
func RenderWith(raw string, now time.Time, vars map[string]string) string {
	if raw == "" {
		return ""
	}

	values := map[string]string{
		"timestamp": now.Format(TimestampLayout),
		"date":      now.Format(DateLayout),
		"time":      now.Format(TimeLayout),
	}
	for k, v := range vars {
		values[k] = v
	}

	text := placeholderRe.ReplaceAllStringFunc(raw, func(m string) string {
		if v, ok := values[m[1:len(m)-1]]; ok {
			return v
		}
		return m
	})

	return markup(text)
}

// markup splits out `code` spans, which are never formatted further, and
// formats the text between them. An empty pair of backticks is literal.
func markup(text string) string {
	var b strings.Builder
	b.Grow(len(text) + 16)

	for {
		open := strings.IndexByte(text, '`')
		if open < 0 || open+1 >= len(text) {
			break
		}
		end := strings.IndexByte(text[open+1:], '`')
		if end < 0 {
			break
		}
		end += open + 1

		b.WriteString(inline(text[:open]))
		if end == open+1 {
			b.WriteString("``")
		} else {
			b.WriteString("<code>")
			b.WriteString(htmlEscaper.Replace(text[open+1 : end]))
			b.WriteString("</code>")
		}
		text = text[end+1:]
	}

	b.WriteString(inline(text))
	return b.String()
}

type token struct {
	text  string
	tag   string
	delim bool
	// 0 unpaired, 1 opening, 2 closing
	role int
}

// inline pairs delimiters with a stack so the produced tags always nest.
// A delimiter that cannot be paired with a non-empty span stays literal.
func inline(s string) string {
	if s == "" {
		return ""
	}

	tokens := tokenize(s)
	var stack []int
	for i := range tokens {
		if !tokens[i].delim {
			continue
		}

		j := len(stack) - 1
		for ; j >= 0; j-- {
			if tokens[stack[j]].text == tokens[i].text {
				break
			}
		}

		if j >= 0 && stack[j] != i-1 {
			tokens[stack[j]].role = 1
			tokens[i].role = 2
			// anything opened inside the pair and still open is literal
			stack = stack[:j]
			continue
		}
		stack = append(stack, i)
	}

	var b strings.Builder
	for _, t := range tokens {
		switch {
		case t.delim && t.role == 1:
			b.WriteString("<" + t.tag + ">")
		case t.delim && t.role == 2:
			b.WriteString("</" + t.tag + ">")
		default:
			b.WriteString(htmlEscaper.Replace(t.text))
		}
	}
	return b.String()
}

func tokenize(s string) []token {
	var tokens []token
	start := 0

outer:
	for i := 0; i < len(s); {
		for _, d := range delimiters {
			if strings.HasPrefix(s[i:], d.mark) {
				if start < i {
					tokens = append(tokens, token{text: s[start:i]})
				}
				tokens = append(tokens, token{text: d.mark, tag: d.tag, delim: true})
				i += len(d.mark)
				start = i
				continue outer
			}
		}
		i++
	}

	if start < len(s) {
		tokens = append(tokens, token{text: s[start:]})
	}
	return tokens
}
