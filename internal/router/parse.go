package router

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	errs "github.com/tpmb/tpmb2/internal/errors"
)

// parsed is one inbound command line.
type parsed struct {
	keyword string
	args    string
	slash   bool
	mention string
}

// parseCommand splits text into a keyword and the raw argument text. The
// keyword is matched case-sensitively. Only slash commands carry a @botname
// mention. Argument text keeps its inner
// formatting, including newlines.
func parseCommand(text string) (parsed, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return parsed{}, false
	}

	var p parsed
	if strings.HasPrefix(text, "/") {
		p.slash = true
		text = text[1:]
	}

	head, rest := text, ""
	if i := strings.IndexFunc(text, unicode.IsSpace); i != -1 {
		head, rest = text[:i], strings.TrimSpace(text[i:])
	}
	if p.slash {
		if at := strings.Index(head, "@"); at != -1 {
			head, p.mention = head[:at], head[at+1:]
		}
	}
	if head == "" {
		return parsed{}, false
	}

	p.keyword = head
	p.args = rest
	return p, true
}

const maxIntervalMinutes = 60 * 24 * 30

// parseInterval accepts a whole number of minutes or a Go duration such as
// "90s" or "1h30m" and returns seconds.
func parseInterval(arg string, minSeconds int) (int, error) {
	const usage = "usage: interval <minutes> or interval <duration>, e.g. interval 30 or interval 90s"

	arg = strings.TrimSpace(arg)
	var seconds int
	if n, err := strconv.Atoi(arg); err == nil {
		if n <= 0 || n > maxIntervalMinutes {
			return 0, errs.NewValidationError(fmt.Sprintf("interval must be between 1 and %d minutes; %s", maxIntervalMinutes, usage), nil)
		}
		seconds = n * 60
	} else {
		d, err := time.ParseDuration(arg)
		if err != nil {
			return 0, errs.NewValidationError(fmt.Sprintf("invalid interval %q; %s", arg, usage), err)
		}
		if d <= 0 || d > maxIntervalMinutes*time.Minute {
			return 0, errs.NewValidationError(fmt.Sprintf("interval %s is out of range; %s", d, usage), nil)
		}
		if d%time.Second != 0 {
			return 0, errs.NewValidationError(fmt.Sprintf("interval %s must be a whole number of seconds", d), nil)
		}
		seconds = int(d / time.Second)
	}

	if seconds < minSeconds {
		return 0, errs.NewValidationError(fmt.Sprintf("interval must be at least %s", time.Duration(minSeconds)*time.Second), nil)
	}
	return seconds, nil
}

// parseChatID parses a Telegram chat or user id. Negative ids denote groups.
func parseChatID(arg, what string) (int64, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return 0, errs.NewValidationError(fmt.Sprintf("missing %s id", what), nil)
	}
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, errs.NewValidationError(fmt.Sprintf("invalid %s id %q: expected a number such as -1001234567890", what, arg), err)
	}
	if id == 0 {
		return 0, errs.NewValidationError(fmt.Sprintf("%s id cannot be 0", what), nil)
	}
	return id, nil
}
