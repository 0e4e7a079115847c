package router

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"github.com/tpmb/tpmb2/internal/broadcast"
	errs "github.com/tpmb/tpmb2/internal/errors"
)

const operatorHelp = `<b>Operator commands</b>
/start - start broadcasting
/stop - stop broadcasting
/message [text] - show or replace the broadcast message
/interval [minutes|duration] - show or change the interval
/groups [list|add &lt;id&gt;|remove &lt;id&gt;] - manage destinations
/operator [id] - show or reassign the operator
/status - show the scheduler state

Message variables: {timestamp} {date} {time}
Markup: **bold** *italic* ` + "`code`" + ` ~~strike~~ __underline__`

const timeLayout = "2006-01-02 15:04:05"

func escape(s string) string {
	return html.EscapeString(s)
}

func (r *Router) handleStart(ctx context.Context, _ int64, _ string, now time.Time) (string, string, error) {
	if r.deps.Scheduler.State().Status == broadcast.StatusRunning {
		return "Broadcast is already running.", "", nil
	}

	next := *r.deps.Config
	next.Running = true
	if err := r.persist(ctx, next); err != nil {
		return "", "", err
	}
	r.deps.Scheduler.Start(now)

	st := r.deps.Scheduler.State()
	return fmt.Sprintf("Broadcast started. Next send at %s.", st.NextDueAt.Format(timeLayout)), "", nil
}

func (r *Router) handleStop(ctx context.Context, _ int64, _ string, _ time.Time) (string, string, error) {
	if r.deps.Scheduler.State().Status == broadcast.StatusStopped {
		return "Broadcast is already stopped.", "", nil
	}

	next := *r.deps.Config
	next.Running = false
	if err := r.persist(ctx, next); err != nil {
		return "", "", err
	}
	r.deps.Scheduler.Stop()
	return "Broadcast stopped.", "", nil
}

func (r *Router) handleMessage(ctx context.Context, _ int64, args string, _ time.Time) (string, string, error) {
	if args == "" {
		current := r.deps.Template.Text()
		if strings.TrimSpace(current) == "" {
			return "No broadcast message is set. Use /message &lt;text&gt;.", "", nil
		}
		return "<b>Current message:</b>\n<pre>" + escape(current) + "</pre>", "", nil
	}

	target := fmt.Sprintf("%d chars", len([]rune(args)))
	if err := r.deps.Template.Set(ctx, args); err != nil {
		return "", target, err
	}
	return "Broadcast message updated.", target, nil
}

func (r *Router) handleInterval(ctx context.Context, _ int64, args string, now time.Time) (string, string, error) {
	if args == "" {
		return "Interval: " + formatInterval(r.deps.Scheduler.State().IntervalSeconds), "", nil
	}

	seconds, err := parseInterval(args, r.deps.Scheduler.MinIntervalSeconds())
	if err != nil {
		return "", "", err
	}

	old := r.deps.Config.IntervalSeconds
	next := *r.deps.Config
	next.IntervalSeconds = seconds
	if err := r.persist(ctx, next); err != nil {
		return "", "", err
	}
	if err := r.deps.Scheduler.SetInterval(seconds, now); err != nil {
		return "", "", err
	}

	target := fmt.Sprintf("%d -> %d", old, seconds)
	return "Interval set to " + formatInterval(seconds) + ".", target, nil
}

func (r *Router) handleGroups(ctx context.Context, _ int64, args string, now time.Time) (string, string, error) {
	sub, rest := args, ""
	if i := strings.IndexAny(args, " \t\n"); i != -1 {
		sub, rest = args[:i], strings.TrimSpace(args[i:])
	}

	switch sub {
	case "", "list":
		return r.listGroups(), "", nil
	case "add":
		id, err := parseChatID(rest, "group")
		if err != nil {
			return "", "", err
		}
		added, err := r.deps.Groups.Add(ctx, id, now)
		if err != nil {
			return "", "", err
		}
		if !added {
			return fmt.Sprintf("Group %d is already registered.", id), "", nil
		}
		return fmt.Sprintf("Group %d added.", id), "", nil
	case "remove":
		id, err := parseChatID(rest, "group")
		if err != nil {
			return "", "", err
		}
		removed, err := r.deps.Groups.Remove(ctx, id)
		if err != nil {
			return "", "", err
		}
		if !removed {
			return fmt.Sprintf("Group %d was not registered.", id), "", nil
		}
		return fmt.Sprintf("Group %d removed.", id), "", nil
	default:
		return "", "", errs.NewValidationError("usage: groups [list|add <id>|remove <id>]", nil)
	}
}

func (r *Router) listGroups() string {
	groups := r.deps.Groups.List()
	if len(groups) == 0 {
		return "No groups registered. Use /groups add &lt;id&gt;."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "<b>Groups (%d)</b>", len(groups))
	for _, g := range groups {
		fmt.Fprintf(&b, "\n<code>%d</code> added %s", g.ID, g.AddedAt.Format(timeLayout))
	}
	return b.String()
}

func (r *Router) handleOperator(ctx context.Context, _ int64, args string, _ time.Time) (string, string, error) {
	old := r.deps.Config.OperatorID
	if args == "" {
		return fmt.Sprintf("Operator: <code>%d</code>", old), "", nil
	}

	id, err := parseChatID(args, "operator")
	if err != nil {
		return "", "", err
	}
	target := fmt.Sprintf("%d -> %d", old, id)
	if id == old {
		return "Operator unchanged.", target, nil
	}

	next := *r.deps.Config
	next.OperatorID = id
	if err := r.persist(ctx, next); err != nil {
		return "", target, err
	}
	r.logger.InfoContext(ctx, "Operator reassigned", "old_operator_id", old, "new_operator_id", id)
	return fmt.Sprintf("Operator changed from <code>%d</code> to <code>%d</code>.", old, id), target, nil
}

func (r *Router) handleStatus(_ context.Context, _ int64, _ string, _ time.Time) (string, string, error) {
	st := r.deps.Scheduler.State()

	var b strings.Builder
	fmt.Fprintf(&b, "<b>Status:</b> %s\n", st.Status)
	fmt.Fprintf(&b, "<b>Interval:</b> %s\n", formatInterval(st.IntervalSeconds))
	fmt.Fprintf(&b, "<b>Last sent:</b> %s\n", formatOptional(st.LastSentAt))
	fmt.Fprintf(&b, "<b>Next due:</b> %s\n", formatOptional(st.NextDueAt))
	fmt.Fprintf(&b, "<b>Groups:</b> %d\n", r.deps.Groups.Len())
	fmt.Fprintf(&b, "<b>Operator:</b> <code>%d</code>", r.deps.Config.OperatorID)

	if r.deps.TimeStatus != nil {
		ts := r.deps.TimeStatus()
		if ts.Degraded {
			fmt.Fprintf(&b, "\n<b>Time:</b> local clock (network time unavailable, breaker %s)", ts.Breaker)
		} else {
			fmt.Fprintf(&b, "\n<b>Time:</b> %s (offset %s)", escape(ts.Server), ts.Offset.Round(time.Millisecond))
		}
	}
	return b.String(), "", nil
}

func formatInterval(seconds int) string {
	d := time.Duration(seconds) * time.Second
	if seconds%60 == 0 {
		return strconv.Itoa(seconds/60) + " min"
	}
	return d.String()
}

func formatOptional(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Format(timeLayout)
}
