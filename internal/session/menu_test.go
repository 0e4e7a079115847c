package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type forwarded struct {
	operatorID int64
	from       User
	text       string
}

type fakeRelay struct {
	requests   []int64
	forwarded  []forwarded
	requestErr error
	forwardErr error
}

func (r *fakeRelay) RequestChat(_ context.Context, operatorID int64, from User) error {
	if r.requestErr != nil {
		return r.requestErr
	}
	r.requests = append(r.requests, from.ID)
	return nil
}

func (r *fakeRelay) Forward(_ context.Context, operatorID int64, from User, text string) error {
	if r.forwardErr != nil {
		return r.forwardErr
	}
	r.forwarded = append(r.forwarded, forwarded{operatorID: operatorID, from: from, text: text})
	return nil
}

var testContent = Content{
	Welcome:          "welcome",
	OwnerInfo:        "owner",
	Help:             "help",
	NoMessage:        "no message",
	RelayPrompt:      "write now",
	RelaySent:        "sent",
	RelayLimited:     "slow down",
	RelayUnavailable: "unavailable",
	TryAgain:         "try again",
	BackButton:       "Back",
}

var now0 = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

func newTestManager(relay *fakeRelay, operatorID int64, outcomes *[]string) *Manager {
	return NewManager(testContent, Deps{
		Relay:      relay,
		OperatorID: func() int64 { return operatorID },
		Preview:    func(time.Time) string { return "<b>broadcast</b>" },
		OnRelay: func(o string) {
			if outcomes != nil {
				*outcomes = append(*outcomes, o)
			}
		},
	}, Options{TTL: 10 * time.Minute, RelayEvery: time.Second, RelayBurst: 2}, nil)
}

func TestLazySessionStartsInMainMenu(t *testing.T) {
	t.Parallel()

	m := newTestManager(&fakeRelay{}, 1, nil)
	assert.Equal(t, MainMenu, m.state(5, now0))
	assert.Zero(t, m.Len())

	v := m.Show(User{ID: 5}, now0)
	assert.Equal(t, "welcome", v.Text)
	require.Len(t, v.Buttons, 2)
	assert.Equal(t, ActionInfoOwner, v.Buttons[0][0].Action)
	assert.Equal(t, 1, m.Len())
}

func TestMenuTransitions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		action Action
		state  State
		text   string
	}{
		{ActionInfoOwner, ViewingInfo, "owner"},
		{ActionShowMessage, ViewingMessage, "<b>broadcast</b>"},
		{ActionHelp, ViewingHelp, "help"},
		{ActionEncryptedChat, InChatRelay, "write now"},
	}
	for _, tt := range tests {
		t.Run(string(tt.action), func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			m := newTestManager(&fakeRelay{}, 1, nil)
			u := User{ID: 9}

			v := m.Press(ctx, u, tt.action, now0)
			assert.Equal(t, tt.text, v.Text)
			assert.Equal(t, tt.state, m.state(u.ID, now0))
			require.Len(t, v.Buttons, 1)
			assert.Equal(t, ActionBack, v.Buttons[0][0].Action)

			v = m.Press(ctx, u, ActionBack, now0)
			assert.Equal(t, "welcome", v.Text)
			assert.Equal(t, MainMenu, m.state(u.ID, now0))
		})
	}
}

func TestInvalidTransitionKeepsState(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := newTestManager(&fakeRelay{}, 1, nil)
	u := User{ID: 9}

	m.Press(ctx, u, ActionInfoOwner, now0)
	v := m.Press(ctx, u, ActionHelp, now0)
	assert.Equal(t, "owner", v.Text)
	assert.Equal(t, ViewingInfo, m.state(u.ID, now0))

	v = m.Press(ctx, u, Action("bogus"), now0)
	assert.Equal(t, "owner", v.Text)
}

func TestRelayKeepsSessionInChatRelay(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	relay := &fakeRelay{}
	var outcomes []string
	m := newTestManager(relay, 77, &outcomes)
	u := User{ID: 9, Name: "alice"}

	m.Press(ctx, u, ActionEncryptedChat, now0)
	assert.Equal(t, []int64{9}, relay.requests)

	v := m.Text(ctx, u, "hello operator", now0.Add(time.Second))
	assert.Equal(t, "sent", v.Text)
	assert.Equal(t, InChatRelay, m.state(u.ID, now0.Add(time.Second)))
	require.Len(t, relay.forwarded, 1)
	assert.Equal(t, forwarded{operatorID: 77, from: u, text: "hello operator"}, relay.forwarded[0])
	assert.Equal(t, []string{"sent"}, outcomes)
}

func TestRelayRateLimit(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	relay := &fakeRelay{}
	var outcomes []string
	m := newTestManager(relay, 77, &outcomes)
	u := User{ID: 9}
	m.Press(ctx, u, ActionEncryptedChat, now0)

	m.Text(ctx, u, "one", now0)
	m.Text(ctx, u, "two", now0)
	v := m.Text(ctx, u, "three", now0)
	assert.Equal(t, "slow down", v.Text)
	assert.Len(t, relay.forwarded, 2)

	m.Text(ctx, u, "four", now0.Add(2*time.Second))
	assert.Len(t, relay.forwarded, 3)
	assert.Equal(t, []string{"sent", "sent", "limited", "sent"}, outcomes)
}

func TestRelayWithoutOperator(t *testing.T) {
	t.Parallel()

	relay := &fakeRelay{}
	m := newTestManager(relay, 0, nil)
	v := m.Press(context.Background(), User{ID: 9}, ActionEncryptedChat, now0)
	assert.Equal(t, "unavailable", v.Text)
	assert.Equal(t, MainMenu, m.state(9, now0))
	assert.Empty(t, relay.requests)
}

func TestRelayFailuresShowTryAgain(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("chat request", func(t *testing.T) {
		t.Parallel()
		m := newTestManager(&fakeRelay{requestErr: errors.New("blocked")}, 1, nil)
		v := m.Press(ctx, User{ID: 3}, ActionEncryptedChat, now0)
		assert.Equal(t, "try again", v.Text)
		assert.Equal(t, MainMenu, m.state(3, now0))
	})

	t.Run("forward", func(t *testing.T) {
		t.Parallel()
		relay := &fakeRelay{}
		m := newTestManager(relay, 1, nil)
		m.Press(ctx, User{ID: 3}, ActionEncryptedChat, now0)
		relay.forwardErr = errors.New("network")
		v := m.Text(ctx, User{ID: 3}, "hi", now0)
		assert.Equal(t, "try again", v.Text)
		assert.Equal(t, InChatRelay, m.state(3, now0))
	})
}

func TestTextOutsideRelayShowsMainMenu(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	relay := &fakeRelay{}
	m := newTestManager(relay, 1, nil)
	u := User{ID: 4}
	m.Press(ctx, u, ActionHelp, now0)

	v := m.Text(ctx, u, "hello?", now0)
	assert.Equal(t, "welcome", v.Text)
	assert.Equal(t, MainMenu, m.state(u.ID, now0))
	assert.Empty(t, relay.forwarded)
}

func TestSessionsExpire(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := newTestManager(&fakeRelay{}, 1, nil)
	m.Press(ctx, User{ID: 1}, ActionEncryptedChat, now0)
	m.Show(User{ID: 2}, now0.Add(5*time.Minute))

	later := now0.Add(11 * time.Minute)
	assert.Equal(t, MainMenu, m.state(1, later))
	assert.Equal(t, 1, m.Sweep(later))
	assert.Equal(t, 1, m.Len())
}

func TestParseAction(t *testing.T) {
	t.Parallel()

	for _, data := range []string{"info_owner", "show_message", "encrypted_chat", "help", "back_to_main"} {
		a, ok := ParseAction(data)
		assert.True(t, ok, data)
		assert.Equal(t, Action(data), a)
	}
	_, ok := ParseAction("start")
	assert.False(t, ok)
}
