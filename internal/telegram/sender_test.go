package telegram

import (
	"context"
	"errors"
	"testing"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "github.com/tpmb/tpmb2/internal/errors"
	"github.com/tpmb/tpmb2/internal/session"
)

type fakeAPI struct {
	params []*bot.SendMessageParams
	err    error
}

func (f *fakeAPI) SendMessage(_ context.Context, params *bot.SendMessageParams) (*models.Message, error) {
	f.params = append(f.params, params)
	if f.err != nil {
		return nil, f.err
	}
	return &models.Message{ID: len(f.params)}, nil
}

func TestSendUsesHTML(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{}
	s := NewSender(api, nil)

	require.NoError(t, s.Send(context.Background(), -1001, "<b>Sale</b>"))
	require.Len(t, api.params, 1)
	assert.Equal(t, int64(-1001), api.params[0].ChatID)
	assert.Equal(t, "<b>Sale</b>", api.params[0].Text)
	assert.Equal(t, models.ParseModeHTML, api.params[0].ParseMode)
}

func TestSendFailureIsTransportError(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{err: errors.New("Forbidden: bot was kicked from the supergroup chat")}
	s := NewSender(api, nil)

	err := s.Send(context.Background(), -1001, "hi")
	require.Error(t, err)
	assert.True(t, errs.IsTransport(err))

	var transportErr *errs.TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, int64(-1001), transportErr.ChatID)
}

func TestSendHonoursCancelledContext(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{}
	s := NewSender(api, nil)
	for range defaultBurst {
		require.NoError(t, s.Send(context.Background(), 1, "x"))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.Send(ctx, 1, "x")
	assert.True(t, errs.IsTransport(err))
	assert.Len(t, api.params, defaultBurst)
}

func TestRelayEscapesUserInput(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{}
	s := NewSender(api, nil)
	from := session.User{ID: 7, Name: "Ann <admin>"}

	require.NoError(t, s.RequestChat(context.Background(), 42, from))
	require.NoError(t, s.Forward(context.Background(), 42, from, "<script>x</script> & more"))

	require.Len(t, api.params, 2)
	for _, p := range api.params {
		assert.Equal(t, int64(42), p.ChatID)
		assert.Contains(t, p.Text, "Ann &lt;admin&gt;")
		assert.Contains(t, p.Text, `tg://user?id=7`)
	}
	assert.Contains(t, api.params[1].Text, "&lt;script&gt;x&lt;/script&gt; &amp; more")
	assert.NotContains(t, api.params[1].Text, "<script>")
}
