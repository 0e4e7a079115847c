package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tpmb/tpmb2/internal/domain/model"
)

type recordingSink struct {
	events []model.AuditEvent
	err    error
}

func (s *recordingSink) SaveAuditEvent(_ context.Context, ev model.AuditEvent) error {
	s.events = append(s.events, ev)
	return s.err
}

func TestAppendFillsIDAndTimestamp(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClockAt(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))
	sink := &recordingSink{}
	log := NewLog(sink, clock, nil)

	log.Append(context.Background(), model.AuditEvent{ActorID: 1, Action: "start", Outcome: model.OutcomeSuccess})

	require.Len(t, sink.events, 1)
	ev := sink.events[0]
	_, err := uuid.Parse(ev.ID)
	assert.NoError(t, err)
	assert.Equal(t, clock.Now(), ev.Timestamp)
	assert.Equal(t, "start", ev.Action)
}

func TestAppendKeepsExplicitFields(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	log := NewLog(sink, nil, nil)
	at := time.Unix(1700000000, 0)

	log.Append(context.Background(), model.AuditEvent{ID: "fixed", Timestamp: at, Outcome: model.OutcomeDenied})

	require.Len(t, sink.events, 1)
	assert.Equal(t, "fixed", sink.events[0].ID)
	assert.Equal(t, at, sink.events[0].Timestamp)
}

func TestAppendSwallowsSinkErrors(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{err: errors.New("db closed")}
	log := NewLog(sink, nil, nil)

	assert.NotPanics(t, func() {
		log.Append(context.Background(), model.AuditEvent{Action: "status", Outcome: model.OutcomeSuccess})
	})
	assert.Len(t, sink.events, 1)
}
