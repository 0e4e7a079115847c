package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tpmb/tpmb2/internal/domain/model"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	db, err := NewDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { CloseDB(db) })
	return NewStore(db, nil)
}

func TestApplyMigrationsIsRepeatable(t *testing.T) {
	db, err := NewDB(":memory:")
	require.NoError(t, err)
	defer CloseDB(db)

	require.NoError(t, ApplyMigrations(db.DB, ":memory:"))
}

func TestGroups(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	t1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.AddGroup(ctx, model.Group{ID: -1002, AddedAt: t1.Add(time.Hour)}))
	require.NoError(t, store.AddGroup(ctx, model.Group{ID: -1001, AddedAt: t1}))
	require.NoError(t, store.AddGroup(ctx, model.Group{ID: -1001, AddedAt: t1.Add(2 * time.Hour)}))

	groups, err := store.ListGroups(ctx)
	require.NoError(t, err)
	assert.Equal(t, []model.Group{
		{ID: -1001, AddedAt: t1},
		{ID: -1002, AddedAt: t1.Add(time.Hour)},
	}, groups)

	require.NoError(t, store.RemoveGroup(ctx, -1001))
	require.NoError(t, store.RemoveGroup(ctx, 12345))
	groups, err = store.ListGroups(ctx)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, int64(-1002), groups[0].ID)

	assert.Error(t, store.AddGroup(ctx, model.Group{ID: 0}))
}

func TestTemplateAndSecrets(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, found, err := store.LoadTemplate(ctx)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.SaveTemplate(ctx, "first"))
	require.NoError(t, store.SaveTemplate(ctx, "**second** {date}"))
	text, found, err := store.LoadTemplate(ctx)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "**second** {date}", text)

	blob := []byte{0x00, 0x01, 0xfe, 0xff}
	require.NoError(t, store.SaveSecret(ctx, "bot_config", blob))
	got, found, err := store.LoadSecret(ctx, "bot_config")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, blob, got)

	_, found, err = store.LoadSecret(ctx, "message_template")
	require.NoError(t, err)
	assert.False(t, found, "secrets and plain settings do not share names")
}

func TestAuditEvents(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	at := time.Date(2024, 2, 2, 10, 0, 0, 0, time.UTC)

	require.NoError(t, store.SaveAuditEvent(ctx, model.AuditEvent{
		ID: "a", Timestamp: at, ActorID: 7, Action: "start", Outcome: model.OutcomeSuccess,
	}))
	require.NoError(t, store.SaveAuditEvent(ctx, model.AuditEvent{
		ID: "b", Timestamp: at.Add(time.Second), Action: model.ActionBroadcastSend,
		Target: "-100", Outcome: model.OutcomeFailed, Detail: "chat not found",
	}))
	assert.Error(t, store.SaveAuditEvent(ctx, model.AuditEvent{ID: "a", Timestamp: at}), "events are append-only")
	assert.Error(t, store.SaveAuditEvent(ctx, model.AuditEvent{}))

	events, err := store.RecentAuditEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "b", events[0].ID)
	assert.Equal(t, model.OutcomeFailed, events[0].Outcome)
	assert.Equal(t, at, events[1].Timestamp)
}

func TestRunSQLMaintenance(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.RunSQLMaintenance(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, store.RunSQLMaintenance(ctx))
}

func TestExtractDBNameFromPath(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"bot.db":                     "bot.db",
		"file:bot.db?_pragma=foo(1)": "bot.db",
		"file:/tmp/my%20bot.db":      "/tmp/my bot.db",
	}
	for in, want := range tests {
		assert.Equal(t, want, ExtractDBNameFromPath(in), in)
	}
}
