package credentials

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"github.com/tpmb/tpmb2/internal/domain/model"
	errs "github.com/tpmb/tpmb2/internal/errors"
)

type memoryBlobs struct {
	blobs   map[string][]byte
	saveErr error
}

func newMemoryBlobs() *memoryBlobs {
	return &memoryBlobs{blobs: make(map[string][]byte)}
}

func (m *memoryBlobs) LoadSecret(_ context.Context, name string) ([]byte, bool, error) {
	b, ok := m.blobs[name]
	return b, ok, nil
}

func (m *memoryBlobs) SaveSecret(_ context.Context, name string, blob []byte) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.blobs[name] = append([]byte(nil), blob...)
	return nil
}

func fileKeys(t *testing.T) FileKeySource {
	t.Helper()
	return FileKeySource{Path: filepath.Join(t.TempDir(), "keys", "tpmb.key")}
}

var sample = model.BotConfig{Token: "123456:ABC-secret", OperatorID: 42, IntervalSeconds: 1800, Running: true}

func TestSaveThenLoad(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	blobs := newMemoryBlobs()
	store := NewStore(blobs, fileKeys(t), nil)

	require.NoError(t, store.Save(ctx, sample))
	assert.NotContains(t, string(blobs.blobs[secretName]), "ABC-secret")

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, sample, got)
}

func TestLoadMissing(t *testing.T) {
	t.Parallel()

	_, err := NewStore(newMemoryBlobs(), fileKeys(t), nil).Load(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoadCorruptBlob(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	blobs := newMemoryBlobs()
	store := NewStore(blobs, fileKeys(t), nil)
	require.NoError(t, store.Save(ctx, sample))

	t.Run("tampered", func(t *testing.T) {
		blob := blobs.blobs[secretName]
		blob[len(blob)-1] ^= 0xff
		_, err := store.Load(ctx)
		assert.True(t, errs.IsPersistence(err))
	})

	t.Run("truncated", func(t *testing.T) {
		blobs.blobs[secretName] = []byte("short")
		_, err := store.Load(ctx)
		assert.True(t, errs.IsPersistence(err))
	})
}

func TestLoadWithWrongKey(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	blobs := newMemoryBlobs()
	require.NoError(t, NewStore(blobs, fileKeys(t), nil).Save(ctx, sample))

	_, err := NewStore(blobs, fileKeys(t), nil).Load(ctx)
	assert.True(t, errs.IsPersistence(err))
}

func TestSaveRejectsMalformedToken(t *testing.T) {
	t.Parallel()

	blobs := newMemoryBlobs()
	err := NewStore(blobs, fileKeys(t), nil).Save(context.Background(), model.BotConfig{Token: "nocolon"})
	assert.True(t, errs.IsValidation(err))
	assert.Empty(t, blobs.blobs)
}

func TestSaveWriteFailure(t *testing.T) {
	t.Parallel()

	blobs := newMemoryBlobs()
	blobs.saveErr = errors.New("disk full")
	err := NewStore(blobs, fileKeys(t), nil).Save(context.Background(), sample)
	assert.True(t, errs.IsPersistence(err))
}

func TestFileKeySourceCreatesPrivateKey(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	src := fileKeys(t)

	first, err := src.Key(ctx)
	require.NoError(t, err)
	assert.Len(t, first, 32)

	info, err := os.Stat(src.Path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	second, err := src.Key(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestFileKeySourceRejectsBadKey(t *testing.T) {
	t.Parallel()

	src := fileKeys(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(src.Path), 0o700))
	require.NoError(t, os.WriteFile(src.Path, []byte("c2hvcnQ="), 0o600))

	_, err := src.Key(context.Background())
	assert.Error(t, err)
}

func TestKeyringKeySource(t *testing.T) {
	keyring.MockInit()

	ctx := context.Background()
	src := KeyringKeySource{Service: "tpmb-test", Account: "bot"}

	first, err := src.Key(ctx)
	require.NoError(t, err)
	second, err := src.Key(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	blobs := newMemoryBlobs()
	require.NoError(t, NewStore(blobs, src, nil).Save(ctx, sample))
	got, err := NewStore(blobs, src, nil).Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, sample, got)
}
