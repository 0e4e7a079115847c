// Package credentials keeps the bot configuration encrypted at rest.
//
// The configuration is serialized to JSON and sealed with XChaCha20-Poly1305.
// The stored blob is the random nonce followed by the ciphertext.
package credentials

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/tpmb/tpmb2/internal/domain/model"
	errs "github.com/tpmb/tpmb2/internal/errors"
)

const secretName = "bot_config"

// ErrNotFound is returned by Load when no configuration has been saved yet.
var ErrNotFound = errors.New("credentials not found")

// BlobStore persists opaque encrypted blobs by name.
type BlobStore interface {
	LoadSecret(ctx context.Context, name string) ([]byte, bool, error)
	SaveSecret(ctx context.Context, name string, blob []byte) error
}

type Store struct {
	blobs  BlobStore
	keys   KeySource
	logger *slog.Logger
}

func NewStore(blobs BlobStore, keys KeySource, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Store{
		blobs:  blobs,
		keys:   keys,
		logger: logger.With("component", "credentials"),
	}
}

// Load decrypts the stored configuration. A blob that cannot be decrypted or
// decoded yields a PersistenceError.
func (s *Store) Load(ctx context.Context) (model.BotConfig, error) {
	var cfg model.BotConfig

	blob, found, err := s.blobs.LoadSecret(ctx, secretName)
	if err != nil {
		return cfg, errs.NewPersistenceError("failed to read credentials", err)
	}
	if !found {
		return cfg, ErrNotFound
	}

	aead, err := s.newAEAD(ctx)
	if err != nil {
		return cfg, err
	}
	if len(blob) < aead.NonceSize()+aead.Overhead() {
		return cfg, errs.NewPersistenceError("credentials blob is truncated", nil)
	}
	nonce, sealed := blob[:aead.NonceSize()], blob[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, sealed, []byte(secretName))
	if err != nil {
		return cfg, errs.NewPersistenceError("failed to decrypt credentials", err)
	}
	if err := json.Unmarshal(plain, &cfg); err != nil {
		return cfg, errs.NewPersistenceError("failed to decode credentials", err)
	}
	return cfg, nil
}

// Save encrypts and stores cfg. The configuration is only persisted once Save
// returns nil.
func (s *Store) Save(ctx context.Context, cfg model.BotConfig) error {
	if err := ValidateToken(cfg.Token); err != nil {
		return err
	}

	plain, err := json.Marshal(cfg)
	if err != nil {
		return errs.NewPersistenceError("failed to encode credentials", err)
	}
	aead, err := s.newAEAD(ctx)
	if err != nil {
		return err
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plain)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return errs.NewPersistenceError("failed to generate nonce", err)
	}
	blob := aead.Seal(nonce, nonce, plain, []byte(secretName))

	if err := s.blobs.SaveSecret(ctx, secretName, blob); err != nil {
		return errs.NewPersistenceError("failed to write credentials", err)
	}
	s.logger.Debug("Credentials saved", "operator_id", cfg.OperatorID, "running", cfg.Running)
	return nil
}

func (s *Store) newAEAD(ctx context.Context) (cipher.AEAD, error) {
	key, err := s.keys.Key(ctx)
	if err != nil {
		return nil, errs.NewPersistenceError("failed to obtain encryption key", err)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, errs.NewPersistenceError("invalid encryption key", err)
	}
	return aead, nil
}

// ValidateToken performs the sanity check applied to bot tokens.
func ValidateToken(token string) error {
	if strings.TrimSpace(token) == "" {
		return errs.NewValidationError("bot token is empty", nil)
	}
	if !strings.Contains(token, ":") {
		return errs.NewValidationError(fmt.Sprintf("bot token must have the form <id>:<secret>, got %d characters without ':'", len(token)), nil)
	}
	return nil
}
