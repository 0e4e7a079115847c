package credentials

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/zalando/go-keyring"
	"golang.org/x/crypto/chacha20poly1305"
)

// KeySource supplies the symmetric key protecting the credential blob.
// Implementations generate and persist a key on first use.
type KeySource interface {
	Key(ctx context.Context) ([]byte, error)
}

// KeyringKeySource keeps the key in the OS keyring.
type KeyringKeySource struct {
	Service string
	Account string
}

func (k KeyringKeySource) Key(context.Context) ([]byte, error) {
	encoded, err := keyring.Get(k.Service, k.Account)
	if errors.Is(err, keyring.ErrNotFound) {
		key, genErr := newKey()
		if genErr != nil {
			return nil, genErr
		}
		if err := keyring.Set(k.Service, k.Account, base64.StdEncoding.EncodeToString(key)); err != nil {
			return nil, fmt.Errorf("store key in keyring: %w", err)
		}
		return key, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read key from keyring: %w", err)
	}
	return decodeKey(encoded)
}

// FileKeySource keeps the key base64-encoded in a file readable only by the owner.
type FileKeySource struct {
	Path string
}

func (f FileKeySource) Key(context.Context) ([]byte, error) {
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		key, genErr := newKey()
		if genErr != nil {
			return nil, genErr
		}
		if err := os.MkdirAll(filepath.Dir(f.Path), 0o700); err != nil {
			return nil, fmt.Errorf("create key directory: %w", err)
		}
		encoded := base64.StdEncoding.EncodeToString(key) + "\n"
		if err := os.WriteFile(f.Path, []byte(encoded), 0o600); err != nil {
			return nil, fmt.Errorf("write key file: %w", err)
		}
		return key, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	return decodeKey(string(data))
}

func newKey() ([]byte, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return key, nil
}

func decodeKey(encoded string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, fmt.Errorf("decode key: %w", err)
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("key has %d bytes, want %d", len(key), chacha20poly1305.KeySize)
	}
	return key, nil
}
