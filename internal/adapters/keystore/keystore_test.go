package keystore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hypertrader/internal/domain"
	"hypertrader/internal/ports"
)

type mockLogger struct{}

func (l *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (l *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (l *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (l *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(Config{Dir: t.TempDir(), Logger: &mockLogger{}})
	require.NoError(t, err)
	return store
}

func TestStore_SaveAndDecrypt(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	creds := &domain.Credentials{APIKey: "key-123", APISecret: "secret-456"}
	require.NoError(t, store.Save(ctx, "main", "hunter2", creds))

	got, err := store.Decrypt(ctx, "main", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "key-123", got.APIKey)
	assert.Equal(t, "secret-456", got.APISecret)
}

func TestStore_DecryptWrongPassword(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "main", "correct", &domain.Credentials{APIKey: "k", APISecret: "s"}))

	got, err := store.Decrypt(ctx, "main", "wrong")
	require.Error(t, err)
	assert.Nil(t, got)
	assert.True(t, errors.Is(err, ports.ErrWalletDecryption), "expected ErrWalletDecryption, got %v", err)
}

func TestStore_DecryptUnknownWallet(t *testing.T) {
	store := newTestStore(t)

	got, err := store.Decrypt(context.Background(), "nope", "pw")
	require.Error(t, err)
	assert.Nil(t, got)
	assert.True(t, errors.Is(err, ports.ErrWalletNotFound), "expected ErrWalletNotFound, got %v", err)
}

func TestStore_WalletFileContainsNoPlaintext(t *testing.T) {
	dir := t.TempDir()
	store, err := New(Config{Dir: dir, Logger: &mockLogger{}})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "main", "pw", &domain.Credentials{APIKey: "leak-me-key", APISecret: "leak-me-secret"}))

	data, err := os.ReadFile(filepath.Join(dir, "main.wallet"))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "leak-me-key")
	assert.NotContains(t, string(data), "leak-me-secret")
}

func TestStore_SaveValidation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	creds := &domain.Credentials{APIKey: "k", APISecret: "s"}

	for _, id := range []string{"", "a/b", `a\b`} {
		err := store.Save(ctx, id, "pw", creds)
		require.Error(t, err, "wallet ID %q", id)
		assert.True(t, errors.Is(err, ports.ErrInvalidRequest))
	}

	err := store.Save(ctx, "main", "", creds)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ports.ErrInvalidRequest))
}

func TestStore_SaveOverwritesAndList(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "main", "pw1", &domain.Credentials{APIKey: "old", APISecret: "old"}))
	require.NoError(t, store.Save(ctx, "main", "pw2", &domain.Credentials{APIKey: "new", APISecret: "new"}))
	require.NoError(t, store.Save(ctx, "backup", "pw3", &domain.Credentials{APIKey: "b", APISecret: "b"}))

	// Old password no longer unlocks after overwrite.
	_, err := store.Decrypt(ctx, "main", "pw1")
	assert.True(t, errors.Is(err, ports.ErrWalletDecryption))

	got, err := store.Decrypt(ctx, "main", "pw2")
	require.NoError(t, err)
	assert.Equal(t, "new", got.APIKey)

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"main", "backup"}, ids)
}
