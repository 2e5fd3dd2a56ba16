package keystore

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/scrypt"

	"hypertrader/internal/domain"
	"hypertrader/internal/ports"
)

// scrypt parameters for password-based key derivation.
const (
	scryptN      = 1 << 15
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 32

	walletExt = ".wallet"
)

// Store implements the ports.KeyStore interface with one encrypted JSON
// file per wallet. Credentials are sealed with AES-256-GCM under an
// scrypt-derived key; nothing in the file is usable without the password.
type Store struct {
	dir    string
	logger ports.Logger
}

// Config holds configuration for the file keystore.
type Config struct {
	Dir    string
	Logger ports.Logger
}

// New creates a keystore rooted at cfg.Dir, creating the directory if needed.
func New(cfg Config) (*Store, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for keystore")
	}
	dir := cfg.Dir
	if dir == "" {
		dir = "./data/wallets"
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create keystore directory %q: %w", dir, err)
	}
	return &Store{dir: dir, logger: cfg.Logger}, nil
}

// walletFile is the on-disk layout of an encrypted credential.
type walletFile struct {
	Version    int    `json:"version"`
	KDF        string `json:"kdf"`
	N          int    `json:"n"`
	R          int    `json:"r"`
	P          int    `json:"p"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

type credentialPayload struct {
	APIKey    string `json:"api_key"`
	APISecret string `json:"api_secret"`
}

func (s *Store) path(walletID string) string {
	return filepath.Join(s.dir, walletID+walletExt)
}

// Save encrypts creds under password and writes the wallet file.
// An existing wallet with the same ID is overwritten.
func (s *Store) Save(ctx context.Context, walletID, password string, creds *domain.Credentials) error {
	if walletID == "" || strings.ContainsAny(walletID, `/\`) {
		return fmt.Errorf("%w: wallet ID %q is not a valid name", ports.ErrInvalidRequest, walletID)
	}
	if password == "" {
		return fmt.Errorf("%w: password must not be empty", ports.ErrInvalidRequest)
	}

	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("failed to generate salt: %w", err)
	}
	key, err := scrypt.Key([]byte(password), salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return fmt.Errorf("key derivation failed: %w", err)
	}

	gcm, err := newGCM(key)
	if err != nil {
		return err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}

	plaintext, err := json.Marshal(credentialPayload{APIKey: creds.APIKey, APISecret: creds.APISecret})
	if err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}
	ciphertext := gcm.Seal(nil, nonce, plaintext, []byte(walletID))

	wf := walletFile{
		Version:    1,
		KDF:        "scrypt",
		N:          scryptN,
		R:          scryptR,
		P:          scryptP,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
	}
	data, err := json.MarshalIndent(wf, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode wallet file: %w", err)
	}
	if err := os.WriteFile(s.path(walletID), data, 0o600); err != nil {
		return fmt.Errorf("failed to write wallet file for %q: %w", walletID, err)
	}
	s.logger.Info(ctx, "Wallet credential stored", map[string]interface{}{"walletID": walletID})
	return nil
}

// Decrypt unlocks the credentials for walletID using password.
// A wrong password and corrupted key material are indistinguishable by
// design (GCM authentication failure) and both map to ErrWalletDecryption.
func (s *Store) Decrypt(ctx context.Context, walletID, password string) (*domain.Credentials, error) {
	data, err := os.ReadFile(s.path(walletID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: wallet %q", ports.ErrWalletNotFound, walletID)
		}
		return nil, fmt.Errorf("failed to read wallet file for %q: %w", walletID, err)
	}

	var wf walletFile
	if err := json.Unmarshal(data, &wf); err != nil {
		return nil, fmt.Errorf("%w: malformed wallet file for %q: %v", ports.ErrWalletDecryption, walletID, err)
	}
	if wf.KDF != "scrypt" {
		return nil, fmt.Errorf("%w: unsupported KDF %q", ports.ErrWalletDecryption, wf.KDF)
	}

	salt, err := base64.StdEncoding.DecodeString(wf.Salt)
	if err != nil {
		return nil, fmt.Errorf("%w: bad salt encoding: %v", ports.ErrWalletDecryption, err)
	}
	nonce, err := base64.StdEncoding.DecodeString(wf.Nonce)
	if err != nil {
		return nil, fmt.Errorf("%w: bad nonce encoding: %v", ports.ErrWalletDecryption, err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(wf.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: bad ciphertext encoding: %v", ports.ErrWalletDecryption, err)
	}

	key, err := scrypt.Key([]byte(password), salt, wf.N, wf.R, wf.P, scryptKeyLen)
	if err != nil {
		return nil, fmt.Errorf("%w: key derivation failed: %v", ports.ErrWalletDecryption, err)
	}
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, []byte(walletID))
	if err != nil {
		return nil, fmt.Errorf("%w: wallet %q", ports.ErrWalletDecryption, walletID)
	}

	var payload credentialPayload
	if err := json.Unmarshal(plaintext, &payload); err != nil {
		return nil, fmt.Errorf("%w: corrupted credential payload for %q", ports.ErrWalletDecryption, walletID)
	}
	return &domain.Credentials{APIKey: payload.APIKey, APISecret: payload.APISecret}, nil
}

// List returns the IDs of all wallets present in the keystore.
func (s *Store) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read keystore directory: %w", err)
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), walletExt) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(e.Name(), walletExt))
	}
	return ids, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize GCM: %w", err)
	}
	return gcm, nil
}
