// Package settings is a key-value store for runtime configuration,
// primarily provider credentials. Sensitive values are encrypted at rest
// with AES-256-GCM.
package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/gleaner/internal/crypto"
)

// ErrNotFound is returned when a setting key does not exist.
var ErrNotFound = errors.New("setting not found")

// Store reads and writes settings backed by the settings table.
type Store struct {
	db  *sql.DB
	enc *crypto.Encryptor
}

// NewStore creates a settings store. The encryptor guards sensitive values.
func NewStore(db *sql.DB, enc *crypto.Encryptor) *Store {
	return &Store{db: db, enc: enc}
}

// Set writes a plaintext setting.
func (s *Store) Set(ctx context.Context, key, value string) error {
	return s.write(ctx, key, value, false)
}

// SetSecret writes a setting encrypted at rest.
func (s *Store) SetSecret(ctx context.Context, key, value string) error {
	encrypted, err := s.enc.Encrypt(value)
	if err != nil {
		return fmt.Errorf("failed to encrypt setting %q: %w", key, err)
	}
	return s.write(ctx, key, encrypted, true)
}

func (s *Store) write(ctx context.Context, key, value string, encrypted bool) error {
	flag := 0
	if encrypted {
		flag = 1
	}
	query := `
		INSERT INTO settings (key, value, encrypted, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value,
			encrypted = excluded.encrypted, updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query, key, value, flag, time.Now().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to write setting %q: %w", key, err)
	}
	return nil
}

// Get reads a setting, transparently decrypting encrypted values.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	var value string
	var encrypted int
	err := s.db.QueryRowContext(ctx,
		"SELECT value, encrypted FROM settings WHERE key = ?", key).Scan(&value, &encrypted)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read setting %q: %w", key, err)
	}

	if encrypted == 1 {
		plaintext, err := s.enc.Decrypt(value)
		if err != nil {
			return "", fmt.Errorf("failed to decrypt setting %q: %w", key, err)
		}
		return plaintext, nil
	}
	return value, nil
}

// Provider credential keys follow "provider.<name>.<field>".
func providerKey(provider, field string) string {
	return fmt.Sprintf("provider.%s.%s", provider, field)
}

// ProviderCredential holds stored configuration for one model provider.
type ProviderCredential struct {
	Name    string `yaml:"name"`
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// SetProvider stores a provider credential, encrypting the API key.
func (s *Store) SetProvider(ctx context.Context, cred ProviderCredential) error {
	if cred.Name == "" {
		return errors.New("provider name is required")
	}
	if err := s.SetSecret(ctx, providerKey(cred.Name, "api_key"), cred.APIKey); err != nil {
		return err
	}
	if err := s.Set(ctx, providerKey(cred.Name, "base_url"), cred.BaseURL); err != nil {
		return err
	}
	return s.Set(ctx, providerKey(cred.Name, "model"), cred.Model)
}

// Provider reads a stored provider credential. Missing fields come back
// empty; a provider with no stored API key yields ErrNotFound.
func (s *Store) Provider(ctx context.Context, name string) (*ProviderCredential, error) {
	apiKey, err := s.Get(ctx, providerKey(name, "api_key"))
	if err != nil {
		return nil, err
	}

	cred := &ProviderCredential{Name: name, APIKey: apiKey}
	if v, err := s.Get(ctx, providerKey(name, "base_url")); err == nil {
		cred.BaseURL = v
	}
	if v, err := s.Get(ctx, providerKey(name, "model")); err == nil {
		cred.Model = v
	}
	return cred, nil
}

// seedFile is the YAML shape consumed by SeedFromFile.
type seedFile struct {
	Providers []ProviderCredential `yaml:"providers"`
}

// SeedFromFile loads provider credentials from a YAML file into the store.
// Providers already present keep their stored values.
func (s *Store) SeedFromFile(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read seed file: %w", err)
	}

	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("failed to parse seed file: %w", err)
	}

	for _, cred := range seed.Providers {
		if _, err := s.Provider(ctx, cred.Name); err == nil {
			continue
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
		if err := s.SetProvider(ctx, cred); err != nil {
			return err
		}
	}
	return nil
}
