// Package crypto provides encrypted at-rest storage for exchange API
// credentials.
package crypto

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"golang.org/x/crypto/pbkdf2"

	"github.com/quantpulse/makerbot/internal/domain"
)

const (
	// pbkdf2Iterations is the OWASP-recommended minimum for HMAC-SHA256.
	pbkdf2Iterations = 480_000
	// saltLen is the random salt length in bytes.
	saltLen = 16
	// aesKeyLen is the derived AES-256 key length.
	aesKeyLen = 32
	// currentVersion is the encrypted-vault JSON schema version.
	currentVersion = 1
)

// encryptedVaultJSON is the on-disk format for an encrypted credentials file.
type encryptedVaultJSON struct {
	Version    int    `json:"version"`
	Salt       string `json:"salt"`       // base64 standard encoding
	Nonce      string `json:"nonce"`      // base64 standard encoding
	Ciphertext string `json:"ciphertext"` // base64 standard encoding
}

// vaultCredentials mirrors domain.Credentials inside the encrypted payload.
type vaultCredentials struct {
	Exchange  string `json:"exchange"`
	APIKey    string `json:"api_key"`
	APISecret string `json:"api_secret"`
	Testnet   bool   `json:"testnet"`
}

// EncryptVault encrypts a uid-to-credentials map with a password using
// PBKDF2-HMAC-SHA256 key derivation and AES-256-GCM authenticated encryption.
// It returns the JSON blob suitable for writing to disk.
func EncryptVault(creds map[string]domain.Credentials, password string) ([]byte, error) {
	if password == "" {
		return nil, errors.New("crypto: password must not be empty")
	}

	payload := make(map[string]vaultCredentials, len(creds))
	for uid, c := range creds {
		payload[uid] = vaultCredentials{
			Exchange:  c.Exchange,
			APIKey:    c.APIKey,
			APISecret: c.APISecret,
			Testnet:   c.Testnet,
		}
	}
	plaintext, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("crypto: marshaling credentials: %w", err)
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("crypto: generating salt: %w", err)
	}

	derivedKey := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, aesKeyLen, sha256.New)

	block, err := aes.NewCipher(derivedKey)
	if err != nil {
		return nil, fmt.Errorf("crypto: creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: creating GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: generating nonce: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)

	out := encryptedVaultJSON{
		Version:    currentVersion,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
	}

	return json.MarshalIndent(out, "", "  ")
}

// DecryptVault decrypts a JSON blob produced by EncryptVault, returning the
// uid-to-credentials map.
func DecryptVault(encryptedJSON []byte, password string) (map[string]domain.Credentials, error) {
	if password == "" {
		return nil, errors.New("crypto: password must not be empty")
	}

	var stored encryptedVaultJSON
	if err := json.Unmarshal(encryptedJSON, &stored); err != nil {
		return nil, fmt.Errorf("crypto: parsing encrypted vault JSON: %w", err)
	}
	if stored.Version != currentVersion {
		return nil, fmt.Errorf("crypto: unsupported version %d", stored.Version)
	}

	salt, err := base64.StdEncoding.DecodeString(stored.Salt)
	if err != nil {
		return nil, fmt.Errorf("crypto: decoding salt: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(stored.Nonce)
	if err != nil {
		return nil, fmt.Errorf("crypto: decoding nonce: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(stored.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("crypto: decoding ciphertext: %w", err)
	}

	derivedKey := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, aesKeyLen, sha256.New)

	block, err := aes.NewCipher(derivedKey)
	if err != nil {
		return nil, fmt.Errorf("crypto: creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: creating GCM: %w", err)
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("crypto: decryption failed (wrong password?): %w", err)
	}

	var payload map[string]vaultCredentials
	if err := json.Unmarshal(plaintext, &payload); err != nil {
		return nil, fmt.Errorf("crypto: parsing decrypted payload: %w", err)
	}

	creds := make(map[string]domain.Credentials, len(payload))
	for uid, c := range payload {
		creds[uid] = domain.Credentials{
			Exchange:  c.Exchange,
			APIKey:    c.APIKey,
			APISecret: c.APISecret,
			Testnet:   c.Testnet,
		}
	}
	return creds, nil
}

// FileVault serves exchange credentials from an encrypted file decrypted once
// at startup. It implements domain.CredentialStore.
type FileVault struct {
	creds map[string]domain.Credentials
}

// OpenFileVault reads and decrypts the vault file at path.
func OpenFileVault(path string, password string) (*FileVault, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("crypto: reading vault file: %w", err)
	}
	creds, err := DecryptVault(data, password)
	if err != nil {
		return nil, err
	}
	return &FileVault{creds: creds}, nil
}

// NewStaticVault builds a vault from an already-resolved credentials map.
// Useful for tests and single-user deployments configured via environment.
func NewStaticVault(creds map[string]domain.Credentials) *FileVault {
	cp := make(map[string]domain.Credentials, len(creds))
	for uid, c := range creds {
		cp[uid] = c
	}
	return &FileVault{creds: cp}
}

// GetCredentials returns the credentials for a user. Returns
// domain.ErrNotFound when the vault has no entry for the uid.
func (v *FileVault) GetCredentials(_ context.Context, uid string) (domain.Credentials, error) {
	c, ok := v.creds[uid]
	if !ok {
		return domain.Credentials{}, fmt.Errorf("crypto: credentials for %s: %w", uid, domain.ErrNotFound)
	}
	return c, nil
}

// Compile-time interface check.
var _ domain.CredentialStore = (*FileVault)(nil)
