// Package cryptox provides authenticated encryption for cloud-bound bytes,
// master-key persistence, password-based key derivation, and content hashing.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/pbkdf2"

	"github.com/wincloud/wincloud/internal/common"
	"github.com/wincloud/wincloud/internal/filex"
)

const (
	// KeySize is the AES-256 key length.
	KeySize = 32
	// NonceSize is the GCM nonce length; a fresh random nonce is drawn for
	// every Encrypt call and must never repeat under the same key.
	NonceSize = 12
	// TagSize is the GCM authentication tag length.
	TagSize = 16
	// SaltSize is the PBKDF2 salt length.
	SaltSize = 16

	// kdfIterations is fixed; changing it invalidates every key derived
	// from a passphrase.
	kdfIterations = 100_000

	keyFileName  = ".key"
	saltFileName = ".salt"
)

// KeyProvider supplies the symmetric master key. The engine takes a provider
// rather than key bytes so tests can inject ephemeral keys and production
// code can swap persistence strategies.
type KeyProvider interface {
	Key() ([]byte, error)
}

// StaticKey is a KeyProvider holding an in-memory key. Intended for tests
// and for passphrase-derived keys.
type StaticKey []byte

func (k StaticKey) Key() ([]byte, error) {
	if len(k) != KeySize {
		return nil, fmt.Errorf("static key must be %d bytes, got %d", KeySize, len(k))
	}
	return k, nil
}

// FileKeyStore is a KeyProvider backed by a key file in the per-user data
// directory. The key is generated on first use, persisted with mode 0600,
// and reused for all later operations.
type FileKeyStore struct {
	dir string

	mu     sync.Mutex
	cached []byte
}

func NewFileKeyStore(dir string) *FileKeyStore {
	return &FileKeyStore{dir: dir}
}

func (s *FileKeyStore) Key() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached != nil {
		return s.cached, nil
	}

	path := filepath.Join(s.dir, keyFileName)

	key, err := os.ReadFile(path)
	if err == nil {
		if len(key) != KeySize {
			return nil, fmt.Errorf("key file %s: expected %d bytes, got %d", path, KeySize, len(key))
		}
		s.cached = key
		return key, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read key file: %w", err)
	}

	key, err = common.GenerateRandBytes(KeySize)
	if err != nil {
		return nil, err
	}
	if err := filex.EnsureDir(s.dir); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, key, 0o600); err != nil {
		return nil, fmt.Errorf("write key file: %w", err)
	}

	s.cached = key
	return key, nil
}

// SaveSalt persists the salt of a passphrase-derived key next to the key
// file. The salt must survive alongside any ciphertext protected by such a
// key, or the key can never be re-derived.
func (s *FileKeyStore) SaveSalt(salt []byte) error {
	if err := filex.EnsureDir(s.dir); err != nil {
		return err
	}
	path := filepath.Join(s.dir, saltFileName)
	if err := os.WriteFile(path, salt, 0o600); err != nil {
		return fmt.Errorf("write salt file: %w", err)
	}
	return nil
}

// LoadSalt reads a previously persisted salt. Returns os.ErrNotExist if no
// salt was ever saved.
func (s *FileKeyStore) LoadSalt() ([]byte, error) {
	salt, err := os.ReadFile(filepath.Join(s.dir, saltFileName))
	if err != nil {
		return nil, fmt.Errorf("read salt file: %w", err)
	}
	return salt, nil
}

// Manager encrypts and decrypts blobs with AES-256-GCM using the key from
// its provider.
type Manager struct {
	provider KeyProvider
}

func NewManager(provider KeyProvider) *Manager {
	return &Manager{provider: provider}
}

// Encrypt seals data and returns nonce ‖ tag ‖ ciphertext. Go's GCM appends
// the tag to the ciphertext, so the sealed output is rearranged into the
// archive blob layout.
func (m *Manager) Encrypt(data []byte) ([]byte, error) {
	aead, err := m.aead()
	if err != nil {
		return nil, err
	}

	nonce, err := common.GenerateRandBytes(NonceSize)
	if err != nil {
		return nil, err
	}

	sealed := aead.Seal(nil, nonce, data, nil)
	ciphertext := sealed[:len(sealed)-TagSize]
	tag := sealed[len(sealed)-TagSize:]

	blob := make([]byte, 0, NonceSize+TagSize+len(ciphertext))
	blob = append(blob, nonce...)
	blob = append(blob, tag...)
	blob = append(blob, ciphertext...)
	return blob, nil
}

// Decrypt opens a blob produced by Encrypt. A tag mismatch means the blob
// was tampered with or corrupted and is returned as ErrCiphertextAuth.
func (m *Manager) Decrypt(blob []byte) ([]byte, error) {
	if len(blob) < NonceSize+TagSize {
		return nil, fmt.Errorf("%w: blob shorter than nonce and tag", common.ErrCiphertextAuth)
	}

	aead, err := m.aead()
	if err != nil {
		return nil, err
	}

	nonce := blob[:NonceSize]
	tag := blob[NonceSize : NonceSize+TagSize]
	ciphertext := blob[NonceSize+TagSize:]

	sealed := make([]byte, 0, len(ciphertext)+TagSize)
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrCiphertextAuth, err)
	}
	return plaintext, nil
}

func (m *Manager) aead() (cipher.AEAD, error) {
	key, err := m.provider.Key()
	if err != nil {
		return nil, fmt.Errorf("obtain key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// DeriveKey derives a 256-bit key from a passphrase with PBKDF2-SHA256 and
// a fresh random salt. The salt is returned so the caller can persist it.
func DeriveKey(passphrase []byte) (key, salt []byte, err error) {
	salt, err = common.GenerateRandBytes(SaltSize)
	if err != nil {
		return nil, nil, err
	}
	return DeriveKeyWithSalt(passphrase, salt), salt, nil
}

// DeriveKeyWithSalt recomputes a passphrase-derived key from a persisted
// salt.
func DeriveKeyWithSalt(passphrase, salt []byte) []byte {
	return pbkdf2.Key(passphrase, salt, kdfIterations, KeySize, sha256.New)
}

// HashData returns the hex-encoded SHA-256 digest of data. Used for file
// checksums; independent of the encryption key.
func HashData(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
