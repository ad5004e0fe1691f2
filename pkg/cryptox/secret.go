package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"golang.org/x/crypto/argon2"
)

// MasterKeyEnv names the environment variable holding the master key
// material when no key file is configured.
const MasterKeyEnv = "AUTHSESSION_MASTER_KEY"

// Key stretching parameters. The salt is fixed so the same material always
// yields the same key, the material itself is the secret.
const (
	kdfTime    = 3
	kdfMemory  = 64 * 1024
	kdfThreads = 2
	kdfKeyLen  = 32
)

var kdfSalt = []byte("authsession/credstore/v1")

// ErrCiphertextTooShort is returned when sealed data cannot hold a nonce.
var ErrCiphertextTooShort = errors.New("cryptox: ciphertext too short")

var (
	masterKeyMu   sync.Mutex
	masterKey     []byte
	masterKeyPath string
	ephemeralKey  bool
)

// SetMasterKeyPath configures the file the master key material is read from.
// Call it before the first EncryptSecret/DecryptSecret.
func SetMasterKeyPath(path string) {
	masterKeyMu.Lock()
	defer masterKeyMu.Unlock()
	masterKeyPath = path
}

// loadMasterKey reads key material from, in order:
//  1. the file set with SetMasterKeyPath
//  2. the AUTHSESSION_MASTER_KEY environment variable
//  3. random bytes, for development only: sealed secrets do not survive a
//     restart
//
// and stretches it into an AES-256 key with Argon2id.
func loadMasterKey() ([]byte, bool, error) {
	var (
		material  []byte
		ephemeral bool
	)

	switch env := os.Getenv(MasterKeyEnv); {
	case masterKeyPath != "":
		data, err := os.ReadFile(masterKeyPath)
		if err != nil {
			return nil, false, fmt.Errorf("read master key file: %w", err)
		}
		material = data
	case env != "":
		material = []byte(env)
	default:
		material = make([]byte, kdfKeyLen)
		if _, err := rand.Read(material); err != nil {
			return nil, false, fmt.Errorf("generate ephemeral master key: %w", err)
		}
		ephemeral = true
	}

	if len(material) == 0 {
		return nil, false, errors.New("cryptox: empty master key material")
	}

	key := argon2.IDKey(material, kdfSalt, kdfTime, kdfMemory, kdfThreads, kdfKeyLen)
	return key, ephemeral, nil
}

func getMasterKey() ([]byte, error) {
	masterKeyMu.Lock()
	defer masterKeyMu.Unlock()

	if masterKey != nil {
		return masterKey, nil
	}

	key, ephemeral, err := loadMasterKey()
	if err != nil {
		return nil, err
	}
	masterKey, ephemeralKey = key, ephemeral
	return masterKey, nil
}

// MasterKeyIsEphemeral reports whether the loaded master key was generated
// at random because no key material was configured.
func MasterKeyIsEphemeral() (bool, error) {
	if _, err := getMasterKey(); err != nil {
		return false, err
	}

	masterKeyMu.Lock()
	defer masterKeyMu.Unlock()
	return ephemeralKey, nil
}

func newGCM() (cipher.AEAD, error) {
	key, err := getMasterKey()
	if err != nil {
		return nil, fmt.Errorf("master key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// EncryptSecret seals plaintext with AES-256-GCM under the master key.
// additionalData is authenticated but not encrypted; the same value must be
// passed to DecryptSecret. Output layout: nonce || ciphertext || tag.
func EncryptSecret(plaintext, additionalData []byte) ([]byte, error) {
	gcm, err := newGCM()
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	return gcm.Seal(nonce, nonce, plaintext, additionalData), nil
}

// DecryptSecret opens data produced by EncryptSecret.
func DecryptSecret(sealed, additionalData []byte) ([]byte, error) {
	gcm, err := newGCM()
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(sealed) < nonceSize {
		return nil, ErrCiphertextTooShort
	}

	nonce, ciphertext := sealed[:nonceSize], sealed[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, additionalData)
	if err != nil {
		return nil, fmt.Errorf("decrypt secret: %w", err)
	}
	return plaintext, nil
}

// ResetMasterKeyForTesting forgets the loaded master key. Tests only.
func ResetMasterKeyForTesting() {
	masterKeyMu.Lock()
	defer masterKeyMu.Unlock()
	masterKey = nil
	ephemeralKey = false
}
