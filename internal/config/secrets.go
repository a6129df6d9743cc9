package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// EncryptedPrefix marks a configuration value as encrypted
const EncryptedPrefix = "enc:"

var encryptionSalt = []byte("scangate-config-salt")

// ErrNoEncryptionKey is returned when an encrypted value is found but no key is configured
var ErrNoEncryptionKey = errors.New("encrypted value found but no encryption key configured")

// Cipher encrypts and decrypts configuration secrets with AES-GCM
type Cipher struct {
	key []byte
}

// NewCipher derives a 32-byte key from passphrase using PBKDF2
func NewCipher(passphrase string) (*Cipher, error) {
	if passphrase == "" {
		return nil, ErrNoEncryptionKey
	}
	return &Cipher{
		key: pbkdf2.Key([]byte(passphrase), encryptionSalt, 4096, 32, sha256.New),
	}, nil
}

// IsEncrypted reports whether value carries the encrypted prefix
func IsEncrypted(value string) bool {
	return strings.HasPrefix(value, EncryptedPrefix)
}

// Encrypt encrypts a string value
func (c *Cipher) Encrypt(value string) (string, error) {
	if value == "" || IsEncrypted(value) {
		return value, nil
	}

	gcm, err := c.gcm()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	encrypted := gcm.Seal(nonce, nonce, []byte(value), nil)
	return EncryptedPrefix + base64.StdEncoding.EncodeToString(encrypted), nil
}

// Decrypt decrypts a string value; plain values are returned unchanged
func (c *Cipher) Decrypt(value string) (string, error) {
	if !IsEncrypted(value) {
		return value, nil
	}

	ciphertext, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, EncryptedPrefix))
	if err != nil {
		return "", err
	}

	gcm, err := c.gcm()
	if err != nil {
		return "", err
	}

	if len(ciphertext) < gcm.NonceSize() {
		return "", errors.New("ciphertext too short")
	}

	nonce, ciphertext := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

func (c *Cipher) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// EncryptValue encrypts value with a key derived from passphrase
func EncryptValue(passphrase, value string) (string, error) {
	c, err := NewCipher(passphrase)
	if err != nil {
		return "", err
	}
	return c.Encrypt(value)
}

// decryptSecrets replaces every encrypted secret with its plaintext
func (c *Config) decryptSecrets() error {
	secrets := map[string]*string{
		"scanner.password":             &c.Scanner.Password,
		"registry.password":            &c.Registry.Password,
		"standalone.registry.password": &c.Standalone.Registry.Password,
	}

	var cph *Cipher
	for field, value := range secrets {
		if !IsEncrypted(*value) {
			continue
		}
		if cph == nil {
			var err error
			if cph, err = NewCipher(c.Security.EncryptionKey); err != nil {
				return NewConfigurationError(field, err.Error())
			}
		}
		plain, err := cph.Decrypt(*value)
		if err != nil {
			return NewConfigurationError(field, fmt.Sprintf("failed to decrypt value: %v", err))
		}
		*value = plain
	}
	return nil
}

// ReadLicense reads the standalone scanner license, trimmed of surrounding whitespace
func (c *Config) ReadLicense() (string, error) {
	data, err := os.ReadFile(c.Standalone.LicensePath)
	if err != nil {
		return "", NewConfigurationError("standalone.license_path",
			fmt.Sprintf("License file not found at %q", c.Standalone.LicensePath))
	}
	return strings.TrimSpace(string(data)), nil
}
