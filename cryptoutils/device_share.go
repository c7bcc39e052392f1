package cryptoutils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
)

var ErrDecryptionFailed = errors.New("failed to decrypt share: wrong password or corrupted data")

// EncryptedShare is the stored form of a password protected share.
type EncryptedShare struct {
	Cipher string `json:"cipher"`
	Nonce  string `json:"nonce"`
	Salt   string `json:"salt"`
}

// DerivePasswordKey stretches the password into an AES-256 key.
// Parameters: time=1, memory=64*1024, threads=4, keyLen=32
func DerivePasswordKey(password string, salt []byte) []byte {
	return argon2.IDKey([]byte(password), salt, 1, 64*1024, 4, 32)
}

// EncryptShare encrypts plaintext with a key derived from password using AES-GCM.
// A fresh salt and nonce are generated for every call.
func EncryptShare(plaintext []byte, password string) ([]byte, error) {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	aesGCM, err := newGCM(DerivePasswordKey(password, salt))
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aesGCM.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := aesGCM.Seal(nil, nonce, plaintext, nil)
	return json.Marshal(EncryptedShare{
		Cipher: hex.EncodeToString(ciphertext),
		Nonce:  hex.EncodeToString(nonce),
		Salt:   hex.EncodeToString(salt),
	})
}

// DecryptShare reverses EncryptShare.
func DecryptShare(data []byte, password string) ([]byte, error) {
	var enc EncryptedShare
	if err := json.Unmarshal(data, &enc); err != nil {
		return nil, fmt.Errorf("invalid encrypted share: %w", err)
	}

	ciphertext, err := hex.DecodeString(enc.Cipher)
	if err != nil {
		return nil, fmt.Errorf("invalid cipher encoding: %w", err)
	}
	nonce, err := hex.DecodeString(enc.Nonce)
	if err != nil {
		return nil, fmt.Errorf("invalid nonce encoding: %w", err)
	}
	salt, err := hex.DecodeString(enc.Salt)
	if err != nil {
		return nil, fmt.Errorf("invalid salt encoding: %w", err)
	}

	aesGCM, err := newGCM(DerivePasswordKey(password, salt))
	if err != nil {
		return nil, err
	}
	if len(nonce) != aesGCM.NonceSize() {
		return nil, errors.New("invalid nonce size")
	}

	plaintext, err := aesGCM.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return aesGCM, nil
}
