package utils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

var ErrSealedTooShort = errors.New("sealed value shorter than nonce")

func newGCM(secretKey string) (cipher.AEAD, error) {
	block, err := aes.NewCipher([]byte(secretKey))
	if err != nil {
		return nil, fmt.Errorf("cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// SealToken encrypts a channel access token with AES-GCM. The nonce is
// prepended to the ciphertext and the result is base64 encoded.
// Whatever writes channels.access_token must store this form: the account
// connect flow in production, seed scripts and test fixtures otherwise.
// OpenToken reverses it when a channel is published to.
func SealToken(token, secretKey string) (string, error) {
	gcm, err := newGCM(secretKey)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}
	return base64.StdEncoding.EncodeToString(gcm.Seal(nonce, nonce, []byte(token), nil)), nil
}

func OpenToken(sealed, secretKey string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("decoding sealed token: %w", err)
	}

	gcm, err := newGCM(secretKey)
	if err != nil {
		return "", err
	}
	if len(data) < gcm.NonceSize() {
		return "", ErrSealedTooShort
	}

	nonce, ciphertext := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("opening sealed token: %w", err)
	}
	return string(plain), nil
}
