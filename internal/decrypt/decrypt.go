// Package decrypt unwraps per-item stream keys and decrypts encrypted streams.
package decrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
)

// masterKey is the application-embedded key that wraps every per-item token.
const masterKey = "UIlTTEMmmLfGowo/UC60x2H45W6MdGgTRfo/umg4754="

const (
	ivSize    = aes.BlockSize
	keySize   = 16
	nonceSize = 8
)

var (
	// ErrCorruptToken is returned when a key token cannot be unwrapped.
	ErrCorruptToken = errors.New("corrupt key token")

	// ErrInvalidKey is returned when a content key or nonce has the wrong size.
	ErrInvalidKey = errors.New("invalid content key")
)

// UnwrapToken decodes a base64 key token and decrypts it under the master
// key. The token is a 16-byte IV followed by AES-CBC ciphertext; the first
// 24 bytes of plaintext are the 16-byte content key and the 8-byte nonce.
func UnwrapToken(token string) (key, nonce []byte, err error) {
	master, err := base64.StdEncoding.DecodeString(masterKey)
	if err != nil {
		return nil, nil, fmt.Errorf("decode master key: %w", err)
	}
	return unwrap(master, token)
}

func unwrap(master []byte, token string) (key, nonce []byte, err error) {
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: base64: %v", ErrCorruptToken, err)
	}

	if len(raw) < ivSize+keySize+nonceSize {
		return nil, nil, fmt.Errorf("%w: %d bytes is too short", ErrCorruptToken, len(raw))
	}
	iv, ciphertext := raw[:ivSize], raw[ivSize:]
	if len(ciphertext)%aes.BlockSize != 0 {
		return nil, nil, fmt.Errorf("%w: ciphertext is not block aligned", ErrCorruptToken)
	}

	block, err := aes.NewCipher(master)
	if err != nil {
		return nil, nil, fmt.Errorf("master cipher: %w", err)
	}

	plain := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, ciphertext)

	key = plain[:keySize]
	nonce = plain[keySize : keySize+nonceSize]
	return key, nonce, nil
}

// DecryptFile decrypts src into a new file at dst using AES-CTR with a
// counter block of nonce followed by a 64-bit counter starting at zero.
// src is never modified; the caller owns replacing it.
func DecryptFile(src, dst string, key, nonce []byte) error {
	if len(key) != keySize || len(nonce) != nonceSize {
		return fmt.Errorf("%w: key %d bytes, nonce %d bytes", ErrInvalidKey, len(key), len(nonce))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return fmt.Errorf("content cipher: %w", err)
	}
	iv := make([]byte, aes.BlockSize)
	copy(iv, nonce)

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open encrypted stream: %w", err)
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create decrypted stream: %w", err)
	}

	reader := &cipher.StreamReader{S: cipher.NewCTR(block, iv), R: in}
	if _, err := io.Copy(out, reader); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return fmt.Errorf("decrypt stream: %w", err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dst)
		return fmt.Errorf("close decrypted stream: %w", err)
	}
	return nil
}

// Stream decrypts whole files given the item's key token.
type Stream struct{}

// Decrypt unwraps token and decrypts src into dst.
func (Stream) Decrypt(token, src, dst string) error {
	key, nonce, err := UnwrapToken(token)
	if err != nil {
		return err
	}
	return DecryptFile(src, dst, key, nonce)
}
