package integrity

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrCorruptRecord reports a malformed or truncated encrypted blob. It is a
// normal verification finding, not an infrastructure failure.
var ErrCorruptRecord = errors.New("corrupted record")

// SensitiveData is the at-rest-encrypted part of an integrity record: the
// true voter and candidate ids plus the submitting client details.
type SensitiveData struct {
	UserID      uint   `json:"user_id"`
	CandidateID uint   `json:"candidate_id"`
	IPAddress   string `json:"ip_address"`
	UserAgent   string `json:"user_agent"`
}

// Encryptor seals sensitive ballot fields with AES-256-CBC. The blob layout
// is base64(IV || ciphertext) with PKCS#7 padding.
type Encryptor struct {
	keys *Keyring
}

func NewEncryptor(keys *Keyring) *Encryptor {
	return &Encryptor{keys: keys}
}

func (e *Encryptor) Encrypt(data SensitiveData, version int) (string, error) {
	key, err := e.keys.EncryptionKey(version)
	if err != nil {
		return "", err
	}
	plain, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("integrity: serialize sensitive data: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return "", err
	}

	padded := pkcs7Pad(plain, aes.BlockSize)
	out := make([]byte, aes.BlockSize+len(padded))
	copy(out, iv)
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out[aes.BlockSize:], padded)

	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt opens a blob produced by Encrypt. Every malformed-input path
// reports ErrCorruptRecord.
func (e *Encryptor) Decrypt(blob string, version int) (SensitiveData, error) {
	var data SensitiveData

	key, err := e.keys.EncryptionKey(version)
	if err != nil {
		return data, err
	}

	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return data, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	if len(raw) < 2*aes.BlockSize || (len(raw)-aes.BlockSize)%aes.BlockSize != 0 {
		return data, fmt.Errorf("%w: truncated ciphertext", ErrCorruptRecord)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return data, err
	}
	iv, ct := raw[:aes.BlockSize], raw[aes.BlockSize:]
	plain := make([]byte, len(ct))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, ct)

	plain, err = pkcs7Unpad(plain, aes.BlockSize)
	if err != nil {
		return data, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	if err := json.Unmarshal(plain, &data); err != nil {
		return data, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	return data, nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, errors.New("invalid padded length")
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, errors.New("invalid padding")
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, errors.New("invalid padding")
		}
	}
	return data[:len(data)-n], nil
}
