package integrity

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptor_RoundTrip(t *testing.T) {
	e := NewEncryptor(testKeyring(t))
	data := SensitiveData{UserID: 12, CandidateID: 7, IPAddress: "192.168.1.20", UserAgent: "Mozilla/5.0"}

	blob, err := e.Encrypt(data, 2)
	require.NoError(t, err)

	got, err := e.Decrypt(blob, 2)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestEncryptor_FreshIVPerCall(t *testing.T) {
	e := NewEncryptor(testKeyring(t))
	data := SensitiveData{UserID: 12, CandidateID: 7}

	blob1, err := e.Encrypt(data, 2)
	require.NoError(t, err)
	blob2, err := e.Encrypt(data, 2)
	require.NoError(t, err)

	assert.NotEqual(t, blob1, blob2)
}

func TestEncryptor_DecryptRejectsBadBase64(t *testing.T) {
	e := NewEncryptor(testKeyring(t))

	_, err := e.Decrypt("not-base64!!!", 2)
	assert.ErrorIs(t, err, ErrCorruptRecord)
}

func TestEncryptor_DecryptRejectsTruncatedBlob(t *testing.T) {
	e := NewEncryptor(testKeyring(t))

	blob, err := e.Encrypt(SensitiveData{UserID: 1, CandidateID: 2}, 2)
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(blob)
	require.NoError(t, err)

	// IV only, no ciphertext blocks
	_, err = e.Decrypt(base64.StdEncoding.EncodeToString(raw[:16]), 2)
	assert.ErrorIs(t, err, ErrCorruptRecord)

	// partial block
	_, err = e.Decrypt(base64.StdEncoding.EncodeToString(raw[:len(raw)-5]), 2)
	assert.ErrorIs(t, err, ErrCorruptRecord)
}

func TestEncryptor_DecryptWithWrongVersionReportsCorruption(t *testing.T) {
	e := NewEncryptor(testKeyring(t))

	blob, err := e.Encrypt(SensitiveData{UserID: 1, CandidateID: 2, IPAddress: "10.0.0.1"}, 2)
	require.NoError(t, err)

	_, err = e.Decrypt(blob, 1)
	assert.ErrorIs(t, err, ErrCorruptRecord)
}

func TestEncryptor_UnknownVersion(t *testing.T) {
	e := NewEncryptor(testKeyring(t))

	_, err := e.Encrypt(SensitiveData{UserID: 1}, 99)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrCorruptRecord)
}

func TestPKCS7_PadUnpad(t *testing.T) {
	for _, size := range []int{0, 1, 15, 16, 17, 31, 32} {
		data := make([]byte, size)
		for i := range data {
			data[i] = byte(i)
		}
		padded := pkcs7Pad(data, 16)
		assert.Zero(t, len(padded)%16)

		got, err := pkcs7Unpad(padded, 16)
		require.NoError(t, err)
		assert.Equal(t, data, got)
	}
}

func TestPKCS7_UnpadRejectsGarbage(t *testing.T) {
	_, err := pkcs7Unpad([]byte{}, 16)
	assert.Error(t, err)

	bad := make([]byte, 16)
	bad[15] = 17 // padding byte exceeds block size
	_, err = pkcs7Unpad(bad, 16)
	assert.Error(t, err)

	bad = make([]byte, 16)
	bad[15] = 4
	bad[14] = 3 // inconsistent padding run
	_, err = pkcs7Unpad(bad, 16)
	assert.Error(t, err)
}
