package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveEncryptionKeyIsDeterministicAndSized(t *testing.T) {
	key1, err := DeriveEncryptionKey("a-very-secret-value")
	require.NoError(t, err)
	assert.Len(t, key1, 32)

	key2, err := DeriveEncryptionKey("a-very-secret-value")
	require.NoError(t, err)
	assert.Equal(t, key1, key2)

	key3, err := DeriveEncryptionKey("a-different-secret")
	require.NoError(t, err)
	assert.NotEqual(t, key1, key3)
}

func TestDeriveEncryptionKeyRejectsEmptySecret(t *testing.T) {
	_, err := DeriveEncryptionKey("")
	assert.Error(t, err)
}

func TestEncryptedStringRoundTrip(t *testing.T) {
	key, err := DeriveEncryptionKey("test-encryption-secret")
	require.NoError(t, err)
	require.NoError(t, InitEncryption(key))

	original := EncryptedString("super-secret-registry-token")
	stored, err := original.Value()
	require.NoError(t, err)
	assert.NotEqual(t, string(original), stored)

	var roundTripped EncryptedString
	require.NoError(t, roundTripped.Scan(stored))
	assert.Equal(t, original, roundTripped)
}

func TestEncryptedStringEmptyStoredAsEmpty(t *testing.T) {
	key, err := DeriveEncryptionKey("test-encryption-secret")
	require.NoError(t, err)
	require.NoError(t, InitEncryption(key))

	var empty EncryptedString
	stored, err := empty.Value()
	require.NoError(t, err)
	assert.Equal(t, "", stored)

	var scanned EncryptedString = "not-empty"
	require.NoError(t, scanned.Scan(nil))
	assert.Equal(t, EncryptedString(""), scanned)
}

func TestInitEncryptionRejectsWrongKeySize(t *testing.T) {
	err := InitEncryption([]byte("too-short"))
	assert.Error(t, err)
}
