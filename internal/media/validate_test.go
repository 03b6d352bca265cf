package media

import (
	"os"
	"path/filepath"
	"testing"

	apperrors "lxmchat/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_OK(t *testing.T) {
	path := filepath.Join(t.TempDir(), "small.jpg")
	require.NoError(t, os.WriteFile(path, []byte("tiny"), 0o600))

	v := NewValidator(1)
	assert.NoError(t, v.Validate(path))
}

func TestValidate_Missing(t *testing.T) {
	v := NewValidator(1)
	err := v.Validate(filepath.Join(t.TempDir(), "gone.jpg"))
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeMediaMissing, apperrors.GetCode(err))
	assert.Equal(t, "Attachment is no longer available", apperrors.GetUserMessage(err))
}

func TestValidate_TooLarge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.bin")
	require.NoError(t, os.WriteFile(path, make([]byte, 2<<20), 0o600))

	v := NewValidator(1)
	err := v.Validate(path)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeMediaTooLarge, apperrors.GetCode(err))
}

func TestValidate_TraversalRejected(t *testing.T) {
	v := NewValidator(1)
	err := v.Validate("../../etc/passwd")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeMediaMissing, apperrors.GetCode(err))
}

func TestRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "payload.bin")
	require.NoError(t, os.WriteFile(path, []byte("file bytes"), 0o600))

	v := NewValidator(1)
	data, err := v.Read(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("file bytes"), data)

	_, err = v.Read(filepath.Join(t.TempDir(), "gone.bin"))
	assert.Error(t, err)
}
