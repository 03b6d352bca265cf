// Package media performs the preflight checks on locally materialized media
// files before they are read and encoded for transmission.
package media

import (
	"fmt"
	"os"

	apperrors "lxmchat/internal/errors"
	"lxmchat/internal/security"
)

// Validator checks media files against the configured size policy.
type Validator struct {
	maxSizeBytes int64
}

func NewValidator(maxSizeMB int) *Validator {
	return &Validator{maxSizeBytes: int64(maxSizeMB) * 1024 * 1024}
}

// Validate confirms the file at path still exists and is within the size
// limit. Both failures are terminal for the owning message: a missing file
// cannot come back and an oversize file stays oversize, so neither is
// retryable.
func (v *Validator) Validate(path string) error {
	if err := security.ValidateLocalPath(path); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeMediaMissing, "unsafe media path").
			WithUserMessage("Attachment is no longer available")
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return apperrors.Wrap(err, apperrors.ErrCodeMediaMissing, "media file missing").
				WithContext("path", path).
				WithUserMessage("Attachment is no longer available")
		}
		return apperrors.Wrap(err, apperrors.ErrCodeMediaMissing, "media file unreadable").
			WithContext("path", path).
			WithUserMessage("Attachment could not be read")
	}

	if info.Size() > v.maxSizeBytes {
		return apperrors.New(apperrors.ErrCodeMediaTooLarge,
			fmt.Sprintf("media file exceeds %d bytes: %d", v.maxSizeBytes, info.Size())).
			WithContext("path", path).
			WithContext("size", info.Size()).
			WithUserMessage("Attachment is too large to send")
	}

	return nil
}

// Read validates and then loads the file contents.
func (v *Validator) Read(path string) ([]byte, error) {
	if err := v.Validate(path); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path) // #nosec G304 - path validated above
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeMediaMissing, "failed to read media file").
			WithContext("path", path)
	}

	return data, nil
}
