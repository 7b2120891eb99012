package vault

import (
	"errors"
	"strings"
)

// Books store a public-style reference whose true storage path follows the
// bucket marker segment. The marker is fixed by the upload convention.
const pointerMarker = "/book-files/"

// ErrInvalidPointer means a stored content reference does not embed a storage
// path. This is a data-integrity problem, not a transient failure.
var ErrInvalidPointer = errors.New("vault: content reference has no storage path")

// StoragePath extracts the vault object path from a stored content pointer.
func StoragePath(pointer string) (string, error) {
	idx := strings.Index(pointer, pointerMarker)
	if idx < 0 {
		return "", ErrInvalidPointer
	}
	path := pointer[idx+len(pointerMarker):]
	if path == "" {
		return "", ErrInvalidPointer
	}
	return path, nil
}
