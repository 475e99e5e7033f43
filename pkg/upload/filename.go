package upload

import (
	"fmt"
	"path"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/marmos91/filestore/pkg/apperr"
	"github.com/marmos91/filestore/pkg/domain"
)

// NormalizeFileName trims surrounding whitespace and applies Unicode
// NFC normalization, so "café.txt" uploaded as NFD composes the same
// as the precomposed form a client might send later.
func NormalizeFileName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

// ValidateRename reports whether renaming oldName to newName is legal:
// non-empty and extension-preserving per domain.SameExtension.
func ValidateRename(oldName, newName string) error {
	newName = NormalizeFileName(newName)
	if newName == "" {
		return apperr.New(apperr.ErrInvalidFileName, "file name must not be empty")
	}
	if !domain.SameExtension(oldName, newName) {
		return apperr.New(apperr.ErrFileExtensionChangeNotAllowed, "rename must preserve the file extension")
	}
	return nil
}

// resolveConflictName applies the RENAME strategy, trying "name (1).ext",
// "name (2).ext", ... until it finds a name not already taken in the
// destination folder. lookup reports whether a given name already exists.
func resolveConflictName(name string, lookup func(candidate string) (bool, error)) (string, error) {
	ext := path.Ext(name)
	base := strings.TrimSuffix(name, ext)

	for n := 1; n < 10000; n++ {
		candidate := fmt.Sprintf("%s (%d)%s", base, n, ext)
		taken, err := lookup(candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", apperr.New(apperr.ErrInvalidFileName, "could not find an available name after 10000 attempts")
}
