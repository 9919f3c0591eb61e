// Package profile manages the persisted, engine-owned profile directories,
// one per session name under a configurable root. The session core only
// ever checks them for existence, deletes them recursively, and clears the
// well-known lock markers during stale-lock remediation.
package profile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

// LockMarkers are the filenames a crashed browser process can leave behind
// inside a profile directory. Their presence blocks a new session from
// attaching to the profile.
var LockMarkers = []string{"SingletonLock", "SingletonCookie", "SingletonSocket"}

// Session names become directory names, so they must be filesystem-safe.
var validName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

var ErrInvalidName = errors.New("invalid session name")

// ValidateName reports whether name is acceptable as a session identifier.
func ValidateName(name string) error {
	if !validName.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// Dir returns the profile directory for a session name. Deterministic: the
// same name always maps to the same directory.
func Dir(root, name string) string {
	return filepath.Join(root, name)
}

// Exists reports whether a profile directory is present for the session.
func Exists(root, name string) bool {
	info, err := os.Stat(Dir(root, name))
	return err == nil && info.IsDir()
}

// Remove recursively deletes the session's profile directory. An absent
// directory is not an error; the return value reports whether anything was
// actually removed.
func Remove(root, name string) (bool, error) {
	dir := Dir(root, name)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return false, nil
	}
	if err := os.RemoveAll(dir); err != nil {
		return false, fmt.Errorf("removing profile dir %s: %w", dir, err)
	}
	return true, nil
}

// RemoveLockMarkers deletes the known lock markers from the session's
// profile directory. Missing markers are skipped; the count of markers
// actually removed is returned.
func RemoveLockMarkers(root, name string) (int, error) {
	dir := Dir(root, name)
	removed := 0
	for _, marker := range LockMarkers {
		path := filepath.Join(dir, marker)
		err := os.Remove(path)
		if err == nil {
			removed++
			continue
		}
		if os.IsNotExist(err) {
			continue
		}
		return removed, fmt.Errorf("removing lock marker %s: %w", path, err)
	}
	return removed, nil
}
