package validation

import (
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/t2bot/patient-media-repo/common"
)

var reservedNames = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true,
	"COM1": true, "COM2": true, "COM3": true, "COM4": true, "COM5": true, "COM6": true, "COM7": true, "COM8": true, "COM9": true,
	"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true, "LPT5": true, "LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
}

// SanitizeFileName reduces a user supplied name to a safe display name. The
// result is metadata only and is never used to build a storage path.
func SanitizeFileName(name string, maxLen int) (string, error) {
	if strings.ContainsRune(name, 0) {
		return "", common.Reject(common.RejectUnsafeFilename, "name contains NUL")
	}
	name = strings.ToValidUTF8(name, "_")

	// Strip any directory components, for both separators
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return "", common.Reject(common.RejectUnsafeFilename, "name contains control characters")
		}
	}

	name = strings.TrimSpace(name)
	name = strings.TrimRight(name, ". ")
	if name == "" || name == "." || name == ".." {
		return "", common.Reject(common.RejectUnsafeFilename, "name is empty")
	}

	stem := name
	if i := strings.Index(stem, "."); i >= 0 {
		stem = stem[:i]
	}
	if reservedNames[strings.ToUpper(strings.TrimSpace(stem))] {
		name = "_" + name
	}

	return truncateName(name, maxLen), nil
}

// truncateName shortens name to at most maxLen bytes on a rune boundary,
// keeping the extension when it is reasonably short.
func truncateName(name string, maxLen int) string {
	if maxLen <= 0 || len(name) <= maxLen {
		return name
	}
	ext := filepath.Ext(name)
	if len(ext) > maxLen/2 {
		ext = ""
	}
	stem := name[:len(name)-len(ext)]
	budget := maxLen - len(ext)
	for len(stem) > budget {
		_, size := utf8.DecodeLastRuneInString(stem)
		stem = stem[:len(stem)-size]
	}
	return stem + ext
}

// Extension returns the lower-cased extension (with dot) of a sanitized name.
func Extension(name string) string {
	return strings.ToLower(filepath.Ext(name))
}
