package download

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	invalidFilenameChars   = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1F\x7F]`)
	consecutiveUnderscores = regexp.MustCompile(`_+`)
	reservedDeviceName     = regexp.MustCompile(`(?i)^(CON|PRN|AUX|NUL|COM[1-9]|LPT[1-9])$`)
)

const (
	maxFilenameLength  = 150 // bytes
	maxExtensionLength = 16
)

// Sanitize turns name into a single path segment that is legal on common
// filesystems. Separators never survive, names that would resolve to the
// directory itself or its parent become "untitled", and reserved device
// names such as CON or nul.jpg get a trailing underscore on their stem.
// Overlong names are cut on a rune boundary, keeping their extension.
func Sanitize(name string) string {
	sanitized := invalidFilenameChars.ReplaceAllString(name, "_")
	sanitized = consecutiveUnderscores.ReplaceAllString(sanitized, "_")
	sanitized = strings.Trim(sanitized, "_ .")
	sanitized = truncate(sanitized)

	if sanitized == "" {
		return "untitled"
	}
	return avoidReservedName(sanitized)
}

func truncate(name string) string {
	if len(name) <= maxFilenameLength {
		return name
	}

	ext := filepath.Ext(name)
	if ext == name || len(ext) > maxExtensionLength || strings.ContainsRune(ext, ' ') {
		ext = ""
	}
	stem := name[:len(name)-len(ext)]

	cut := maxFilenameLength - len(ext)
	for cut > 0 && !utf8.RuneStart(stem[cut]) {
		cut--
	}
	stem = strings.Trim(stem[:cut], "_ .")
	if stem == "" {
		stem = "untitled"
	}
	return stem + ext
}

func avoidReservedName(name string) string {
	stem, rest, _ := strings.Cut(name, ".")
	if !reservedDeviceName.MatchString(strings.TrimSpace(stem)) {
		return name
	}
	if rest == "" {
		return stem + "_"
	}
	return stem + "_." + rest
}

// safeJoin joins dir and leaf, refusing any leaf that leaves dir.
func safeJoin(dir, leaf string) (string, error) {
	if leaf == "" || leaf == "." || leaf == ".." || strings.ContainsAny(leaf, `/\`) || filepath.IsAbs(leaf) {
		return "", fmt.Errorf("unsafe file name %q", leaf)
	}
	joined := filepath.Join(dir, leaf)
	rel, err := filepath.Rel(filepath.Clean(dir), joined)
	if err != nil || rel != leaf {
		return "", fmt.Errorf("file name %q escapes %q", leaf, dir)
	}
	return joined, nil
}
