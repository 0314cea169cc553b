package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

// hashLength is the number of leading digest bytes kept for a note hash.
// Eight hex characters keep share URLs short; the client predicts the final
// URL offline, so the length is part of the wire contract.
const hashLength = 4

var nonAlphanumeric = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify normalizes a note title into its URL-safe slug: lowercase, every
// run of non-alphanumeric characters collapsed to a single hyphen, leading
// and trailing hyphens stripped. Idempotent.
func Slugify(title string) string {
	slug := strings.ToLower(title)
	slug = nonAlphanumeric.ReplaceAllString(slug, "-")
	return strings.Trim(slug, "-")
}

// NoteHash derives the stable note identifier from the vault and the
// original title. The digest covers identity only, never content, so
// re-sharing the same title always lands on the same storage key.
func NoteHash(vault, title string) string {
	sum := sha256.Sum256([]byte(vault + ":" + title))
	return hex.EncodeToString(sum[:hashLength])
}

// NoteKey returns the object-store key for a note record.
func NoteKey(titleSlug, hash string) string {
	return fmt.Sprintf("notes/%s-%s.json", titleSlug, hash)
}

// IndexKey returns the object-store key for a vault's index record.
func IndexKey(vault string) string {
	return vault + "/index.json"
}

// ThemeKey returns the object-store key for a vault's theme record.
func ThemeKey(vault string) string {
	return vault + "/theme.json"
}

// ImagePrefix returns the key prefix holding every image owned by a note.
func ImagePrefix(noteHash string) string {
	return "images/" + noteHash + "/"
}

// ImageKey returns the object-store key for a single image file.
func ImageKey(noteHash, filename string) string {
	return ImagePrefix(noteHash) + filename
}

// ViewPath returns the public view path for a note.
func ViewPath(vault, titleSlug, hash string) string {
	return fmt.Sprintf("/g/%s/%s/%s", vault, titleSlug, hash)
}
