package notes

import (
	"encoding/json"
	"time"
)

// LinkedNote is a back-reference from a note to another note shared in the
// same publish operation. The render engine resolves wikilinks against it.
type LinkedNote struct {
	TitleSlug string `json:"titleSlug"`
	Hash      string `json:"hash"`
}

// Note is the persisted note record. The storage key is derived from
// TitleSlug and Hash, so the record is self-describing but addressed
// globally rather than under a vault prefix.
type Note struct {
	Vault         string       `json:"vault"`
	TitleSlug     string       `json:"titleSlug"`
	Hash          string       `json:"hash"`
	Title         string       `json:"title"`
	Content       string       `json:"content"`
	CreatedAt     time.Time    `json:"createdAt"`
	UpdatedAt     time.Time    `json:"updatedAt"`
	LinkedNotes   []LinkedNote `json:"linkedNotes,omitempty"`
	RetentionDays int          `json:"retentionDays"`
}

// ExpiresAt returns the instant the note becomes eligible for the retention
// sweep, or false when the note never expires.
func (n Note) ExpiresAt() (time.Time, bool) {
	if n.RetentionDays <= 0 {
		return time.Time{}, false
	}
	reference := n.UpdatedAt
	if reference.IsZero() {
		reference = n.CreatedAt
	}
	return reference.AddDate(0, 0, n.RetentionDays), true
}

// IndexEntry is one summary row in a vault's denormalized note listing.
type IndexEntry struct {
	TitleSlug string    `json:"titleSlug"`
	Hash      string    `json:"hash"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
}

// DecodeNote parses a stored note record.
func DecodeNote(data []byte) (Note, error) {
	var note Note
	if err := json.Unmarshal(data, &note); err != nil {
		return Note{}, err
	}
	return note, nil
}

// EncodeNote serializes a note record for storage.
func EncodeNote(note Note) ([]byte, error) {
	return json.Marshal(note)
}

func decodeIndex(data []byte) ([]IndexEntry, error) {
	var entries []IndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}
