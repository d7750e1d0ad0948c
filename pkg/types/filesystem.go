package types

import "time"

// EntryType distinguishes files from directories in listings.
type EntryType string

const (
	EntryTypeFile      EntryType = "file"
	EntryTypeDirectory EntryType = "directory"
)

// FileEntry is a read-only projection of a provider filesystem entry.
// Paths are sandbox-relative.
type FileEntry struct {
	Path        string    `json:"path"`
	Type        EntryType `json:"type"`
	Size        int64     `json:"size,omitempty"`
	Modified    time.Time `json:"modified"`
	Permissions string    `json:"permissions"`
}

// FileUpload is one file in a bulk upload.
type FileUpload struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}
