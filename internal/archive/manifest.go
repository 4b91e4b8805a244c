// Package archive defines the local artifact format: a manifest describing
// every archived file plus the concatenated locally retained payload, framed
// with a magic tag and a length-prefixed JSON metadata block.
package archive

import "time"

// FormatVersion is recorded in every manifest this build writes.
const FormatVersion = "1.0"

// FileRecord describes one archived file. Offsets index into the artifact's
// local payload and the decrypted cloud blob respectively; the checksum is
// computed over the original plaintext, never over compressed or encrypted
// bytes. CloudID is nil until the upload for this run succeeded.
type FileRecord struct {
	Name           string  `json:"name"`
	Path           string  `json:"path"`
	Size           int64   `json:"size"`
	CompressedSize int64   `json:"compressed_size"`
	LocalOffset    int64   `json:"local_offset"`
	LocalSize      int64   `json:"local_size"`
	CloudOffset    int64   `json:"cloud_offset"`
	CloudSize      int64   `json:"cloud_size"`
	Checksum       string  `json:"checksum"`
	CloudID        *string `json:"cloud_id"`
}

// Manifest is the archive metadata. Files are kept in input insertion order;
// the concatenation of their local parts in that order equals the artifact's
// trailing payload. CloudArchiveID is nil when the upload failed or never
// ran, in which case CloudError carries the reason.
type Manifest struct {
	Version        string       `json:"version"`
	Files          []FileRecord `json:"files"`
	Created        int64        `json:"created"`
	TotalSize      int64        `json:"total_size"`
	Compression    string       `json:"compression"`
	CloudArchiveID *string      `json:"cloud_archive_id"`
	CloudError     string       `json:"cloud_error,omitempty"`
}

// NewManifest returns an empty manifest stamped with the current time and
// the given compression pipeline identifier.
func NewManifest(compression string) *Manifest {
	return &Manifest{
		Version:     FormatVersion,
		Files:       []FileRecord{},
		Created:     time.Now().Unix(),
		Compression: compression,
	}
}
