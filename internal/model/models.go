package model

import (
	"strconv"
	"time"
)

// Fingerprint is the identity tuple used to match a physical file back to a
// Video record. It is evidence of sameness, not proof: two different files
// can share a name and size.
type Fingerprint struct {
	Name         string // base file name
	Size         int64  // bytes
	LastModified int64  // epoch milliseconds
	Hash         string // optional SHA-256 of the leading bytes; empty when not computed
}

// FullKey identifies a file by name, size and modification time.
func (f Fingerprint) FullKey() string {
	return f.Name + "::" + strconv.FormatInt(f.Size, 10) + "::" + strconv.FormatInt(f.LastModified, 10)
}

// LooseKey identifies a file by name and size only.
func (f Fingerprint) LooseKey() string {
	return f.Name + "::" + strconv.FormatInt(f.Size, 10)
}

// Equal reports whether name, size and modification time all match.
// Hash is ignored so records created without hashing still compare equal.
func (f Fingerprint) Equal(other Fingerprint) bool {
	return f.Name == other.Name && f.Size == other.Size && f.LastModified == other.LastModified
}

// LooselyEqual reports whether name and size match.
func (f Fingerprint) LooselyEqual(other Fingerprint) bool {
	return f.Name == other.Name && f.Size == other.Size
}

// Course is the root of an imported library entry.
type Course struct {
	ID           string // UUID
	Title        string
	Description  string // optional
	CoverBlobKey string // optional; key into the blob store
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Module is an optional grouping of videos inside a course.
type Module struct {
	ID       string // UUID
	CourseID string // Foreign key to Course
	Title    string
	Order    int // position among the course's modules
}

// Video is a single playable file tracked by the library.
type Video struct {
	ID            string // UUID
	CourseID      string // Foreign key to Course
	ModuleID      string // Foreign key to Module; empty for root-level videos
	Title         string
	Order         int // position within its (course, module) scope
	Fingerprint   Fingerprint
	Handle        string // durable file reference; empty when none is stored
	RelativePath  string // path recorded at import time, if known
	Missing       bool
	DurationSec   float64 // 0 when unknown
	PosterBlobKey string  // optional
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Progress is the playback state of one video.
type Progress struct {
	VideoID         string
	LastPositionSec float64
	Completed       bool
	CompletedAt     *time.Time
	FirstStartedAt  *time.Time
	LastPlayedAt    *time.Time
	PlayCount       int
}

// DefaultProgress returns the implied progress for a video that has none stored.
func DefaultProgress(videoID string) *Progress {
	return &Progress{VideoID: videoID}
}

// Note is the markdown note attached to a video.
type Note struct {
	VideoID   string
	Markdown  string
	UpdatedAt time.Time
}

// Settings controls the completion policy.
type Settings struct {
	CompletionThreshold      float64 // fraction in [0.8, 1.0]
	AllowLastSecondsComplete bool
	LastSecondsWindow        int // seconds, positive
}

// Operation records a library-mutating command.
type Operation struct {
	ID         int64
	Operation  string
	Parameters string
	Status     string // "success" or "error"
	StartedAt  time.Time
	FinishedAt *time.Time
}
