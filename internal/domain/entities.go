package domain

// Entry is a single child returned by a remote directory listing.
type Entry struct {
	Name     string
	Path     string // absolute server-relative path, always starts with "/"
	Size     int64
	IsDir    bool
	Modified string // opaque modification marker as reported by the server
}

// Candidate is a remote video file that may need a thumbnail.
type Candidate struct {
	AbsPath string // absolute server-relative path
	RelPath string // AbsPath without the leading slash; cache and API key
	Ext     string // lowercased extension including the dot
	Size    int64
}

// Outcome is the terminal state of one candidate within a run.
type Outcome string

const (
	OutcomeUploaded      Outcome = "uploaded"
	OutcomeFailed        Outcome = "failed"
	OutcomeSkippedSize   Outcome = "skipped_size"
	OutcomeSkippedExists Outcome = "skipped_exists"
	OutcomeSkippedCache  Outcome = "skipped_cache"
)

// SizeSkip records a candidate that was too large for a full download.
type SizeSkip struct {
	RelPath string
	SizeMB  float64
}
