package tasks

import (
	"github.com/google/uuid"

	"github.com/driftwoodlabs/indexd/internal/search"
)

// Stream and subject layout. The stream is a work queue: each job is
// delivered to exactly one worker.
const (
	StreamName = "INDEXD"

	SubjectIndex    = "indexd.jobs.index"
	SubjectBackfill = "indexd.jobs.backfill"
	SubjectSearch   = "indexd.jobs.search"

	subjectWildcard = "indexd.jobs.>"
)

// IndexJob asks a worker to index one document.
type IndexJob struct {
	JobID      string    `json:"job_id"`
	DocumentID uuid.UUID `json:"document_id"`
	Force      bool      `json:"force"`
}

// BackfillJob asks a worker to enqueue an IndexJob for every document
// without chunks.
type BackfillJob struct {
	JobID string `json:"job_id"`
}

// SearchJob asks a worker to execute a search. The result lands in
// the shared result cache, where the HTTP layer polls for it.
type SearchJob struct {
	JobID   string         `json:"job_id"`
	Request search.Request `json:"request"`
}
