package pipeline

import (
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dgallion1/postpack/internal/codec"
)

// JobStatus represents the state of an import job.
type JobStatus string

const (
	StatusQueued     JobStatus = "queued"
	StatusParsing    JobStatus = "parsing"
	StatusCompacting JobStatus = "compacting"
	StatusStoring    JobStatus = "storing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
	StatusDupSkipped JobStatus = "duplicate_skipped"
)

// Job tracks the state of a single file import.
type Job struct {
	mu sync.Mutex

	ID     string `json:"job_id"`
	PostID string `json:"post_id"`

	Status   JobStatus `json:"status"`
	Phase    string    `json:"phase"`
	Filename string    `json:"filename"`
	Title    string    `json:"title"`

	Progress Progress `json:"progress"`

	ContentHash string    `json:"content_hash,omitempty"`
	DuplicateOf string    `json:"duplicate_of,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// Internal: not serialized.
	fileData []byte
	errors   []string
}

// Progress tracks processing progress.
type Progress struct {
	Blocks        int         `json:"blocks"`
	StoreAttempts int         `json:"store_attempts"`
	Stats         codec.Stats `json:"stats"`
	Errors        []string    `json:"errors"`
}

// NewJob returns a queued job for an uploaded file. PostID may be empty, in
// which case the post gets a fresh id when stored.
func NewJob(filename, title, postID string, data []byte) *Job {
	now := time.Now()
	return &Job{
		ID:          uuid.NewString(),
		PostID:      postID,
		Status:      StatusQueued,
		Phase:       "queued",
		Filename:    filename,
		Title:       title,
		ContentHash: ContentHashHex(data),
		CreatedAt:   now,
		UpdatedAt:   now,
		fileData:    data,
	}
}

// ImportClaim records which job owns an upload hash and, once stored, the
// post it produced. PostID is empty while the owning job is in flight.
type ImportClaim struct {
	JobID  string
	PostID string
}

// JobStore is a thread-safe in-memory job registry with TTL eviction. It
// also tracks import claims keyed by the hash of the uploaded bytes.
type JobStore struct {
	mu     sync.Mutex
	jobs   map[string]*Job
	byHash map[string]ImportClaim
	ttl    time.Duration
}

func NewJobStore(ttl time.Duration) *JobStore {
	return &JobStore{
		jobs:   make(map[string]*Job),
		byHash: make(map[string]ImportClaim),
		ttl:    ttl,
	}
}

func (s *JobStore) Put(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

func (s *JobStore) Get(id string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

// ClaimImport makes jobID the owner of hash. If another job already holds
// the hash, that claim is returned with ok false and nothing changes.
func (s *JobStore) ClaimImport(hash, jobID string) (existing ImportClaim, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, held := s.byHash[hash]; held {
		return c, false
	}
	s.byHash[hash] = ImportClaim{JobID: jobID}
	return ImportClaim{}, true
}

// ReleaseImport drops jobID's claim on hash if it never produced a post.
func (s *JobStore) ReleaseImport(hash, jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, held := s.byHash[hash]; held && c.JobID == jobID && c.PostID == "" {
		delete(s.byHash, hash)
	}
}

// RecordImport remembers that the upload with the given hash became postID.
func (s *JobStore) RecordImport(hash, jobID, postID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byHash[hash] = ImportClaim{JobID: jobID, PostID: postID}
}

// ForgetPost drops dedup entries pointing at postID.
func (s *JobStore) ForgetPost(postID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for hash, c := range s.byHash {
		if c.PostID == postID {
			delete(s.byHash, hash)
		}
	}
}

// ImportedPost returns the post an identical upload already produced.
// Claims still in flight are not reported.
func (s *JobStore) ImportedPost(hash string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byHash[hash]
	if !ok || c.PostID == "" {
		return "", false
	}
	return c.PostID, true
}

// Cleanup removes expired jobs.
func (s *JobStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, job := range s.jobs {
		if now.Sub(job.updatedAt()) > s.ttl {
			delete(s.jobs, id)
		}
	}
}

func (j *Job) updatedAt() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.UpdatedAt
}

// SetStatus updates job status atomically.
func (j *Job) SetStatus(status JobStatus, phase string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = status
	j.Phase = phase
	j.UpdatedAt = time.Now()
}

// AddError records an error.
func (j *Job) AddError(err string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.errors = append(j.errors, err)
	j.Progress.Errors = j.errors
	j.UpdatedAt = time.Now()
}

// SetBlocks records the number of top-level blocks imported.
func (j *Job) SetBlocks(n int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.Blocks = n
	j.UpdatedAt = time.Now()
}

// SetStats records the compaction result.
func (j *Job) SetStats(stats codec.Stats) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.Stats = stats
	j.UpdatedAt = time.Now()
}

// IncrStoreAttempts counts one attempt to write the post.
func (j *Job) IncrStoreAttempts() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.StoreAttempts++
	j.UpdatedAt = time.Now()
}

// SetPostID records the post the import produced.
func (j *Job) SetPostID(id string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.PostID = id
	j.UpdatedAt = time.Now()
}

// SetDuplicateOf points a skipped job at the job that owns its upload.
func (j *Job) SetDuplicateOf(jobID string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.DuplicateOf = jobID
	j.UpdatedAt = time.Now()
}

// SetFileData sets the raw file bytes for processing.
func (j *Job) SetFileData(data []byte) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.fileData = data
}

// FileData returns the raw file bytes.
func (j *Job) FileData() []byte {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.fileData
}

// releaseFileData drops the upload once it is no longer needed.
func (j *Job) releaseFileData() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.fileData = nil
}

// JobSnapshot is a read-only, JSON-safe copy of job state.
type JobSnapshot struct {
	ID          string    `json:"job_id"`
	PostID      string    `json:"post_id,omitempty"`
	Status      JobStatus `json:"status"`
	Phase       string    `json:"phase"`
	Filename    string    `json:"filename"`
	Title       string    `json:"title"`
	ContentHash string    `json:"content_hash,omitempty"`
	DuplicateOf string    `json:"duplicate_of,omitempty"`
	Progress    Progress  `json:"progress"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Snapshot returns a JSON-safe copy of the job state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	errs := make([]string, len(j.Progress.Errors))
	copy(errs, j.Progress.Errors)
	progress := j.Progress
	progress.Errors = errs
	return JobSnapshot{
		ID:          j.ID,
		PostID:      j.PostID,
		Status:      j.Status,
		Phase:       j.Phase,
		Filename:    j.Filename,
		Title:       j.Title,
		ContentHash: j.ContentHash,
		DuplicateOf: j.DuplicateOf,
		Progress:    progress,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
	}
}

// ContentHashHex computes SHA-256 of content and returns hex string.
func ContentHashHex(data []byte) string {
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:])
}
