package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/dgallion1/postpack/internal/content"
	"github.com/dgallion1/postpack/internal/importer"
	"github.com/dgallion1/postpack/internal/metrics"
	"github.com/dgallion1/postpack/internal/store"
)

// Worker processes a single import job.
type Worker struct {
	content *content.Service
	jobs    *JobStore
	log     *slog.Logger
	opts    importer.Options
	metrics *metrics.Metrics
	retry   RetryPolicy
}

func NewWorker(svc *content.Service, jobs *JobStore, log *slog.Logger, opts importer.Options, m *metrics.Metrics) *Worker {
	return &Worker{
		content: svc,
		jobs:    jobs,
		log:     log,
		opts:    opts,
		metrics: m,
		retry:   DefaultRetry,
	}
}

// Process runs the full import pipeline for a job.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With("job_id", job.ID, "filename", job.Filename)
	defer job.releaseFileData()

	// Phase 0: Claim the upload hash. A replacement for a named post always
	// runs. A claim that never produces a post is released on return.
	stored := false
	if job.PostID == "" {
		claim, ok := w.jobs.ClaimImport(job.ContentHash, job.ID)
		if !ok {
			log.Info("duplicate upload, skipping", "existing_post_id", claim.PostID, "original_job_id", claim.JobID)
			job.SetPostID(claim.PostID)
			job.SetDuplicateOf(claim.JobID)
			w.finish(job, StatusDupSkipped, "dedup")
			return
		}
		defer func() {
			if !stored {
				w.jobs.ReleaseImport(job.ContentHash, job.ID)
			}
		}()
	}

	// Phase 1: Parse
	job.SetStatus(StatusParsing, "parsing")
	imp, err := importer.ForFile(job.Filename, w.opts)
	if err != nil {
		log.Error("unsupported format", "error", err)
		job.AddError(err.Error())
		w.finish(job, StatusFailed, "parsing")
		return
	}

	doc, err := imp.Import(bytes.NewReader(job.FileData()), job.Filename)
	if err != nil {
		log.Error("import failed", "error", err)
		job.AddError(fmt.Sprintf("import: %s", err))
		w.finish(job, StatusFailed, "parsing")
		return
	}
	job.SetBlocks(len(doc.Content))
	if len(doc.Content) == 0 {
		log.Warn("no content imported")
		job.AddError("no importable content")
		w.finish(job, StatusFailed, "parsing")
		return
	}

	title := job.Title
	if title == "" {
		title = importer.TitleOf(doc, job.Filename)
	}

	// Phase 2: Compact
	job.SetStatus(StatusCompacting, "compacting")
	enc, err := w.content.Compact(doc)
	if err != nil {
		log.Error("compaction failed", "error", err)
		job.AddError(fmt.Sprintf("compact: %s", err))
		w.finish(job, StatusFailed, "compacting")
		return
	}
	stats := enc.Stats
	job.SetStats(stats)
	log.Info("compacted document",
		"blocks", len(doc.Content),
		"original_size", stats.OriginalSize,
		"compressed_size", stats.CompressedSize,
	)

	// Phase 3: Store, retrying transient backend failures.
	job.SetStatus(StatusStoring, "storing")
	req := content.SaveRequest{ID: job.PostID, Title: title, Compacted: enc}
	var post *store.Post
	err = w.retry.Do(ctx, func(attempt int) error {
		job.IncrStoreAttempts()
		var err error
		post, err = w.content.Save(ctx, req)
		if err != nil && IsRetryable(err) {
			log.Warn("retryable store error", "attempt", attempt, "error", err)
		}
		return err
	})
	if err != nil {
		log.Error("store failed", "error", err)
		job.AddError(fmt.Sprintf("store: %s", err))
		w.finish(job, StatusFailed, "storing")
		return
	}

	job.SetPostID(post.ID)
	w.jobs.RecordImport(job.ContentHash, job.ID, post.ID)
	stored = true
	log.Info("import complete", "post_id", post.ID, "reduction_percent", post.Stats.ReductionPercent)
	w.finish(job, StatusCompleted, "done")
}

func (w *Worker) finish(job *Job, status JobStatus, phase string) {
	job.SetStatus(status, phase)
	w.metrics.ObserveJob(string(status))
}
