package discovery

import (
	"context"

	"newsagger/internal/store"
	"newsagger/pkg/chronicling"
	errs "newsagger/pkg/errors"
	"newsagger/pkg/models"
	"newsagger/pkg/processor"
	"newsagger/pkg/retry"
)

// BatchSessionName is the single well-known session used by batch
// discovery. Re-running the command resumes it.
const BatchSessionName = "batch_discovery_main"

// batchPriority is the queue priority for batch-discovered pages
const batchPriority = 2

// BatchOptions controls a batch discovery run
type BatchOptions struct {
	MaxBatches  int
	AutoEnqueue bool
}

// BatchStats summarizes a batch discovery run
type BatchStats struct {
	ProcessedBatches int
	DiscoveredPages  int
	EnqueuedPages    int
	Errors           int
}

// DiscoverViaBatches walks the digitization batch listing instead of
// the search endpoint. Progress is tracked per batch and per issue in a
// session record, so a killed run resumes at the exact issue it stopped
// on. A CAPTCHA block pauses in place until the cooling-off period ends
// and then retries the same issue.
func (m *Manager) DiscoverViaBatches(ctx context.Context, opts BatchOptions) (BatchStats, error) {
	var stats BatchStats

	m.logger.Info("starting batch discovery")
	batches, err := m.client.GetAllBatches(ctx)
	if err != nil {
		return stats, err
	}
	if opts.MaxBatches > 0 && len(batches) > opts.MaxBatches {
		batches = batches[:opts.MaxBatches]
	}

	startBatch, startIssue := 0, 0
	session, err := m.store.GetBatchSession(BatchSessionName)
	if err != nil {
		return stats, err
	}
	if session != nil {
		startBatch = session.CurrentBatchIndex
		startIssue = session.CurrentIssueIndex
		if session.Status != models.SessionActive {
			// The status command reads this record; a resumed walk is active
			// again even when the last run finished or was blocked.
			if err := m.store.UpdateBatchSession(BatchSessionName, store.BatchSessionUpdate{
				Status: strptr(models.SessionActive),
			}); err != nil {
				return stats, err
			}
		}
		m.logger.WithFields(map[string]interface{}{
			"batch_index": startBatch,
			"issue_index": startIssue,
			"discovered":  session.PagesDiscovered,
		}).Info("resuming batch discovery session")
	} else {
		if _, err := m.store.CreateBatchSession(BatchSessionName, len(batches)); err != nil {
			return stats, err
		}
	}

	for batchIndex, batch := range batches {
		if batchIndex < startBatch {
			continue
		}
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		issueStart := 0
		if batchIndex == startBatch {
			issueStart = startIssue
		}

		discovered, enqueued, err := m.processBatch(ctx, batch, batchIndex, issueStart, opts.AutoEnqueue)
		stats.DiscoveredPages += discovered
		stats.EnqueuedPages += enqueued
		if err != nil {
			if ctx.Err() != nil {
				return stats, err
			}
			m.logger.WithError(err).WithField("batch", batch.Name).Error("failed to process batch")
			stats.Errors++
			continue
		}
		stats.ProcessedBatches++
	}

	if err := m.store.UpdateBatchSession(BatchSessionName, store.BatchSessionUpdate{
		Status: strptr(models.SessionCompleted),
	}); err != nil {
		return stats, err
	}

	m.logger.WithFields(map[string]interface{}{
		"batches":    stats.ProcessedBatches,
		"discovered": stats.DiscoveredPages,
		"enqueued":   stats.EnqueuedPages,
		"errors":     stats.Errors,
	}).Info("batch discovery complete")
	return stats, nil
}

func (m *Manager) processBatch(ctx context.Context, batch chronicling.BatchEntry, batchIndex, issueStart int, autoEnqueue bool) (int, int, error) {
	zero := 0
	if err := m.store.UpdateBatchSession(BatchSessionName, store.BatchSessionUpdate{
		CurrentBatchIndex: &batchIndex,
		CurrentBatchName:  &batch.Name,
		CurrentIssueIndex: &zero,
		IssuesInBatch:     &zero,
	}); err != nil {
		return 0, 0, err
	}

	detail, err := m.client.GetBatch(ctx, batch.Name)
	if err != nil {
		return 0, 0, err
	}

	issueCount := len(detail.Issues)
	if err := m.store.UpdateBatchSession(BatchSessionName, store.BatchSessionUpdate{
		IssuesInBatch: &issueCount,
	}); err != nil {
		return 0, 0, err
	}

	discovered, enqueued := 0, 0
	for issueIndex, ref := range detail.Issues {
		if issueIndex < issueStart {
			continue
		}
		if err := ctx.Err(); err != nil {
			return discovered, enqueued, err
		}

		stored, queued, err := m.processIssue(ctx, ref, batchIndex, issueIndex, autoEnqueue)
		if err != nil {
			if ctx.Err() != nil {
				return discovered, enqueued, err
			}
			m.logger.WithError(err).WithField("issue_url", ref.URL).Error("failed to process issue")
			continue
		}
		discovered += stored
		enqueued += queued
	}

	return discovered, enqueued, nil
}

// processIssue fetches one issue record and stores its pages. Issues
// whose pages are already stored are skipped without an API call, which
// makes resumed sessions fast until they reach new ground.
func (m *Manager) processIssue(ctx context.Context, ref chronicling.IssueRef, batchIndex, issueIndex int, autoEnqueue bool) (int, int, error) {
	if ref.URL == "" {
		return 0, 0, nil
	}

	lccn, date, edition := processor.ParseIssueURL(ref.URL)
	if lccn != "" && date != "" {
		existing, err := m.store.CountIssuePages(lccn, date, edition)
		if err != nil {
			return 0, 0, err
		}
		if existing > 0 {
			// Still advance the issue index, it tracks our position
			// in the batch rather than work done
			return 0, 0, m.store.UpdateBatchSession(BatchSessionName, store.BatchSessionUpdate{
				CurrentIssueIndex: &issueIndex,
			})
		}
	}

	for {
		detail, err := m.client.GetIssue(ctx, ref.URL)
		if err != nil {
			if errs.IsCaptcha(err) {
				if werr := m.waitOutCaptcha(ctx, batchIndex, issueIndex); werr != nil {
					return 0, 0, werr
				}
				continue
			}
			return 0, 0, err
		}

		pages := make([]models.Page, 0, len(detail.Pages))
		for _, pageRef := range detail.Pages {
			if page := m.processor.PageFromIssue(pageRef, detail); page != nil {
				pages = append(pages, *page)
			}
		}
		if len(pages) == 0 {
			return 0, 0, m.store.UpdateBatchSession(BatchSessionName, store.BatchSessionUpdate{
				CurrentIssueIndex: &issueIndex,
			})
		}

		var stored, queued int
		if autoEnqueue {
			stored, queued, err = m.store.SavePagesAndEnqueue(pages, batchPriority)
		} else {
			stored, err = m.store.SavePages(pages)
		}
		if err != nil {
			return 0, 0, err
		}

		err = m.store.UpdateBatchSession(BatchSessionName, store.BatchSessionUpdate{
			CurrentIssueIndex:    &issueIndex,
			PagesDiscoveredDelta: stored,
			PagesEnqueuedDelta:   queued,
		})
		return stored, queued, err
	}
}

// waitOutCaptcha records the exact resume position, then polls the
// CAPTCHA gate until requests are allowed again.
func (m *Manager) waitOutCaptcha(ctx context.Context, batchIndex, issueIndex int) error {
	m.logger.WithFields(map[string]interface{}{
		"batch_index": batchIndex,
		"issue_index": issueIndex,
	}).Warn("CAPTCHA protection active, pausing batch discovery")

	if err := m.store.UpdateBatchSession(BatchSessionName, store.BatchSessionUpdate{
		CurrentBatchIndex: &batchIndex,
		CurrentIssueIndex: &issueIndex,
		Status:            strptr(models.SessionCaptchaBlocked),
	}); err != nil {
		return err
	}

	gate := m.client.CaptchaManager()
	if gate != nil {
		for {
			ok, reason := gate.CanProceed()
			if ok {
				break
			}
			m.logger.WithField("reason", reason).Info("waiting for cooling-off period")
			if err := retry.Wait(ctx, m.pollInterval); err != nil {
				return err
			}
		}
	}

	m.logger.Info("cooling-off period completed, resuming batch discovery")
	return m.store.UpdateBatchSession(BatchSessionName, store.BatchSessionUpdate{
		Status: strptr(models.SessionActive),
	})
}
