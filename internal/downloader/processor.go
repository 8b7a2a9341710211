package downloader

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"newsagger/internal/store"
	"newsagger/pkg/config"
	errs "newsagger/pkg/errors"
	"newsagger/pkg/logger"
	"newsagger/pkg/metadata"
	"newsagger/pkg/models"
	"newsagger/pkg/retry"
	"newsagger/pkg/storage"
)

// Fetcher streams content downloads. The archive client satisfies this,
// applying the global pacer and CAPTCHA gate to every fetch.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*http.Response, error)
}

// Artifact kinds that can be requested per page
const (
	FileTypePDF      = "pdf"
	FileTypeJP2      = "jp2"
	FileTypeOCR      = "ocr"
	FileTypeMetadata = "metadata"
)

// drainBatchSize is how many queue items one drain cycle claims
const drainBatchSize = 50

// Options controls a queue processing run
type Options struct {
	MaxItems    int
	MaxSizeMB   float64
	Concurrency int
	Continuous  bool
	MaxIdleTime time.Duration
	DryRun      bool
}

// Summary reports what a processing run did
type Summary struct {
	ItemsProcessed   int
	BatchesProcessed int
	Errors           int
	Skipped          int
	TotalSizeMB      float64
	Duration         time.Duration
}

// Processor drains the download queue, fetching page artifacts to disk
// and recording completion in storage.
type Processor struct {
	store        *store.Store
	client       Fetcher
	files        *storage.Manager
	fileTypes    []string
	maxRetries   int
	pollInterval time.Duration
	logger       logger.Logger
}

// New creates a download processor
func New(st *store.Store, client Fetcher, files *storage.Manager, cfg *config.DownloadConfig, log logger.Logger) *Processor {
	fileTypes := []string{FileTypePDF, FileTypeJP2, FileTypeOCR, FileTypeMetadata}
	maxRetries := 3
	if cfg != nil {
		if len(cfg.FileTypes) > 0 {
			fileTypes = cfg.FileTypes
		}
		if cfg.RetryAttempts > 0 {
			maxRetries = cfg.RetryAttempts
		}
	}
	return &Processor{
		store:        st,
		client:       client,
		files:        files,
		fileTypes:    fileTypes,
		maxRetries:   maxRetries,
		pollInterval: 10 * time.Second,
		logger:       log,
	}
}

// ProcessQueue drains queued items in priority order. In continuous mode
// it keeps polling for new work until the queue stays empty past
// MaxIdleTime, the global MaxItems cap is hit, or the context is
// cancelled. Individual item failures are recorded and never abort the
// run.
func (p *Processor) ProcessQueue(ctx context.Context, opts Options) (Summary, error) {
	start := time.Now()
	var summary Summary

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	if opts.DryRun {
		items, err := p.store.GetDownloadQueue(models.QueueStatusQueued, opts.MaxItems)
		if err != nil {
			return summary, err
		}
		for _, item := range items {
			summary.TotalSizeMB += item.EstimatedSizeMB
		}
		summary.Skipped = len(items)
		summary.Duration = time.Since(start)
		p.logger.WithFields(map[string]interface{}{
			"items":             len(items),
			"estimated_size_mb": summary.TotalSizeMB,
		}).Info("dry run, nothing downloaded")
		return summary, nil
	}

	sizeBudget := opts.MaxSizeMB
	idleSince := time.Now()

	for {
		if err := ctx.Err(); err != nil {
			summary.Duration = time.Since(start)
			return summary, err
		}

		limit := drainBatchSize
		if opts.MaxItems > 0 {
			remaining := opts.MaxItems - summary.ItemsProcessed
			if remaining <= 0 {
				break
			}
			if remaining < limit {
				limit = remaining
			}
		}

		items, err := p.store.GetDownloadQueue(models.QueueStatusQueued, limit)
		if err != nil {
			summary.Duration = time.Since(start)
			return summary, err
		}
		if opts.MaxSizeMB > 0 {
			items, sizeBudget = capByEstimatedSize(items, sizeBudget)
			if len(items) == 0 && sizeBudget <= 0 {
				p.logger.Info("size budget exhausted, stopping")
				break
			}
		}

		if len(items) == 0 {
			if !opts.Continuous {
				break
			}
			if opts.MaxIdleTime > 0 && time.Since(idleSince) >= opts.MaxIdleTime {
				p.logger.Info("queue idle past limit, stopping continuous run")
				break
			}
			if err := retry.Wait(ctx, p.pollInterval); err != nil {
				summary.Duration = time.Since(start)
				return summary, err
			}
			continue
		}
		idleSince = time.Now()

		// Workers overlap disk writes and bookkeeping only; every fetch
		// still serializes through the client's request pacer.
		var mu sync.Mutex
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(concurrency)
		for _, item := range items {
			item := item
			g.Go(func() error {
				sizeMB, skipped, err := p.processItem(gctx, item)
				mu.Lock()
				defer mu.Unlock()
				summary.ItemsProcessed++
				switch {
				case err != nil:
					summary.Errors++
				case skipped:
					summary.Skipped++
				default:
					summary.TotalSizeMB += sizeMB
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			summary.Duration = time.Since(start)
			return summary, err
		}
		summary.BatchesProcessed++
	}

	summary.Duration = time.Since(start)
	p.logger.WithFields(map[string]interface{}{
		"items":    summary.ItemsProcessed,
		"errors":   summary.Errors,
		"skipped":  summary.Skipped,
		"size_mb":  summary.TotalSizeMB,
		"duration": summary.Duration,
	}).Info("download processing complete")
	return summary, nil
}

// capByEstimatedSize keeps the prefix of items whose cumulative size
// estimate fits the remaining budget
func capByEstimatedSize(items []models.QueueItem, budgetMB float64) ([]models.QueueItem, float64) {
	kept := items[:0]
	for _, item := range items {
		if item.EstimatedSizeMB > budgetMB {
			break
		}
		budgetMB -= item.EstimatedSizeMB
		kept = append(kept, item)
	}
	return kept, budgetMB
}

// processItem downloads one queue item, dispatching on its type, and
// records the outcome on the queue row.
func (p *Processor) processItem(ctx context.Context, item models.QueueItem) (float64, bool, error) {
	if err := p.store.UpdateQueueItem(item.ID, store.QueueItemUpdate{
		Status: strptr(models.QueueStatusActive),
	}); err != nil {
		return 0, false, err
	}

	var sizeMB float64
	var skipped bool
	var err error
	switch item.QueueType {
	case models.QueueTypePage:
		sizeMB, skipped, err = p.downloadPage(ctx, item.ReferenceID, item.ID)
	case models.QueueTypeFacet:
		sizeMB, err = p.downloadFacet(ctx, item.ReferenceID)
	case models.QueueTypePeriodical:
		sizeMB, err = p.downloadPeriodical(ctx, item.ReferenceID)
	default:
		err = fmt.Errorf("unknown queue type %q", item.QueueType)
	}

	if err != nil {
		p.logger.WithError(err).WithFields(map[string]interface{}{
			"queue_id":  item.ID,
			"reference": item.ReferenceID,
		}).Error("download failed")
		if uerr := p.store.UpdateQueueItem(item.ID, store.QueueItemUpdate{
			Status:       strptr(models.QueueStatusFailed),
			ErrorMessage: strptr(err.Error()),
		}); uerr != nil {
			return 0, false, uerr
		}
		return 0, false, err
	}

	if uerr := p.store.UpdateQueueItem(item.ID, store.QueueItemUpdate{
		Status: strptr(models.QueueStatusCompleted),
	}); uerr != nil {
		return sizeMB, skipped, uerr
	}
	return sizeMB, skipped, nil
}

// downloadPage fetches all requested artifacts of one page into
// downloads/{lccn}/{year}/{month}/. An artifact already present on disk
// is not refetched; a page already marked downloaded is skipped whole.
func (p *Processor) downloadPage(ctx context.Context, itemID string, queueID int64) (float64, bool, error) {
	page, err := p.store.GetPage(itemID)
	if err != nil {
		return 0, false, err
	}
	if page == nil {
		return 0, false, fmt.Errorf("page %s not found in storage", itemID)
	}
	if page.Downloaded {
		return 0, true, nil
	}

	type artifact struct {
		kind string
		run  func() (int64, error)
	}
	var artifacts []artifact

	if p.wantsType(FileTypePDF) && page.PDFURL != "" {
		path := p.files.ArtifactPath(page.LCCN, page.Date, page.ItemID, ".pdf")
		artifacts = append(artifacts, artifact{FileTypePDF, func() (int64, error) {
			return p.fetchArtifact(ctx, page.PDFURL, path)
		}})
	}
	if p.wantsType(FileTypeJP2) && page.JP2URL != "" {
		path := p.files.ArtifactPath(page.LCCN, page.Date, page.ItemID, ".jp2")
		artifacts = append(artifacts, artifact{FileTypeJP2, func() (int64, error) {
			return p.fetchArtifact(ctx, page.JP2URL, path)
		}})
	}
	if p.wantsType(FileTypeOCR) && page.OCRText != "" {
		path := p.files.ArtifactPath(page.LCCN, page.Date, page.ItemID, "_ocr.txt")
		artifacts = append(artifacts, artifact{FileTypeOCR, func() (int64, error) {
			return p.saveText(path, page.OCRText)
		}})
	}
	if p.wantsType(FileTypeMetadata) {
		path := p.files.ArtifactPath(page.LCCN, page.Date, page.ItemID, "_metadata.json")
		artifacts = append(artifacts, artifact{FileTypeMetadata, func() (int64, error) {
			return p.saveMetadata(path, page)
		}})
	}

	var totalBytes int64
	completed := 0
	for _, a := range artifacts {
		written, err := a.run()
		if err != nil {
			return mb(totalBytes), false, fmt.Errorf("%s artifact for %s: %w", a.kind, itemID, err)
		}
		totalBytes += written
		completed++

		if queueID > 0 {
			pct := float64(completed) / float64(len(artifacts)) * 100
			if err := p.store.UpdateQueueItem(queueID, store.QueueItemUpdate{
				ProgressPercent: &pct,
			}); err != nil {
				return mb(totalBytes), false, err
			}
		}
	}

	if len(artifacts) == 0 {
		return 0, false, fmt.Errorf("page %s has no downloadable artifacts", itemID)
	}

	if err := p.store.MarkPageDownloaded(itemID); err != nil {
		return mb(totalBytes), false, err
	}
	return mb(totalBytes), false, nil
}

// downloadFacet fetches every undownloaded page of a facet
func (p *Processor) downloadFacet(ctx context.Context, facetRef string) (float64, error) {
	facetID, err := strconv.ParseInt(facetRef, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid facet reference %q: %w", facetRef, err)
	}
	notDownloaded := false
	pages, err := p.store.GetPages(store.PageFilter{FacetID: facetID, Downloaded: &notDownloaded})
	if err != nil {
		return 0, err
	}
	return p.downloadPages(ctx, pages)
}

// downloadPeriodical fetches every undownloaded page of a periodical
func (p *Processor) downloadPeriodical(ctx context.Context, lccn string) (float64, error) {
	notDownloaded := false
	pages, err := p.store.GetPages(store.PageFilter{LCCN: lccn, Downloaded: &notDownloaded})
	if err != nil {
		return 0, err
	}
	return p.downloadPages(ctx, pages)
}

// downloadPages fetches a set of pages, tolerating partial failure. It
// fails only when every page fails.
func (p *Processor) downloadPages(ctx context.Context, pages []models.Page) (float64, error) {
	if len(pages) == 0 {
		return 0, nil
	}

	var totalMB float64
	failures := 0
	var firstErr error
	for _, page := range pages {
		if err := ctx.Err(); err != nil {
			return totalMB, err
		}
		sizeMB, _, err := p.downloadPage(ctx, page.ItemID, 0)
		if err != nil {
			failures++
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		totalMB += sizeMB
	}

	if failures == len(pages) {
		return totalMB, fmt.Errorf("failed to download any of %d pages: %w", len(pages), firstErr)
	}
	return totalMB, nil
}

// fetchArtifact streams one URL to disk with the network retry policy.
// Bodies shorter than the advertised content length are removed and the
// fetch retried.
func (p *Processor) fetchArtifact(ctx context.Context, rawURL, path string) (int64, error) {
	if p.files.Exists(path) {
		return 0, nil
	}

	var written int64
	retrier := retry.NewHTTPRetrier(p.maxRetries, p.logger)
	err := retrier.DoWithErrorType(func() error {
		resp, err := p.client.Fetch(ctx, rawURL)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		n, err := p.files.Save(path, resp.Body)
		if err != nil {
			return err
		}
		if resp.ContentLength > 0 && n != resp.ContentLength {
			p.files.Remove(path)
			return errs.NewNetwork(fmt.Sprintf("incomplete download: %d of %d bytes", n, resp.ContentLength), nil)
		}
		written = n
		return nil
	})
	return written, err
}

func (p *Processor) saveText(path, text string) (int64, error) {
	if p.files.Exists(path) {
		return 0, nil
	}
	return p.files.Save(path, strings.NewReader(text))
}

func (p *Processor) saveMetadata(path string, page *models.Page) (int64, error) {
	if p.files.Exists(path) {
		return 0, nil
	}
	data, err := metadata.FromPage(page).JSON()
	if err != nil {
		return 0, err
	}
	return p.files.Save(path, bytes.NewReader(data))
}

func (p *Processor) wantsType(fileType string) bool {
	for _, t := range p.fileTypes {
		if t == fileType {
			return true
		}
	}
	return false
}

// ResumeFailed puts failed queue items back in the queue
func (p *Processor) ResumeFailed() (int64, error) {
	return p.store.ResumeFailed()
}

// ResetStuck requeues items left active by a killed run
func (p *Processor) ResetStuck() (int64, error) {
	return p.store.ResetStuck()
}

func mb(bytes int64) float64 {
	return float64(bytes) / (1024 * 1024)
}

func strptr(s string) *string { return &s }
