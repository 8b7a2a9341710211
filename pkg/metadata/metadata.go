package metadata

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"newsagger/pkg/models"
)

// PageMetadata is the sidecar record written next to a page's artifacts.
// It captures everything needed to interpret the files without the
// database.
type PageMetadata struct {
	// Core identifiers
	ItemID string `json:"item_id"`
	LCCN   string `json:"lccn"`

	// Publication context
	Title    string `json:"title,omitempty"`
	Date     string `json:"date"`
	Edition  int    `json:"edition"`
	Sequence int    `json:"sequence"`

	// Source locations
	PageURL string `json:"page_url,omitempty"`
	PDFURL  string `json:"pdf_url,omitempty"`
	JP2URL  string `json:"jp2_url,omitempty"`

	// Content properties
	WordCount int `json:"word_count,omitempty"`

	// Timestamps
	DownloadedAt time.Time `json:"downloaded_at"`
}

// FromPage builds the sidecar record for a stored page
func FromPage(page *models.Page) *PageMetadata {
	return &PageMetadata{
		ItemID:       page.ItemID,
		LCCN:         page.LCCN,
		Title:        page.Title,
		Date:         page.Date,
		Edition:      page.Edition,
		Sequence:     page.Sequence,
		PageURL:      page.PageURL,
		PDFURL:       page.PDFURL,
		JP2URL:       page.JP2URL,
		WordCount:    page.WordCount,
		DownloadedAt: time.Now(),
	}
}

// JSON renders the record as indented JSON
func (m *PageMetadata) JSON() ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return data, nil
}

// Load reads a sidecar record from disk
func Load(path string) (*PageMetadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata file: %w", err)
	}

	var meta PageMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return &meta, nil
}
