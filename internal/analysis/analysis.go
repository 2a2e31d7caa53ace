package analysis

import (
	"time"

	"github.com/zombor/ocr-analytics/internal/classify"
)

// Analysis is a stored OCR analysis of an uploaded image
type Analysis struct {
	ID          string          `json:"id"`
	Filename    string          `json:"filename"`
	ContentType string          `json:"content_type"`
	Provider    string          `json:"provider"`
	Result      classify.Result `json:"result"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Upload is an image submitted for analysis
type Upload struct {
	Filename    string
	Data        []byte
	ContentType string
}

// BatchItem is the outcome of one upload in a batch
type BatchItem struct {
	Filename string    `json:"filename"`
	Analysis *Analysis `json:"analysis,omitempty"`
	Error    string    `json:"error,omitempty"`
}
