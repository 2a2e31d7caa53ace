package ocr

// Status is the state of an asynchronous read operation
type Status string

const (
	StatusNotStarted Status = "notStarted"
	StatusRunning    Status = "running"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transition can happen from s
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// Handle references a submitted operation that has not finished yet.
// For the Azure Read API this is the Operation-Location URL.
type Handle string

// Document is the result payload of a read operation. Field names follow
// the provider's JSON so other providers can fill it without reshaping.
type Document struct {
	Status        Status         `json:"status"`
	AnalyzeResult *AnalyzeResult `json:"analyzeResult,omitempty"`
}

// AnalyzeResult holds the recognized pages
type AnalyzeResult struct {
	Version     string       `json:"version,omitempty"`
	ReadResults []ReadResult `json:"readResults"`
}

// ReadResult is a single recognized page
type ReadResult struct {
	Page   int     `json:"page"`
	Angle  float64 `json:"angle,omitempty"`
	Width  float64 `json:"width,omitempty"`
	Height float64 `json:"height,omitempty"`
	Unit   string  `json:"unit,omitempty"`
	Lines  []Line  `json:"lines"`
}

// Line is one line of text in reading order
type Line struct {
	Text        string      `json:"text"`
	BoundingBox BoundingBox `json:"boundingBox"`
}

// BoundingBox is the polygon around a line: four corner points as x,y pairs,
// clockwise from top-left.
type BoundingBox [8]float64

// SingleDocument wraps plain text lines into a succeeded one-page document
func SingleDocument(lines []string) *Document {
	page := ReadResult{Page: 1, Lines: make([]Line, 0, len(lines))}
	for _, text := range lines {
		page.Lines = append(page.Lines, Line{Text: text})
	}
	return &Document{
		Status: StatusSucceeded,
		AnalyzeResult: &AnalyzeResult{
			ReadResults: []ReadResult{page},
		},
	}
}
