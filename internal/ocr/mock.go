package ocr

import (
	"context"
	"fmt"
	"time"
)

// MockHandle is the handle returned by Mock.Submit
const MockHandle Handle = "mock-operation"

// Mock implements Reader and Analyzer without network access. It returns a
// copy of Document after Delay.
type Mock struct {
	Document *Document
	Delay    time.Duration
}

// NewMock creates a Mock serving the sample invoice document
func NewMock(delay time.Duration) *Mock {
	return &Mock{
		Document: SampleDocument(),
		Delay:    delay,
	}
}

// SampleDocument is the canned result used by the offline provider
func SampleDocument() *Document {
	return &Document{
		Status: StatusSucceeded,
		AnalyzeResult: &AnalyzeResult{
			ReadResults: []ReadResult{
				{
					Page: 1,
					Lines: []Line{
						{Text: "Sample Invoice", BoundingBox: BoundingBox{100, 100, 300, 100, 300, 130, 100, 130}},
						{Text: "Date: 2023-03-15", BoundingBox: BoundingBox{100, 150, 300, 150, 300, 180, 100, 180}},
						{Text: "Invoice #: INV-12345", BoundingBox: BoundingBox{100, 200, 300, 200, 300, 230, 100, 230}},
						{Text: "Total Amount: $250.00", BoundingBox: BoundingBox{100, 250, 300, 250, 300, 280, 100, 280}},
					},
				},
			},
		},
	}
}

// Name returns the provider name
func (m *Mock) Name() string {
	return "mock"
}

// Analyze submits and polls like a remote provider would
func (m *Mock) Analyze(ctx context.Context, img Image) (*Document, error) {
	return analyze(ctx, m, img)
}

// Submit validates the image and returns MockHandle
func (m *Mock) Submit(ctx context.Context, img Image) (Handle, error) {
	if _, err := img.Prepare(); err != nil {
		return "", err
	}
	return MockHandle, nil
}

// Poll waits Delay and returns the canned document once it has succeeded
func (m *Mock) Poll(ctx context.Context, handle Handle) (*Document, error) {
	if m.Delay > 0 {
		if err := wait(ctx, m.Delay); err != nil {
			return nil, err
		}
	}
	if m.Document == nil {
		return &Document{Status: StatusSucceeded}, nil
	}
	switch m.Document.Status {
	case StatusSucceeded:
		return cloneDocument(m.Document), nil
	case StatusFailed:
		return nil, &AnalysisFailedError{Handle: handle}
	default:
		return nil, &SubmissionError{Op: "poll", Err: fmt.Errorf("unexpected operation status %q", m.Document.Status)}
	}
}

// Close is a no-op
func (m *Mock) Close() error {
	return nil
}

func cloneDocument(doc *Document) *Document {
	out := &Document{Status: doc.Status}
	if doc.AnalyzeResult == nil {
		return out
	}
	result := &AnalyzeResult{
		Version:     doc.AnalyzeResult.Version,
		ReadResults: make([]ReadResult, len(doc.AnalyzeResult.ReadResults)),
	}
	for i, page := range doc.AnalyzeResult.ReadResults {
		page.Lines = append([]Line(nil), page.Lines...)
		result.ReadResults[i] = page
	}
	out.AnalyzeResult = result
	return out
}
