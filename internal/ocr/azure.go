package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const azureReadPath = "/vision/v3.2/read/analyze"

// AzureConfig holds the settings of the Azure Computer Vision Read client
type AzureConfig struct {
	// Endpoint is the resource base URL, e.g. https://westus.api.cognitive.microsoft.com
	Endpoint string
	APIKey   string
	// PollInterval defaults to DefaultPollInterval
	PollInterval time.Duration
	// RequestsPerMinute caps outbound calls across all analyses (0 = unlimited)
	RequestsPerMinute int
	// Timeout bounds each HTTP request (default 30s)
	Timeout time.Duration
}

// Azure implements Reader and Analyzer using the Azure Computer Vision Read API
type Azure struct {
	analyzeURL   string
	apiKey       string
	pollInterval time.Duration
	client       *http.Client
	limiter      *rate.Limiter
}

// NewAzure creates a new Azure Read client
func NewAzure(cfg AzureConfig) (*Azure, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("azure endpoint is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("azure api key is required")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	a := &Azure{
		analyzeURL:   strings.TrimRight(cfg.Endpoint, "/") + azureReadPath,
		apiKey:       cfg.APIKey,
		pollInterval: cfg.PollInterval,
		client:       &http.Client{Timeout: cfg.Timeout},
	}
	if cfg.RequestsPerMinute > 0 {
		a.limiter = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), 1)
	}
	return a, nil
}

// Name returns the provider name
func (a *Azure) Name() string {
	return "azure"
}

// Analyze submits the image and polls until the operation is terminal
func (a *Azure) Analyze(ctx context.Context, img Image) (*Document, error) {
	return analyze(ctx, a, img)
}

// Submit posts the image to the Read API and returns the Operation-Location
func (a *Azure) Submit(ctx context.Context, img Image) (Handle, error) {
	prepared, err := img.Prepare()
	if err != nil {
		return "", err
	}

	if err := a.throttle(ctx); err != nil {
		return "", &SubmissionError{Op: "submit", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.analyzeURL, bytes.NewReader(prepared.Data))
	if err != nil {
		return "", &SubmissionError{Op: "submit", Err: fmt.Errorf("creating request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Ocp-Apim-Subscription-Key", a.apiKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return "", &SubmissionError{Op: "submit", Err: fmt.Errorf("calling read API: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return "", &SubmissionError{Op: "submit", Err: providerError(resp)}
	}

	location := resp.Header.Get("Operation-Location")
	if location == "" {
		return "", &SubmissionError{Op: "submit", Err: errors.New("response has no Operation-Location header")}
	}

	slog.Debug("Submitted image for OCR", "operation", location, "content_type", prepared.ContentType, "size", len(prepared.Data))
	return Handle(location), nil
}

// Poll queries the operation until it succeeds or fails, waiting the poll
// interval between non-terminal responses
func (a *Azure) Poll(ctx context.Context, handle Handle) (*Document, error) {
	for attempt := 1; ; attempt++ {
		doc, err := a.status(ctx, handle)
		if err != nil {
			return nil, err
		}

		switch doc.Status {
		case StatusSucceeded:
			return doc, nil
		case StatusFailed:
			return nil, &AnalysisFailedError{Handle: handle}
		case StatusNotStarted, StatusRunning:
		default:
			return nil, &SubmissionError{Op: "poll", Err: fmt.Errorf("unexpected operation status %q", doc.Status)}
		}

		slog.Debug("OCR operation not finished", "operation", handle, "status", doc.Status, "attempt", attempt)
		if err := wait(ctx, a.pollInterval); err != nil {
			return nil, fmt.Errorf("polling %s: %w", handle, err)
		}
	}
}

// Close is a no-op for the HTTP client
func (a *Azure) Close() error {
	return nil
}

func (a *Azure) status(ctx context.Context, handle Handle) (*Document, error) {
	if err := a.throttle(ctx); err != nil {
		return nil, &SubmissionError{Op: "poll", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, string(handle), nil)
	if err != nil {
		return nil, &SubmissionError{Op: "poll", Err: fmt.Errorf("creating request: %w", err)}
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", a.apiKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, &SubmissionError{Op: "poll", Err: fmt.Errorf("calling read API: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &SubmissionError{Op: "poll", Err: providerError(resp)}
	}

	var doc Document
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, &SubmissionError{Op: "poll", Err: fmt.Errorf("decoding response: %w", err)}
	}
	return &doc, nil
}

func (a *Azure) throttle(ctx context.Context) error {
	if a.limiter == nil {
		return nil
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for rate limiter: %w", err)
	}
	return nil
}

// azureErrorResponse is the error envelope returned by Cognitive Services
type azureErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func providerError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var envelope azureErrorResponse
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		return fmt.Errorf("read API error (status %d, code %s): %s", resp.StatusCode, envelope.Error.Code, envelope.Error.Message)
	}
	return fmt.Errorf("read API error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
}
