package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/zombor/ocr-analytics/internal/classify"
	"github.com/zombor/ocr-analytics/internal/ocr"
)

// IDGenerator generates unique IDs for analyses
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Options tunes a Service. Zero values select the defaults.
type Options struct {
	// AnalyzeTimeout bounds one OCR acquisition (default 2m)
	AnalyzeTimeout time.Duration
	// Concurrency bounds parallel analyses in a batch (default 4)
	Concurrency int
	IDGenerator IDGenerator
	TimeSource  TimeSource
	Metrics     *Metrics
}

// Service runs OCR analyses and keeps their results
type Service struct {
	db          DB
	analyzer    ocr.Analyzer
	classifier  *classify.Classifier
	storage     Storage
	idGenerator IDGenerator
	timeSource  TimeSource
	metrics     *Metrics
	timeout     time.Duration
	concurrency int
}

// NewService creates a new Service with default options
func NewService(db DB, analyzer ocr.Analyzer, storage Storage) *Service {
	return NewServiceWithOptions(db, analyzer, storage, Options{})
}

// NewServiceWithOptions creates a new Service with custom options
func NewServiceWithOptions(db DB, analyzer ocr.Analyzer, storage Storage, opts Options) *Service {
	if opts.AnalyzeTimeout <= 0 {
		opts.AnalyzeTimeout = 2 * time.Minute
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.IDGenerator == nil {
		opts.IDGenerator = &uuidGenerator{}
	}
	if opts.TimeSource == nil {
		opts.TimeSource = &defaultTimeSource{}
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics()
	}

	return &Service{
		db:          db,
		analyzer:    analyzer,
		classifier:  classify.New(),
		storage:     storage,
		idGenerator: opts.IDGenerator,
		timeSource:  opts.TimeSource,
		metrics:     opts.Metrics,
		timeout:     opts.AnalyzeTimeout,
		concurrency: opts.Concurrency,
	}
}

// Provider returns the name of the configured OCR provider
func (s *Service) Provider() string {
	return s.analyzer.Name()
}

// Metrics returns the service metrics
func (s *Service) Metrics() *Metrics {
	return s.metrics
}

var (
	unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	repeatedSpaces      = regexp.MustCompile(`\s+`)
)

// sanitizeFilename removes special characters and truncates phone-generated names
func sanitizeFilename(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if unsafeFilenameChars.MatchString(strings.TrimPrefix(ext, ".")) {
		ext = ""
	}
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))

	base = unsafeFilenameChars.ReplaceAllString(base, "")
	base = repeatedSpaces.ReplaceAllString(base, " ")
	base = strings.TrimSpace(base)

	if len(base) > 50 {
		base = base[:50]
	}
	if base == "" {
		base = "image"
	}
	return base + ext
}

// Analyze stores the image, runs OCR, classifies the lines and saves the result
func (s *Service) Analyze(ctx context.Context, filename string, data []byte, contentType string) (analysis *Analysis, err error) {
	start := time.Now()
	var result classify.Result
	defer func() {
		s.metrics.observe(err, time.Since(start), result.Categories)
	}()

	img := ocr.Image{Data: data, ContentType: contentType}
	// reject non-images before anything is written
	if _, err := img.Prepare(); err != nil {
		return nil, err
	}

	id := s.idGenerator.Generate()
	savedPath, err := s.storage.Save(fmt.Sprintf("%s_%s", id, sanitizeFilename(filename)), data)
	if err != nil {
		return nil, fmt.Errorf("saving file: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	doc, err := s.analyzer.Analyze(ctx, img)
	if err != nil {
		slog.Error("Failed to analyze image",
			"filename", filename,
			"content_type", contentType,
			"file_size", len(data),
			"provider", s.analyzer.Name(),
			"error", err,
		)
		s.removeFile(savedPath)
		return nil, fmt.Errorf("analyzing image: %w", err)
	}

	result = s.classifier.Analyze(doc)

	analysis = &Analysis{
		ID:          id,
		Filename:    savedPath,
		ContentType: img.MediaType(),
		Provider:    s.analyzer.Name(),
		Result:      result,
		CreatedAt:   s.timeSource.Now(),
	}

	if err := s.db.SaveAnalysis(analysis); err != nil {
		s.removeFile(savedPath)
		return nil, fmt.Errorf("saving analysis to database: %w", err)
	}

	slog.Info("Analyzed image", "id", id, "provider", analysis.Provider, "lines", result.Categories.Total())
	return analysis, nil
}

// AnalyzeBatch analyzes uploads concurrently. Items keep the input order and
// a failed upload does not stop the others.
func (s *Service) AnalyzeBatch(ctx context.Context, uploads []Upload) []BatchItem {
	items := make([]BatchItem, len(uploads))

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, upload := range uploads {
		g.Go(func() error {
			items[i].Filename = upload.Filename
			analysis, err := s.Analyze(ctx, upload.Filename, upload.Data, upload.ContentType)
			if err != nil {
				items[i].Error = err.Error()
				return nil
			}
			items[i].Analysis = analysis
			return nil
		})
	}
	_ = g.Wait()

	return items
}

// Classify categorizes raw text without OCR
func (s *Service) Classify(text string) classify.Result {
	return classify.Result{
		RawText:    text,
		Categories: s.classifier.CategorizeText(text),
	}
}

// ClassifyDocument categorizes an OCR result document obtained elsewhere
func (s *Service) ClassifyDocument(doc *ocr.Document) classify.Result {
	return s.classifier.Analyze(doc)
}

// GetAnalysis retrieves an analysis by ID
func (s *Service) GetAnalysis(id string) (*Analysis, error) {
	analysis, err := s.db.GetAnalysis(id)
	if err != nil {
		return nil, fmt.Errorf("getting analysis: %w", err)
	}
	return analysis, nil
}

// ListAnalyses returns all analyses, newest first
func (s *Service) ListAnalyses() ([]*Analysis, error) {
	analyses, err := s.db.ListAnalyses()
	if err != nil {
		return nil, fmt.Errorf("listing analyses: %w", err)
	}
	sort.SliceStable(analyses, func(i, j int) bool {
		return analyses[i].CreatedAt.After(analyses[j].CreatedAt)
	})
	return analyses, nil
}

// DeleteAnalysis removes an analysis and its image
func (s *Service) DeleteAnalysis(id string) error {
	analysis, err := s.db.GetAnalysis(id)
	if err != nil {
		return fmt.Errorf("getting analysis for deletion: %w", err)
	}

	s.removeFile(analysis.Filename)

	if err := s.db.DeleteAnalysis(id); err != nil {
		return fmt.Errorf("deleting analysis from database: %w", err)
	}
	return nil
}

// GetAnalysisFile returns the source image of an analysis
func (s *Service) GetAnalysisFile(id string) ([]byte, string, error) {
	analysis, err := s.db.GetAnalysis(id)
	if err != nil {
		return nil, "", fmt.Errorf("getting analysis: %w", err)
	}

	data, err := s.storage.Get(analysis.Filename)
	if err != nil {
		return nil, "", fmt.Errorf("getting analysis file: %w", err)
	}
	return data, analysis.ContentType, nil
}

func (s *Service) removeFile(path string) {
	if err := s.storage.Delete(path); err != nil {
		slog.Warn("Failed to delete file", "filename", path, "error", err)
	}
}
