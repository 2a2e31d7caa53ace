package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/zombor/ocr-analytics/internal/ocr"
)

// maxUploadSize covers high-resolution phone photos
const maxUploadSize = int64(50 << 20)

const fileTooLarge = "File is too large. Maximum size is 50MB. Please compress or resize your image."

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// writeError writes a JSON error body
func writeError(w http.ResponseWriter, message string, code int) {
	writeJSON(w, code, map[string]string{"error": message})
}

// statusFor maps service errors to HTTP status codes
func statusFor(err error) int {
	var (
		unsupported *ocr.UnsupportedInputError
		failed      *ocr.AnalysisFailedError
		submission  *ocr.SubmissionError
	)
	switch {
	case errors.As(err, &unsupported):
		return http.StatusUnsupportedMediaType
	case errors.As(err, &failed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &submission):
		return http.StatusBadGateway
	case errors.Is(err, ErrNotFound), errors.Is(err, fs.ErrNotExist):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// detectContentType falls back to the file extension when the part has no type
func detectContentType(header *multipart.FileHeader) string {
	contentType := strings.ToLower(strings.TrimSpace(header.Header.Get("Content-Type")))
	if contentType != "" && contentType != "application/octet-stream" {
		return contentType
	}

	switch strings.ToLower(filepath.Ext(header.Filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".bmp":
		return "image/bmp"
	case ".tif", ".tiff":
		return "image/tiff"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	default:
		// empty lets the image sniffer decide
		return ""
	}
}

// parseUploadForm parses a multipart form and reports a response on failure
func parseUploadForm(w http.ResponseWriter, r *http.Request) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, fileTooLarge, http.StatusRequestEntityTooLarge)
			return false
		}
		writeError(w, "Error parsing form", http.StatusBadRequest)
		return false
	}
	return true
}

// readUpload reads one multipart file part
func readUpload(header *multipart.FileHeader) (Upload, error) {
	f, err := header.Open()
	if err != nil {
		return Upload{}, fmt.Errorf("opening upload: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return Upload{}, fmt.Errorf("reading upload: %w", err)
	}
	return Upload{
		Filename:    header.Filename,
		Data:        data,
		ContentType: detectContentType(header),
	}, nil
}

// handleAnalyze analyzes a single uploaded image
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if !parseUploadForm(w, r) {
		return
	}

	_, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		errorMsg := "No file provided"
		if errors.Is(err, http.ErrMissingFile) {
			errorMsg = "No file was selected. Please choose a file to upload."
		}
		writeError(w, errorMsg, http.StatusBadRequest)
		return
	}

	upload, err := readUpload(header)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		writeError(w, "Error reading file. Please try again.", http.StatusInternalServerError)
		return
	}

	analysis, err := s.service.Analyze(r.Context(), upload.Filename, upload.Data, upload.ContentType)
	if err != nil {
		slog.Error("Error analyzing image", "filename", upload.Filename, "error", err)
		writeError(w, err.Error(), statusFor(err))
		return
	}

	writeJSON(w, http.StatusCreated, analysis)
}

// handleAnalyzeBatch analyzes every uploaded file
func (s *Server) handleAnalyzeBatch(w http.ResponseWriter, r *http.Request) {
	if !parseUploadForm(w, r) {
		return
	}

	headers := r.MultipartForm.File["file"]
	if len(headers) == 0 {
		writeError(w, "No files provided", http.StatusBadRequest)
		return
	}

	uploads := make([]Upload, 0, len(headers))
	for _, header := range headers {
		upload, err := readUpload(header)
		if err != nil {
			slog.Error("Error reading file data", "error", err, "filename", header.Filename)
			writeError(w, "Error reading file. Please try again.", http.StatusInternalServerError)
			return
		}
		uploads = append(uploads, upload)
	}

	writeJSON(w, http.StatusOK, s.service.AnalyzeBatch(r.Context(), uploads))
}

// handleListAnalyses returns all analyses
func (s *Server) handleListAnalyses(w http.ResponseWriter, r *http.Request) {
	analyses, err := s.service.ListAnalyses()
	if err != nil {
		slog.Error("Error listing analyses", "error", err)
		writeError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, analyses)
}

// handleGetAnalysis returns a single analysis
func (s *Server) handleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	analysis, err := s.service.GetAnalysis(r.PathValue("id"))
	if err != nil {
		code := statusFor(err)
		if code == http.StatusNotFound {
			writeError(w, "Analysis not found", code)
			return
		}
		slog.Error("Error getting analysis", "error", err)
		writeError(w, "Internal server error", code)
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

// handleGetAnalysisFile returns the source image of an analysis
func (s *Server) handleGetAnalysisFile(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := s.service.GetAnalysisFile(r.PathValue("id"))
	if err != nil {
		code := statusFor(err)
		if code == http.StatusNotFound {
			writeError(w, "File not found", code)
			return
		}
		slog.Error("Error getting analysis file", "error", err)
		writeError(w, "Error reading file", code)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

// handleDeleteAnalysis deletes an analysis and its image
func (s *Server) handleDeleteAnalysis(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteAnalysis(r.PathValue("id")); err != nil {
		code := statusFor(err)
		if code == http.StatusNotFound {
			writeError(w, "Analysis not found", code)
			return
		}
		slog.Error("Error deleting analysis", "error", err)
		writeError(w, "Error deleting analysis", code)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type classifyRequest struct {
	Text     *string       `json:"text"`
	Document *ocr.Document `json:"document"`
}

// handleClassify classifies raw text or a provider result document
func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	var req classifyRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxUploadSize)).Decode(&req); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	switch {
	case req.Document != nil:
		writeJSON(w, http.StatusOK, s.service.ClassifyDocument(req.Document))
	case req.Text != nil:
		writeJSON(w, http.StatusOK, s.service.Classify(*req.Text))
	default:
		writeError(w, `Request needs "text" or "document"`, http.StatusBadRequest)
	}
}

// handleHealth reports liveness and the configured provider
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "ok",
		"provider": s.service.Provider(),
	})
}
