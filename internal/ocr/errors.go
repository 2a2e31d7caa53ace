package ocr

import "fmt"

// UnsupportedInputError is returned when a payload is not an image the
// providers can read. It is raised before any network call.
type UnsupportedInputError struct {
	ContentType string
	Err         error
}

func (e *UnsupportedInputError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("unsupported input %q: %v", e.ContentType, e.Err)
	}
	return fmt.Sprintf("unsupported input %q: not an image", e.ContentType)
}

func (e *UnsupportedInputError) Unwrap() error {
	return e.Err
}

// SubmissionError wraps a transport or provider failure while submitting
// an image or polling an operation
type SubmissionError struct {
	Op  string
	Err error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

// AnalysisFailedError is returned when the provider reports a failed operation
type AnalysisFailedError struct {
	Handle Handle
}

func (e *AnalysisFailedError) Error() string {
	return fmt.Sprintf("ocr operation failed: %s", e.Handle)
}
