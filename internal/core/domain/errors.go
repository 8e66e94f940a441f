package domain

import (
	"errors"
	"fmt"
)

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrTemporary        = errors.New("temporary failure")

	ErrTransport          = errors.New("remote call failed")
	ErrRecognitionFailed  = errors.New("recognition failed")
	ErrPollTimeout        = errors.New("recognition timed out")
	ErrValidationRejected = errors.New("correction rejected")
	ErrSubmissionRejected = errors.New("bookkeeping submission rejected")
	ErrAlreadySubmitted   = errors.New("document already submitted")
	ErrBusy               = errors.New("another operation is in progress")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// UserMessage turns an operation error into the advisory string shown to the operator.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case IsKind(err, ErrInvalidInput):
		return "Please select a valid file: " + err.Error()
	case IsKind(err, ErrRecognitionFailed):
		return "An error occurred during OCR processing"
	case IsKind(err, ErrPollTimeout):
		return "Processing timed out; the document may still complete later"
	case IsKind(err, ErrSubmissionRejected):
		return "ERP submission failed: " + err.Error()
	case IsKind(err, ErrAlreadySubmitted):
		return "Document was already sent to ERP"
	case IsKind(err, ErrBusy):
		return "Please wait for the current operation to finish"
	default:
		return "Request failed: " + err.Error()
	}
}
