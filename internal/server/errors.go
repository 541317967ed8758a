package server

import (
	"errors"
	"net/http"

	"github.com/attrib-app/attrib/internal/attribution"
	"github.com/attrib-app/attrib/internal/dataset"
	"github.com/attrib-app/attrib/internal/model"
)

// userMessage turns a domain error into the text shown on the page.
func userMessage(err error) string {
	switch {
	case errors.Is(err, model.ErrInputMissing):
		if errors.Is(err, errInputExpired) {
			return "Your upload has expired. Please upload the file again."
		}
		return "Upload a CSV file to get started."
	case errors.Is(err, dataset.ErrColumnNotFound):
		return "Check the column names: " + err.Error()
	case errors.Is(err, model.ErrInvalidInput):
		return "Invalid parameters: " + err.Error()
	case errors.Is(err, model.ErrComputation):
		return "The model could not be computed: " + err.Error()
	case errors.Is(err, attribution.ErrExport):
		return "Export failed: " + err.Error()
	}
	return ""
}

// reportError returns the user-facing message for err, logging anything
// that is not a known domain error.
func (s *Server) reportError(err error) string {
	if msg := userMessage(err); msg != "" {
		s.logger.Debug("run failed", "error", err)
		return msg
	}
	s.logger.Error("unexpected error", "error", err)
	return "Something went wrong. Check the server log for details."
}

// statusFor picks the status for plain HTTP responses. Domain errors are
// never reported as server failures.
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrInputMissing):
		return http.StatusConflict
	case errors.Is(err, dataset.ErrColumnNotFound), errors.Is(err, model.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrComputation), errors.Is(err, attribution.ErrExport):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}
