package file

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/radif/uploader/internal/response"
)

var (
	// ErrNotFound is returned when no record matches the public id or secret.
	ErrNotFound = errors.New("file not found")
	// ErrInvalidInput is returned when an upload cannot be stored as given.
	ErrInvalidInput = errors.New("invalid upload")
	// ErrConversion is returned when the uploaded stream could not be fully read.
	ErrConversion = errors.New("failed to read uploaded file")
	// ErrTooLarge is returned when an upload exceeds the configured size limit.
	ErrTooLarge = errors.New("file too large")
	// ErrBackendUnavailable is returned when the blob store failed.
	ErrBackendUnavailable = errors.New("storage backend unavailable")
	// ErrCorruptRecord is returned when a stored blob cannot be decoded.
	ErrCorruptRecord = errors.New("stored file is corrupt")
	// ErrInconsistent is returned when a record exists but its blob does not.
	ErrInconsistent = errors.New("stored file is missing")
	// ErrDatabase is returned when a metadata operation fails for any reason
	// other than a missing record.
	ErrDatabase = errors.New("database error")
	// ErrIDCollision is returned when a generated identifier is already taken.
	ErrIDCollision = errors.New("generated identifier already in use")
)

// errorStatuses maps each error kind to the status and message shown to clients.
var errorStatuses = []struct {
	err     error
	status  int
	message string
}{
	{ErrNotFound, http.StatusNotFound, "file not found"},
	{ErrInvalidInput, http.StatusBadRequest, "invalid upload"},
	{ErrConversion, http.StatusBadRequest, "failed to read uploaded file"},
	{ErrTooLarge, http.StatusRequestEntityTooLarge, "file too large"},
	{ErrBackendUnavailable, http.StatusBadGateway, "storage backend unavailable"},
	{ErrCorruptRecord, http.StatusInternalServerError, "stored file is corrupt"},
	{ErrInconsistent, http.StatusInternalServerError, "stored file is missing"},
	{ErrDatabase, http.StatusInternalServerError, "database error"},
}

// StatusFor returns the HTTP status and client message for err.
func StatusFor(err error) (int, string) {
	for _, e := range errorStatuses {
		if errors.Is(err, e.err) {
			return e.status, e.message
		}
	}
	return http.StatusInternalServerError, "internal server error"
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := StatusFor(err)
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed",
			"method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	response.Error(w, status, message)
}
