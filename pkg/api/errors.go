package api

import (
	"errors"
	"net/http"

	"speech-affect/pkg/asr"
	"speech-affect/pkg/audio"
	"speech-affect/pkg/pipeline"
	"speech-affect/pkg/scorer"
)

var (
	errMissingFile = errors.New("multipart field \"file\" is required")
	errEmptyFile   = errors.New("uploaded file is empty")
)

// ErrorResponse is the mapped form of a handler error.
type ErrorResponse struct {
	StatusCode int
	Code       string
	Message    string
}

// MapError maps pipeline and client errors to HTTP error responses.
func MapError(err error) ErrorResponse {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return ErrorResponse{
			StatusCode: http.StatusRequestEntityTooLarge,
			Code:       "PAYLOAD_TOO_LARGE",
			Message:    "upload exceeds the size limit",
		}
	case errors.Is(err, errMissingFile), errors.Is(err, errEmptyFile):
		return ErrorResponse{
			StatusCode: http.StatusBadRequest,
			Code:       "INVALID_REQUEST",
			Message:    err.Error(),
		}
	case errors.Is(err, audio.ErrUnsupportedAudio):
		return ErrorResponse{
			StatusCode: http.StatusUnsupportedMediaType,
			Code:       "UNSUPPORTED_AUDIO",
			Message:    "audio could not be decoded",
		}
	case errors.Is(err, scorer.ErrScorerUnavailable):
		return ErrorResponse{
			StatusCode: http.StatusServiceUnavailable,
			Code:       "SCORER_UNAVAILABLE",
			Message:    "emotion scorer unavailable",
		}
	case errors.Is(err, asr.ErrTranscriberUnavailable):
		return ErrorResponse{
			StatusCode: http.StatusServiceUnavailable,
			Code:       "TRANSCRIBER_UNAVAILABLE",
			Message:    "transcriber unavailable",
		}
	case errors.Is(err, pipeline.ErrQueueFull), errors.Is(err, pipeline.ErrShuttingDown):
		return ErrorResponse{
			StatusCode: http.StatusServiceUnavailable,
			Code:       "BUSY",
			Message:    "server is busy, retry later",
		}
	default:
		return ErrorResponse{
			StatusCode: http.StatusInternalServerError,
			Code:       "INTERNAL_ERROR",
			Message:    "internal server error",
		}
	}
}
