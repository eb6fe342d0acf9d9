package api

import (
	"encoding/json"
	"net/http"

	"github.com/mdobak/go-xerrors"
	"go.uber.org/zap"
)

type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorBody struct {
	Error     ErrorInfo `json:"error"`
	RequestID string    `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// respondError maps err, logs it at a level matching the status and writes
// the JSON error body.
func (h *Handlers) respondError(w http.ResponseWriter, r *http.Request, err error) {
	resp := MapError(err)
	reqID := RequestIDFrom(r.Context())

	fields := []zap.Field{
		zap.String("request_id", reqID),
		zap.String("code", resp.Code),
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		err := xerrors.New(err)
		h.log.Error("request failed", append(fields, zap.Error(err))...)
	} else {
		h.log.Warn("request rejected", append(fields, zap.Error(err))...)
	}

	writeJSON(w, resp.StatusCode, errorBody{
		Error:     ErrorInfo{Code: resp.Code, Message: resp.Message},
		RequestID: reqID,
	})
}
