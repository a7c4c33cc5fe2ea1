package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sourcehub/sourcehub/internal/usecase"
	"go.uber.org/zap"
)

type ErrorResponse struct {
	Code    string                `json:"code"`
	Message string                `json:"message"`
	Reasons []usecase.MergeReason `json:"reasons,omitempty"`
}

var statusByCode = map[string]int{
	"AUTHENTICATION_REQUIRED": http.StatusUnauthorized,
	"FORBIDDEN":               http.StatusForbidden,
	"NOT_FOUND":               http.StatusNotFound,
	"BAD_REQUEST":             http.StatusBadRequest,
	"PAYLOAD_TOO_LARGE":       http.StatusRequestEntityTooLarge,
	"CONFLICT":                http.StatusConflict,
}

// HandleError translates usecase errors into JSON error responses.
// Unknown errors are logged and reported as 500 without leaking details.
func HandleError(w http.ResponseWriter, log *zap.Logger, err error) {
	var blocked *usecase.MergeBlockedError
	if errors.As(err, &blocked) {
		WriteJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Code:    "MERGE_BLOCKED",
			Message: blocked.Error(),
			Reasons: blocked.Reasons,
		})
		return
	}

	var domainErr *usecase.DomainError
	if errors.As(err, &domainErr) {
		status, ok := statusByCode[domainErr.Code]
		if !ok {
			status = http.StatusInternalServerError
		}
		WriteJSON(w, status, ErrorResponse{Code: domainErr.Code, Message: domainErr.Message})
		return
	}

	log.Error("unhandled error", zap.Error(err))
	WriteJSON(w, http.StatusInternalServerError, ErrorResponse{
		Code:    "INTERNAL",
		Message: "internal server error",
	})
}

func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func DecodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return usecase.WrapError(usecase.ErrInvalidInput, err)
	}
	return nil
}
