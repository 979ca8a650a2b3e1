package httpserver

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/console-auth/internal/errs"
)

const (
	msgUnauthorized       = "unauthorized"
	msgInvalidCredentials = "invalid credentials"
	msgInternal           = "internal error"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 1 << 20

type errorBody struct {
	Success    bool              `json:"success"`
	Error      string            `json:"error"`
	Fields     map[string]string `json:"fields,omitempty"`
	RetryAfter int               `json:"retryAfter,omitempty"`
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dest any) error {
	if r.Body == nil {
		return errs.NewValidation("body", "request body required")
	}
	defer r.Body.Close()

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		return errs.NewValidation("body", "malformed JSON: "+err.Error())
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, errorBody{Error: msg})
}

func retrySeconds(d time.Duration) int {
	s := int(math.Ceil(d.Seconds()))
	if s < 1 {
		s = 1
	}
	return s
}

// writeError is the single boundary translator from the error taxonomy to HTTP.
// unauthorized is the message used for authentication and authorization failures.
func writeError(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error, unauthorized string) {
	var (
		ve *errs.ValidationError
		ce *errs.ConflictError
		re *errs.RateLimitError
	)
	switch {
	case errors.As(err, &re):
		secs := retrySeconds(re.RetryAfter)
		w.Header().Set("Retry-After", strconv.Itoa(secs))
		respondJSON(w, http.StatusTooManyRequests, errorBody{Error: "too many requests", RetryAfter: secs})
	case errors.As(err, &ve):
		respondJSON(w, http.StatusBadRequest, errorBody{Error: "validation failed", Fields: ve.Fields})
	case errors.As(err, &ce):
		respondJSON(w, http.StatusBadRequest, errorBody{Error: ce.Error(), Fields: map[string]string{ce.Field: "already exists"}})
	case errors.Is(err, errs.ErrValidation):
		respondError(w, http.StatusBadRequest, "validation failed")
	case errors.Is(err, errs.ErrUnauthorized), errors.Is(err, errs.ErrForbidden), errors.Is(err, errs.ErrTokenReused):
		respondError(w, http.StatusUnauthorized, unauthorized)
	case errors.Is(err, errs.ErrNotFound):
		respondError(w, http.StatusNotFound, "not found")
	default:
		log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		respondError(w, http.StatusInternalServerError, msgInternal)
	}
}
