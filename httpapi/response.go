package httpapi

import (
	"encoding/json"
	"net/http"

	goMFA "github.com/MrEthical07/goMFA"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

const (
	messageUnauthorized   = "Please sign in first"
	messageMethodRequired = "Multi-factor authentication is required"
)

type errorBody struct {
	Errors []string `json:"errors"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Errors: []string{message}})
}

// statusFor maps engine errors to a status and a client-safe message.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, goMFA.ErrInvalidMethod), errors.Is(err, goMFA.ErrMethodNotRegistered):
		return http.StatusBadRequest, goMFA.MessageNoSuchMethod
	case errors.Is(err, goMFA.ErrInvalidSession), errors.Is(err, goMFA.ErrEncoding):
		return http.StatusBadRequest, goMFA.MessageInvalidSession
	case errors.Is(err, goMFA.ErrMethodRequired):
		return http.StatusForbidden, messageMethodRequired
	case errors.Is(err, goMFA.ErrVerificationLocked):
		return http.StatusTooManyRequests, goMFA.MessageLocked
	case errors.Is(err, goMFA.ErrMemberNotFound):
		return http.StatusUnauthorized, messageUnauthorized
	default:
		return http.StatusInternalServerError, goMFA.MessageUnexpected
	}
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := statusFor(err)
	if status == http.StatusInternalServerError {
		a.logger.Error("mfa request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeMessage(w, status, message)
}
