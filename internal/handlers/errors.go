package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jason-s-yu/ohhell/engine"
	"github.com/jason-s-yu/ohhell/internal/auth"
	"github.com/jason-s-yu/ohhell/internal/game"
)

// Error types carried in the "type" field of error bodies.
const (
	ErrTypeInvalidConfiguration = "invalid_configuration"
	ErrTypeInvalidBid           = "invalid_bid"
	ErrTypeOutOfTurn            = "out_of_turn"
	ErrTypeTrickCountMismatch   = "trick_count_mismatch"
	ErrTypeIllegalTransition    = "illegal_transition"
	ErrTypeAlreadyCompleted     = "already_completed"
	ErrTypeNotFound             = "not_found"
	ErrTypeForbidden            = "forbidden"
	ErrTypeUnauthorized         = "unauthorized"
	ErrTypeBadRequest           = "bad_request"
	ErrTypeInternal             = "internal_error"
)

// ErrorBody is the JSON body of every error response.
type ErrorBody struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// classify maps an error to its HTTP status and error type. Order matters:
// ErrAlreadyCompleted also matches ErrIllegalTransition.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, engine.ErrAlreadyCompleted):
		return http.StatusConflict, ErrTypeAlreadyCompleted
	case errors.Is(err, engine.ErrInvalidConfiguration):
		return http.StatusBadRequest, ErrTypeInvalidConfiguration
	case errors.Is(err, engine.ErrInvalidBid):
		return http.StatusBadRequest, ErrTypeInvalidBid
	case errors.Is(err, engine.ErrTrickCountMismatch):
		return http.StatusBadRequest, ErrTypeTrickCountMismatch
	case errors.Is(err, engine.ErrOutOfTurn):
		return http.StatusConflict, ErrTypeOutOfTurn
	case errors.Is(err, engine.ErrIllegalTransition):
		return http.StatusConflict, ErrTypeIllegalTransition
	case errors.Is(err, engine.ErrNotFound):
		return http.StatusNotFound, ErrTypeNotFound
	case errors.Is(err, game.ErrForbidden):
		return http.StatusForbidden, ErrTypeForbidden
	case errors.Is(err, auth.ErrBadPassword), errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized, ErrTypeUnauthorized
	default:
		return http.StatusInternalServerError, ErrTypeInternal
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, errType, message string) {
	writeJSON(w, status, ErrorBody{Type: errType, Message: message})
}

// fail writes err as an error response. Internal errors hide their message.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, errType := classify(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.log.WithError(err).WithField("path", r.URL.Path).Error("Request failed.")
		msg = "internal server error"
	}
	writeError(w, status, errType, msg)
}
