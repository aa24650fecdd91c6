package server

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strconv"

	"github.com/acessivel/mobility/internal/docstore"
	mobilityerrors "github.com/acessivel/mobility/internal/errors"
)

type errorBody struct {
	Error     bool     `json:"error"`
	Message   string   `json:"message"`
	Code      int      `json:"code"`
	Kind      string   `json:"kind,omitempty"`
	Solutions []string `json:"solutions,omitempty"`
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("Failed to encode response", err)
	}
}

func (s *Server) respondMessage(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, errorBody{Error: true, Message: message, Code: status})
}

// respondError maps err to a status by kind: invalid input is the caller's
// fault, network failures are an upstream's.
func (s *Server) respondError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	body := errorBody{Error: true, Message: err.Error(), Code: status}

	var me *mobilityerrors.MobilityError
	if stderrors.As(err, &me) {
		body.Message = me.Message
		body.Kind = string(me.Type)
		body.Solutions = me.Solutions
	}

	if status >= 500 {
		s.log.Error("Request failed", err)
	}
	s.respondJSON(w, status, body)
}

func statusFor(err error) int {
	if stderrors.Is(err, docstore.ErrNotFound) {
		return http.StatusNotFound
	}
	switch mobilityerrors.TypeOf(err) {
	case mobilityerrors.ErrorTypeInvalidInput:
		return http.StatusBadRequest
	case mobilityerrors.ErrorTypeNetwork:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func invalidParam(service mobilityerrors.Service, name string) error {
	return mobilityerrors.InvalidInput(service, "invalid or missing parameter: "+name)
}

// floatParam parses a query parameter. Missing optional parameters are 0.
func floatParam(r *http.Request, service mobilityerrors.Service, name string, required bool) (float64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		if required {
			return 0, invalidParam(service, name)
		}
		return 0, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, invalidParam(service, name)
	}
	return v, nil
}

func intParam(r *http.Request, service mobilityerrors.Service, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, invalidParam(service, name)
	}
	return v, nil
}
