package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"
)

// CreateTokenRequest is the optional body of POST /api/access-token.
type CreateTokenRequest struct {
	Label string `json:"label"`
}

// CreateTokenResponse carries a freshly issued access token.
type CreateTokenResponse struct {
	Token string `json:"token"`
	Label string `json:"label,omitempty"`
}

func (s *Server) handleCreateToken(w http.ResponseWriter, r *http.Request) {
	var req CreateTokenRequest
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		JSONError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	token := uuid.NewString()
	if err := s.tokens.CreateAccessToken(r.Context(), token, req.Label); err != nil {
		s.logger.Error("create access token", "error", err)
		JSONError(w, "could not create access token", http.StatusInternalServerError)
		return
	}
	s.logger.Info("access token created", "label", req.Label)
	JSONResponseStatus(w, CreateTokenResponse{Token: token, Label: req.Label}, http.StatusCreated)
}

func (s *Server) handleDeleteToken(w http.ResponseWriter, r *http.Request) {
	existed, err := s.tokens.DeleteAccessToken(r.Context(), r.PathValue("token"))
	if err != nil {
		s.logger.Error("delete access token", "error", err)
		JSONError(w, "could not delete access token", http.StatusInternalServerError)
		return
	}
	if !existed {
		JSONError(w, "access token not found", http.StatusNotFound)
		return
	}
	NoContent(w)
}
