package api

import (
	"net/http"

	"go.uber.org/zap"

	"eventrental/internal/service"
)

type AdminAuthHandler struct {
	service service.AdminAuthService
	logger  *zap.Logger
}

func NewAdminAuthHandler(svc service.AdminAuthService, logger *zap.Logger) *AdminAuthHandler {
	return &AdminAuthHandler{service: svc, logger: logger}
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token string `json:"token"`
}

func (h *AdminAuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	token, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, LoginResponse{Token: token})
}
