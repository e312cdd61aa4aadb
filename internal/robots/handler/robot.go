package handler

import (
	"net/http"

	"github.com/julienschmidt/httprouter"

	"robopay/internal/robots/service"
	"robopay/pkg/auth"
	apperrors "robopay/pkg/errors"
	httputil "robopay/pkg/http"
	"robopay/pkg/logger"
)

type RobotHandler struct {
	service service.RobotService
	log     *logger.Logger
}

func NewRobotHandler(service service.RobotService, log *logger.Logger) *RobotHandler {
	return &RobotHandler{
		service: service,
		log:     log,
	}
}

func (h *RobotHandler) Availability(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	availability, err := h.service.Availability(r.Context(), ps.ByName("robot_id"))
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Availability", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, availability); err != nil {
		h.log.Error("failed to write success response", "handler", "Availability", "operation", "WriteSuccess", "error", err)
	}
}

func (h *RobotHandler) Metrics(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	payer, ok := auth.PayerFromContext(r.Context())
	if !ok {
		if writeErr := httputil.WriteError(w, apperrors.Unauthorized("Authentication required")); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Metrics", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	metrics, err := h.service.Metrics(r.Context(), ps.ByName("robot_id"), payer)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Metrics", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, metrics); err != nil {
		h.log.Error("failed to write success response", "handler", "Metrics", "operation", "WriteSuccess", "error", err)
	}
}

func (h *RobotHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/api/v1/robots/:robot_id/availability", h.Availability)
	router.GET("/api/v1/robots/:robot_id/metrics", h.Metrics)
}
