package handler

import (
	"encoding/json"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"robopay/internal/payments/service"
	"robopay/pkg/auth"
	apperrors "robopay/pkg/errors"
	httputil "robopay/pkg/http"
	"robopay/pkg/logger"
	"robopay/pkg/model"
	"robopay/pkg/x402"
)

type PaymentHandler struct {
	service service.PaymentService
	log     *logger.Logger
}

func NewPaymentHandler(service service.PaymentService, log *logger.Logger) *PaymentHandler {
	return &PaymentHandler{
		service: service,
		log:     log,
	}
}

func (h *PaymentHandler) writeError(w http.ResponseWriter, handler string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handler, "operation", "WriteError", "error", writeErr)
	}
}

func (h *PaymentHandler) payer(w http.ResponseWriter, r *http.Request, handler string) (string, bool) {
	payer, ok := auth.PayerFromContext(r.Context())
	if !ok {
		h.writeError(w, handler, apperrors.Unauthorized("Authentication required"))
	}
	return payer, ok
}

func (h *PaymentHandler) Execute(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	payer, ok := h.payer(w, r, "Execute")
	if !ok {
		return
	}

	var req model.ExecuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "Execute", apperrors.InvalidInput("Invalid request body"))
		return
	}

	outcome, err := h.service.Execute(r.Context(), ps.ByName("robot_id"), payer, r.Header.Get(x402.HeaderSessionID), &req)
	if err != nil {
		h.writeError(w, "Execute", err)
		return
	}

	if outcome.Challenge != nil {
		if err := x402.Write(w, *outcome.Challenge); err != nil {
			h.log.Error("failed to write payment challenge", "handler", "Execute", "operation", "x402.Write", "error", err)
		}
		return
	}

	status := http.StatusOK
	if !outcome.Result.Success {
		status = http.StatusBadGateway
	}
	if err := httputil.WriteJSON(w, status, outcome.Result); err != nil {
		h.log.Error("failed to write JSON response", "handler", "Execute", "operation", "WriteJSON", "error", err)
	}
}

func (h *PaymentHandler) Verify(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	payer, ok := h.payer(w, r, "Verify")
	if !ok {
		return
	}

	var req model.VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "Verify", apperrors.InvalidInput("Invalid request body"))
		return
	}

	resp, err := h.service.Verify(r.Context(), payer, &req)
	if err != nil {
		h.writeError(w, "Verify", err)
		return
	}

	if err := httputil.WriteSuccess(w, resp); err != nil {
		h.log.Error("failed to write success response", "handler", "Verify", "operation", "WriteSuccess", "error", err)
	}
}

func (h *PaymentHandler) SessionStatus(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	payer, ok := h.payer(w, r, "SessionStatus")
	if !ok {
		return
	}

	view, err := h.service.SessionStatus(r.Context(), payer, ps.ByName("session_id"))
	if err != nil {
		h.writeError(w, "SessionStatus", err)
		return
	}

	if err := httputil.WriteSuccess(w, view); err != nil {
		h.log.Error("failed to write success response", "handler", "SessionStatus", "operation", "WriteSuccess", "error", err)
	}
}

func (h *PaymentHandler) CancelSession(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	payer, ok := h.payer(w, r, "CancelSession")
	if !ok {
		return
	}

	if err := h.service.CancelSession(r.Context(), payer, ps.ByName("session_id")); err != nil {
		h.writeError(w, "CancelSession", err)
		return
	}

	httputil.WriteNoContent(w)
}

func (h *PaymentHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/robots/:robot_id/execute", h.Execute)
	router.POST("/api/v1/payments/verify", h.Verify)
	router.GET("/api/v1/payments/sessions/:session_id", h.SessionStatus)
	router.DELETE("/api/v1/payments/sessions/:session_id", h.CancelSession)
}
