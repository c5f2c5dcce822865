package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/therapycenter/phoneauth/internal/middleware"
	"github.com/therapycenter/phoneauth/internal/service"
)

// OTPService is the request and verify flow served over HTTP.
type OTPService interface {
	RequestOTP(ctx context.Context, phoneNumber string) error
	VerifyOTP(ctx context.Context, phoneNumber, code string) error
}

type OTPHandlers struct {
	otpService OTPService
	logger     *logrus.Logger
}

func NewOTPHandlers(otpService OTPService, logger *logrus.Logger) *OTPHandlers {
	return &OTPHandlers{
		otpService: otpService,
		logger:     logger,
	}
}

type RequestOTPRequest struct {
	PhoneNumber string `json:"phone_number"`
}

type VerifyOTPRequest struct {
	PhoneNumber string `json:"phone_number"`
	OTP         string `json:"otp"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type ErrorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

const (
	msgOTPSent     = "OTP sent successfully!"
	msgOTPVerified = "OTP verified successfully"
)

func (h *OTPHandlers) RequestOTP(w http.ResponseWriter, r *http.Request) {
	var req RequestOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}

	if err := h.otpService.RequestOTP(r.Context(), req.PhoneNumber); err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, MessageResponse{Message: msgOTPSent})
}

func (h *OTPHandlers) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req VerifyOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}

	if err := h.otpService.VerifyOTP(r.Context(), req.PhoneNumber, req.OTP); err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, MessageResponse{Message: msgOTPVerified})
}

// Order matters: ErrUserNotFound also matches ErrNoPendingOTP.
var outcomes = []struct {
	err     error
	status  int
	code    string
	message string
}{
	{service.ErrNotRegistered, http.StatusBadRequest, "NOT_REGISTERED", "Registration is required. Phone number is not registered."},
	{service.ErrInvalidFormat, http.StatusBadRequest, "INVALID_OTP", "OTP is invalid"},
	{service.ErrUserNotFound, http.StatusBadRequest, "USER_NOT_FOUND", "User is not registered"},
	{service.ErrNoPendingOTP, http.StatusBadRequest, "NO_PENDING_OTP", "User hasn't OTP"},
	{service.ErrExpired, http.StatusBadRequest, "OTP_EXPIRED", "OTP expired"},
	{service.ErrMismatch, http.StatusBadRequest, "OTP_INCORRECT", "OTP is incorrect"},
	{service.ErrDeliveryFailed, http.StatusBadGateway, "SMS_DELIVERY_FAILED", "Failed to send OTP. Please try again."},
}

func (h *OTPHandlers) respondWithServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var validationErr *service.ValidationError
	if errors.As(err, &validationErr) {
		h.respondWithError(w, http.StatusBadRequest, "INVALID_PHONE", validationErr.Message)
		return
	}

	for _, o := range outcomes {
		if errors.Is(err, o.err) {
			h.respondWithError(w, o.status, o.code, o.message)
			return
		}
	}

	h.logger.WithError(err).WithFields(logrus.Fields{
		"request_id": middleware.RequestID(r.Context()),
		"path":       r.URL.Path,
	}).Error("OTP request failed")
	h.respondWithError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
}

func (h *OTPHandlers) respondWithJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.WithError(err).Warn("Failed to write response")
	}
}

func (h *OTPHandlers) respondWithError(w http.ResponseWriter, status int, code, message string) {
	h.respondWithJSON(w, status, ErrorResponse{Message: message, Code: code})
}

// Register mounts the OTP routes on router.
func (h *OTPHandlers) Register(router *mux.Router) {
	router.HandleFunc("/api/users/otp/request", h.RequestOTP).Methods(http.MethodPost, http.MethodOptions)
	router.HandleFunc("/api/users/otp/verify", h.VerifyOTP).Methods(http.MethodPost, http.MethodOptions)
}
