package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/therapycenter/phoneauth/internal/service"
	"github.com/therapycenter/phoneauth/internal/sms"
)

type stubService struct {
	err         error
	phoneNumber string
	code        string
}

func (s *stubService) RequestOTP(_ context.Context, phoneNumber string) error {
	s.phoneNumber = phoneNumber
	return s.err
}

func (s *stubService) VerifyOTP(_ context.Context, phoneNumber, code string) error {
	s.phoneNumber = phoneNumber
	s.code = code
	return s.err
}

func newRouter(svc OTPService) *mux.Router {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	router := mux.NewRouter()
	NewOTPHandlers(svc, logger).Register(router)
	return router
}

func do(t *testing.T, router http.Handler, path, body string) (*httptest.ResponseRecorder, ErrorResponse) {
	t.Helper()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, strings.NewReader(body)))

	var resp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return rec, resp
}

func TestRequestOTPHandler(t *testing.T) {
	cases := []struct {
		name       string
		body       string
		err        error
		wantStatus int
		wantMsg    string
	}{
		{name: "sent", body: `{"phone_number":"09121234567"}`, wantStatus: http.StatusOK, wantMsg: "OTP sent successfully!"},
		{name: "bad json", body: `{`, wantStatus: http.StatusBadRequest, wantMsg: "Invalid request body"},
		{
			name:       "validation",
			body:       `{"phone_number":"12a"}`,
			err:        &service.ValidationError{Field: "phone_number", Message: "Phone number is invalid"},
			wantStatus: http.StatusBadRequest,
			wantMsg:    "Phone number is invalid",
		},
		{
			name:       "delivery failed",
			body:       `{"phone_number":"09121234567"}`,
			err:        fmt.Errorf("%w: %w", service.ErrDeliveryFailed, &sms.DeliveryError{StatusCode: 500}),
			wantStatus: http.StatusBadGateway,
			wantMsg:    "Failed to send OTP. Please try again.",
		},
		{
			name:       "crypto",
			body:       `{"phone_number":"09121234567"}`,
			err:        fmt.Errorf("%w: bad key", service.ErrCrypto),
			wantStatus: http.StatusInternalServerError,
			wantMsg:    "Internal server error",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := newRouter(&stubService{err: tc.err})

			rec, resp := do(t, router, "/api/users/otp/request", tc.body)
			if rec.Code != tc.wantStatus {
				t.Fatalf("expected status %d, got %d", tc.wantStatus, rec.Code)
			}
			if resp.Message != tc.wantMsg {
				t.Fatalf("expected message %q, got %q", tc.wantMsg, resp.Message)
			}
		})
	}
}

func TestVerifyOTPHandler(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		status  int
		code    string
		message string
	}{
		{name: "verified", status: http.StatusOK, message: "OTP verified successfully"},
		{name: "not registered", err: service.ErrNotRegistered, status: 400, code: "NOT_REGISTERED", message: "Registration is required. Phone number is not registered."},
		{name: "format", err: service.ErrInvalidFormat, status: 400, code: "INVALID_OTP", message: "OTP is invalid"},
		{name: "user removed", err: service.ErrUserNotFound, status: 400, code: "USER_NOT_FOUND", message: "User is not registered"},
		{name: "no otp", err: service.ErrNoPendingOTP, status: 400, code: "NO_PENDING_OTP", message: "User hasn't OTP"},
		{name: "expired", err: service.ErrExpired, status: 400, code: "OTP_EXPIRED", message: "OTP expired"},
		{name: "mismatch", err: service.ErrMismatch, status: 400, code: "OTP_INCORRECT", message: "OTP is incorrect"},
		{name: "storage", err: errors.New("connection reset"), status: 500, code: "INTERNAL_ERROR", message: "Internal server error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubService{err: tc.err}
			router := newRouter(svc)

			rec, resp := do(t, router, "/api/users/otp/verify", `{"phone_number":"09121234567","otp":"123456"}`)
			if rec.Code != tc.status {
				t.Fatalf("expected status %d, got %d", tc.status, rec.Code)
			}
			if resp.Message != tc.message || resp.Code != tc.code {
				t.Fatalf("expected %q/%q, got %q/%q", tc.message, tc.code, resp.Message, resp.Code)
			}
			if svc.phoneNumber != "09121234567" || svc.code != "123456" {
				t.Fatalf("request fields not passed through: %+v", svc)
			}
		})
	}
}

func TestRoutesRejectOtherMethods(t *testing.T) {
	router := newRouter(&stubService{})

	for _, path := range []string{"/api/users/otp/request", "/api/users/otp/verify"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Fatalf("%s: expected 405, got %d", path, rec.Code)
		}
	}
}
