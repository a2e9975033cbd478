package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/jinzhu/copier"
	"github.com/tendant/simple-verify/pkg/audit"
	"github.com/tendant/simple-verify/pkg/emailverification"
)

const (
	msgCodeSent           = "Verification code sent"
	msgVerified           = "Email verified successfully"
	msgInvalidBody        = "Invalid request body"
	msgUserNotFound       = "No account found for this email address"
	msgAlreadyVerified    = "Email is already verified"
	msgRateLimited        = "Too many verification emails sent. Please try again later"
	msgInvalidCode        = "Invalid or expired verification code"
	msgServiceUnavailable = "Verification is temporarily unavailable. Please try again"
	msgInternal           = "An error occurred while processing the request"
)

// VerificationService is the part of emailverification.Service the handler
// calls.
type VerificationService interface {
	RequestCode(ctx context.Context, email string, isResend bool) (*emailverification.RequestResult, error)
	VerifyCode(ctx context.Context, email, code string) (*emailverification.VerifyResult, error)
	GetStatus(ctx context.Context, email string) (*emailverification.StatusResult, error)
}

// Handler serves the email verification endpoints.
type Handler struct {
	service  VerificationService
	validate *validator.Validate
}

// NewHandler creates a new email verification API handler
func NewHandler(service VerificationService) *Handler {
	return &Handler{
		service:  service,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Routes returns a router with the verification endpoints, meant to be
// mounted under /api/email-verification.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(audit.ClientInfoMiddleware)
	r.Post("/request", h.RequestCode)
	r.Post("/verify", h.VerifyCode)
	r.Get("/status", h.GetStatus)
	return r
}

// RequestCode handles POST /request
func (h *Handler) RequestCode(w http.ResponseWriter, r *http.Request) {
	var req RequestCodeRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.service.RequestCode(r.Context(), req.Email, req.Resend)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, RequestCodeResponse{
		Success: true,
		Message: msgCodeSent,
		Code:    result.Code,
	})
}

// VerifyCode handles POST /verify. A malformed code for a valid address is
// still passed to the service so the attempt is audited as failed.
func (h *Handler) VerifyCode(w http.ResponseWriter, r *http.Request) {
	var req VerifyCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.ErrorContext(r.Context(), "Failed to decode request body", "error", err)
		h.rejectVerify(w, r, http.StatusBadRequest, msgInvalidBody)
		return
	}
	if err := h.validate.Struct(&req); err != nil && !codeOnly(err) {
		h.rejectVerify(w, r, http.StatusBadRequest, validationMessage(err))
		return
	}

	result, err := h.service.VerifyCode(r.Context(), req.Email, req.Code)
	if err != nil {
		status, message := h.classify(r, err)
		h.rejectVerify(w, r, status, message)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, VerifyCodeResponse{
		Success:  true,
		Verified: result.Verified,
		Message:  msgVerified,
	})
}

func (h *Handler) rejectVerify(w http.ResponseWriter, r *http.Request, status int, message string) {
	render.Status(r, status)
	render.JSON(w, r, VerifyCodeResponse{Message: message})
}

// GetStatus handles GET /status?email=
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if err := h.validate.Var(email, "required,email,max=320"); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{Message: "A valid email query parameter is required"})
		return
	}

	status, err := h.service.GetStatus(r.Context(), email)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	resp := StatusResponse{
		Verified:       status.Verified,
		Email:          status.Email,
		RemainingSends: status.RemainingSends,
		RecentActions:  []RecentAction{},
	}
	if len(status.RecentActions) > 0 {
		if err := copier.Copy(&resp.RecentActions, &status.RecentActions); err != nil {
			slog.Error("Failed to map recent actions", "error", err)
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, ErrorResponse{Message: msgInternal})
			return
		}
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, resp)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		slog.Error("Failed to decode request body", "error", err)
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{Message: msgInvalidBody})
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{Message: validationMessage(err)})
		return false
	}
	return true
}

func (h *Handler) renderError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := h.classify(r, err)
	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{Message: message})
}

// classify maps err to a response status and message, logging server-side
// failures.
func (h *Handler) classify(r *http.Request, err error) (int, string) {
	status, message := errorStatus(err)
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "Email verification request failed", "path", r.URL.Path, "error", err)
	}
	return status, message
}

func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, emailverification.ErrUserNotFound):
		return http.StatusNotFound, msgUserNotFound
	case errors.Is(err, emailverification.ErrAlreadyVerified):
		return http.StatusConflict, msgAlreadyVerified
	case errors.Is(err, emailverification.ErrRateLimited):
		return http.StatusTooManyRequests, msgRateLimited
	case errors.Is(err, emailverification.ErrInvalidOrExpiredToken):
		return http.StatusBadRequest, msgInvalidCode
	case errors.Is(err, emailverification.ErrPersistence):
		return http.StatusServiceUnavailable, msgServiceUnavailable
	default:
		return http.StatusInternalServerError, msgInternal
	}
}

// codeOnly reports whether every validation failure is on the code field.
func codeOnly(err error) bool {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return false
	}
	for _, fe := range verrs {
		if fe.Field() != "Code" {
			return false
		}
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return msgInvalidBody
	}
	switch verrs[0].Field() {
	case "Email":
		return "A valid email address is required"
	case "Code":
		return "A numeric verification code is required"
	default:
		return msgInvalidBody
	}
}
