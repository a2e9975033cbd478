package api

import "time"

// RequestCodeRequest is the body of POST /request.
type RequestCodeRequest struct {
	Email  string `json:"email" validate:"required,email,max=320"`
	Resend bool   `json:"resend"`
}

// RequestCodeResponse is returned after a code has been issued. Code is only
// present when development-visible codes are enabled.
type RequestCodeResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// VerifyCodeRequest is the body of POST /verify.
type VerifyCodeRequest struct {
	Email string `json:"email" validate:"required,email,max=320"`
	Code  string `json:"code" validate:"required,numeric,min=4,max=10"`
}

// VerifyCodeResponse is returned by POST /verify, on success and failure.
type VerifyCodeResponse struct {
	Success  bool   `json:"success"`
	Verified bool   `json:"verified"`
	Message  string `json:"message"`
}

// RecentAction is one audit entry in a status response.
type RecentAction struct {
	Action    string    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	Verified       bool           `json:"verified"`
	RecentActions  []RecentAction `json:"recentActions"`
	Email          string         `json:"email"`
	RemainingSends int            `json:"remainingSends"`
}

// ErrorResponse is returned for rejected /request and /status calls.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
