package api

import "time"

// CredentialsRequest is the body of signup and login.
type CredentialsRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// AccountResponse describes the logged-in account.
type AccountResponse struct {
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionResponse is returned after a login.
type SessionResponse struct {
	Username string    `json:"username"`
	Expiry   time.Time `json:"expiry"`
}

// StatusResponse is returned by the health probes.
type StatusResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}
