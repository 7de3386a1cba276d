package dto

import "time"

type AuthResponse struct {
	Token   string `json:"token"`
	Account any    `json:"account"`
}

type AccountResponse struct {
	Account any `json:"account"`
}

type ChallengeResponse struct {
	Nonce     string    `json:"nonce"`
	Message   string    `json:"message"`
	ExpiresAt time.Time `json:"expires_at"`
}

type AccountListResponse struct {
	Accounts any `json:"accounts"`
	Limit    int `json:"limit"`
	Offset   int `json:"offset"`
}

type AuditListResponse struct {
	Entries any `json:"entries"`
	Limit   int `json:"limit"`
	Offset  int `json:"offset"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

type SuccessResponse struct {
	OK   bool `json:"ok"`
	Data any  `json:"data,omitempty"`
}
