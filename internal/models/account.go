package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

const (
	AuthMethodPassword = "password"
	AuthMethodWallet   = "wallet"
)

// Account holds exactly one credential: PasswordHash or WalletAddress.
type Account struct {
	ID             uuid.UUID  `json:"id"`
	FullName       string     `json:"full_name"`
	Email          string     `json:"email"`
	PasswordHash   *string    `json:"-"`
	WalletAddress  *string    `json:"wallet_address,omitempty"`
	Nonce          *string    `json:"-"`
	NonceExpiresAt *time.Time `json:"-"`
	Role           string     `json:"role"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (a *Account) AuthMethod() string {
	if a.WalletAddress != nil {
		return AuthMethodWallet
	}
	return AuthMethodPassword
}

func (a *Account) HasPassword() bool {
	return a.PasswordHash != nil && *a.PasswordHash != ""
}

func (a *Account) HasWallet() bool {
	return a.WalletAddress != nil && *a.WalletAddress != ""
}

func IsValidRole(role string) bool {
	return role == RoleUser || role == RoleAdmin
}
