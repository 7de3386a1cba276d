package dto

type WalletChallengeRequest struct {
	WalletAddress string `json:"wallet_address"`
}

type RegisterRequest struct {
	FullName      string `json:"full_name"`
	Email         string `json:"email"`
	Password      string `json:"password,omitempty"`
	WalletAddress string `json:"wallet_address,omitempty"`
	Signature     string `json:"signature,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type WalletLoginRequest struct {
	WalletAddress string `json:"wallet_address"`
	Signature     string `json:"signature"`
}

type SyncRoleRequest struct {
	WalletAddress string `json:"wallet_address"`
	Role          string `json:"role"`
}

type UpdateProfileRequest struct {
	FullName string `json:"full_name"`
	Email    string `json:"email"`
}

type PasswordRequest struct {
	Password string `json:"password"`
}

// WalletProofRequest carries a signature over the link preamble plus the
// nonce from POST /me/wallet/challenge.
type WalletProofRequest struct {
	WalletAddress string `json:"wallet_address"`
	Signature     string `json:"signature"`
}
