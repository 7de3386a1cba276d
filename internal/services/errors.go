package services

import "github.com/insidebox/backend/internal/apperr"

var (
	ErrInvalidCredentials  = apperr.Authentication("invalid email or password")
	ErrWalletAccount       = apperr.Authentication("this account signs in with a wallet")
	ErrInvalidSignature    = apperr.Authentication("invalid signature")
	ErrAccountNotFound     = apperr.NotFound("account not found")
	ErrMissingCredential   = apperr.Validation("either password or wallet_address with signature is required")
	ErrBothCredentials     = apperr.Validation("provide either a password or a wallet, not both")
	ErrWalletFieldsMissing = apperr.Validation("wallet_address and signature are required")
	ErrInvalidWallet       = apperr.Validation("invalid wallet address")
	ErrInvalidEmail        = apperr.Validation("a valid email is required")
	ErrFullNameRequired    = apperr.Validation("full_name is required")
	ErrInvalidRole         = apperr.Validation("role must be user or admin")
	ErrEmailTaken          = apperr.Duplicate("email already registered")
	ErrWalletTaken         = apperr.Duplicate("wallet address already registered")
	ErrNotPasswordAccount  = apperr.Conflict("account does not use password sign-in")
	ErrNotWalletAccount    = apperr.Conflict("account does not use wallet sign-in")
	ErrRoleNotConfirmed    = apperr.Conflict("requested role is not confirmed by the admin registry")
	ErrAdminStillOnChain   = apperr.Conflict("revoke admin rights on-chain before deleting this account")
	ErrRevokeUnconfirmed   = apperr.Conflict("could not confirm on-chain revocation, try again later")
	ErrSelfDelete          = apperr.Conflict("admins cannot delete their own account")
)
