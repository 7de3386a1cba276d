package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/insidebox/backend/internal/apperr"
	"github.com/insidebox/backend/internal/auth"
	"github.com/insidebox/backend/internal/chain"
	"github.com/insidebox/backend/internal/events"
	"github.com/insidebox/backend/internal/models"
	"github.com/insidebox/backend/internal/repositories"
	"go.uber.org/zap"
)

// AccountService covers self-service profile and credential changes. Every
// credential switch leaves exactly one credential set and clears the nonce.
type AccountService struct {
	accounts   AccountStore
	challenges ChallengeStore
	hasher     PasswordHasher
	audit      AuditLogger
	publisher  events.Publisher
	settings   AuthSettings
	log        *zap.Logger
	now        func() time.Time
}

func NewAccountService(
	accounts AccountStore,
	challenges ChallengeStore,
	hasher PasswordHasher,
	audit AuditLogger,
	publisher events.Publisher,
	settings AuthSettings,
	log *zap.Logger,
) *AccountService {
	if settings.NonceTTL <= 0 {
		settings.NonceTTL = 5 * time.Minute
	}
	return &AccountService{
		accounts:   accounts,
		challenges: challenges,
		hasher:     hasher,
		audit:      audit,
		publisher:  publisher,
		settings:   settings,
		log:        log,
		now:        time.Now,
	}
}

func (s *AccountService) Get(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	account, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return account, nil
}

func (s *AccountService) UpdateProfile(ctx context.Context, id uuid.UUID, fullName, email string) (*models.Account, error) {
	fullName = strings.TrimSpace(fullName)
	if fullName == "" {
		return nil, ErrFullNameRequired
	}
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}

	if other, err := s.accounts.GetByEmail(ctx, email); err == nil && other.ID != id {
		return nil, ErrEmailTaken
	} else if err != nil && !errors.Is(err, repositories.ErrNotFound) {
		return nil, apperr.Internal(err)
	}

	account, err := s.accounts.UpdateProfile(ctx, id, fullName, email)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return account, nil
}

func (s *AccountService) ChangePassword(ctx context.Context, id uuid.UUID, password string) (*models.Account, error) {
	hash, err := s.hashPassword(password)
	if err != nil {
		return nil, err
	}

	account, err := s.accounts.UpdatePassword(ctx, id, hash)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, s.credentialMismatch(ctx, id, ErrNotPasswordAccount)
		}
		return nil, apperr.Internal(err)
	}

	s.credentialChanged(ctx, account, "password_changed")
	return account, nil
}

// IssueLinkChallenge returns the nonce a wallet must sign before it can be
// attached to account id. Only account id can redeem it.
func (s *AccountService) IssueLinkChallenge(ctx context.Context, id uuid.UUID, walletAddress string) (*Challenge, error) {
	wallet, err := chain.NormalizeAddress(walletAddress)
	if err != nil {
		return nil, ErrInvalidWallet
	}
	if _, err := s.accounts.GetByID(ctx, id); err != nil {
		return nil, mapStoreError(err)
	}

	nonce, err := s.challenges.Issue(ctx, repositories.PurposeLink, id.String(), wallet, s.settings.NonceTTL)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return &Challenge{
		Nonce:     nonce,
		Message:   s.settings.Preambles.Link + nonce,
		ExpiresAt: s.now().Add(s.settings.NonceTTL),
	}, nil
}

// ChangeWallet replaces the wallet of a wallet account. Admin status does not
// carry over to the new wallet.
func (s *AccountService) ChangeWallet(ctx context.Context, id uuid.UUID, walletAddress, signature string) (*models.Account, error) {
	wallet, err := s.verifyLink(ctx, id, walletAddress, signature)
	if err != nil {
		return nil, err
	}

	account, err := s.accounts.UpdateWallet(ctx, id, wallet)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, s.credentialMismatch(ctx, id, ErrNotWalletAccount)
		}
		return nil, mapStoreError(err)
	}

	s.credentialChanged(ctx, account, "wallet_changed")
	return account, nil
}

func (s *AccountService) SwitchToWallet(ctx context.Context, id uuid.UUID, walletAddress, signature string) (*models.Account, error) {
	wallet, err := s.verifyLink(ctx, id, walletAddress, signature)
	if err != nil {
		return nil, err
	}

	account, err := s.accounts.SwitchToWallet(ctx, id, wallet)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, s.credentialMismatch(ctx, id, ErrNotPasswordAccount)
		}
		return nil, mapStoreError(err)
	}

	s.credentialChanged(ctx, account, "switched_to_wallet")
	return account, nil
}

func (s *AccountService) SwitchToPassword(ctx context.Context, id uuid.UUID, password string) (*models.Account, error) {
	hash, err := s.hashPassword(password)
	if err != nil {
		return nil, err
	}

	account, err := s.accounts.SwitchToPassword(ctx, id, hash)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, s.credentialMismatch(ctx, id, ErrNotWalletAccount)
		}
		return nil, mapStoreError(err)
	}

	s.credentialChanged(ctx, account, "switched_to_password")
	return account, nil
}

func (s *AccountService) verifyLink(ctx context.Context, id uuid.UUID, walletAddress, signature string) (string, error) {
	if wallet, err := chain.NormalizeAddress(walletAddress); err == nil {
		if other, err := s.accounts.GetByWallet(ctx, wallet); err == nil && other.ID != id {
			return "", ErrWalletTaken
		} else if err != nil && !errors.Is(err, repositories.ErrNotFound) {
			return "", apperr.Internal(err)
		}
	}
	return verifyWalletOwnership(ctx, s.challenges, s.log, repositories.PurposeLink, id.String(), s.settings.Preambles.Link, walletAddress, signature)
}

func (s *AccountService) hashPassword(password string) (string, error) {
	if err := auth.ValidatePassword(password, s.settings.PasswordMinLength); err != nil {
		return "", passwordPolicyError(err)
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return "", apperr.Internal(err)
	}
	return hash, nil
}

// credentialMismatch tells a missing account apart from one whose current
// credential mode does not allow the change.
func (s *AccountService) credentialMismatch(ctx context.Context, id uuid.UUID, mismatch error) error {
	if _, err := s.accounts.GetByID(ctx, id); err != nil {
		return mapStoreError(err)
	}
	return mismatch
}

func (s *AccountService) credentialChanged(ctx context.Context, account *models.Account, action string) {
	s.log.Info("account credential changed",
		zap.String("account_id", account.ID.String()),
		zap.String("action", action),
		zap.String("method", account.AuthMethod()),
	)
	recordAudit(ctx, s.audit, s.log, models.AuditLog{
		ActorAccountID: &account.ID,
		ActorType:      models.ActorTypeAccount,
		Action:         action,
		EntityType:     "account",
		EntityID:       &account.ID,
		Meta:           map[string]any{"method": account.AuthMethod()},
	})
	publish(ctx, s.publisher, events.Event{
		Type: events.EventCredentialChanged,
		Payload: map[string]any{
			"account_id": account.ID.String(),
			"action":     action,
			"method":     account.AuthMethod(),
		},
	})
}
