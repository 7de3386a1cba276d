package services

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/insidebox/backend/internal/apperr"
	"github.com/insidebox/backend/internal/auth"
	"github.com/insidebox/backend/internal/chain"
	"github.com/insidebox/backend/internal/events"
	"github.com/insidebox/backend/internal/models"
	"github.com/insidebox/backend/internal/repositories"
	"go.uber.org/zap"
)

// Preambles are the fixed prefixes of every signed challenge. The nonce is
// appended verbatim.
type Preambles struct {
	Login        string
	Registration string
	Link         string
}

type AuthSettings struct {
	Preambles         Preambles
	NonceTTL          time.Duration
	PasswordMinLength int
}

type Challenge struct {
	Nonce     string    `json:"nonce"`
	Message   string    `json:"message"`
	ExpiresAt time.Time `json:"expires_at"`
}

type AuthResult struct {
	Token   string          `json:"token"`
	Account *models.Account `json:"account"`
}

type RegisterInput struct {
	FullName      string
	Email         string
	Password      string
	WalletAddress string
	Signature     string
}

type AuthService struct {
	accounts   AccountStore
	challenges ChallengeStore
	reconciler *RoleReconciler
	tokens     TokenIssuer
	hasher     PasswordHasher
	audit      AuditLogger
	publisher  events.Publisher
	settings   AuthSettings
	log        *zap.Logger
	now        func() time.Time
}

func NewAuthService(
	accounts AccountStore,
	challenges ChallengeStore,
	reconciler *RoleReconciler,
	tokens TokenIssuer,
	hasher PasswordHasher,
	audit AuditLogger,
	publisher events.Publisher,
	settings AuthSettings,
	log *zap.Logger,
) *AuthService {
	if settings.NonceTTL <= 0 {
		settings.NonceTTL = 5 * time.Minute
	}
	return &AuthService{
		accounts:   accounts,
		challenges: challenges,
		reconciler: reconciler,
		tokens:     tokens,
		hasher:     hasher,
		audit:      audit,
		publisher:  publisher,
		settings:   settings,
		log:        log,
		now:        time.Now,
	}
}

func (s *AuthService) LoginMessage(nonce string) string {
	return s.settings.Preambles.Login + nonce
}

func (s *AuthService) RegistrationMessage(nonce string) string {
	return s.settings.Preambles.Registration + nonce
}

// IssueRegistrationChallenge hands out the nonce a new wallet must sign to
// register. It is single use and expires after NonceTTL.
func (s *AuthService) IssueRegistrationChallenge(ctx context.Context, walletAddress string) (*Challenge, error) {
	wallet, err := chain.NormalizeAddress(walletAddress)
	if err != nil {
		return nil, ErrInvalidWallet
	}

	nonce, err := s.challenges.Issue(ctx, repositories.PurposeRegister, "", wallet, s.settings.NonceTTL)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return &Challenge{
		Nonce:     nonce,
		Message:   s.RegistrationMessage(nonce),
		ExpiresAt: s.now().Add(s.settings.NonceTTL),
	}, nil
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	fullName := strings.TrimSpace(in.FullName)
	if fullName == "" {
		return nil, ErrFullNameRequired
	}
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}

	usesPassword := in.Password != ""
	usesWallet := strings.TrimSpace(in.WalletAddress) != "" || strings.TrimSpace(in.Signature) != ""
	switch {
	case usesPassword && usesWallet:
		return nil, ErrBothCredentials
	case !usesPassword && !usesWallet:
		return nil, ErrMissingCredential
	}

	if _, err := s.accounts.GetByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, repositories.ErrNotFound) {
		return nil, apperr.Internal(err)
	}

	account := &models.Account{
		FullName: fullName,
		Email:    email,
		Role:     models.RoleUser,
	}

	if usesPassword {
		if err := auth.ValidatePassword(in.Password, s.settings.PasswordMinLength); err != nil {
			return nil, passwordPolicyError(err)
		}
		hash, err := s.hasher.Hash(in.Password)
		if err != nil {
			return nil, apperr.Internal(err)
		}
		account.PasswordHash = &hash
	} else {
		if wallet, err := chain.NormalizeAddress(in.WalletAddress); err == nil {
			if _, err := s.accounts.GetByWallet(ctx, wallet); err == nil {
				return nil, ErrWalletTaken
			} else if !errors.Is(err, repositories.ErrNotFound) {
				return nil, apperr.Internal(err)
			}
		}
		wallet, err := verifyWalletOwnership(ctx, s.challenges, s.log, repositories.PurposeRegister, "",
			s.settings.Preambles.Registration, in.WalletAddress, in.Signature)
		if err != nil {
			return nil, err
		}
		account.WalletAddress = &wallet
	}

	if err := s.accounts.Create(ctx, account); err != nil {
		return nil, mapStoreError(err)
	}

	s.log.Info("account registered",
		zap.String("account_id", account.ID.String()),
		zap.String("method", account.AuthMethod()),
	)
	recordAudit(ctx, s.audit, s.log, models.AuditLog{
		ActorAccountID: &account.ID,
		ActorType:      models.ActorTypeAccount,
		Action:         "account_registered",
		EntityType:     "account",
		EntityID:       &account.ID,
		Meta:           map[string]any{"method": account.AuthMethod()},
	})
	publish(ctx, s.publisher, events.Event{
		Type: events.EventAccountRegistered,
		Payload: map[string]any{
			"account_id": account.ID.String(),
			"method":     account.AuthMethod(),
		},
	})

	return s.session(account, models.RoleUser)
}

// LoginPassword never asserts admin: a password identity is not tied to the
// registry, so the session role is always user.
func (s *AuthService) LoginPassword(ctx context.Context, email, password string) (*AuthResult, error) {
	account, err := s.accounts.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			s.hasher.Compare(nil, password)
			return nil, ErrInvalidCredentials
		}
		return nil, apperr.Internal(err)
	}

	if !account.HasPassword() {
		s.hasher.Compare(nil, password)
		return nil, ErrWalletAccount
	}

	if !s.hasher.Compare(account.PasswordHash, password) {
		s.log.Debug("password mismatch", zap.String("account_id", account.ID.String()))
		return nil, ErrInvalidCredentials
	}

	recordAudit(ctx, s.audit, s.log, models.AuditLog{
		ActorAccountID: &account.ID,
		ActorType:      models.ActorTypeAccount,
		Action:         "login_password",
		EntityType:     "account",
		EntityID:       &account.ID,
	})
	return s.session(account, models.RoleUser)
}

// IssueChallenge stores a fresh login nonce on the wallet's account,
// displacing any outstanding one.
func (s *AuthService) IssueChallenge(ctx context.Context, walletAddress string) (*Challenge, error) {
	wallet, err := chain.NormalizeAddress(walletAddress)
	if err != nil {
		return nil, ErrInvalidWallet
	}

	nonce, err := repositories.GenerateNonce()
	if err != nil {
		return nil, apperr.Internal(err)
	}
	expiresAt := s.now().Add(s.settings.NonceTTL)

	if _, err := s.accounts.SetNonce(ctx, wallet, nonce, expiresAt); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, apperr.Internal(err)
	}

	return &Challenge{Nonce: nonce, Message: s.LoginMessage(nonce), ExpiresAt: expiresAt}, nil
}

// LoginWallet verifies a signature over the stored login challenge. The
// nonce is consumed on every attempt, and the conditional consume is what
// decides success: of several requests presenting one nonce only the first
// to consume it can pass.
func (s *AuthService) LoginWallet(ctx context.Context, walletAddress, signature string) (*AuthResult, error) {
	wallet, err := chain.NormalizeAddress(walletAddress)
	if err != nil {
		return nil, ErrInvalidWallet
	}

	account, err := s.accounts.GetByWallet(ctx, wallet)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, apperr.Internal(err)
	}

	var nonce string
	if account.Nonce != nil {
		nonce = *account.Nonce
	}

	recovered, verifyErr := chain.RecoverAddress(s.LoginMessage(nonce), signature)

	live, err := s.accounts.ConsumeNonce(ctx, account.ID, nonce)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, apperr.Internal(err)
	}

	switch {
	case nonce == "":
		s.log.Debug("wallet login without challenge", zap.String("account_id", account.ID.String()))
		return nil, ErrInvalidSignature
	case verifyErr != nil:
		s.log.Debug("wallet login malformed signature", zap.String("account_id", account.ID.String()), zap.Error(verifyErr))
		return nil, ErrInvalidSignature
	case recovered != wallet:
		s.log.Debug("wallet login signer mismatch", zap.String("account_id", account.ID.String()))
		return nil, ErrInvalidSignature
	case !live:
		s.log.Info("wallet login with consumed or expired nonce", zap.String("account_id", account.ID.String()))
		return nil, ErrInvalidSignature
	}

	role := s.reconciler.Reconcile(ctx, account)

	recordAudit(ctx, s.audit, s.log, models.AuditLog{
		ActorAccountID: &account.ID,
		ActorType:      models.ActorTypeAccount,
		Action:         "login_wallet",
		EntityType:     "account",
		EntityID:       &account.ID,
		Meta:           map[string]any{"role": role},
	})
	return s.session(account, role)
}

// verifyWalletOwnership consumes the challenge subject holds for purpose and
// checks that signature over preamble+nonce was made by walletAddress.
func verifyWalletOwnership(ctx context.Context, challenges ChallengeStore, log *zap.Logger, purpose, subject, preamble, walletAddress, signature string) (string, error) {
	if strings.TrimSpace(walletAddress) == "" || strings.TrimSpace(signature) == "" {
		return "", ErrWalletFieldsMissing
	}
	wallet, err := chain.NormalizeAddress(walletAddress)
	if err != nil {
		return "", ErrInvalidWallet
	}

	nonce, err := challenges.Consume(ctx, purpose, subject, wallet)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			log.Debug("no outstanding challenge", zap.String("purpose", purpose), zap.String("wallet", wallet))
			return "", ErrInvalidSignature
		}
		return "", apperr.Internal(err)
	}

	recovered, err := chain.RecoverAddress(preamble+nonce, signature)
	if err != nil || recovered != wallet {
		return "", ErrInvalidSignature
	}
	return wallet, nil
}

// session mints a token for role and returns a copy of the account that
// reports the session role rather than the stored one.
func (s *AuthService) session(account *models.Account, role string) (*AuthResult, error) {
	token, err := s.tokens.Issue(account.ID, role)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	view := *account
	view.Role = role
	return &AuthResult{Token: token, Account: &view}, nil
}

func normalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}

func passwordPolicyError(err error) error {
	switch {
	case errors.Is(err, auth.ErrPasswordTooShort):
		return apperr.Validation("password is too short")
	case errors.Is(err, auth.ErrPasswordTooLong):
		return apperr.Validation("password must be at most 72 bytes")
	default:
		return apperr.Validation("invalid password")
	}
}

func mapStoreError(err error) error {
	switch {
	case errors.Is(err, repositories.ErrDuplicateEmail):
		return ErrEmailTaken
	case errors.Is(err, repositories.ErrDuplicateWallet):
		return ErrWalletTaken
	case errors.Is(err, repositories.ErrNotFound):
		return ErrAccountNotFound
	default:
		return apperr.Internal(err)
	}
}
