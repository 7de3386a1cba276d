package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/insidebox/backend/internal/models"
)

// AccountStore is the persistence surface the services need. Wallet
// arguments are always normalized before they reach the store.
type AccountStore interface {
	Create(ctx context.Context, a *models.Account) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	GetByWallet(ctx context.Context, wallet string) (*models.Account, error)
	List(ctx context.Context, limit, offset int) ([]models.Account, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, fullName, email string) (*models.Account, error)
	UpdatePassword(ctx context.Context, id uuid.UUID, hash string) (*models.Account, error)
	UpdateWallet(ctx context.Context, id uuid.UUID, wallet string) (*models.Account, error)
	SwitchToWallet(ctx context.Context, id uuid.UUID, wallet string) (*models.Account, error)
	SwitchToPassword(ctx context.Context, id uuid.UUID, hash string) (*models.Account, error)
	UpdateRole(ctx context.Context, id uuid.UUID, role string) (*models.Account, error)
	SetNonce(ctx context.Context, wallet, nonce string, expiresAt time.Time) (*models.Account, error)
	ConsumeNonce(ctx context.Context, id uuid.UUID, used string) (bool, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// ChallengeStore keeps single-use wallet challenges. subject names the
// identity a challenge belongs to; it is empty for registration.
type ChallengeStore interface {
	Issue(ctx context.Context, purpose, subject, wallet string, ttl time.Duration) (string, error)
	Consume(ctx context.Context, purpose, subject, wallet string) (string, error)
}

type AuditLogger interface {
	Log(ctx context.Context, entry models.AuditLog) error
}

type AuditReader interface {
	ListForAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]models.AuditLog, error)
}

type TokenIssuer interface {
	Issue(accountID uuid.UUID, role string) (string, error)
}

type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash *string, password string) bool
}
