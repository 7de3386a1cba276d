package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/insidebox/backend/internal/apperr"
	"github.com/insidebox/backend/internal/chain"
	"github.com/insidebox/backend/internal/events"
	"github.com/insidebox/backend/internal/models"
	"github.com/insidebox/backend/internal/repositories"
	"go.uber.org/zap"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// AdminService holds the privileged write paths. Callers must already hold
// a verified admin session; the registry is consulted again for every
// role change or deletion.
type AdminService struct {
	accounts   AccountStore
	reconciler *RoleReconciler
	audit      AuditLogger
	trail      AuditReader
	publisher  events.Publisher
	log        *zap.Logger
}

func NewAdminService(
	accounts AccountStore,
	reconciler *RoleReconciler,
	audit AuditLogger,
	trail AuditReader,
	publisher events.Publisher,
	log *zap.Logger,
) *AdminService {
	return &AdminService{
		accounts:   accounts,
		reconciler: reconciler,
		audit:      audit,
		trail:      trail,
		publisher:  publisher,
		log:        log,
	}
}

// ClampPage bounds list paging: limit defaults to 50 and is capped at 200,
// offset is never negative.
func ClampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func (s *AdminService) ListAccounts(ctx context.Context, limit, offset int) ([]models.Account, error) {
	limit, offset = ClampPage(limit, offset)
	accounts, err := s.accounts.List(ctx, limit, offset)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if accounts == nil {
		accounts = []models.Account{}
	}
	return accounts, nil
}

// AccountTrail returns audit entries about or performed by the account.
// The trail outlives the account, so a deleted id is not an error.
func (s *AdminService) AccountTrail(ctx context.Context, id uuid.UUID, limit, offset int) ([]models.AuditLog, error) {
	limit, offset = ClampPage(limit, offset)
	entries, err := s.trail.ListForAccount(ctx, id, limit, offset)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if entries == nil {
		entries = []models.AuditLog{}
	}
	return entries, nil
}

// SyncRole records a grant or revoke that was made on-chain. The requested
// role is only written when the registry agrees with it, so a caller cannot
// elevate an account by assertion.
func (s *AdminService) SyncRole(ctx context.Context, actorID uuid.UUID, walletAddress, role string) (*models.Account, error) {
	if !models.IsValidRole(role) {
		return nil, ErrInvalidRole
	}
	wallet, err := chain.NormalizeAddress(walletAddress)
	if err != nil {
		return nil, ErrInvalidWallet
	}

	account, err := s.accounts.GetByWallet(ctx, wallet)
	if err != nil {
		return nil, mapStoreError(err)
	}

	onChain, err := s.reconciler.IsAdmin(ctx, wallet)
	if err != nil {
		s.log.Warn("role sync could not reach admin registry",
			zap.String("wallet", wallet),
			zap.Error(err),
		)
		return nil, ErrRoleNotConfirmed
	}
	if onChain != (role == models.RoleAdmin) {
		s.log.Info("role sync rejected by registry",
			zap.String("wallet", wallet),
			zap.String("requested_role", role),
			zap.Bool("registry_admin", onChain),
		)
		return nil, ErrRoleNotConfirmed
	}

	if account.Role == role {
		return account, nil
	}
	previous := account.Role

	account, err = s.accounts.UpdateRole(ctx, account.ID, role)
	if err != nil {
		return nil, mapStoreError(err)
	}

	s.log.Info("account role synced",
		zap.String("account_id", account.ID.String()),
		zap.String("actor_id", actorID.String()),
		zap.String("role", role),
	)
	recordAudit(ctx, s.audit, s.log, models.AuditLog{
		ActorAccountID: &actorID,
		ActorType:      models.ActorTypeAdmin,
		Action:         "role_synced",
		EntityType:     "account",
		EntityID:       &account.ID,
		Meta: map[string]any{
			"wallet_address": wallet,
			"from":           previous,
			"to":             role,
		},
	})
	publish(ctx, s.publisher, events.Event{
		Type: events.EventRoleChanged,
		Payload: map[string]any{
			"account_id": account.ID.String(),
			"role":       role,
			"source":     "sync",
		},
	})
	return account, nil
}

// DeleteAccount removes an account once the registry confirms its wallet no
// longer holds admin rights. A stored admin whose revocation cannot be
// confirmed is kept.
func (s *AdminService) DeleteAccount(ctx context.Context, actorID, id uuid.UUID) error {
	if actorID == id {
		return ErrSelfDelete
	}

	account, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return mapStoreError(err)
	}

	if account.HasWallet() {
		onChain, err := s.reconciler.IsAdmin(ctx, *account.WalletAddress)
		switch {
		case err != nil && account.Role == models.RoleAdmin:
			s.log.Warn("admin deletion blocked, registry unreachable",
				zap.String("account_id", id.String()),
				zap.Error(err),
			)
			return ErrRevokeUnconfirmed
		case err != nil:
			s.log.Warn("deleting wallet account without registry check",
				zap.String("account_id", id.String()),
				zap.Error(err),
			)
		case onChain:
			return ErrAdminStillOnChain
		}
	}

	if err := s.accounts.Delete(ctx, id); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrAccountNotFound
		}
		return apperr.Internal(err)
	}

	s.log.Info("account deleted",
		zap.String("account_id", id.String()),
		zap.String("actor_id", actorID.String()),
	)
	recordAudit(ctx, s.audit, s.log, models.AuditLog{
		ActorAccountID: &actorID,
		ActorType:      models.ActorTypeAdmin,
		Action:         "account_deleted",
		EntityType:     "account",
		EntityID:       &id,
		Meta: map[string]any{
			"email": account.Email,
			"role":  account.Role,
		},
	})
	publish(ctx, s.publisher, events.Event{
		Type: events.EventAccountDeleted,
		Payload: map[string]any{
			"account_id": id.String(),
		},
	})
	return nil
}
