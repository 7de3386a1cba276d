package services

import (
	"context"
	"errors"
	"time"

	"github.com/insidebox/backend/internal/chain"
	"github.com/insidebox/backend/internal/events"
	"github.com/insidebox/backend/internal/models"
	"go.uber.org/zap"
)

// RoleReconciler treats the on-chain registry as the admin roster. It can
// confirm or revoke a local admin flag but never grants one.
type RoleReconciler struct {
	accounts  AccountStore
	authority chain.Authority
	timeout   time.Duration
	audit     AuditLogger
	publisher events.Publisher
	log       *zap.Logger
}

func NewRoleReconciler(
	accounts AccountStore,
	authority chain.Authority,
	timeout time.Duration,
	audit AuditLogger,
	publisher events.Publisher,
	log *zap.Logger,
) *RoleReconciler {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &RoleReconciler{
		accounts:  accounts,
		authority: authority,
		timeout:   timeout,
		audit:     audit,
		publisher: publisher,
		log:       log,
	}
}

// IsAdmin asks the registry with a bounded deadline. A timeout surfaces as
// chain.ErrAuthorityUnavailable.
func (r *RoleReconciler) IsAdmin(ctx context.Context, wallet string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	ok, err := r.authority.IsAdmin(ctx, wallet)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, chain.ErrAuthorityUnavailable) {
			err = errors.Join(chain.ErrAuthorityUnavailable, err)
		}
		return false, err
	}
	return ok, nil
}

// Reconcile resolves the role a new session may carry. Only accounts that
// claim admin are checked. A definitive "no" from the registry demotes the
// stored role; an unreachable registry yields user for this session and
// leaves the stored role for the next login to re-check.
func (r *RoleReconciler) Reconcile(ctx context.Context, account *models.Account) string {
	if account.Role != models.RoleAdmin {
		return models.RoleUser
	}
	if !account.HasWallet() {
		return models.RoleUser
	}

	isAdmin, err := r.IsAdmin(ctx, *account.WalletAddress)
	if err != nil {
		r.log.Warn("admin registry unreachable, session downgraded",
			zap.String("account_id", account.ID.String()),
			zap.Error(err),
		)
		return models.RoleUser
	}
	if isAdmin {
		return models.RoleAdmin
	}

	if _, err := r.accounts.UpdateRole(ctx, account.ID, models.RoleUser); err != nil {
		r.log.Error("failed to persist admin demotion",
			zap.String("account_id", account.ID.String()),
			zap.Error(err),
		)
		return models.RoleUser
	}
	account.Role = models.RoleUser

	r.log.Info("admin demoted by registry",
		zap.String("account_id", account.ID.String()),
		zap.String("wallet", *account.WalletAddress),
	)
	recordAudit(ctx, r.audit, r.log, models.AuditLog{
		ActorType:  models.ActorTypeSystem,
		Action:     "role_revoked_by_registry",
		EntityType: "account",
		EntityID:   &account.ID,
		Meta:       map[string]any{"wallet_address": *account.WalletAddress},
	})
	publish(ctx, r.publisher, events.Event{
		Type: events.EventRoleChanged,
		Payload: map[string]any{
			"account_id": account.ID.String(),
			"role":       models.RoleUser,
			"source":     "registry",
		},
	})
	return models.RoleUser
}
