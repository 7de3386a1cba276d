package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/insidebox/backend/internal/models"
	"go.uber.org/zap"
)

const sweepPageSize = 100

type AdminRoster interface {
	ListByRole(ctx context.Context, role string, after uuid.UUID, limit int) ([]models.Account, error)
}

type SweepResult struct {
	Checked     int
	Demoted     int
	Unconfirmed int
}

// RoleSweeper re-checks every stored admin against the registry so that an
// on-chain revoke is reflected without waiting for that admin's next login.
// Tokens already issued stay valid until they expire.
type RoleSweeper struct {
	roster     AdminRoster
	reconciler *RoleReconciler
	log        *zap.Logger
}

func NewRoleSweeper(roster AdminRoster, reconciler *RoleReconciler, log *zap.Logger) *RoleSweeper {
	return &RoleSweeper{roster: roster, reconciler: reconciler, log: log}
}

func (s *RoleSweeper) Sweep(ctx context.Context) (SweepResult, error) {
	var (
		res   SweepResult
		after uuid.UUID
	)
	for {
		page, err := s.roster.ListByRole(ctx, models.RoleAdmin, after, sweepPageSize)
		if err != nil {
			return res, err
		}
		for i := range page {
			account := &page[i]
			after = account.ID
			if !account.HasWallet() {
				continue
			}
			res.Checked++
			if s.reconciler.Reconcile(ctx, account) == models.RoleAdmin {
				continue
			}
			if account.Role == models.RoleUser {
				res.Demoted++
			} else {
				res.Unconfirmed++
			}
		}
		if len(page) < sweepPageSize || ctx.Err() != nil {
			break
		}
	}

	s.log.Info("admin roster sweep finished",
		zap.Int("checked", res.Checked),
		zap.Int("demoted", res.Demoted),
		zap.Int("unconfirmed", res.Unconfirmed),
	)
	return res, ctx.Err()
}
