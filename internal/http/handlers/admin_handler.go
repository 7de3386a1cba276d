package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/insidebox/backend/internal/http/dto"
	"github.com/insidebox/backend/internal/middleware"
	"github.com/insidebox/backend/internal/models"
	"github.com/insidebox/backend/internal/services"
	"go.uber.org/zap"
)

type AdminAPI interface {
	ListAccounts(ctx context.Context, limit, offset int) ([]models.Account, error)
	SyncRole(ctx context.Context, actorID uuid.UUID, walletAddress, role string) (*models.Account, error)
	DeleteAccount(ctx context.Context, actorID, id uuid.UUID) error
	AccountTrail(ctx context.Context, id uuid.UUID, limit, offset int) ([]models.AuditLog, error)
}

// AdminHandler routes are mounted behind RequirePermission.
type AdminHandler struct {
	admin AdminAPI
	log   *zap.Logger
}

func NewAdminHandler(admin AdminAPI, log *zap.Logger) *AdminHandler {
	return &AdminHandler{admin: admin, log: log}
}

// PUT /admin/role
func (h *AdminHandler) SyncRole(c *fiber.Ctx) error {
	var req dto.SyncRoleRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.WalletAddress == "" || req.Role == "" {
		return badRequest(c, "wallet_address and role are required")
	}

	account, err := h.admin.SyncRole(c.UserContext(), middleware.GetAccountID(c), req.WalletAddress, req.Role)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(dto.AccountResponse{Account: account})
}

// GET /admin/accounts?limit=&offset=
func (h *AdminHandler) ListAccounts(c *fiber.Ctx) error {
	limit, offset := services.ClampPage(c.QueryInt("limit"), c.QueryInt("offset"))

	accounts, err := h.admin.ListAccounts(c.UserContext(), limit, offset)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(dto.AccountListResponse{Accounts: accounts, Limit: limit, Offset: offset})
}

// DELETE /admin/accounts/:id
func (h *AdminHandler) DeleteAccount(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid account id")
	}
	if err := h.admin.DeleteAccount(c.UserContext(), middleware.GetAccountID(c), id); err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true})
}

// GET /admin/accounts/:id/audit?limit=&offset=
func (h *AdminHandler) AccountAudit(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid account id")
	}
	limit, offset := services.ClampPage(c.QueryInt("limit"), c.QueryInt("offset"))

	entries, err := h.admin.AccountTrail(c.UserContext(), id, limit, offset)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(dto.AuditListResponse{Entries: entries, Limit: limit, Offset: offset})
}
