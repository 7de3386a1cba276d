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

type AccountAPI interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Account, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, fullName, email string) (*models.Account, error)
	ChangePassword(ctx context.Context, id uuid.UUID, password string) (*models.Account, error)
	IssueLinkChallenge(ctx context.Context, id uuid.UUID, walletAddress string) (*services.Challenge, error)
	ChangeWallet(ctx context.Context, id uuid.UUID, walletAddress, signature string) (*models.Account, error)
	SwitchToWallet(ctx context.Context, id uuid.UUID, walletAddress, signature string) (*models.Account, error)
	SwitchToPassword(ctx context.Context, id uuid.UUID, password string) (*models.Account, error)
}

// UserHandler serves the /me routes. Responses report the role of the
// current session, which may be lower than the stored one.
type UserHandler struct {
	accounts AccountAPI
	log      *zap.Logger
}

func NewUserHandler(accounts AccountAPI, log *zap.Logger) *UserHandler {
	return &UserHandler{accounts: accounts, log: log}
}

func (h *UserHandler) respond(c *fiber.Ctx, account *models.Account, err error) error {
	if err != nil {
		return writeError(c, h.log, err)
	}
	view := *account
	view.Role = sessionRole(c, account.Role)
	return c.JSON(dto.AccountResponse{Account: &view})
}

// sessionRole never reports more than the token grants.
func sessionRole(c *fiber.Ctx, stored string) string {
	if middleware.GetRole(c) == models.RoleAdmin && stored == models.RoleAdmin {
		return models.RoleAdmin
	}
	return models.RoleUser
}

// GET /me
func (h *UserHandler) GetMe(c *fiber.Ctx) error {
	account, err := h.accounts.Get(c.UserContext(), middleware.GetAccountID(c))
	return h.respond(c, account, err)
}

// PUT /me
func (h *UserHandler) UpdateMe(c *fiber.Ctx) error {
	var req dto.UpdateProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	account, err := h.accounts.UpdateProfile(c.UserContext(), middleware.GetAccountID(c), req.FullName, req.Email)
	return h.respond(c, account, err)
}

// POST /me/password
func (h *UserHandler) ChangePassword(c *fiber.Ctx) error {
	var req dto.PasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	account, err := h.accounts.ChangePassword(c.UserContext(), middleware.GetAccountID(c), req.Password)
	return h.respond(c, account, err)
}

// POST /me/wallet/challenge
func (h *UserHandler) WalletChallenge(c *fiber.Ctx) error {
	var req dto.WalletChallengeRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	ch, err := h.accounts.IssueLinkChallenge(c.UserContext(), middleware.GetAccountID(c), req.WalletAddress)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(challengeResponse(ch))
}

// POST /me/wallet
func (h *UserHandler) ChangeWallet(c *fiber.Ctx) error {
	var req dto.WalletProofRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	account, err := h.accounts.ChangeWallet(c.UserContext(), middleware.GetAccountID(c), req.WalletAddress, req.Signature)
	return h.respond(c, account, err)
}

// POST /me/switch/wallet
func (h *UserHandler) SwitchToWallet(c *fiber.Ctx) error {
	var req dto.WalletProofRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	account, err := h.accounts.SwitchToWallet(c.UserContext(), middleware.GetAccountID(c), req.WalletAddress, req.Signature)
	return h.respond(c, account, err)
}

// POST /me/switch/password
func (h *UserHandler) SwitchToPassword(c *fiber.Ctx) error {
	var req dto.PasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	account, err := h.accounts.SwitchToPassword(c.UserContext(), middleware.GetAccountID(c), req.Password)
	return h.respond(c, account, err)
}
