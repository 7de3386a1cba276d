package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/insidebox/backend/internal/http/dto"
	"github.com/insidebox/backend/internal/services"
	"go.uber.org/zap"
)

type AuthAPI interface {
	IssueRegistrationChallenge(ctx context.Context, walletAddress string) (*services.Challenge, error)
	Register(ctx context.Context, in services.RegisterInput) (*services.AuthResult, error)
	LoginPassword(ctx context.Context, email, password string) (*services.AuthResult, error)
	IssueChallenge(ctx context.Context, walletAddress string) (*services.Challenge, error)
	LoginWallet(ctx context.Context, walletAddress, signature string) (*services.AuthResult, error)
}

type AuthHandler struct {
	auth AuthAPI
	log  *zap.Logger
}

func NewAuthHandler(auth AuthAPI, log *zap.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, log: log}
}

// RegisterChallenge issues the nonce a wallet signs to register.
// POST /auth/register/challenge
func (h *AuthHandler) RegisterChallenge(c *fiber.Ctx) error {
	var req dto.WalletChallengeRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	ch, err := h.auth.IssueRegistrationChallenge(c.UserContext(), req.WalletAddress)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(challengeResponse(ch))
}

// POST /auth/register
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req dto.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	res, err := h.auth.Register(c.UserContext(), services.RegisterInput{
		FullName:      req.FullName,
		Email:         req.Email,
		Password:      req.Password,
		WalletAddress: req.WalletAddress,
		Signature:     req.Signature,
	})
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.AuthResponse{Token: res.Token, Account: res.Account})
}

// POST /auth/login
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.Email == "" || req.Password == "" {
		return badRequest(c, "email and password are required")
	}

	res, err := h.auth.LoginPassword(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(dto.AuthResponse{Token: res.Token, Account: res.Account})
}

// Nonce issues a login challenge for a registered wallet.
// POST /auth/nonce
func (h *AuthHandler) Nonce(c *fiber.Ctx) error {
	var req dto.WalletChallengeRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	ch, err := h.auth.IssueChallenge(c.UserContext(), req.WalletAddress)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(challengeResponse(ch))
}

// POST /auth/login/wallet
func (h *AuthHandler) LoginWallet(c *fiber.Ctx) error {
	var req dto.WalletLoginRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.WalletAddress == "" || req.Signature == "" {
		return badRequest(c, "wallet_address and signature are required")
	}

	res, err := h.auth.LoginWallet(c.UserContext(), req.WalletAddress, req.Signature)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(dto.AuthResponse{Token: res.Token, Account: res.Account})
}

func challengeResponse(ch *services.Challenge) dto.ChallengeResponse {
	return dto.ChallengeResponse{Nonce: ch.Nonce, Message: ch.Message, ExpiresAt: ch.ExpiresAt}
}
