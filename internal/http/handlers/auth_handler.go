package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/otcdesk/backend/internal/http/dto"
	"github.com/otcdesk/backend/internal/middleware"
	"github.com/otcdesk/backend/internal/services"
)

type AuthHandler struct {
	accounts *services.AccountService
	log      *zap.Logger
}

func NewAuthHandler(accounts *services.AccountService, log *zap.Logger) *AuthHandler {
	return &AuthHandler{accounts: accounts, log: log}
}

// GeneratePayload returns a fresh TON Proof nonce for the wallet to sign.
func (h *AuthHandler) GeneratePayload(c *fiber.Ctx) error {
	payload, err := h.accounts.GeneratePayload(c.Context())
	if err != nil {
		h.log.Error("failed to generate proof payload", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal server error"})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: fiber.Map{"payload": payload}})
}

// Connect verifies a signed TON Proof and issues a JWT.
func (h *AuthHandler) Connect(c *fiber.Ctx) error {
	var req dto.ConnectRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}
	if req.Address == "" || req.PublicKey == "" || req.Proof.Payload == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "address, public_key and proof are required"})
	}

	account, token, err := h.accounts.Connect(c.Context(), services.ConnectRequest{
		Address:         req.Address,
		AddressFriendly: req.AddressFriendly,
		Network:         req.Network,
		PublicKey:       req.PublicKey,
		Proof:           req.Proof,
	})
	if err != nil {
		h.log.Debug("ton connect failed", zap.Error(err))
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: err.Error()})
	}

	return c.JSON(dto.AuthResponse{Token: token, Account: account})
}

func (h *AuthHandler) Disconnect(c *fiber.Ctx) error {
	address := middleware.GetAddress(c)
	if err := h.accounts.Disconnect(c.Context(), address); err != nil {
		h.log.Error("failed to disconnect account", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal server error"})
	}
	return c.JSON(dto.SuccessResponse{OK: true})
}
