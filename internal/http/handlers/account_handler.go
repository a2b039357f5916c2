package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/otcdesk/backend/internal/config"
	"github.com/otcdesk/backend/internal/http/dto"
	"github.com/otcdesk/backend/internal/middleware"
	"github.com/otcdesk/backend/internal/models"
	"github.com/otcdesk/backend/internal/services"
)

type AccountHandler struct {
	accounts *services.AccountService
	cfg      *config.Config
	log      *zap.Logger
}

func NewAccountHandler(accounts *services.AccountService, cfg *config.Config, log *zap.Logger) *AccountHandler {
	return &AccountHandler{accounts: accounts, cfg: cfg, log: log}
}

func (h *AccountHandler) Me(c *fiber.Ctx) error {
	address := middleware.GetAddress(c)
	account, err := h.accounts.GetAccount(c.Context(), address)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "account not found"})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: account})
}

// Balance reports the custody balance along with the hot wallet address
// deposits should be sent to.
func (h *AccountHandler) Balance(c *fiber.Ctx) error {
	address := middleware.GetAddress(c)
	account, err := h.accounts.GetAccount(c.Context(), address)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "account not found"})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.BalanceResponse{
		Address:    account.Address,
		BalanceTON: models.FormatTON(account.Balance),
		DepositTo:  h.cfg.TONHotWalletAddress,
	}})
}

func (h *AccountHandler) ListDeposits(c *fiber.Ctx) error {
	address := middleware.GetAddress(c)
	limit := 50
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	deposits, err := h.accounts.ListDeposits(c.Context(), address, limit)
	if err != nil {
		h.log.Error("list deposits failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: deposits})
}

// Withdraw queues a payout of free custody balance back to the caller's
// wallet.
func (h *AccountHandler) Withdraw(c *fiber.Ctx) error {
	var req dto.BalanceWithdrawRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request"})
	}
	amount, err := models.ParseTON(req.AmountTON)
	if err != nil || amount <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "amount_ton must be positive"})
	}

	address := middleware.GetAddress(c)
	payout, err := h.accounts.WithdrawBalance(c.Context(), address, amount)
	if err != nil {
		return c.Status(errStatus(err)).JSON(dto.ErrorResponse{Error: err.Error()})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: payout})
}
