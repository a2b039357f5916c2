package handlers

import (
	"context"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/otcdesk/backend/internal/http/dto"
	"github.com/otcdesk/backend/internal/middleware"
	"github.com/otcdesk/backend/internal/models"
	"github.com/otcdesk/backend/internal/services"
)

type DeskHandler struct {
	deskService *services.DeskService
	log         *zap.Logger
}

func NewDeskHandler(deskService *services.DeskService, log *zap.Logger) *DeskHandler {
	return &DeskHandler{deskService: deskService, log: log}
}

func (h *DeskHandler) GetDesk(c *fiber.Ctx) error {
	desk, err := h.deskService.GetDesk(c.Context())
	if err != nil {
		h.log.Error("get desk failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.NewDeskResponse(desk)})
}

// NewDeal opens an escrowed deal funded from the seller's custody balance.
func (h *DeskHandler) NewDeal(c *fiber.Ctx) error {
	var req dto.NewDealRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request"})
	}
	if req.Buyer == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "buyer is required"})
	}

	price, err := models.ParseTON(req.PriceTON)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
	}
	attached, err := models.ParseTON(req.AttachedTON)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
	}

	seller := middleware.GetAddress(c)
	deal, err := h.deskService.NewDeal(c.Context(), seller, services.NewDealInput{
		Buyer:         req.Buyer,
		SellerPartner: req.SellerPartner,
		BuyerPartner:  req.BuyerPartner,
		PriceNano:     price,
		BuyerIsTaker:  req.BuyerIsTaker,
		AttachedNano:  attached,
		PaymentWindow: time.Duration(req.PaymentWindowSeconds) * time.Second,
		DataHashes:    req.DataHashes,
	})
	if err != nil {
		return c.Status(errStatus(err)).JSON(dto.ErrorResponse{Error: err.Error()})
	}

	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: dto.NewDealResponse(deal)})
}

// Contribute moves funds from the caller's custody balance into the
// closeout credit pool.
func (h *DeskHandler) Contribute(c *fiber.Ctx) error {
	var req dto.ContributeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request"})
	}
	amount, err := models.ParseTON(req.AmountTON)
	if err != nil || amount <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "amount_ton must be positive"})
	}

	caller := middleware.GetAddress(c)
	if err := h.deskService.Contribute(c.Context(), caller, amount); err != nil {
		return c.Status(errStatus(err)).JSON(dto.ErrorResponse{Error: err.Error()})
	}

	return c.JSON(dto.SuccessResponse{OK: true})
}

// Withdraw pays out accumulated fees to the beneficiary. Zero or missing
// amount empties the fund.
func (h *DeskHandler) Withdraw(c *fiber.Ctx) error {
	var req dto.DeskWithdrawRequest
	_ = c.BodyParser(&req)

	var amount int64
	if req.AmountTON != "" {
		var err error
		amount, err = models.ParseTON(req.AmountTON)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
		}
	}

	caller := middleware.GetAddress(c)
	payout, err := h.deskService.Withdraw(c.Context(), caller, amount)
	if err != nil {
		return c.Status(errStatus(err)).JSON(dto.ErrorResponse{Error: err.Error()})
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: payout})
}

func (h *DeskHandler) SetBeneficiary(c *fiber.Ctx) error {
	return h.setAddress(c, h.deskService.SetBeneficiary)
}

func (h *DeskHandler) SetArbitrationManager(c *fiber.Ctx) error {
	return h.setAddress(c, h.deskService.SetArbitrationManager)
}

func (h *DeskHandler) TransferOwnership(c *fiber.Ctx) error {
	return h.setAddress(c, h.deskService.TransferOwnership)
}

func (h *DeskHandler) setAddress(c *fiber.Ctx, fn func(ctx context.Context, caller, address string) error) error {
	var req dto.SetAddressRequest
	if err := c.BodyParser(&req); err != nil || req.Address == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "address is required"})
	}

	caller := middleware.GetAddress(c)
	if err := fn(c.Context(), caller, req.Address); err != nil {
		return c.Status(errStatus(err)).JSON(dto.ErrorResponse{Error: err.Error()})
	}
	return c.JSON(dto.SuccessResponse{OK: true})
}

func (h *DeskHandler) SetCloseoutCredit(c *fiber.Ctx) error {
	var req dto.SetCloseoutCreditRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request"})
	}
	amount, err := models.ParseTON(req.AmountTON)
	if err != nil || amount < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "amount_ton must be non-negative"})
	}

	caller := middleware.GetAddress(c)
	if err := h.deskService.SetCloseoutCredit(c.Context(), caller, amount); err != nil {
		return c.Status(errStatus(err)).JSON(dto.ErrorResponse{Error: err.Error()})
	}
	return c.JSON(dto.SuccessResponse{OK: true})
}

func (h *DeskHandler) AddArbitrator(c *fiber.Ctx) error {
	var req dto.AddArbitratorRequest
	if err := c.BodyParser(&req); err != nil || req.Address == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "address is required"})
	}

	caller := middleware.GetAddress(c)
	if err := h.deskService.AddArbitrator(c.Context(), caller, req.Address); err != nil {
		return c.Status(errStatus(err)).JSON(dto.ErrorResponse{Error: err.Error()})
	}
	return c.JSON(dto.SuccessResponse{OK: true})
}

func (h *DeskHandler) RemoveArbitrator(c *fiber.Ctx) error {
	index, err := strconv.Atoi(c.Params("index"))
	if err != nil || index < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid pool index"})
	}

	caller := middleware.GetAddress(c)
	if err := h.deskService.RemoveArbitrator(c.Context(), caller, index); err != nil {
		return c.Status(errStatus(err)).JSON(dto.ErrorResponse{Error: err.Error()})
	}
	return c.JSON(dto.SuccessResponse{OK: true})
}

func (h *DeskHandler) AssignArbitrator(c *fiber.Ctx) error {
	var req dto.AssignArbitratorRequest
	if err := c.BodyParser(&req); err != nil || req.Arbitrator == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "arbitrator is required"})
	}
	dealID, err := uuid.Parse(req.DealID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid deal_id"})
	}

	caller := middleware.GetAddress(c)
	if err := h.deskService.AssignArbitrator(c.Context(), caller, dealID, req.Arbitrator); err != nil {
		return c.Status(errStatus(err)).JSON(dto.ErrorResponse{Error: err.Error()})
	}
	return c.JSON(dto.SuccessResponse{OK: true})
}
