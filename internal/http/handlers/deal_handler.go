package handlers

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/otcdesk/backend/internal/http/dto"
	"github.com/otcdesk/backend/internal/middleware"
	"github.com/otcdesk/backend/internal/models"
	"github.com/otcdesk/backend/internal/repositories"
	"github.com/otcdesk/backend/internal/services"
)

type DealHandler struct {
	dealService *services.DealService
	log         *zap.Logger
}

func NewDealHandler(dealService *services.DealService, log *zap.Logger) *DealHandler {
	return &DealHandler{dealService: dealService, log: log}
}

// errStatus maps protocol errors to HTTP status codes.
func errStatus(err error) int {
	switch {
	case errors.Is(err, models.ErrUnauthorized):
		return fiber.StatusForbidden
	case errors.Is(err, models.ErrBadState), errors.Is(err, models.ErrTimeWindow):
		return fiber.StatusConflict
	default:
		return fiber.StatusBadRequest
	}
}

func (h *DealHandler) GetDeal(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid deal id"})
	}

	deal, err := h.dealService.GetDeal(c.Context(), id)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "deal not found"})
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.NewDealResponse(deal)})
}

func (h *DealHandler) ListDeals(c *fiber.Ctx) error {
	address := middleware.GetAddress(c)
	filter := repositories.DealFilter{
		Limit:  20,
		Offset: 0,
	}

	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := c.Query("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}
	if v := c.Query("status"); v != "" {
		filter.Status = &v
	}
	// Callers only see deals they are a side of.
	filter.Participant = &address

	deals, err := h.dealService.ListDeals(c.Context(), filter)
	if err != nil {
		h.log.Error("list deals failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}

	views := make([]dto.DealResponse, 0, len(deals))
	for i := range deals {
		views = append(views, dto.NewDealResponse(&deals[i]))
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: views})
}

func (h *DealHandler) Prolong(c *fiber.Ctx) error {
	dealID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid deal id"})
	}

	var req dto.ProlongRequest
	if err := c.BodyParser(&req); err != nil || req.WindowSeconds <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "window_seconds must be positive"})
	}

	actor := middleware.GetAddress(c)
	deal, err := h.dealService.Prolong(c.Context(), dealID, actor, time.Duration(req.WindowSeconds)*time.Second, req.Hash)
	if err != nil {
		return c.Status(errStatus(err)).JSON(dto.ErrorResponse{Error: err.Error()})
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.NewDealResponse(deal)})
}

func (h *DealHandler) Terminate(c *fiber.Ctx) error {
	dealID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid deal id"})
	}

	actor := middleware.GetAddress(c)
	deal, err := h.dealService.Terminate(c.Context(), dealID, actor)
	if err != nil {
		return c.Status(errStatus(err)).JSON(dto.ErrorResponse{Error: err.Error()})
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.NewDealResponse(deal)})
}

func (h *DealHandler) CloseOut(c *fiber.Ctx) error {
	dealID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid deal id"})
	}

	var req dto.CloseOutRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request"})
	}
	amount, err := models.ParseTON(req.AmountTON)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
	}

	actor := middleware.GetAddress(c)
	deal, err := h.dealService.CloseOut(c.Context(), dealID, actor, amount)
	if err != nil {
		return c.Status(errStatus(err)).JSON(dto.ErrorResponse{Error: err.Error()})
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.NewDealResponse(deal)})
}

func (h *DealHandler) Escalate(c *fiber.Ctx) error {
	dealID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid deal id"})
	}

	var req dto.EscalateRequest
	_ = c.BodyParser(&req)

	actor := middleware.GetAddress(c)
	deal, err := h.dealService.Escalate(c.Context(), dealID, actor, req.ClaimHash)
	if err != nil {
		return c.Status(errStatus(err)).JSON(dto.ErrorResponse{Error: err.Error()})
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.NewDealResponse(deal)})
}

func (h *DealHandler) Resolve(c *fiber.Ctx) error {
	dealID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid deal id"})
	}

	var req dto.ResolveRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request"})
	}
	award, err := models.ParseTON(req.SellerAwardTON)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
	}

	actor := middleware.GetAddress(c)
	deal, err := h.dealService.Resolve(c.Context(), dealID, actor, award, req.ResolutionHash)
	if err != nil {
		return c.Status(errStatus(err)).JSON(dto.ErrorResponse{Error: err.Error()})
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.NewDealResponse(deal)})
}

func (h *DealHandler) WithdrawSellerAsset(c *fiber.Ctx) error {
	return h.withdrawAsset(c, true)
}

func (h *DealHandler) WithdrawBuyerAsset(c *fiber.Ctx) error {
	return h.withdrawAsset(c, false)
}

func (h *DealHandler) withdrawAsset(c *fiber.Ctx, seller bool) error {
	dealID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid deal id"})
	}

	actor := middleware.GetAddress(c)
	var payout *models.Payout
	if seller {
		payout, err = h.dealService.WithdrawSellerAsset(c.Context(), dealID, actor)
	} else {
		payout, err = h.dealService.WithdrawBuyerAsset(c.Context(), dealID, actor)
	}
	if err != nil {
		return c.Status(errStatus(err)).JSON(dto.ErrorResponse{Error: err.Error()})
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: payout})
}

func (h *DealHandler) GetDealEvents(c *fiber.Ctx) error {
	dealID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid deal id"})
	}

	events, err := h.dealService.GetDealEvents(c.Context(), dealID)
	if err != nil {
		h.log.Error("get deal events failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: events})
}

func (h *DealHandler) GetArbitrator(c *fiber.Ctx) error {
	dealID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid deal id"})
	}

	arbitrator, assignedAt, err := h.dealService.GetAssignedArbitrator(c.Context(), dealID)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "no arbitrator assigned"})
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: fiber.Map{
		"arbitrator":  arbitrator,
		"assigned_at": assignedAt,
	}})
}
