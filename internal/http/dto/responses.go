package dto

import (
	"time"

	"github.com/otcdesk/backend/internal/models"
)

type AuthResponse struct {
	Token   string `json:"token"`
	Account any    `json:"account"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

type SuccessResponse struct {
	OK   bool `json:"ok"`
	Data any  `json:"data,omitempty"`
}

// DealResponse mirrors the deal with human-friendly TON amounts alongside
// the raw nano values.
type DealResponse struct {
	*models.Deal
	PriceTON       string `json:"price_ton"`
	DeskFeeTON     string `json:"desk_fee_ton"`
	EscrowTON      string `json:"escrow_ton"`
	SellerAssetTON string `json:"seller_asset_ton"`
	BuyerAssetTON  string `json:"buyer_asset_ton"`
}

func NewDealResponse(d *models.Deal) DealResponse {
	return DealResponse{
		Deal:           d,
		PriceTON:       models.FormatTON(d.Price),
		DeskFeeTON:     models.FormatTON(d.DeskFee),
		EscrowTON:      models.FormatTON(d.Escrow),
		SellerAssetTON: models.FormatTON(d.SellerAsset),
		BuyerAssetTON:  models.FormatTON(d.BuyerAsset),
	}
}

type DeskResponse struct {
	Beneficiary        string    `json:"beneficiary"`
	ArbitrationManager string    `json:"arbitration_manager"`
	FundTON            string    `json:"fund_ton"`
	CreditPoolTON      string    `json:"credit_pool_ton"`
	CloseoutCreditTON  string    `json:"closeout_credit_ton"`
	ArbitratorsPool    []string  `json:"arbitrators_pool"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func NewDeskResponse(dk *models.Desk) DeskResponse {
	return DeskResponse{
		Beneficiary:        dk.Beneficiary,
		ArbitrationManager: dk.ArbitrationManager,
		FundTON:            models.FormatTON(dk.Fund),
		CreditPoolTON:      models.FormatTON(dk.CreditPool),
		CloseoutCreditTON:  models.FormatTON(dk.CloseoutCredit),
		ArbitratorsPool:    dk.ArbitratorsPool,
		UpdatedAt:          dk.UpdatedAt,
	}
}

type BalanceResponse struct {
	Address    string `json:"address"`
	BalanceTON string `json:"balance_ton"`
	DepositTo  string `json:"deposit_to"` // hot wallet address
}
