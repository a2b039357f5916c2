package events

import "context"

// Event types. Deal lifecycle events mirror the protocol records; desk
// events cover fee and credit movement.
const (
	EventDealCreation          = "deal_creation"
	EventDeadlineProlongation  = "payment_deadline_prolongation"
	EventTermination           = "termination"
	EventCloseoutProposition   = "closeout_proposition"
	EventCloseout              = "closeout"
	EventArbitration           = "arbitration"
	EventDisputeResolution     = "dispute_resolution"
	EventArbitratorAssignment  = "arbitrator_assignment"
	EventSellerAssetWithdrawal = "seller_asset_withdrawal"
	EventBuyerAssetWithdrawal  = "buyer_asset_withdrawal"

	EventFeePayment              = "fee_payment"
	EventCloseoutCreditIssuance  = "closeout_credit_issuance"
	EventCloseoutCreditCollected = "closeout_credit_collection"
	EventCreditPoolContribution  = "credit_pool_contribution"
	EventDeskWithdrawal          = "desk_withdrawal"

	EventDepositReceived = "deposit_received"
	EventPayoutSent      = "payout_sent"
)

// StreamDeals carries all deal and desk events for websocket fan-out.
const StreamDeals = "events:deals"

type Event struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

type Publisher interface {
	Publish(ctx context.Context, stream string, event Event) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, stream string, handler func(Event)) error
}
