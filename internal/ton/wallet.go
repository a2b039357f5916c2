package ton

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/tlb"
	"github.com/xssnick/tonutils-go/ton"
	"github.com/xssnick/tonutils-go/ton/wallet"
	"go.uber.org/zap"
)

// HotWallet sends payouts from the custody wallet. One instance per worker;
// the wallet seqno makes concurrent senders step on each other, so sends
// are serialized by the caller.
type HotWallet struct {
	w   *wallet.Wallet
	log *zap.Logger
}

// NewHotWallet derives the wallet from a 24-word seed phrase.
func NewHotWallet(api ton.APIClientWrapped, seedPhrase string, log *zap.Logger) (*HotWallet, error) {
	words := strings.Fields(seedPhrase)
	if len(words) != 24 {
		return nil, fmt.Errorf("hot wallet seed must have 24 words, got %d", len(words))
	}
	w, err := wallet.FromSeed(api, words, wallet.V4R2)
	if err != nil {
		return nil, fmt.Errorf("derive hot wallet: %w", err)
	}
	return &HotWallet{w: w, log: log}, nil
}

func (h *HotWallet) Address() string {
	return h.w.WalletAddress().String()
}

// Send transfers nanoTON to the destination with a text comment and waits
// for the transaction to land. Returns the transaction hash.
func (h *HotWallet) Send(ctx context.Context, to string, amountNano int64, comment string) (string, error) {
	dst, err := address.ParseAddr(to)
	if err != nil {
		return "", fmt.Errorf("parse destination %s: %w", to, err)
	}

	body, err := wallet.CreateCommentCell(comment)
	if err != nil {
		return "", fmt.Errorf("build comment: %w", err)
	}

	msg := wallet.SimpleMessage(dst, tlb.FromNanoTONU(uint64(amountNano)), body)

	tx, _, err := h.w.SendWaitTransaction(ctx, msg)
	if err != nil {
		return "", fmt.Errorf("send %d nano to %s: %w", amountNano, to, err)
	}

	txHash := hex.EncodeToString(tx.Hash)
	h.log.Info("transfer sent",
		zap.String("to", to),
		zap.Int64("amount_nano", amountNano),
		zap.String("tx_hash", txHash),
	)
	return txHash, nil
}
