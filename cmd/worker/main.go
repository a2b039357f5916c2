package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/otcdesk/backend/internal/config"
	"github.com/otcdesk/backend/internal/db"
	"github.com/otcdesk/backend/internal/events"
	"github.com/otcdesk/backend/internal/repositories"
	"github.com/otcdesk/backend/internal/ton"
)

// The worker drains the payout queue through the hot wallet and keeps an
// eye on deals that sit past their payment deadline.
func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	api, err := ton.Connect(ctx, ton.ConnectConfig{
		Network:        cfg.TONNetwork,
		LiteServerHost: cfg.LiteServerHost,
		LiteServerPort: cfg.LiteServerPort,
		LiteServerKey:  cfg.LiteServerKey,
	}, log)
	if err != nil {
		log.Fatal("failed to connect to TON", zap.Error(err))
	}

	hotWallet, err := ton.NewHotWallet(api, cfg.TONHotWalletSeed, log)
	if err != nil {
		log.Fatal("failed to init hot wallet", zap.Error(err))
	}
	log.Info("hot wallet ready", zap.String("address", hotWallet.Address()))

	payoutRepo := repositories.NewPayoutRepo(pool)
	dealRepo := repositories.NewDealRepo(pool)
	publisher := events.NewRedisPublisher(rdb, log)

	log.Info("worker started")

	payoutTicker := time.NewTicker(cfg.PayoutInterval)
	deadlineTicker := time.NewTicker(1 * time.Minute)
	defer payoutTicker.Stop()
	defer deadlineTicker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-payoutTicker.C:
			runPayouts(ctx, payoutRepo, hotWallet, publisher, cfg, log)
		case <-deadlineTicker.C:
			runDeadlineWatch(ctx, dealRepo, log)
		case <-sigCh:
			log.Info("shutting down worker")
			cancel()
			return
		case <-ctx.Done():
			return
		}
	}
}

func runPayouts(
	ctx context.Context,
	payoutRepo *repositories.PayoutRepo,
	hotWallet *ton.HotWallet,
	publisher events.Publisher,
	cfg *config.Config,
	log *zap.Logger,
) {
	// The claim commits before any wallet call. A row only returns to
	// pending on a confirmed send failure; if the worker dies mid-send the
	// row stays in sending and never gets re-sent automatically.
	payouts, err := payoutRepo.ClaimForSending(ctx, 10, cfg.PayoutMaxAttempts)
	if err != nil {
		log.Error("failed to claim payouts", zap.Error(err))
		return
	}

	for _, p := range payouts {
		txHash, err := hotWallet.Send(ctx, p.Address, p.AmountNano, "")
		if err != nil {
			log.Error("payout send failed",
				zap.String("payout_id", p.ID.String()),
				zap.String("address", p.Address),
				zap.Error(err),
			)
			if err := payoutRepo.ReturnFailed(ctx, p.ID, err.Error()); err != nil {
				log.Error("failed to requeue payout", zap.Error(err))
			}
			continue
		}
		if err := payoutRepo.MarkSent(ctx, p.ID, txHash); err != nil {
			// Funds already left the wallet. Keep the record stuck in
			// sending rather than risking a double send on retry.
			log.Error("failed to mark payout sent",
				zap.String("payout_id", p.ID.String()),
				zap.String("tx_hash", txHash),
				zap.Error(err),
			)
			continue
		}
		log.Info("payout sent",
			zap.String("payout_id", p.ID.String()),
			zap.String("address", p.Address),
			zap.Int64("amount_nano", p.AmountNano),
			zap.String("tx_hash", txHash),
		)
		_ = publisher.Publish(ctx, events.StreamDeals, events.Event{
			Type: events.EventPayoutSent,
			Payload: map[string]any{
				"payout_id": p.ID.String(),
				"address":   p.Address,
				"amount":    p.AmountNano,
				"kind":      p.Kind,
				"tx_hash":   txHash,
			},
		})
	}

	if parked, err := payoutRepo.GiveUp(ctx, cfg.PayoutMaxAttempts); err == nil && parked > 0 {
		log.Warn("payouts parked after repeated failures", zap.Int64("count", parked))
	}
}

// runDeadlineWatch surfaces deals eligible for escalation. Escalation
// itself stays with the principals; this is operator visibility only.
func runDeadlineWatch(ctx context.Context, dealRepo *repositories.DealRepo, log *zap.Logger) {
	deals, err := dealRepo.ListEscalatable(ctx, time.Now())
	if err != nil {
		log.Error("failed to list escalatable deals", zap.Error(err))
		return
	}
	for _, d := range deals {
		log.Warn("deal past escalation grace",
			zap.String("deal_id", d.ID.String()),
			zap.String("status", d.Status),
			zap.Time("payment_deadline", d.PaymentDeadline),
		)
	}
}
