package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/tlb"
	tonsdk "github.com/xssnick/tonutils-go/ton"
	"go.uber.org/zap"

	"github.com/otcdesk/backend/internal/config"
	"github.com/otcdesk/backend/internal/db"
	"github.com/otcdesk/backend/internal/events"
	"github.com/otcdesk/backend/internal/models"
	"github.com/otcdesk/backend/internal/repositories"
	"github.com/otcdesk/backend/internal/services"
	"github.com/otcdesk/backend/internal/ton"
)

const (
	redisCursorLT   = "ton-indexer:cursor:lt"
	redisCursorHash = "ton-indexer:cursor:hash"
	txBatchSize     = 100

	// Transfers carrying this comment feed the closeout credit pool
	// instead of the sender's balance.
	contributeComment = "contribute"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.TONHotWalletAddress == "" {
		log.Fatal("TON_HOT_WALLET_ADDRESS is required")
	}

	hotWallet, err := address.ParseAddr(cfg.TONHotWalletAddress)
	if err != nil {
		log.Fatal("invalid TON_HOT_WALLET_ADDRESS", zap.String("addr", cfg.TONHotWalletAddress), zap.Error(err))
	}

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

	accountRepo := repositories.NewAccountRepo(pool)
	payoutRepo := repositories.NewPayoutRepo(pool)
	depositRepo := repositories.NewDepositRepo(pool)
	deskRepo := repositories.NewDeskRepo(pool)
	dealRepo := repositories.NewDealRepo(pool)
	auditRepo := repositories.NewAuditRepo(pool)
	publisher := events.NewRedisPublisher(rdb, log)

	accountService := services.NewAccountService(pool, accountRepo, payoutRepo, depositRepo, auditRepo, publisher, cfg, log)
	deskService := services.NewDeskService(pool, deskRepo, dealRepo, accountRepo, payoutRepo, auditRepo, publisher, cfg, log)

	tonAPI, err := ton.Connect(ctx, ton.ConnectConfig{
		Network:        cfg.TONNetwork,
		LiteServerHost: cfg.LiteServerHost,
		LiteServerPort: cfg.LiteServerPort,
		LiteServerKey:  cfg.LiteServerKey,
	}, log)
	if err != nil {
		log.Fatal("failed to connect to TON network", zap.Error(err))
	}

	log.Info("TON indexer started",
		zap.String("hot_wallet", hotWallet.String()),
		zap.String("network", cfg.TONNetwork),
	)

	initCursor(ctx, tonAPI, hotWallet, rdb, log)

	ticker := time.NewTicker(cfg.IndexerPollInterval)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-ticker.C:
			if err := pollAndProcess(ctx, tonAPI, hotWallet, accountService, deskService, rdb, log); err != nil {
				log.Error("poll cycle failed", zap.Error(err))
			}
		case <-sigCh:
			log.Info("shutting down TON indexer")
			cancel()
			return
		case <-ctx.Done():
			return
		}
	}
}

// initCursor sets the initial cursor position on first run.
// On first run, it stores the current account LastTxLT so that only
// NEW transactions (arriving after startup) are processed.
func initCursor(ctx context.Context, api tonsdk.APIClientWrapped, addr *address.Address, rdb *redis.Client, log *zap.Logger) {
	existing, _ := rdb.Get(ctx, redisCursorLT).Result()
	if existing != "" {
		log.Info("resuming from saved cursor", zap.String("lt", existing))
		return
	}

	block, err := api.CurrentMasterchainInfo(ctx)
	if err != nil {
		log.Warn("failed to get master block for cursor init", zap.Error(err))
		rdb.Set(ctx, redisCursorLT, "0", 0)
		return
	}

	account, err := api.GetAccount(ctx, block, addr)
	if err != nil {
		log.Warn("failed to get account for cursor init", zap.Error(err))
		rdb.Set(ctx, redisCursorLT, "0", 0)
		return
	}

	if account == nil || !account.IsActive || account.LastTxLT == 0 {
		log.Info("hot wallet not active yet, starting from LT=0")
		rdb.Set(ctx, redisCursorLT, "0", 0)
		return
	}

	saveCursor(ctx, rdb, account.LastTxLT, account.LastTxHash)
	log.Info("cursor initialized at current account state (skipping historical transactions)",
		zap.Uint64("lt", account.LastTxLT),
		zap.String("hash", hex.EncodeToString(account.LastTxHash)),
	)
}

func loadCursorLT(ctx context.Context, rdb *redis.Client) uint64 {
	val, err := rdb.Get(ctx, redisCursorLT).Result()
	if err != nil || val == "" {
		return 0
	}
	lt, _ := strconv.ParseUint(val, 10, 64)
	return lt
}

func saveCursor(ctx context.Context, rdb *redis.Client, lt uint64, hash []byte) {
	rdb.Set(ctx, redisCursorLT, strconv.FormatUint(lt, 10), 0)
	rdb.Set(ctx, redisCursorHash, hex.EncodeToString(hash), 0)
}

// pollAndProcess runs a single poll cycle:
// 1. Get the account's latest state
// 2. Fetch all transactions newer than the cursor
// 3. Credit incoming TON transfers to the ledger
// 4. Update the cursor
func pollAndProcess(
	ctx context.Context,
	api tonsdk.APIClientWrapped,
	addr *address.Address,
	accounts *services.AccountService,
	desk *services.DeskService,
	rdb *redis.Client,
	log *zap.Logger,
) error {
	cursorLT := loadCursorLT(ctx, rdb)

	block, err := api.CurrentMasterchainInfo(ctx)
	if err != nil {
		return fmt.Errorf("get master block: %w", err)
	}

	account, err := api.GetAccount(ctx, block, addr)
	if err != nil {
		return fmt.Errorf("get account: %w", err)
	}

	if account == nil || !account.IsActive || account.LastTxLT == 0 {
		return nil
	}

	if account.LastTxLT <= cursorLT {
		return nil
	}

	newTxs, err := fetchNewTransactions(ctx, api, addr, account, cursorLT)
	if err != nil {
		return fmt.Errorf("fetch transactions: %w", err)
	}

	if len(newTxs) > 0 {
		log.Info("found new transactions", zap.Int("count", len(newTxs)))
		for _, tx := range newTxs {
			processIncomingTx(ctx, tx, accounts, desk, log)
		}
	}

	saveCursor(ctx, rdb, account.LastTxLT, account.LastTxHash)
	return nil
}

// fetchNewTransactions retrieves all transactions with LT > cursorLT.
// ListTransactions returns results oldest-first; we paginate backwards
// until we reach the cursor, then return in chronological order.
func fetchNewTransactions(
	ctx context.Context,
	api tonsdk.APIClientWrapped,
	addr *address.Address,
	account *tlb.Account,
	cursorLT uint64,
) ([]*tlb.Transaction, error) {
	var allTxs []*tlb.Transaction

	lt := account.LastTxLT
	hash := account.LastTxHash

	for {
		txs, err := api.ListTransactions(ctx, addr, uint32(txBatchSize), lt, hash)
		if err != nil {
			return nil, fmt.Errorf("list transactions (lt=%d): %w", lt, err)
		}
		if len(txs) == 0 {
			break
		}

		reachedCursor := false
		for _, tx := range txs {
			if tx.LT <= cursorLT {
				reachedCursor = true
				continue
			}
			allTxs = append(allTxs, tx)
		}

		if reachedCursor || len(txs) < txBatchSize {
			break
		}

		oldest := txs[0]
		if oldest.PrevTxLT == 0 {
			break
		}
		lt = oldest.PrevTxLT
		hash = oldest.PrevTxHash
	}

	sort.Slice(allTxs, func(i, j int) bool {
		return allTxs[i].LT < allTxs[j].LT
	})

	return allTxs, nil
}

// processIncomingTx credits a single incoming TON transfer. Plain
// transfers top up the sender's custody balance; transfers commented
// "contribute" feed the closeout credit pool. Duplicate tx hashes are
// dropped by the deposits table, so replays are safe.
func processIncomingTx(
	ctx context.Context,
	tx *tlb.Transaction,
	accounts *services.AccountService,
	desk *services.DeskService,
	log *zap.Logger,
) {
	if tx.IO.In == nil {
		return
	}

	inMsg, ok := tx.IO.In.Msg.(*tlb.InternalMessage)
	if !ok || inMsg == nil {
		return
	}

	if inMsg.Bounced {
		return
	}

	amount := inMsg.Amount.Nano()
	if amount.Sign() <= 0 || !amount.IsInt64() {
		return
	}

	sender := inMsg.SrcAddr.String()
	comment := strings.TrimSpace(extractComment(inMsg))

	kind := models.DepositKindTopup
	if strings.EqualFold(comment, contributeComment) {
		kind = models.DepositKindContribution
	}

	deposit := &models.Deposit{
		TxHash:     hex.EncodeToString(tx.Hash),
		TxLT:       tx.LT,
		Sender:     sender,
		AmountNano: amount.Int64(),
		Comment:    comment,
		Kind:       kind,
	}

	recorded, err := accounts.RecordDeposit(ctx, deposit)
	if err != nil {
		log.Error("failed to record deposit",
			zap.Uint64("tx_lt", tx.LT),
			zap.String("from", sender),
			zap.Error(err),
		)
		return
	}
	if recorded == "" {
		// already seen
		return
	}

	if recorded == models.DepositKindContribution {
		if err := desk.ContributeDeposit(ctx, sender, deposit.AmountNano); err != nil {
			log.Error("failed to apply credit pool contribution",
				zap.Uint64("tx_lt", tx.LT),
				zap.String("from", sender),
				zap.Error(err),
			)
			return
		}
	}

	log.Info("deposit processed",
		zap.Uint64("tx_lt", tx.LT),
		zap.String("from", sender),
		zap.String("amount", inMsg.Amount.String()),
		zap.String("kind", recorded),
	)
}

// extractComment parses a text comment from an InternalMessage body.
// TON text comments have opcode 0x00000000 followed by UTF-8 text.
func extractComment(inMsg *tlb.InternalMessage) string {
	body := inMsg.Body
	if body == nil {
		return ""
	}

	slice := body.BeginParse()
	if slice.BitsLeft() < 32 {
		return ""
	}

	op, err := slice.LoadUInt(32)
	if err != nil || op != 0 {
		return ""
	}

	remaining := slice.BitsLeft()
	if remaining < 8 {
		return ""
	}

	data, err := slice.LoadSlice(remaining)
	if err != nil {
		return ""
	}

	return strings.TrimSpace(string(data))
}
