// Package parser turns raw stream signatures into structured events and
// pending transfer links by fetching full transaction detail over RPC.
package parser

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"solana-autolink/internal/domain"
	"solana-autolink/internal/observability"
	"solana-autolink/internal/solana"
	"solana-autolink/internal/storage"
)

// initialConfidence is the uncommitted prior assigned at creation. Scoring
// recomputes the score from scratch on every pass; this value is never read.
const initialConfidence = 0.1

// RPCClient fetches transaction detail over the request/response channel.
type RPCClient interface {
	GetTransaction(ctx context.Context, signature string) (*solana.Transaction, error)
}

// Parser resolves signatures into RawEvents and PendingTransferLinks.
type Parser struct {
	rpc       RPCClient
	rawEvents storage.RawEventStore
	links     storage.LinkStore
	wallets   storage.WalletStore
	settings  storage.SettingsStore
	logger    *log.Logger
	now       func() time.Time
}

// Options contains configuration for creating a Parser.
type Options struct {
	RPC           RPCClient
	RawEventStore storage.RawEventStore
	LinkStore     storage.LinkStore
	WalletStore   storage.WalletStore
	SettingsStore storage.SettingsStore
	Logger        *log.Logger
	Now           func() time.Time
}

// New creates a new Parser.
func New(opts Options) *Parser {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Parser{
		rpc:       opts.RPC,
		rawEvents: opts.RawEventStore,
		links:     opts.LinkStore,
		wallets:   opts.WalletStore,
		settings:  opts.SettingsStore,
		logger:    logger,
		now:       now,
	}
}

// transfer is the classification of one transaction relative to its accounts.
type transfer struct {
	From      string
	To        string
	AmountIn  float64 // SOL credited to the receiver
	AmountOut float64 // SOL debited from the sender, net of fee
}

// ProcessSignature fetches the transaction, appends a RawEvent and, for
// successful value transfers, creates one pending link for the observed
// wallet. Returns the created link, or nil when none was created
// (failed transaction, no clear transfer, or duplicate signature).
func (p *Parser) ProcessSignature(ctx context.Context, signature, walletAddress string) (*domain.PendingTransferLink, error) {
	tx, err := p.rpc.GetTransaction(ctx, signature)
	if err != nil {
		return nil, fmt.Errorf("fetch transaction %s: %w", signature, err)
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction %s not found at confirmed commitment", signature)
	}

	tr := classify(tx)

	event := &domain.RawEvent{
		Signature:       signature,
		WalletAddress:   walletAddress,
		BlockTime:       tx.BlockTime,
		Slot:            tx.Slot,
		TransactionType: "unknown",
		Fee:             solana.ToSOL(int64(tx.Fee)),
		Success:         !tx.Failed(),
		RawPayload:      tx.RawJSON,
	}

	var transferType domain.TransferType
	var amount float64
	if tr != nil {
		event.TransactionType = "transfer"
		from, to := tr.From, tr.To
		event.FromAddress = &from
		event.ToAddress = &to
		if tr.To == walletAddress {
			transferType = domain.TransferIncoming
			amount = tr.AmountIn
		} else {
			transferType = domain.TransferOutgoing
			amount = tr.AmountOut
		}
		event.Amount = amount
	}

	if err := p.rawEvents.Insert(ctx, event); err != nil {
		if !errors.Is(err, storage.ErrDuplicateKey) {
			return nil, fmt.Errorf("store raw event %s: %w", signature, err)
		}
		// Replayed frame after a reconnect; the event is already logged.
	}

	// Failed transactions are recorded but never spawn a link.
	if tx.Failed() || tr == nil {
		return nil, nil
	}

	windowHours := p.timeWindowHours(ctx, walletAddress)
	now := p.now().UTC()

	link := &domain.PendingTransferLink{
		ID:              uuid.NewString(),
		Signature:       signature,
		WalletAddress:   walletAddress,
		Amount:          amount,
		TransferType:    transferType,
		ConfidenceScore: initialConfidence,
		AutoLinkStatus:  domain.StatusPending,
		TimeWindowHours: windowHours,
		ExpiresAt:       now.Add(time.Duration(windowHours) * time.Hour),
		CreatedAt:       now,
	}

	if err := p.links.Insert(ctx, link); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return nil, nil
		}
		return nil, fmt.Errorf("create pending link %s: %w", signature, err)
	}

	observability.RecordLinkCreated(string(transferType))
	p.logger.Printf("Created pending link %s for %s (%s %.9f SOL)",
		link.ID, signature, transferType, amount)
	return link, nil
}

// timeWindowHours resolves the matching window from the wallet's settings,
// falling back to the default when the wallet or its settings are unknown.
func (p *Parser) timeWindowHours(ctx context.Context, walletAddress string) int {
	w, err := p.wallets.GetByAddress(ctx, walletAddress)
	if err != nil {
		return domain.DefaultTimeWindowHours
	}
	set, err := p.settings.Get(ctx, w.UserID, w.ID)
	if err != nil || set.TimeWindowHours <= 0 {
		return domain.DefaultTimeWindowHours
	}
	return set.TimeWindowHours
}

// classify derives the plain value transfer from per-account balance deltas.
// Only the first clearly-receiving and first clearly-sending account are
// recorded. This is a heuristic, not an instruction decoder: swaps, stakes
// and program-internal movements are not classified.
func classify(tx *solana.Transaction) *transfer {
	fee := int64(tx.Fee)

	var tr transfer
	for i, key := range tx.AccountKeys {
		delta := tx.BalanceDelta(i)
		switch {
		case delta > 0 && tr.To == "":
			tr.To = key
			tr.AmountIn = solana.ToSOL(delta)
		case delta < 0 && -delta > fee && tr.From == "":
			tr.From = key
			tr.AmountOut = solana.ToSOL(-delta - fee)
		}
	}

	if tr.To == "" && tr.From == "" {
		return nil
	}
	return &tr
}
