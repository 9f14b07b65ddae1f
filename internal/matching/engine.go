// Package matching scores pending transfer links against known accounts
// and drives the link state machine.
package matching

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"solana-autolink/internal/domain"
	"solana-autolink/internal/observability"
	"solana-autolink/internal/storage"
)

// Defaults for batch processing.
const (
	DefaultBatchSize = 50
	DefaultCooldown  = 5 * time.Minute

	reviewThreshold = 0.5
)

// Notifier delivers user-facing outcomes. Calls are best-effort: the engine
// logs failures and never lets them fail a durable transition. The wallet's
// notificationEnabled setting suppresses calls entirely.
type Notifier interface {
	NotifyAutoLinked(ctx context.Context, userID string, link *domain.PendingTransferLink, score float64)
	NotifyManualReview(ctx context.Context, userID string, link *domain.PendingTransferLink, score float64)
}

// Engine is the batch matching processor.
type Engine struct {
	links     storage.LinkStore
	wallets   storage.WalletStore
	history   storage.LedgerTransactionStore
	settings  storage.SettingsStore
	rawEvents storage.RawEventStore
	outcomes  storage.MatchOutcomeStore
	scorer    *Scorer
	notifier  Notifier

	batchSize int
	cooldown  time.Duration
	logger    *log.Logger
	now       func() time.Time
}

// Options contains configuration for creating an Engine.
type Options struct {
	LinkStore     storage.LinkStore
	WalletStore   storage.WalletStore
	HistoryStore  storage.LedgerTransactionStore
	RawEventStore storage.RawEventStore
	SettingsStore storage.SettingsStore
	OutcomeStore  storage.MatchOutcomeStore // optional analytics sink
	Notifier      Notifier                  // optional
	BatchSize     int
	Cooldown      time.Duration
	Logger        *log.Logger
	Now           func() time.Time
}

// NewEngine creates a new matching engine.
func NewEngine(opts Options) *Engine {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	cooldown := opts.Cooldown
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Engine{
		links:     opts.LinkStore,
		wallets:   opts.WalletStore,
		history:   opts.HistoryStore,
		settings:  opts.SettingsStore,
		rawEvents: opts.RawEventStore,
		outcomes:  opts.OutcomeStore,
		scorer:    NewScorer(opts.WalletStore, opts.HistoryStore, opts.RawEventStore, opts.Now),
		notifier:  opts.Notifier,
		batchSize: batchSize,
		cooldown:  cooldown,
		logger:    logger,
		now:       now,
	}
}

// ProcessOptions restricts or forces a batch run.
type ProcessOptions struct {
	// Signature restricts the batch to one link for manual reprocessing.
	Signature string
	// Force skips the per-link cooldown window.
	Force bool
}

// LinkResult is one per-link outcome in the batch statistics.
type LinkResult struct {
	Signature string  `json:"signature"`
	Score     float64 `json:"score"`
	Outcome   string  `json:"outcome"`
}

// BatchStats summarizes one batch run.
type BatchStats struct {
	Processed    int          `json:"processed"`
	Linked       int          `json:"linked"`
	ManualReview int          `json:"manualReview"`
	Ignored      int          `json:"ignored"`
	StillPending int          `json:"stillPending"`
	Errors       int          `json:"errors"`
	Results      []LinkResult `json:"results"`
}

// maxSampleResults bounds the per-link sample returned to the control API.
const maxSampleResults = 10

// ProcessPending runs one bounded batch. Multiple triggers may run
// concurrently: each row is claimed (attempts increment + lastAttemptAt,
// durable) before scoring, so a row is scored by at most one trigger.
// Per-row failures are logged and do not abort the batch.
func (e *Engine) ProcessPending(ctx context.Context, opts ProcessOptions) (*BatchStats, error) {
	now := e.now().UTC()

	candidates, err := e.links.ListScorable(ctx, now, e.cooldown, e.batchSize, opts.Signature, opts.Force)
	if err != nil {
		return nil, fmt.Errorf("list scorable links: %w", err)
	}

	observability.DefaultMetrics.BatchSize.Observe(float64(len(candidates)))
	observability.DefaultMetrics.LastBatchAt.SetToCurrentTime()

	stats := &BatchStats{}
	for _, link := range candidates {
		outcome, score, err := e.processOne(ctx, link, now, opts.Force)
		if err != nil {
			if errors.Is(err, errSkipped) {
				continue
			}
			stats.Errors++
			e.logger.Printf("Error processing link %s: %v", link.Signature, err)
			continue
		}

		stats.Processed++
		switch outcome {
		case domain.StatusLinked:
			stats.Linked++
		case domain.StatusManualReview:
			stats.ManualReview++
		case domain.StatusIgnored:
			stats.Ignored++
		default:
			stats.StillPending++
		}

		if len(stats.Results) < maxSampleResults {
			stats.Results = append(stats.Results, LinkResult{
				Signature: link.Signature,
				Score:     score,
				Outcome:   string(outcome),
			})
		}
	}

	return stats, nil
}

// errSkipped marks rows another trigger claimed first or whose wallet has
// auto-linking disabled.
var errSkipped = errors.New("link skipped")

// processOne claims, scores and transitions a single link. The returned
// status is the link's state after this pass (StatusPending when unchanged).
func (e *Engine) processOne(ctx context.Context, link *domain.PendingTransferLink, now time.Time, force bool) (status domain.AutoLinkStatus, score float64, err error) {
	// A panicking row must not abort the remaining rows in the batch.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic scoring %s: %v", link.Signature, r)
		}
	}()

	linkThreshold, enabled, notify := e.walletPolicy(ctx, link.WalletAddress)
	if !enabled {
		return "", 0, errSkipped
	}

	claimed, err := e.links.Claim(ctx, link.ID, now, e.cooldown, force)
	if err != nil {
		return "", 0, fmt.Errorf("claim: %w", err)
	}
	if !claimed {
		return "", 0, errSkipped
	}
	link.Attempts++

	scoreStart := time.Now()
	result, err := e.scorer.Score(ctx, link)
	observability.ObserveScoring(time.Since(scoreStart))
	if err != nil {
		return "", 0, fmt.Errorf("score: %w", err)
	}
	score = result.Total

	switch {
	case score >= linkThreshold && result.ExactCandidate:
		status, err = e.linkTo(ctx, link, result, notify)
	case score >= reviewThreshold:
		status = domain.StatusManualReview
		err = e.links.Transition(ctx, link.ID, domain.StatusPending, status, score, nil)
		if err == nil && notify && e.notifier != nil && result.CandidateUserID != "" {
			e.notifier.NotifyManualReview(ctx, result.CandidateUserID, link, score)
		}
	case link.Attempts >= MaxAttempts:
		// Terminal and silent: the user is never notified of an ignore.
		status = domain.StatusIgnored
		err = e.links.Transition(ctx, link.ID, domain.StatusPending, status, score, nil)
	default:
		status = domain.StatusPending
		err = e.links.UpdateScore(ctx, link.ID, score)
	}
	if err != nil {
		return "", 0, fmt.Errorf("apply outcome %s: %w", status, err)
	}
	if status != domain.StatusPending {
		observability.RecordTransition(string(status))
	}

	e.recordOutcome(ctx, link, result, status)
	return status, score, nil
}

// linkTo creates the concrete ledger transaction and moves the link to its
// terminal linked status.
func (e *Engine) linkTo(ctx context.Context, link *domain.PendingTransferLink, result *Score, notify bool) (domain.AutoLinkStatus, error) {
	if !CanAutoTransition(domain.StatusPending, domain.StatusLinked) {
		return "", transitionError(domain.StatusPending, domain.StatusLinked)
	}

	tx := e.ledgerRow(ctx, link, result.CandidateUserID, result.CandidateWalletID)
	if err := e.history.Insert(ctx, tx); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
		return "", fmt.Errorf("create ledger transaction: %w", err)
	}

	identity := &storage.LinkIdentity{
		UserID:        result.CandidateUserID,
		WalletID:      result.CandidateWalletID,
		TransactionID: tx.ID,
	}
	if err := e.links.Transition(ctx, link.ID, domain.StatusPending, domain.StatusLinked, result.Total, identity); err != nil {
		return "", err
	}

	e.logger.Printf("Linked %s to user %s (score %.2f)", link.Signature, result.CandidateUserID, result.Total)
	if notify && e.notifier != nil {
		e.notifier.NotifyAutoLinked(ctx, result.CandidateUserID, link, result.Total)
	}
	return domain.StatusLinked, nil
}

// ledgerRow builds the concrete transaction for a linked transfer, filling
// counterparty and block time from the raw event log when it is available.
func (e *Engine) ledgerRow(ctx context.Context, link *domain.PendingTransferLink, userID, walletID string) *domain.LedgerTransaction {
	tx := &domain.LedgerTransaction{
		ID:           uuid.NewString(),
		UserID:       userID,
		WalletID:     walletID,
		Signature:    link.Signature,
		Amount:       link.Amount,
		TokenMint:    link.TokenMint,
		TransferType: link.TransferType,
		CreatedAt:    e.now().UTC(),
	}

	event, err := e.rawEvents.GetBySignature(ctx, link.Signature, link.WalletAddress)
	if err != nil {
		return tx
	}
	tx.BlockTime = event.BlockTime
	if link.TransferType == domain.TransferIncoming {
		if event.FromAddress != nil {
			tx.CounterpartyAddress = *event.FromAddress
		}
	} else if event.ToAddress != nil {
		tx.CounterpartyAddress = *event.ToAddress
	}
	return tx
}

// walletPolicy resolves the link threshold, the enabled flag and the
// notification flag for the wallet, falling back to defaults for
// unregistered wallets or missing settings.
func (e *Engine) walletPolicy(ctx context.Context, walletAddress string) (threshold float64, enabled, notify bool) {
	threshold = domain.DefaultMinConfidenceScore
	enabled = true
	notify = true

	w, err := e.wallets.GetByAddress(ctx, walletAddress)
	if err != nil {
		return threshold, enabled, notify
	}
	set, err := e.settings.Get(ctx, w.UserID, w.ID)
	if err != nil {
		return threshold, enabled, notify
	}
	if set.MinConfidenceScore > 0 {
		threshold = set.MinConfidenceScore
	}
	return threshold, set.Enabled, set.NotificationEnabled
}

// recordOutcome writes the analytics row. Best-effort: failures are logged
// and swallowed, never affecting the scored link.
func (e *Engine) recordOutcome(ctx context.Context, link *domain.PendingTransferLink, result *Score, status domain.AutoLinkStatus) {
	if e.outcomes == nil {
		return
	}

	outcome := &domain.MatchOutcome{
		Signature:       link.Signature,
		Attempt:         link.Attempts,
		Score:           result.Total,
		ExactMatch:      result.ExactMatch,
		CounterpartHist: result.CounterpartHist,
		SimilarAmount:   result.SimilarAmount,
		TimeWindow:      result.TimeWindow,
		Outcome:         string(status),
		ProcessedAt:     e.now().UTC().UnixMilli(),
	}
	if result.CandidateUserID != "" {
		user := result.CandidateUserID
		outcome.CandidateUserID = &user
	}

	if err := e.outcomes.Insert(ctx, outcome); err != nil {
		e.logger.Printf("Error recording match outcome for %s: %v", link.Signature, err)
	}
}

// ResolveManualReview applies the operator decision for a manual_review
// link: "link" attaches it to the given user/wallet, "ignore" retires it.
func (e *Engine) ResolveManualReview(ctx context.Context, signature, resolution, userID, walletID string) (*domain.PendingTransferLink, error) {
	link, err := e.links.GetBySignature(ctx, signature)
	if err != nil {
		return nil, fmt.Errorf("lookup link %s: %w", signature, err)
	}

	switch resolution {
	case "link":
		if !CanResolve(link.AutoLinkStatus, domain.StatusLinked) {
			return nil, transitionError(link.AutoLinkStatus, domain.StatusLinked)
		}
		w, err := e.wallets.GetByID(ctx, walletID)
		if err != nil {
			return nil, fmt.Errorf("lookup wallet %s: %w", walletID, err)
		}
		if w.UserID != userID {
			return nil, fmt.Errorf("wallet %s does not belong to user %s: %w", walletID, userID, storage.ErrInvalidInput)
		}

		tx := e.ledgerRow(ctx, link, userID, walletID)
		if err := e.history.Insert(ctx, tx); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
			return nil, fmt.Errorf("create ledger transaction: %w", err)
		}

		identity := &storage.LinkIdentity{UserID: userID, WalletID: walletID, TransactionID: tx.ID}
		if err := e.links.Transition(ctx, link.ID, domain.StatusManualReview, domain.StatusLinked, link.ConfidenceScore, identity); err != nil {
			return nil, err
		}
		observability.RecordTransition(string(domain.StatusLinked))
		if _, _, notify := e.walletPolicy(ctx, link.WalletAddress); notify && e.notifier != nil {
			e.notifier.NotifyAutoLinked(ctx, userID, link, link.ConfidenceScore)
		}

	case "ignore":
		if !CanResolve(link.AutoLinkStatus, domain.StatusIgnored) {
			return nil, transitionError(link.AutoLinkStatus, domain.StatusIgnored)
		}
		if err := e.links.Transition(ctx, link.ID, domain.StatusManualReview, domain.StatusIgnored, link.ConfidenceScore, nil); err != nil {
			return nil, err
		}
		observability.RecordTransition(string(domain.StatusIgnored))

	default:
		return nil, fmt.Errorf("unknown resolution %q: %w", resolution, storage.ErrInvalidInput)
	}

	return e.links.GetBySignature(ctx, signature)
}
