package ingest

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"solana-autolink/internal/domain"
	"solana-autolink/internal/observability"
	"solana-autolink/internal/solana"
	"solana-autolink/internal/storage"
)

// StreamClient is the subscription transport. *WSClient is the production
// implementation.
type StreamClient interface {
	Subscribe(ctx context.Context, spec SubSpec) (int64, error)
	Unsubscribe(remoteID int64) error
	Frames() <-chan Frame
	Close() error
}

// SignatureProcessor resolves one observed signature into stored events.
type SignatureProcessor interface {
	ProcessSignature(ctx context.Context, signature, walletAddress string) (*domain.PendingTransferLink, error)
}

// SignatureLister fetches recent signatures for an address. Account
// notifications carry no signature, so the ingestor looks them up.
type SignatureLister interface {
	GetSignaturesForAddress(ctx context.Context, address string, limit int) ([]solana.SignatureInfo, error)
}

// Defaults for the ingestor.
const (
	DefaultWorkers = 4

	// accountSigFetchLimit bounds the signature lookup per account frame.
	accountSigFetchLimit = 5

	// reconcileInterval is how often active durable subscriptions without
	// a live node subscription are retried. This flushes subscriptions
	// requested while the stream was down.
	reconcileInterval = 30 * time.Second
)

// Ingestor owns the durable subscription set and routes stream frames to
// the parsing pipeline through a worker pool.
type Ingestor struct {
	stream StreamClient
	rpc    SignatureLister
	parser SignatureProcessor
	subs   storage.SubscriptionStore

	endpoint string
	wsConfig *WSConfig
	workers  int
	logger   *log.Logger
	now      func() time.Time

	reg   *registry
	fatal chan error

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Options contains configuration for creating an Ingestor.
type Options struct {
	// Endpoint is the node WebSocket URL. Used when Stream is nil.
	Endpoint string
	WSConfig *WSConfig
	// Stream overrides the dialed client, for tests.
	Stream StreamClient

	RPC               SignatureLister
	Parser            SignatureProcessor
	SubscriptionStore storage.SubscriptionStore
	Workers           int
	Logger            *log.Logger
	Now               func() time.Time
}

// New creates a new Ingestor.
func New(opts Options) *Ingestor {
	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Ingestor{
		stream:   opts.Stream,
		rpc:      opts.RPC,
		parser:   opts.Parser,
		subs:     opts.SubscriptionStore,
		endpoint: opts.Endpoint,
		wsConfig: opts.WSConfig,
		workers:  workers,
		logger:   logger,
		now:      now,
		fatal:    make(chan error, 1),
	}
}

// Start connects the stream, replays durable active subscriptions and
// launches the worker pool. It returns once running; Close stops it.
func (i *Ingestor) Start(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.started {
		return fmt.Errorf("ingestor already started")
	}

	i.reg = newRegistry()

	if i.stream == nil {
		ws, err := NewWSClient(ctx, i.endpoint, i.wsConfig,
			WithWSLogger(i.logger),
			WithResubscribeHook(i.handleResubscribed),
			WithDownHook(func(err error) {
				i.logger.Printf("Stream permanently down: %v", err)
				select {
				case i.fatal <- err:
				default:
				}
			}),
		)
		if err != nil {
			return fmt.Errorf("connect stream: %w", err)
		}
		i.stream = ws
	}

	runCtx, cancel := context.WithCancel(context.Background())
	i.cancel = cancel

	if err := i.replayDurable(ctx); err != nil {
		i.logger.Printf("Error replaying subscriptions: %v", err)
	}

	for n := 0; n < i.workers; n++ {
		i.wg.Add(1)
		go i.worker(runCtx)
	}

	i.wg.Add(1)
	go i.reconcileLoop(runCtx)

	i.started = true
	return nil
}

// Fatal reports unrecoverable stream failures, such as an exhausted
// reconnect schedule. The owning process is expected to shut down on it.
func (i *Ingestor) Fatal() <-chan error {
	return i.fatal
}

// Close stops the workers and the stream client.
func (i *Ingestor) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if !i.started {
		return nil
	}
	i.started = false

	err := i.stream.Close()
	i.cancel()
	i.wg.Wait()
	return err
}

// Subscribe records a durable subscription and opens it on the node. The
// durable row is written first: if the node is unreachable the row stays
// active and the reconcile loop opens it once the stream recovers.
func (i *Ingestor) Subscribe(ctx context.Context, userID, address string, kind domain.SubscriptionType, signature string) (*domain.StreamSubscription, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown subscription type %q: %w", kind, storage.ErrInvalidInput)
	}
	if err := solana.ValidateAddress(address); err != nil {
		return nil, fmt.Errorf("invalid address: %w", err)
	}
	// Custodial wallets are keypair accounts. A program-derived address
	// has no keypair and cannot be one.
	if !solana.IsOnCurve(address) {
		return nil, fmt.Errorf("address %s is not a wallet account: %w", address, storage.ErrInvalidInput)
	}
	if kind == domain.SubSignature && signature == "" {
		return nil, fmt.Errorf("signature subscriptions need a signature: %w", storage.ErrInvalidInput)
	}

	sub := &domain.StreamSubscription{
		UserID:           userID,
		WalletAddress:    address,
		SubscriptionType: kind,
		IsActive:         true,
		CreatedAt:        i.now().UTC(),
	}
	if err := i.subs.Upsert(ctx, sub); err != nil {
		return nil, fmt.Errorf("persist subscription: %w", err)
	}

	remoteID, err := i.openOnNode(ctx, userID, address, kind, signature)
	if err != nil {
		i.logger.Printf("Subscription %s/%s queued, node unavailable: %v", kind, address, err)
		return sub, nil
	}
	sub.SubscriptionID = &remoteID
	return sub, nil
}

// Unsubscribe deactivates the durable row and closes the node subscription.
func (i *Ingestor) Unsubscribe(ctx context.Context, userID, address string, kind domain.SubscriptionType) error {
	if err := i.subs.Deactivate(ctx, userID, address, kind); err != nil {
		return err
	}

	if remoteID, ok := i.reg.remove(subKey{UserID: userID, Address: address, Kind: kind}); ok {
		if err := i.stream.Unsubscribe(remoteID); err != nil {
			i.logger.Printf("Error closing node subscription %d: %v", remoteID, err)
		}
	}
	return nil
}

// openOnNode opens the node subscription and records the remote id both
// durably and in the registry.
func (i *Ingestor) openOnNode(ctx context.Context, userID, address string, kind domain.SubscriptionType, signature string) (int64, error) {
	spec := SubSpec{Kind: kind, Address: address, Signature: signature}
	remoteID, err := i.stream.Subscribe(ctx, spec)
	if err != nil {
		return 0, err
	}

	i.reg.put(subKey{UserID: userID, Address: address, Kind: kind}, remoteID)
	if err := i.subs.SetRemoteID(ctx, userID, address, kind, remoteID); err != nil {
		i.logger.Printf("Error recording remote id %d: %v", remoteID, err)
	}
	return remoteID, nil
}

// replayDurable re-opens every active durable subscription, typically at
// process start.
func (i *Ingestor) replayDurable(ctx context.Context) error {
	active, err := i.subs.ListActive(ctx)
	if err != nil {
		return err
	}

	for _, sub := range active {
		// Signature subscriptions are one-shot; the target signature is
		// not retained, so they are not replayed.
		if sub.SubscriptionType == domain.SubSignature {
			continue
		}
		_, err := i.openOnNode(ctx, sub.UserID, sub.WalletAddress, sub.SubscriptionType, "")
		if err != nil {
			i.logger.Printf("Error replaying subscription %s/%s: %v", sub.SubscriptionType, sub.WalletAddress, err)
			continue
		}
	}
	return nil
}

// reconcileLoop retries active durable rows that have no live node
// subscription.
func (i *Ingestor) reconcileLoop(ctx context.Context) {
	defer i.wg.Done()

	ticker := time.NewTicker(reconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		active, err := i.subs.ListActive(ctx)
		if err != nil {
			i.logger.Printf("Error listing subscriptions: %v", err)
			continue
		}
		for _, sub := range active {
			if sub.SubscriptionType == domain.SubSignature {
				continue
			}
			key := subKey{UserID: sub.UserID, Address: sub.WalletAddress, Kind: sub.SubscriptionType}
			if _, ok := i.reg.remoteID(key); ok {
				continue
			}
			if _, err := i.openOnNode(ctx, sub.UserID, sub.WalletAddress, sub.SubscriptionType, ""); err != nil {
				i.logger.Printf("Error opening queued subscription %s/%s: %v", sub.SubscriptionType, sub.WalletAddress, err)
			}
		}
	}
}

// handleResubscribed follows remote id changes after a reconnect.
func (i *Ingestor) handleResubscribed(spec SubSpec, oldID, newID int64) {
	key, ok := i.reg.rebind(oldID, newID)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := i.subs.SetRemoteID(ctx, key.UserID, key.Address, key.Kind, newID); err != nil {
		i.logger.Printf("Error recording remote id %d: %v", newID, err)
	}
}

// worker consumes frames until the channel closes or the context ends.
func (i *Ingestor) worker(ctx context.Context) {
	defer i.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-i.stream.Frames():
			if !ok {
				return
			}
			i.handleFrame(ctx, frame)
		}
	}
}

// handleFrame resolves a frame into parsed signatures.
func (i *Ingestor) handleFrame(ctx context.Context, frame Frame) {
	at := i.now().UTC()
	if err := i.subs.TouchNotification(ctx, frame.RemoteID, at); err != nil {
		i.logger.Printf("Error touching subscription %d: %v", frame.RemoteID, err)
	}

	switch frame.Spec.Kind {
	case domain.SubAccount:
		// No signature on account frames; resolve recent activity.
		infos, err := i.rpc.GetSignaturesForAddress(ctx, frame.Spec.Address, accountSigFetchLimit)
		if err != nil {
			i.logger.Printf("Error listing signatures for %s: %v", frame.Spec.Address, err)
			observability.DefaultMetrics.ParseErrors.Inc()
			return
		}
		for _, info := range infos {
			i.process(ctx, info.Signature, frame.Spec.Address)
		}
	case domain.SubSignature:
		// One-shot: the node retires the subscription after firing.
		if key, ok := i.reg.removeByID(frame.RemoteID); ok {
			if err := i.subs.Deactivate(ctx, key.UserID, key.Address, key.Kind); err != nil {
				i.logger.Printf("Error deactivating subscription %d: %v", frame.RemoteID, err)
			}
		}
		if frame.Signature != "" {
			i.process(ctx, frame.Signature, frame.Spec.Address)
		}
	default:
		if frame.Signature == "" {
			return
		}
		i.process(ctx, frame.Signature, frame.Spec.Address)
	}
}

// process hands one signature to the parser. Duplicates are handled
// downstream; only real failures are logged.
func (i *Ingestor) process(ctx context.Context, signature, address string) {
	if _, err := i.parser.ProcessSignature(ctx, signature, address); err != nil {
		i.logger.Printf("Error processing signature %s: %v", signature, err)
		observability.DefaultMetrics.ParseErrors.Inc()
		return
	}
	observability.DefaultMetrics.SignaturesProcessed.Inc()
}
