package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"solana-autolink/internal/domain"
	"solana-autolink/internal/matching"
	"solana-autolink/internal/storage/memory"
)

type fakeSubscriber struct {
	subscribed   []string
	unsubscribed []string
}

func (f *fakeSubscriber) Subscribe(_ context.Context, userID, address string, kind domain.SubscriptionType, _ string) (*domain.StreamSubscription, error) {
	f.subscribed = append(f.subscribed, address)
	id := int64(1)
	return &domain.StreamSubscription{
		UserID:           userID,
		WalletAddress:    address,
		SubscriptionType: kind,
		SubscriptionID:   &id,
		IsActive:         true,
	}, nil
}

func (f *fakeSubscriber) Unsubscribe(_ context.Context, _, address string, _ domain.SubscriptionType) error {
	f.unsubscribed = append(f.unsubscribed, address)
	return nil
}

type apiFixture struct {
	links      *memory.LinkStore
	settings   *memory.SettingsStore
	wallets    *memory.WalletStore
	history    *memory.LedgerTransactionStore
	subscriber *fakeSubscriber
	server     *httptest.Server
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	f := &apiFixture{
		links:      memory.NewLinkStore(),
		settings:   memory.NewSettingsStore(),
		wallets:    memory.NewWalletStore(),
		history:    memory.NewLedgerTransactionStore(),
		subscriber: &fakeSubscriber{},
	}

	engine := matching.NewEngine(matching.Options{
		LinkStore:     f.links,
		WalletStore:   f.wallets,
		HistoryStore:  f.history,
		RawEventStore: memory.NewRawEventStore(),
		SettingsStore: f.settings,
	})

	srv := NewServer(Options{
		Matcher:       engine,
		Subscriber:    f.subscriber,
		LinkStore:     f.links,
		SettingsStore: f.settings,
		WalletStore:   f.wallets,
	})
	f.server = httptest.NewServer(srv.Router())
	t.Cleanup(f.server.Close)
	return f
}

func (f *apiFixture) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, f.server.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func (f *apiFixture) addWallet(t *testing.T, id, userID, address string) {
	t.Helper()
	err := f.wallets.Insert(context.Background(), &domain.Wallet{ID: id, UserID: userID, Address: address})
	if err != nil {
		t.Fatalf("insert wallet: %v", err)
	}
}

func (f *apiFixture) addLink(t *testing.T, signature, address string, status domain.AutoLinkStatus) {
	t.Helper()
	now := time.Now().UTC()
	err := f.links.Insert(context.Background(), &domain.PendingTransferLink{
		ID:              "link-" + signature,
		Signature:       signature,
		WalletAddress:   address,
		Amount:          1.5,
		TransferType:    domain.TransferIncoming,
		AutoLinkStatus:  status,
		TimeWindowHours: 24,
		ExpiresAt:       now.Add(24 * time.Hour),
		CreatedAt:       now,
	})
	if err != nil {
		t.Fatalf("insert link: %v", err)
	}
}

func TestPostAutoLink_Process(t *testing.T) {
	f := newAPIFixture(t)
	f.addWallet(t, "w1", "user1", "WalletX")
	f.addLink(t, "sig1", "WalletX", domain.StatusPending)

	resp := f.do(t, http.MethodPost, "/auto-link", map[string]any{"action": "process"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	stats := decode[matching.BatchStats](t, resp)
	if stats.Processed != 1 || stats.Linked != 1 {
		t.Errorf("stats = %+v, want 1 processed, 1 linked", stats)
	}
}

func TestPostAutoLink_Resolve(t *testing.T) {
	f := newAPIFixture(t)
	f.addWallet(t, "w1", "user1", "WalletX")
	f.addLink(t, "sig1", "WalletX", domain.StatusManualReview)

	resp := f.do(t, http.MethodPost, "/auto-link", map[string]any{
		"action":     "resolve",
		"signature":  "sig1",
		"resolution": "link",
		"userId":     "user1",
		"walletId":   "w1",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	link := decode[linkViewModel](t, resp)
	if link.AutoLinkStatus != "linked" {
		t.Errorf("status = %s, want linked", link.AutoLinkStatus)
	}
}

func TestPostAutoLink_ResolveUnknownSignature(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.do(t, http.MethodPost, "/auto-link", map[string]any{
		"action":     "resolve",
		"signature":  "nope",
		"resolution": "ignore",
	})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestPostAutoLink_BadAction(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.do(t, http.MethodPost, "/auto-link", map[string]any{"action": "explode"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestGetAutoLink_WalletView(t *testing.T) {
	f := newAPIFixture(t)
	f.addWallet(t, "w1", "user1", "WalletX")
	f.addLink(t, "sig1", "WalletX", domain.StatusPending)
	f.addLink(t, "sig2", "WalletX", domain.StatusLinked)

	resp := f.do(t, http.MethodGet, "/auto-link?walletId=w1", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	view := decode[autoLinkStatusResponse](t, resp)
	if view.Settings == nil || view.Settings.MinConfidenceScore != domain.DefaultMinConfidenceScore {
		t.Errorf("settings = %+v, want defaults", view.Settings)
	}
	if len(view.PendingLinks) != 1 || view.PendingLinks[0].Signature != "sig1" {
		t.Errorf("pending = %+v, want sig1", view.PendingLinks)
	}
	// Without a status filter the recent section carries linked rows only.
	if len(view.RecentLinks) != 1 || view.RecentLinks[0].Signature != "sig2" {
		t.Errorf("recent = %+v, want sig2 only", view.RecentLinks)
	}
	if len(view.Wallets) != 1 {
		t.Errorf("wallets = %+v, want one", view.Wallets)
	}
}

func TestGetAutoLink_WalletViewStatusFilter(t *testing.T) {
	f := newAPIFixture(t)
	f.addWallet(t, "w1", "user1", "WalletX")
	f.addLink(t, "sig1", "WalletX", domain.StatusLinked)
	f.addLink(t, "sig2", "WalletX", domain.StatusIgnored)

	resp := f.do(t, http.MethodGet, "/auto-link?walletId=w1&status=ignored", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	view := decode[autoLinkStatusResponse](t, resp)
	if len(view.RecentLinks) != 1 || view.RecentLinks[0].Signature != "sig2" {
		t.Errorf("recent = %+v, want sig2 only", view.RecentLinks)
	}
}

func TestGetAutoLink_UnknownWallet(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.do(t, http.MethodGet, "/auto-link?walletId=nope", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestGetAutoLink_ReviewQueue(t *testing.T) {
	f := newAPIFixture(t)
	f.addLink(t, "sig1", "WalletX", domain.StatusManualReview)
	f.addLink(t, "sig2", "WalletY", domain.StatusPending)

	resp := f.do(t, http.MethodGet, "/auto-link", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	view := decode[autoLinkStatusResponse](t, resp)
	if len(view.PendingLinks) != 1 || view.PendingLinks[0].Signature != "sig1" {
		t.Errorf("review queue = %+v, want sig1 only", view.PendingLinks)
	}
}

func TestPutAutoLink_UpsertSettings(t *testing.T) {
	f := newAPIFixture(t)
	f.addWallet(t, "w1", "user1", "WalletX")

	resp := f.do(t, http.MethodPut, "/auto-link", map[string]any{
		"walletId":            "w1",
		"enabled":             true,
		"minConfidenceScore":  0.9,
		"timeWindowHours":     48,
		"notificationEnabled": true,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	stored, err := f.settings.Get(context.Background(), "user1", "w1")
	if err != nil {
		t.Fatalf("get settings: %v", err)
	}
	if stored.MinConfidenceScore != 0.9 || stored.TimeWindowHours != 48 {
		t.Errorf("stored = %+v", stored)
	}
}

func TestPutAutoLink_Validation(t *testing.T) {
	f := newAPIFixture(t)
	f.addWallet(t, "w1", "user1", "WalletX")

	cases := []map[string]any{
		{"walletId": "", "minConfidenceScore": 0.9, "timeWindowHours": 24},
		{"walletId": "w1", "minConfidenceScore": 1.5, "timeWindowHours": 24},
		{"walletId": "w1", "minConfidenceScore": 0.9, "timeWindowHours": 0},
		{"walletId": "w1", "minConfidenceScore": 0.9, "timeWindowHours": 1000},
	}
	for i, body := range cases {
		resp := f.do(t, http.MethodPut, "/auto-link", body)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("case %d: status = %d, want 400", i, resp.StatusCode)
		}
	}

	resp := f.do(t, http.MethodPut, "/auto-link", map[string]any{
		"walletId": "nope", "minConfidenceScore": 0.9, "timeWindowHours": 24,
	})
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown wallet: status = %d, want 404", resp.StatusCode)
	}
}

func TestSubscriptions_RoundTrip(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.do(t, http.MethodPost, "/subscriptions", map[string]any{
		"userId":  "user1",
		"address": "WalletX",
		"type":    "logs",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	view := decode[subscriptionView](t, resp)
	if view.Type != "logs" || view.SubscriptionID == nil {
		t.Errorf("view = %+v", view)
	}

	resp = f.do(t, http.MethodDelete, "/subscriptions", map[string]any{
		"userId":  "user1",
		"address": "WalletX",
		"type":    "logs",
	})
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}

	if len(f.subscriber.subscribed) != 1 || len(f.subscriber.unsubscribed) != 1 {
		t.Errorf("subscriber calls = %+v", f.subscriber)
	}
}
