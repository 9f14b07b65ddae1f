package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"solana-autolink/internal/domain"
	"solana-autolink/internal/matching"
	"solana-autolink/internal/storage"
)

// autoLinkActionRequest is the POST /auto-link body.
type autoLinkActionRequest struct {
	Action       string `json:"action"` // process or resolve
	Signature    string `json:"signature,omitempty"`
	ForceProcess bool   `json:"forceProcess,omitempty"`
	Resolution   string `json:"resolution,omitempty"` // link or ignore
	UserID       string `json:"userId,omitempty"`
	WalletID     string `json:"walletId,omitempty"`
}

func (s *Server) handleAutoLinkAction(w http.ResponseWriter, r *http.Request) {
	var req autoLinkActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}

	switch req.Action {
	case "process":
		stats, err := s.matcher.ProcessPending(r.Context(), matching.ProcessOptions{
			Signature: req.Signature,
			Force:     req.ForceProcess,
		})
		if err != nil {
			s.logger.Printf("Error processing batch: %v", err)
			s.writeError(w, http.StatusInternalServerError, "batch processing failed")
			return
		}
		s.writeJSON(w, http.StatusOK, stats)

	case "resolve":
		if req.Signature == "" {
			s.writeError(w, http.StatusBadRequest, "signature is required")
			return
		}
		link, err := s.matcher.ResolveManualReview(r.Context(), req.Signature, req.Resolution, req.UserID, req.WalletID)
		if err != nil {
			switch {
			case errors.Is(err, storage.ErrNotFound):
				s.writeError(w, http.StatusNotFound, "link not found")
			case errors.Is(err, storage.ErrInvalidInput), errors.Is(err, storage.ErrInvalidTransition):
				s.writeError(w, http.StatusBadRequest, err.Error())
			default:
				s.writeError(w, http.StatusBadRequest, err.Error())
			}
			return
		}
		s.writeJSON(w, http.StatusOK, linkView(link))

	default:
		s.writeError(w, http.StatusBadRequest, "action must be process or resolve")
	}
}

// autoLinkStatusResponse is the GET /auto-link body.
type autoLinkStatusResponse struct {
	Settings     *settingsView    `json:"settings"`
	PendingLinks []*linkViewModel `json:"pendingLinks"`
	RecentLinks  []*linkViewModel `json:"recentLinks"`
	Wallets      []*walletView    `json:"wallets"`
}

func (s *Server) handleAutoLinkStatus(w http.ResponseWriter, r *http.Request) {
	walletID := r.URL.Query().Get("walletId")
	status := domain.AutoLinkStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		s.writeError(w, http.StatusBadRequest, "unknown status")
		return
	}

	if walletID == "" {
		// Status-wide view, for operator dashboards.
		if status == "" {
			status = domain.StatusManualReview
		}
		links, err := s.links.ListByStatus(r.Context(), status, 50)
		if err != nil {
			s.logger.Printf("Error listing links: %v", err)
			s.writeError(w, http.StatusInternalServerError, "lookup failed")
			return
		}
		s.writeJSON(w, http.StatusOK, autoLinkStatusResponse{
			PendingLinks: linkViews(links),
			RecentLinks:  []*linkViewModel{},
			Wallets:      []*walletView{},
		})
		return
	}

	wallet, err := s.wallets.GetByID(r.Context(), walletID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "wallet not found")
			return
		}
		s.logger.Printf("Error loading wallet %s: %v", walletID, err)
		s.writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}

	set, err := s.settings.Get(r.Context(), wallet.UserID, wallet.ID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Printf("Error loading settings for %s: %v", walletID, err)
			s.writeError(w, http.StatusInternalServerError, "lookup failed")
			return
		}
		set = domain.DefaultAutoLinkSettings(wallet.UserID, wallet.ID)
	}

	pending, err := s.links.ListByWallet(r.Context(), wallet.Address, domain.StatusPending, 50)
	if err != nil {
		s.logger.Printf("Error listing pending links: %v", err)
		s.writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	recentStatus := status
	if recentStatus == "" {
		// The recent section shows successful links by default; pending
		// rows already have their own section.
		recentStatus = domain.StatusLinked
	}
	recent, err := s.links.ListByWallet(r.Context(), wallet.Address, recentStatus, 20)
	if err != nil {
		s.logger.Printf("Error listing recent links: %v", err)
		s.writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	wallets, err := s.wallets.ListByUser(r.Context(), wallet.UserID)
	if err != nil {
		s.logger.Printf("Error listing wallets: %v", err)
		s.writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}

	s.writeJSON(w, http.StatusOK, autoLinkStatusResponse{
		Settings:     settingsViewOf(set),
		PendingLinks: linkViews(pending),
		RecentLinks:  linkViews(recent),
		Wallets:      walletViews(wallets),
	})
}

// settingsUpsertRequest is the PUT /auto-link body.
type settingsUpsertRequest struct {
	WalletID            string  `json:"walletId"`
	Enabled             bool    `json:"enabled"`
	MinConfidenceScore  float64 `json:"minConfidenceScore"`
	TimeWindowHours     int     `json:"timeWindowHours"`
	NotificationEnabled bool    `json:"notificationEnabled"`
	AutoConfirmEnabled  bool    `json:"autoConfirmEnabled"`
}

func (s *Server) handleSettingsUpsert(w http.ResponseWriter, r *http.Request) {
	var req settingsUpsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}
	if req.WalletID == "" {
		s.writeError(w, http.StatusBadRequest, "walletId is required")
		return
	}
	if req.MinConfidenceScore < 0 || req.MinConfidenceScore > 1 {
		s.writeError(w, http.StatusBadRequest, "minConfidenceScore must be within [0,1]")
		return
	}
	if req.TimeWindowHours <= 0 || req.TimeWindowHours > 168 {
		s.writeError(w, http.StatusBadRequest, "timeWindowHours must be within (0,168]")
		return
	}

	wallet, err := s.wallets.GetByID(r.Context(), req.WalletID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "wallet not found")
			return
		}
		s.logger.Printf("Error loading wallet %s: %v", req.WalletID, err)
		s.writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}

	set := &domain.AutoLinkSettings{
		UserID:              wallet.UserID,
		WalletID:            wallet.ID,
		Enabled:             req.Enabled,
		MinConfidenceScore:  req.MinConfidenceScore,
		TimeWindowHours:     req.TimeWindowHours,
		NotificationEnabled: req.NotificationEnabled,
		AutoConfirmEnabled:  req.AutoConfirmEnabled,
	}
	if err := s.settings.Upsert(r.Context(), set); err != nil {
		s.logger.Printf("Error upserting settings: %v", err)
		s.writeError(w, http.StatusInternalServerError, "upsert failed")
		return
	}

	s.writeJSON(w, http.StatusOK, settingsViewOf(set))
}

// subscriptionRequest is the POST/DELETE /subscriptions body.
type subscriptionRequest struct {
	UserID    string `json:"userId"`
	Address   string `json:"address"`
	Type      string `json:"type"`
	Signature string `json:"signature,omitempty"`
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	var req subscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}
	if req.UserID == "" || req.Address == "" {
		s.writeError(w, http.StatusBadRequest, "userId and address are required")
		return
	}

	sub, err := s.subscriber.Subscribe(r.Context(), req.UserID, req.Address, domain.SubscriptionType(req.Type), req.Signature)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusCreated, subscriptionViewOf(sub))
}

func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	var req subscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}

	err := s.subscriber.Unsubscribe(r.Context(), req.UserID, req.Address, domain.SubscriptionType(req.Type))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "subscription not found")
			return
		}
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
