package handlers

import (
	"log/slog"
	"net/http"

	"github.com/factorhub/marketplace/internal/api/middleware"
	"github.com/factorhub/marketplace/internal/marketplace"
	"github.com/go-chi/chi/v5"
)

// BidHandler handles bid reads, payment confirmation and notification resends.
type BidHandler struct {
	svc    *marketplace.Service
	logger *slog.Logger
}

// NewBidHandler creates a new bid handler.
func NewBidHandler(svc *marketplace.Service, logger *slog.Logger) *BidHandler {
	return &BidHandler{
		svc:    svc,
		logger: logger,
	}
}

// ListMine handles GET /v1/bids - the caller's own bids.
func (h *BidHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	actor := middleware.GetActor(r.Context())
	views, err := h.svc.ListBuyerBids(r.Context(), actor)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "Failed to list bids", "buyer_id", actor.UserID)
		return
	}
	if views == nil {
		views = []*marketplace.BidView{}
	}
	WriteJSON(w, http.StatusOK, views)
}

// Get handles GET /v1/bids/{bidID}.
func (h *BidHandler) Get(w http.ResponseWriter, r *http.Request) {
	bidID := chi.URLParam(r, "bidID")
	view, err := h.svc.GetBid(r.Context(), middleware.GetActor(r.Context()), bidID)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "Failed to get bid", "bid_id", bidID)
		return
	}
	WriteJSON(w, http.StatusOK, view)
}

// ConfirmPayment handles PATCH /v1/bids/{bidID}/payment. A repeat answers
// 200 with status already_completed; a late call answers 410.
func (h *BidHandler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	bidID := chi.URLParam(r, "bidID")
	view, err := h.svc.ConfirmPayment(r.Context(), middleware.GetActor(r.Context()), bidID)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "Failed to confirm payment", "bid_id", bidID)
		return
	}
	WriteJSON(w, http.StatusOK, view)
}

// ResendNotifications handles POST /v1/bids/{bidID}/notifications/resend.
func (h *BidHandler) ResendNotifications(w http.ResponseWriter, r *http.Request) {
	bidID := chi.URLParam(r, "bidID")
	actor := middleware.GetActor(r.Context())
	if err := h.svc.ResendNotifications(r.Context(), actor, bidID); err != nil {
		writeServiceError(w, r, h.logger, err, "Failed to resend notifications", "bid_id", bidID)
		return
	}
	h.logger.Info("notifications resent", "bid_id", bidID, "admin_id", actor.UserID)
	WriteJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}
