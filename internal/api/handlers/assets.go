package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/factorhub/marketplace/internal/api/middleware"
	"github.com/factorhub/marketplace/internal/marketplace"
	"github.com/go-chi/chi/v5"
)

// AssetHandler handles asset listings and the seller's bid decisions.
type AssetHandler struct {
	svc    *marketplace.Service
	logger *slog.Logger
}

// NewAssetHandler creates a new asset handler.
func NewAssetHandler(svc *marketplace.Service, logger *slog.Logger) *AssetHandler {
	return &AssetHandler{
		svc:    svc,
		logger: logger,
	}
}

// Create handles POST /v1/assets - creates a draft asset for the seller.
func (h *AssetHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req marketplace.CreateAssetInput
	if !decodeBody(w, r, &req) {
		return
	}

	actor := middleware.GetActor(r.Context())
	view, err := h.svc.CreateAsset(r.Context(), actor, req)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "Failed to create asset", "seller_id", actor.UserID)
		return
	}
	WriteJSON(w, http.StatusCreated, view)
}

// List handles GET /v1/assets - lists the seller's own assets.
func (h *AssetHandler) List(w http.ResponseWriter, r *http.Request) {
	actor := middleware.GetActor(r.Context())
	views, err := h.svc.ListSellerAssets(r.Context(), actor)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "Failed to list assets", "seller_id", actor.UserID)
		return
	}
	if views == nil {
		views = []*marketplace.AssetView{}
	}
	WriteJSON(w, http.StatusOK, views)
}

// Get handles GET /v1/assets/{assetID}.
func (h *AssetHandler) Get(w http.ResponseWriter, r *http.Request) {
	assetID := chi.URLParam(r, "assetID")
	view, err := h.svc.GetAsset(r.Context(), middleware.GetActor(r.Context()), assetID)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "Failed to get asset", "asset_id", assetID)
		return
	}
	WriteJSON(w, http.StatusOK, view)
}

// ApproveFee handles POST /v1/assets/{assetID}/approve-fee.
func (h *AssetHandler) ApproveFee(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.ApproveFee)
}

// Post handles POST /v1/assets/{assetID}/post.
func (h *AssetHandler) Post(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.Post)
}

// Cancel handles POST /v1/assets/{assetID}/cancel.
func (h *AssetHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.Cancel)
}

type assetTransition func(ctx context.Context, actor marketplace.Actor, assetID string) (*marketplace.AssetView, error)

func (h *AssetHandler) transition(w http.ResponseWriter, r *http.Request, fn assetTransition) {
	assetID := chi.URLParam(r, "assetID")
	view, err := fn(r.Context(), middleware.GetActor(r.Context()), assetID)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "Failed to update asset", "asset_id", assetID)
		return
	}
	WriteJSON(w, http.StatusOK, view)
}

// ListBids handles GET /v1/assets/{assetID}/bids. Sellers see every bid on
// their asset; buyers see only their own.
func (h *AssetHandler) ListBids(w http.ResponseWriter, r *http.Request) {
	assetID := chi.URLParam(r, "assetID")
	views, err := h.svc.ListBids(r.Context(), middleware.GetActor(r.Context()), assetID)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "Failed to list bids", "asset_id", assetID)
		return
	}
	if views == nil {
		views = []*marketplace.BidView{}
	}
	WriteJSON(w, http.StatusOK, views)
}

// PlaceBid handles PUT /v1/assets/{assetID}/bid - creates or edits the
// caller's bid.
func (h *AssetHandler) PlaceBid(w http.ResponseWriter, r *http.Request) {
	var req marketplace.BidInput
	if !decodeBody(w, r, &req) {
		return
	}

	assetID := chi.URLParam(r, "assetID")
	actor := middleware.GetActor(r.Context())
	view, err := h.svc.PlaceOrUpdateBid(r.Context(), actor, assetID, req)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "Failed to place bid", "asset_id", assetID, "buyer_id", actor.UserID)
		return
	}
	WriteJSON(w, http.StatusOK, view)
}

// AcceptBid handles POST /v1/assets/{assetID}/bids/{bidID}/accept.
func (h *AssetHandler) AcceptBid(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.svc.AcceptBid)
}

// RejectBid handles POST /v1/assets/{assetID}/bids/{bidID}/reject.
func (h *AssetHandler) RejectBid(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.svc.RejectBid)
}

// CancelAcceptance handles POST /v1/assets/{assetID}/bids/{bidID}/cancel-acceptance.
func (h *AssetHandler) CancelAcceptance(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.svc.CancelAcceptance)
}

type bidDecision func(ctx context.Context, actor marketplace.Actor, assetID, bidID string) (*marketplace.BidView, error)

func (h *AssetHandler) decide(w http.ResponseWriter, r *http.Request, fn bidDecision) {
	assetID := chi.URLParam(r, "assetID")
	bidID := chi.URLParam(r, "bidID")
	view, err := fn(r.Context(), middleware.GetActor(r.Context()), assetID, bidID)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "Failed to update bid", "asset_id", assetID, "bid_id", bidID)
		return
	}
	WriteJSON(w, http.StatusOK, view)
}

// Marketplace handles GET /v1/marketplace - posted assets open for bids.
func (h *AssetHandler) Marketplace(w http.ResponseWriter, r *http.Request) {
	views, err := h.svc.ListMarketplace(r.Context(), middleware.GetActor(r.Context()))
	if err != nil {
		writeServiceError(w, r, h.logger, err, "Failed to list marketplace")
		return
	}
	if views == nil {
		views = []*marketplace.AssetView{}
	}
	WriteJSON(w, http.StatusOK, views)
}
