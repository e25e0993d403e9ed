package marketplace

import (
	"context"
	"fmt"
	"time"

	"github.com/factorhub/marketplace/internal/models"
	"github.com/shopspring/decimal"
)

// AssetView is an asset with its derived flags and amounts as of a given
// instant. Availability comes from the bid resolver, never from stored state.
type AssetView struct {
	*models.Asset
	FeeApprovedBySeller    bool                 `json:"fee_approved_by_seller"`
	ValidatedByBillToParty bool                 `json:"validated_by_bill_to_party"`
	IsPosted               bool                 `json:"is_posted"`
	IsCancelled            bool                 `json:"is_cancelled"`
	FaceValue              decimal.Decimal      `json:"face_value"`
	Fees                   decimal.Decimal      `json:"fees"`
	APY                    *decimal.Decimal     `json:"apy,omitempty"`
	AvailableActions       []models.AssetAction `json:"available_actions"`
	BidCount               int                  `json:"bid_count"`
	CanAcceptOtherBids     bool                 `json:"can_accept_other_bids"`
	ActiveBidID            string               `json:"active_bid_id,omitempty"`
}

func newAssetView(a *models.Asset, bids []*models.Bid, now time.Time) *AssetView {
	v := &AssetView{
		Asset:                  a,
		FeeApprovedBySeller:    a.FeeApprovedBySeller(),
		ValidatedByBillToParty: a.ValidatedByBillToParty(),
		IsPosted:               a.IsPosted(),
		IsCancelled:            a.IsCancelled(),
		FaceValue:              models.CentsToDecimal(a.FaceValueInCents),
		Fees:                   models.CentsToDecimal(a.FeesInCents),
		APY:                    a.APY(),
		AvailableActions:       a.State.AvailableActions(),
		BidCount:               len(bids),
		CanAcceptOtherBids:     models.CanAcceptOtherBids(bids, now),
	}
	if active := models.ActiveAcceptedBid(bids, now); active != nil {
		v.ActiveBidID = active.ID
	}
	return v
}

// BidView is a bid with its status resolved at a given instant.
type BidView struct {
	*models.Bid
	Status           models.BidStatus `json:"status"`
	IsOverdue        bool             `json:"is_overdue"`
	Amount           decimal.Decimal  `json:"amount"`
	Discount         decimal.Decimal  `json:"discount"`
	APY              decimal.Decimal  `json:"apy"`
	RemainingSeconds int64            `json:"remaining_seconds"`
	Countdown        string           `json:"countdown,omitempty"`
}

func newBidView(b *models.Bid, asset *models.Asset, now time.Time) *BidView {
	status := models.DeriveBidStatus(b, now)
	amount := b.AmountCents()
	v := &BidView{
		Bid:       b,
		Status:    status,
		IsOverdue: status == models.BidStatusOverdue,
		Amount:    models.CentsToDecimal(amount),
		Discount:  models.Discount(asset.FaceValueInCents, amount).Mul(hundred).Round(4),
		APY:       models.APY(asset.FaceValueInCents, amount, asset.TermMonths).Mul(hundred).Round(4),
	}
	if status == models.BidStatusAccepted {
		v.RemainingSeconds = models.RemainingSeconds(b, now)
		v.Countdown = models.FormatCountdown(v.RemainingSeconds)
	}
	return v
}

var hundred = decimal.NewFromInt(100)

// GetAsset returns one asset. Sellers see their own assets, admins see all,
// buyers see posted ones.
func (s *Service) GetAsset(ctx context.Context, actor Actor, assetID string) (*AssetView, error) {
	asset, err := s.store.Assets().Get(ctx, assetID)
	if err != nil {
		return nil, translate(err)
	}
	if !canSeeAsset(actor, asset) {
		return nil, fmt.Errorf("%w: asset %s", ErrNotFound, assetID)
	}
	bids, err := s.store.Bids().ListByAsset(ctx, asset.ID)
	if err != nil {
		return nil, err
	}
	return newAssetView(asset, bids, s.now()), nil
}

func canSeeAsset(actor Actor, asset *models.Asset) bool {
	return actor.Role == models.RoleAdmin || asset.SellerID == actor.UserID || asset.IsPosted()
}

// ListSellerAssets returns the actor's own assets.
func (s *Service) ListSellerAssets(ctx context.Context, actor Actor) ([]*AssetView, error) {
	assets, err := s.store.Assets().ListBySeller(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	return s.assetViews(ctx, assets, nil)
}

// ListMarketplace returns posted assets a buyer can still win: those with no
// accepted bid inside its payment window and no paid bid. An asset whose
// accepted bid went overdue shows up again.
func (s *Service) ListMarketplace(ctx context.Context, actor Actor) ([]*AssetView, error) {
	assets, err := s.store.Assets().ListByState(ctx, models.AssetStatePosted)
	if err != nil {
		return nil, err
	}
	return s.assetViews(ctx, assets, func(v *AssetView) bool {
		return v.CanAcceptOtherBids && v.SellerID != actor.UserID
	})
}

func (s *Service) assetViews(ctx context.Context, assets []*models.Asset, keep func(*AssetView) bool) ([]*AssetView, error) {
	ids := make([]string, len(assets))
	for i, a := range assets {
		ids[i] = a.ID
	}
	bidsByAsset, err := s.store.Bids().ListByAssets(ctx, ids)
	if err != nil {
		return nil, err
	}

	now := s.now()
	views := make([]*AssetView, 0, len(assets))
	for _, a := range assets {
		v := newAssetView(a, bidsByAsset[a.ID], now)
		if keep == nil || keep(v) {
			views = append(views, v)
		}
	}
	return views, nil
}

// ListBids returns the bids on an asset. The seller and admins see all of
// them; a buyer sees only their own.
func (s *Service) ListBids(ctx context.Context, actor Actor, assetID string) ([]*BidView, error) {
	asset, err := s.store.Assets().Get(ctx, assetID)
	if err != nil {
		return nil, translate(err)
	}
	if !canSeeAsset(actor, asset) {
		return nil, fmt.Errorf("%w: asset %s", ErrNotFound, assetID)
	}
	bids, err := s.store.Bids().ListByAsset(ctx, asset.ID)
	if err != nil {
		return nil, err
	}

	seeAll := actor.Role == models.RoleAdmin || asset.SellerID == actor.UserID
	now := s.now()
	views := make([]*BidView, 0, len(bids))
	for _, b := range bids {
		if seeAll || b.BuyerID == actor.UserID {
			views = append(views, newBidView(b, asset, now))
		}
	}
	return views, nil
}

// ListBuyerBids returns every bid the actor placed.
func (s *Service) ListBuyerBids(ctx context.Context, actor Actor) ([]*BidView, error) {
	bids, err := s.store.Bids().ListByBuyer(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	views := make([]*BidView, 0, len(bids))
	for _, b := range bids {
		asset, err := s.store.Assets().Get(ctx, b.AssetID)
		if err != nil {
			return nil, translate(err)
		}
		views = append(views, newBidView(b, asset, now))
	}
	return views, nil
}

// GetBid returns one bid to its buyer, the asset's seller or an admin.
func (s *Service) GetBid(ctx context.Context, actor Actor, bidID string) (*BidView, error) {
	bid, err := s.store.Bids().Get(ctx, bidID)
	if err != nil {
		return nil, translate(err)
	}
	asset, err := s.store.Assets().Get(ctx, bid.AssetID)
	if err != nil {
		return nil, translate(err)
	}
	if actor.Role != models.RoleAdmin && bid.BuyerID != actor.UserID && asset.SellerID != actor.UserID {
		return nil, fmt.Errorf("%w: bid %s", ErrNotFound, bidID)
	}
	return newBidView(bid, asset, s.now()), nil
}

// ListNotifications returns the actor's bell notifications.
func (s *Service) ListNotifications(ctx context.Context, actor Actor, unreadOnly bool) ([]*models.Notification, error) {
	return s.store.Notifications().ListByUser(ctx, actor.UserID, unreadOnly)
}

// MarkNotificationRead marks one of the actor's notifications as read.
func (s *Service) MarkNotificationRead(ctx context.Context, actor Actor, notificationID string) error {
	return translate(s.store.Notifications().MarkRead(ctx, notificationID, actor.UserID, s.now()))
}
