// Package models provides data models for the factoring marketplace.
package models

// AssetState represents where an asset is in its listing lifecycle.
type AssetState string

const (
	// AssetStateDraft indicates the asset was created but the fee is not approved.
	AssetStateDraft AssetState = "draft"
	// AssetStateFeeApproved indicates the seller approved the platform fee.
	AssetStateFeeApproved AssetState = "fee_approved"
	// AssetStateValidated indicates the bill-to-party confirmed the invoice.
	AssetStateValidated AssetState = "validated"
	// AssetStatePosted indicates the asset is visible in the marketplace.
	AssetStatePosted AssetState = "posted"
	// AssetStateCancelled indicates the seller withdrew the asset. Terminal.
	AssetStateCancelled AssetState = "cancelled"
)

// AssetAction represents a transition request on an asset.
type AssetAction string

const (
	// AssetActionApproveFee freezes the fee and unlocks validation.
	AssetActionApproveFee AssetAction = "approve_fee"
	// AssetActionValidate records the bill-to-party confirmation.
	AssetActionValidate AssetAction = "validate"
	// AssetActionPost makes the asset visible to buyers.
	AssetActionPost AssetAction = "post"
	// AssetActionCancel withdraws the asset.
	AssetActionCancel AssetAction = "cancel"
)

// assetTransitions is the complete transition table. Anything not listed is
// an invalid transition. Posted assets cannot be cancelled.
var assetTransitions = map[AssetState]map[AssetAction]AssetState{
	AssetStateDraft: {
		AssetActionApproveFee: AssetStateFeeApproved,
		AssetActionCancel:     AssetStateCancelled,
	},
	AssetStateFeeApproved: {
		AssetActionValidate: AssetStateValidated,
		AssetActionCancel:   AssetStateCancelled,
	},
	AssetStateValidated: {
		AssetActionPost:   AssetStatePosted,
		AssetActionCancel: AssetStateCancelled,
	},
	AssetStatePosted:    {},
	AssetStateCancelled: {},
}

// Next returns the state reached by applying action, and false if the action
// is not allowed from s.
func (s AssetState) Next(action AssetAction) (AssetState, bool) {
	next, ok := assetTransitions[s][action]
	return next, ok
}

// AvailableActions returns the actions that may be applied in this state.
func (s AssetState) AvailableActions() []AssetAction {
	// Fixed order keeps API responses stable.
	order := []AssetAction{AssetActionApproveFee, AssetActionValidate, AssetActionPost, AssetActionCancel}
	actions := []AssetAction{}
	for _, a := range order {
		if _, ok := assetTransitions[s][a]; ok {
			actions = append(actions, a)
		}
	}
	return actions
}

// HasAction returns true if the given action is available for this state.
func (s AssetState) HasAction(action AssetAction) bool {
	_, ok := s.Next(action)
	return ok
}

// IsTerminal returns true if the asset was withdrawn. A posted asset has no
// further asset-level actions but still moves through its bids.
func (s AssetState) IsTerminal() bool {
	return s == AssetStateCancelled
}

// String returns the string representation of the asset state.
func (s AssetState) String() string {
	return string(s)
}

// IsValid returns true if the asset state is a known state.
func (s AssetState) IsValid() bool {
	_, ok := assetTransitions[s]
	return ok
}

// ValidAssetStates returns all valid asset states.
func ValidAssetStates() []AssetState {
	return []AssetState{
		AssetStateDraft,
		AssetStateFeeApproved,
		AssetStateValidated,
		AssetStatePosted,
		AssetStateCancelled,
	}
}

// ValidAssetActions returns all asset actions.
func ValidAssetActions() []AssetAction {
	return []AssetAction{
		AssetActionApproveFee,
		AssetActionValidate,
		AssetActionPost,
		AssetActionCancel,
	}
}
