package service

import "convertviral/internal/consent/models"

// DeriveAction classifies a new consent record against the owner's current
// state. The client never supplies the action.
//
//   - no current state: granted, whatever the payload
//   - next record withdraws optional consent: withdrawn
//   - current state is withdrawn and consent is renewed: granted
//   - otherwise: updated
func DeriveAction(previous *models.Current, next models.ConsentRecord) models.Action {
	switch {
	case previous == nil:
		return models.ActionGranted
	case next.Withdraws():
		return models.ActionWithdrawn
	case previous.Action == models.ActionWithdrawn:
		return models.ActionGranted
	default:
		return models.ActionUpdated
	}
}
