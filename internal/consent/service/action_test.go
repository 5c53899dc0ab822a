package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"convertviral/internal/consent/models"
)

func TestDeriveAction(t *testing.T) {
	granted := &models.Current{Action: models.ActionGranted}
	updated := &models.Current{Action: models.ActionUpdated}
	withdrawn := &models.Current{Action: models.ActionWithdrawn}

	analytics := models.ConsentRecord{Consents: map[string]bool{"essential": true, "analytics": true}}
	marketing := models.ConsentRecord{Consents: map[string]bool{"essential": true, "marketing": true}}
	none := models.ConsentRecord{Consents: map[string]bool{"essential": true, "analytics": false, "none": true}}
	allFalse := models.ConsentRecord{Consents: map[string]bool{"essential": true, "analytics": false}}
	explicit := models.ConsentRecord{Consents: map[string]bool{"analytics": true}, WithdrawalMechanism: true}

	tests := []struct {
		name     string
		previous *models.Current
		next     models.ConsentRecord
		want     models.Action
	}{
		{"first record is granted", nil, analytics, models.ActionGranted},
		{"first record is granted even when all false", nil, none, models.ActionGranted},
		{"different categories after grant", granted, marketing, models.ActionUpdated},
		{"same categories after grant", granted, analytics, models.ActionUpdated},
		{"update after update", updated, marketing, models.ActionUpdated},
		{"none after grant", granted, none, models.ActionWithdrawn},
		{"all optional false after update", updated, allFalse, models.ActionWithdrawn},
		{"withdrawal mechanism", granted, explicit, models.ActionWithdrawn},
		{"renewal after withdrawal", withdrawn, analytics, models.ActionGranted},
		{"repeat withdrawal", withdrawn, none, models.ActionWithdrawn},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveAction(tt.previous, tt.next))
		})
	}
}

func TestShardForIsStable(t *testing.T) {
	assert.Equal(t, shardFor("user:42"), shardFor("user:42"))
	assert.Equal(t, 0, shardFor(""))
	assert.Less(t, shardFor("session:abc"), ownerLockShards)
}
