package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "convertviral/pkg/domain-errors"
)

func TestOwnerKey(t *testing.T) {
	assert.Equal(t, "user:u1", Owner{UserID: "u1", SessionID: "s1"}.Key())
	assert.Equal(t, "session:s1", Owner{SessionID: "s1"}.Key())
	assert.True(t, Owner{}.IsZero())
}

func TestConsentRecordWithdraws(t *testing.T) {
	tests := []struct {
		name     string
		record   ConsentRecord
		withdraw bool
	}{
		{"optional category granted", ConsentRecord{Consents: map[string]bool{"essential": true, "analytics": true}}, false},
		{"unknown optional category counts", ConsentRecord{Consents: map[string]bool{"essential": true, "beta_features": true}}, false},
		{"only essential", ConsentRecord{Consents: map[string]bool{"essential": true}}, true},
		{"explicit none", ConsentRecord{Consents: map[string]bool{"essential": true, "analytics": false, "none": true}}, true},
		{"none wins over granted optional", ConsentRecord{Consents: map[string]bool{"analytics": true, "none": true}}, true},
		{"withdrawal mechanism", ConsentRecord{Consents: map[string]bool{"analytics": true}, WithdrawalMechanism: true}, true},
		{"empty consents", ConsentRecord{Consents: map[string]bool{}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.withdraw, tt.record.Withdraws())
		})
	}
}

func TestWithdrawalRecord(t *testing.T) {
	rec := WithdrawalRecord("2.0", 1234, "203.0.113.7", "curl/8")
	assert.True(t, rec.WithdrawalMechanism)
	assert.True(t, rec.Consents["essential"])
	assert.True(t, rec.Consents["none"])
	for _, c := range []Category{CategoryAnalytics, CategoryMarketing, CategoryPersonalization, CategoryDataTransfer} {
		v, ok := rec.Consents[string(c)]
		assert.True(t, ok, c)
		assert.False(t, v, c)
	}
	assert.True(t, rec.Withdraws())
}

func TestCloneDoesNotShareConsents(t *testing.T) {
	rec := ConsentRecord{Consents: map[string]bool{"analytics": true}}
	clone := rec.Clone()
	clone.Consents["analytics"] = false
	assert.True(t, rec.Consents["analytics"])
}

func TestAuditEntryBelongsTo(t *testing.T) {
	userEntry := AuditEntry{UserID: "u1", SessionID: "s1"}
	anonEntry := AuditEntry{SessionID: "s1"}

	assert.True(t, userEntry.BelongsTo(Owner{UserID: "u1"}))
	assert.False(t, userEntry.BelongsTo(Owner{UserID: "u2", SessionID: "s1"}))
	assert.False(t, userEntry.BelongsTo(Owner{SessionID: "s1"}), "anonymous owner must not see user entries")
	assert.True(t, anonEntry.BelongsTo(Owner{SessionID: "s1"}))
	assert.False(t, anonEntry.BelongsTo(Owner{SessionID: "s2"}))
}

func TestRecordConsentRequestValidate(t *testing.T) {
	ts := int64(1000)
	valid := func() *RecordConsentRequest {
		return &RecordConsentRequest{
			Consents:  map[string]bool{"essential": true},
			Timestamp: &ts,
			Version:   "1.0",
		}
	}

	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*RecordConsentRequest)
	}{
		{"missing consents", func(r *RecordConsentRequest) { r.Consents = nil }},
		{"missing timestamp", func(r *RecordConsentRequest) { r.Timestamp = nil }},
		{"negative timestamp", func(r *RecordConsentRequest) { neg := int64(-1); r.Timestamp = &neg }},
		{"missing version", func(r *RecordConsentRequest) { r.Version = "" }},
		{"blank category", func(r *RecordConsentRequest) { r.Consents[" "] = true }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid()
			tt.mutate(req)
			err := req.Validate()
			require.Error(t, err)
			assert.True(t, dErrors.Is(err, dErrors.CodeValidation))
		})
	}

	t.Run("nil request", func(t *testing.T) {
		var req *RecordConsentRequest
		assert.True(t, dErrors.Is(req.Validate(), dErrors.CodeValidation))
	})

	t.Run("epoch timestamp accepted", func(t *testing.T) {
		req := valid()
		zero := int64(0)
		req.Timestamp = &zero
		assert.NoError(t, req.Validate())
	})

	t.Run("data transfer flag does not stand in for consents", func(t *testing.T) {
		req := valid()
		req.Consents = nil
		yes := true
		req.DataTransferConsent = &yes
		req.Normalize()
		assert.Nil(t, req.Consents)
		assert.True(t, dErrors.Is(req.Validate(), dErrors.CodeValidation))
	})
}

func TestRecordConsentRequestNormalize(t *testing.T) {
	ts := int64(1000)
	yes := true
	req := &RecordConsentRequest{
		Consents:            map[string]bool{"essential": true},
		Timestamp:           &ts,
		Version:             " 1.0 ",
		DataTransferConsent: &yes,
	}
	req.Normalize()

	assert.Equal(t, "1.0", req.Version)
	assert.True(t, req.Consents["data_transfer"])

	rec := req.ToRecord()
	assert.Equal(t, int64(1000), rec.Timestamp)
	assert.True(t, rec.Consents["data_transfer"])
}

func TestToRecordNoneRefusesOptionalCategories(t *testing.T) {
	ts := int64(1000)
	req := &RecordConsentRequest{
		Consents:  map[string]bool{"essential": true, "marketing": true, "beta_features": true, "none": true},
		Timestamp: &ts,
		Version:   "1.0",
	}
	rec := req.ToRecord()

	assert.Equal(t, map[string]bool{"essential": true, "marketing": false, "beta_features": false, "none": true}, rec.Consents)
	assert.False(t, rec.GrantsOptional())
	assert.True(t, rec.Withdraws())
	assert.True(t, req.Consents["marketing"], "request map is left untouched")
}
