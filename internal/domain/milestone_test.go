package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fundedMilestone(amount int64) *Milestone {
	now := time.Now().UTC()
	return &Milestone{
		ID:       "ms-1",
		ClientID: "client-1",
		VendorID: "vendor-1",
		Amount:   decimal.NewFromInt(amount),
		Currency: "USD",
		Status:   MilestoneStatusCompleted,
		FundedAt: &now,
	}
}

func TestMilestone_Transition(t *testing.T) {
	now := time.Now().UTC()
	m := &Milestone{ID: "ms-1", Status: MilestoneStatusPending}

	require.NoError(t, m.Transition(MilestoneStatusInProgress, now))
	require.NoError(t, m.Transition(MilestoneStatusCompleted, now))

	assert.ErrorIs(t, m.Transition(MilestoneStatusPaid, now), ErrInvalidState)
	assert.ErrorIs(t, m.Transition(MilestoneStatusInProgress, now), ErrInvalidState)
	assert.Equal(t, MilestoneStatusCompleted, m.Status)
}

func TestMilestone_HeldRequiresFunding(t *testing.T) {
	m := &Milestone{Amount: decimal.NewFromInt(100)}
	assert.True(t, m.Held().IsZero())

	require.NoError(t, m.MarkFunded(time.Now()))
	assert.True(t, m.Held().Equal(decimal.NewFromInt(100)))

	assert.ErrorIs(t, m.MarkFunded(time.Now()), ErrInvalidState)
}

func TestMilestone_ApplyReleaseFlipsPaidOnce(t *testing.T) {
	m := fundedMilestone(1000)
	now := time.Now().UTC()

	assert.False(t, m.ApplyRelease(decimal.NewFromInt(400), now))
	assert.Equal(t, MilestoneStatusCompleted, m.Status)
	assert.False(t, m.IsPaid)

	assert.True(t, m.ApplyRelease(decimal.NewFromInt(600), now))
	assert.Equal(t, MilestoneStatusPaid, m.Status)
	assert.True(t, m.IsPaid)
	assert.True(t, m.Held().IsZero())

	assert.ErrorIs(t, m.CheckPayable(decimal.NewFromInt(1)), ErrAlreadySettled)
}

func TestMilestone_CheckPayable(t *testing.T) {
	t.Run("not completed", func(t *testing.T) {
		m := fundedMilestone(1000)
		m.Status = MilestoneStatusInProgress
		assert.ErrorIs(t, m.CheckPayable(decimal.NewFromInt(10)), ErrInvalidState)
	})

	t.Run("frozen", func(t *testing.T) {
		m := fundedMilestone(1000)
		require.NoError(t, m.Freeze("dsp-1", time.Now()))
		assert.ErrorIs(t, m.CheckPayable(decimal.NewFromInt(10)), ErrMilestoneFrozen)
	})

	t.Run("exceeds held", func(t *testing.T) {
		m := fundedMilestone(1000)
		assert.ErrorIs(t, m.CheckPayable(decimal.NewFromInt(1001)), ErrInsufficientFunds)
	})

	t.Run("cancelled", func(t *testing.T) {
		m := fundedMilestone(1000)
		m.Status = MilestoneStatusCancelled
		assert.ErrorIs(t, m.CheckPayable(decimal.NewFromInt(10)), ErrInvalidState)
	})
}

func TestMilestone_SplitCancellation(t *testing.T) {
	tests := []struct {
		name   string
		amount int64
		pct    string
		client string
		vendor string
	}{
		{name: "full refund", amount: 5000, pct: "100", client: "5000", vendor: "0"},
		{name: "no refund", amount: 5000, pct: "0", client: "0", vendor: "5000"},
		{name: "even split", amount: 5000, pct: "50", client: "2500", vendor: "2500"},
		{name: "rounding keeps remainder with vendor", amount: 100, pct: "33.333", client: "33.33", vendor: "66.67"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := fundedMilestone(tt.amount)
			client, vendor := m.SplitCancellation(decimal.RequireFromString(tt.pct))
			assert.True(t, client.Equal(decimal.RequireFromString(tt.client)), "client %s", client)
			assert.True(t, vendor.Equal(decimal.RequireFromString(tt.vendor)), "vendor %s", vendor)
			assert.True(t, client.Add(vendor).Equal(m.Held()))
		})
	}
}

func TestMilestone_ApplyResolution(t *testing.T) {
	now := time.Now().UTC()

	paid := fundedMilestone(5000)
	require.NoError(t, paid.Freeze("dsp-1", now))
	paid.ApplyResolution(decimal.NewFromInt(2000), decimal.NewFromInt(3000), now)
	assert.Equal(t, MilestoneStatusPaid, paid.Status)
	assert.True(t, paid.IsPaid)
	assert.False(t, paid.IsFrozen())
	assert.True(t, paid.Held().IsZero())

	refunded := fundedMilestone(5000)
	refunded.ApplyResolution(decimal.NewFromInt(5000), decimal.Zero, now)
	assert.Equal(t, MilestoneStatusCancelled, refunded.Status)
	assert.False(t, refunded.IsPaid)
}

func TestMilestone_FreezeTwice(t *testing.T) {
	m := fundedMilestone(100)
	require.NoError(t, m.Freeze("dsp-1", time.Now()))
	assert.ErrorIs(t, m.Freeze("dsp-2", time.Now()), ErrConflict)

	m.Unfreeze(time.Now())
	assert.False(t, m.IsFrozen())
}

func TestMilestone_IsParty(t *testing.T) {
	m := fundedMilestone(100)
	assert.True(t, m.IsParty("client-1"))
	assert.True(t, m.IsParty("vendor-1"))
	assert.False(t, m.IsParty("someone"))
	assert.False(t, m.IsParty(""))
}
