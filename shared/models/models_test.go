package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEffectiveStatus(t *testing.T) {
	expiry := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	s := &Student{Membership: Membership{Status: MembershipActive, ExpiryDate: expiry}}

	assert.Equal(t, MembershipActive, s.EffectiveStatus(expiry))
	assert.Equal(t, MembershipExpired, s.EffectiveStatus(expiry.Add(time.Second)))
	assert.True(t, s.IsActiveAt(expiry.Add(-time.Hour)))

	s.Membership.Status = MembershipInactive
	assert.Equal(t, MembershipInactive, s.EffectiveStatus(expiry.Add(-time.Hour)))
}

func TestExpiryFrom(t *testing.T) {
	start := time.Date(2024, 1, 31, 10, 0, 0, 0, time.UTC)

	monthly := &MembershipPlan{Duration: 1, DurationType: DurationMonths}
	// calendar arithmetic normalises Feb 31 to Mar 2
	assert.Equal(t, time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC), monthly.ExpiryFrom(start))

	daily := &MembershipPlan{Duration: 30, DurationType: DurationDays}
	assert.Equal(t, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), daily.ExpiryFrom(start))
}

func TestPlanFeatures(t *testing.T) {
	p := &MembershipPlan{}
	assert.Nil(t, p.FeatureList())

	p.SetFeatures([]string{"pool", "sauna"})
	assert.Equal(t, []string{"pool", "sauna"}, p.FeatureList())

	p.SetFeatures(nil)
	assert.Equal(t, "[]", string(p.Features))
}

func TestGymAllowsMethod(t *testing.T) {
	g := &Gym{}
	assert.True(t, g.AllowsMethod(CheckInCamera))
	assert.False(t, g.AllowsMethod(CheckInMethod("nfc")))

	g.SubscriptionPlan = &SubscriptionPlan{QRAccess: true}
	assert.True(t, g.AllowsMethod(CheckInDNI))
	assert.True(t, g.AllowsMethod(CheckInQR))
	assert.False(t, g.AllowsMethod(CheckInCamera))
}

func TestPageRequest(t *testing.T) {
	req := PageRequest{Page: 0, PageSize: 500}.Normalize()
	assert.Equal(t, 1, req.Page)
	assert.Equal(t, MaxPageSize, req.PageSize)

	assert.Equal(t, 40, PageRequest{Page: 3, PageSize: 20}.Offset())

	page := NewPage([]int{1, 2}, 41, PageRequest{Page: 1, PageSize: 20})
	assert.Equal(t, 3, page.TotalPages)

	empty := NewPage[int](nil, 0, PageRequest{})
	assert.NotNil(t, empty.Items)
	assert.Equal(t, 0, empty.TotalPages)
}

func TestDaysUntilExpiry(t *testing.T) {
	expiry := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	s := &Student{Membership: Membership{Status: MembershipActive, ExpiryDate: expiry}}

	cases := []struct {
		now  time.Time
		want int
	}{
		{expiry.Add(-72 * time.Hour), 3},
		{expiry.Add(-36 * time.Hour), 1},
		{expiry.Add(-12 * time.Hour), 0},
		{expiry, 0},
		{expiry.Add(12 * time.Hour), -1},
		{expiry.Add(49 * time.Hour), -3},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, s.DaysUntilExpiry(c.now), c.now.String())
	}
}
