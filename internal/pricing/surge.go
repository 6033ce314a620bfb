package pricing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// SurgePolicy returns the fare multiplier for a pickup point at a given time.
type SurgePolicy interface {
	Multiplier(ctx context.Context, lat, lng float64, at time.Time) decimal.Decimal
}

// FlatSurge never surges.
type FlatSurge struct{}

// Multiplier always returns 1.
func (FlatSurge) Multiplier(context.Context, float64, float64, time.Time) decimal.Decimal {
	return one
}

// PeakWindow is an inclusive range of local hours with its multiplier.
// A window whose From is after To wraps past midnight.
type PeakWindow struct {
	From       int
	To         int
	Multiplier decimal.Decimal
}

func (w PeakWindow) contains(hour int) bool {
	if w.From <= w.To {
		return hour >= w.From && hour <= w.To
	}
	return hour >= w.From || hour <= w.To
}

// TimeOfDaySurge raises fares during rush hours and late at night.
type TimeOfDaySurge struct {
	Windows  []PeakWindow
	Location *time.Location
}

// DefaultTimeOfDaySurge returns the morning/evening rush and night windows.
func DefaultTimeOfDaySurge(loc *time.Location) *TimeOfDaySurge {
	rush := decimal.RequireFromString("1.5")
	night := decimal.RequireFromString("1.3")
	return &TimeOfDaySurge{
		Windows: []PeakWindow{
			{From: 7, To: 9, Multiplier: rush},
			{From: 17, To: 19, Multiplier: rush},
			{From: 22, To: 5, Multiplier: night},
		},
		Location: loc,
	}
}

// Multiplier returns the first matching window's multiplier, or 1.
func (s *TimeOfDaySurge) Multiplier(_ context.Context, _, _ float64, at time.Time) decimal.Decimal {
	if s.Location != nil {
		at = at.In(s.Location)
	}
	hour := at.Hour()
	for _, w := range s.Windows {
		if w.contains(hour) {
			return w.Multiplier
		}
	}
	return one
}
