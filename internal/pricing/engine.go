package pricing

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"ridecore/internal/domain"
)

// ErrInvalidDistance is returned when the trip distance is not a positive number.
var ErrInvalidDistance = errors.New("distance must be positive")

var (
	one            = decimal.NewFromInt(1)
	minutesPerHour = decimal.NewFromInt(60)
)

// PromoInput carries a promotion and whether the passenger already redeemed it.
type PromoInput struct {
	Promotion   *domain.Promotion
	AlreadyUsed bool
}

// QuoteRequest contains everything a fare depends on.
type QuoteRequest struct {
	DistanceKm  float64
	VehicleType domain.VehicleType
	// DurationMinutes is estimated from the vehicle speed when zero.
	DurationMinutes int
	// Surge below 1 is treated as 1.
	Surge decimal.Decimal
	Promo *PromoInput
}

// Engine prices rides from a rate table.
type Engine struct {
	rates     map[domain.VehicleType]Rate
	currency  string
	validator *PromoValidator
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithRates replaces the default tariff table.
func WithRates(rates map[domain.VehicleType]Rate) EngineOption {
	return func(e *Engine) { e.rates = rates }
}

// WithCurrency sets the currency code stamped on quotes.
func WithCurrency(code string) EngineOption {
	return func(e *Engine) { e.currency = code }
}

// WithValidator sets the promotion validator.
func WithValidator(v *PromoValidator) EngineOption {
	return func(e *Engine) { e.validator = v }
}

// NewEngine creates a new Engine with the default rates.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		rates:     DefaultRates,
		currency:  DefaultCurrency,
		validator: NewPromoValidator(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Rate returns the tariff for vt.
func (e *Engine) Rate(vt domain.VehicleType) (Rate, bool) {
	r, ok := e.rates[vt]
	return r, ok
}

// Quote prices a ride. The result is a pure function of the request.
func (e *Engine) Quote(req QuoteRequest) (domain.FareBreakdown, error) {
	rate, ok := e.rates[req.VehicleType]
	if !ok {
		return domain.FareBreakdown{}, fmt.Errorf("%w: %q", domain.ErrUnknownVehicleType, req.VehicleType)
	}
	if req.DistanceKm <= 0 || math.IsNaN(req.DistanceKm) || math.IsInf(req.DistanceKm, 0) {
		return domain.FareBreakdown{}, ErrInvalidDistance
	}

	multiplier := req.Surge
	if multiplier.LessThan(one) {
		multiplier = one
	}

	distance := decimal.NewFromFloat(req.DistanceKm)

	// An estimated duration stays exact until the time fare is emitted.
	var duration decimal.Decimal
	switch {
	case req.DurationMinutes > 0:
		duration = decimal.NewFromInt(int64(req.DurationMinutes))
	case rate.SpeedKmh > 0:
		duration = distance.Div(decimal.NewFromFloat(rate.SpeedKmh)).Mul(minutesPerHour)
	}

	base := money(rate.BaseFare)
	distanceFare := money(rate.PerKm).Mul(distance)
	timeFare := money(rate.PerMinute).Mul(duration)
	surgeFare := base.Add(distanceFare).Add(timeFare).Mul(multiplier.Sub(one))

	fare := domain.FareBreakdown{
		VehicleType:     req.VehicleType,
		DisplayName:     rate.DisplayName,
		Currency:        e.currency,
		DistanceKm:      distance.Round(2).InexactFloat64(),
		DurationMinutes: int(duration.Round(0).IntPart()),
		SurgeMultiplier: multiplier.String(),
		BaseFare:        toMoney(base),
		DistanceFare:    toMoney(distanceFare),
		TimeFare:        toMoney(timeFare),
		SurgeFare:       toMoney(surgeFare),
	}

	// The minimum fare top-up is carried by the base component.
	if sub := fare.Subtotal(); sub < rate.MinFare {
		fare.BaseFare += rate.MinFare - sub
	}

	subtotal := fare.Subtotal()
	if req.Promo != nil && req.Promo.Promotion != nil {
		fare.PromoCode = req.Promo.Promotion.Code
		res := e.validator.Evaluate(req.Promo.Promotion, subtotal, req.Promo.AlreadyUsed)
		if res.Valid {
			fare.Discount = res.Discount
		} else {
			fare.PromoReason = res.Reason
		}
	}
	fare.Total = subtotal - fare.Discount

	return fare, nil
}

// QuoteAll prices the same trip for every vehicle type in the rate table,
// in the order of domain.VehicleTypes.
func (e *Engine) QuoteAll(req QuoteRequest) ([]domain.FareBreakdown, error) {
	quotes := make([]domain.FareBreakdown, 0, len(e.rates))
	for _, vt := range domain.VehicleTypes {
		if _, ok := e.rates[vt]; !ok {
			continue
		}
		r := req
		r.VehicleType = vt
		q, err := e.Quote(r)
		if err != nil {
			return nil, err
		}
		quotes = append(quotes, q)
	}
	return quotes, nil
}

func money(m domain.Money) decimal.Decimal {
	return decimal.NewFromInt(int64(m))
}

func toMoney(d decimal.Decimal) domain.Money {
	return domain.Money(d.Round(0).IntPart())
}
