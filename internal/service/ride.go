package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"ridecore/internal/domain"
	"ridecore/internal/geo"
	"ridecore/internal/pricing"
	"ridecore/internal/repository"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
	openRidesSample  = 200
)

// Caller identifies who is performing an operation.
type Caller struct {
	UserID string
	// DriverID is the driver record of a caller with the driver role.
	DriverID string
	Role     domain.Role
}

// Actor maps the caller's role onto a lifecycle actor.
func (c Caller) Actor() domain.Actor {
	switch c.Role {
	case domain.RolePassenger:
		return domain.ActorPassenger
	case domain.RoleDriver:
		return domain.ActorDriver
	default:
		return domain.Actor(c.Role)
	}
}

// canAccess reports whether the caller is the ride's passenger, its driver, or an admin.
func (c Caller) canAccess(r *domain.Ride) bool {
	switch c.Role {
	case domain.RoleAdmin:
		return true
	case domain.RolePassenger:
		return c.UserID != "" && r.PassengerID == c.UserID
	case domain.RoleDriver:
		return c.DriverID != "" && r.DriverID == c.DriverID
	default:
		return false
	}
}

// RideService handles ride operations.
type RideService struct {
	rides    repository.RideStore
	promos   repository.PromotionRepository
	engine   *pricing.Engine
	surge    pricing.SurgePolicy
	matcher  MatchingServiceInterface
	notifier Notifier
	logger   logrus.FieldLogger
	now      func() time.Time
}

// NewRideService creates a new RideService.
func NewRideService(
	rides repository.RideStore,
	promos repository.PromotionRepository,
	engine *pricing.Engine,
	surge pricing.SurgePolicy,
	matcher MatchingServiceInterface,
	notifier Notifier,
	logger logrus.FieldLogger,
) *RideService {
	if surge == nil {
		surge = pricing.FlatSurge{}
	}
	return &RideService{
		rides:    rides,
		promos:   promos,
		engine:   engine,
		surge:    surge,
		matcher:  matcher,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// TripRequest describes the trip a fare is computed for.
type TripRequest struct {
	Pickup  domain.Location
	Dropoff domain.Location
	// DistanceKm falls back to the straight-line distance when zero.
	DistanceKm      float64
	DurationMinutes int
	VehicleType     string
	PromoCode       string
}

// FareQuote is the fare for the requested vehicle type plus the other options.
type FareQuote struct {
	Fare            domain.FareBreakdown   `json:"fare"`
	Options         []domain.FareBreakdown `json:"options"`
	SurgeMultiplier string                 `json:"surge_multiplier"`
}

// QuoteFare prices a trip without booking it.
func (s *RideService) QuoteFare(ctx context.Context, passengerID string, req TripRequest) (*FareQuote, error) {
	quote, _, err := s.quote(ctx, passengerID, req)
	if err != nil {
		return nil, err
	}

	options, err := s.engine.QuoteAll(quote.request)
	if err != nil {
		return nil, err
	}

	return &FareQuote{
		Fare:            quote.fare,
		Options:         options,
		SurgeMultiplier: quote.fare.SurgeMultiplier,
	}, nil
}

type pricedTrip struct {
	request pricing.QuoteRequest
	fare    domain.FareBreakdown
}

// quote validates the trip and prices it on the server. Client-side prices
// are never trusted.
func (s *RideService) quote(ctx context.Context, passengerID string, req TripRequest) (*pricedTrip, domain.VehicleType, error) {
	if !geo.ValidCoordinate(req.Pickup.Lat, req.Pickup.Lng) {
		return nil, "", ErrInvalidPickupLocation
	}
	if !geo.ValidCoordinate(req.Dropoff.Lat, req.Dropoff.Lng) {
		return nil, "", ErrInvalidDropoffLocation
	}

	vt := domain.VehicleTypeCar
	if strings.TrimSpace(req.VehicleType) != "" {
		parsed, err := domain.ParseVehicleType(req.VehicleType)
		if err != nil {
			return nil, "", ErrInvalidVehicleType
		}
		vt = parsed
	}

	distance := req.DistanceKm
	if distance <= 0 {
		distance = geo.HaversineKm(req.Pickup.Lat, req.Pickup.Lng, req.Dropoff.Lat, req.Dropoff.Lng)
	}
	if distance <= 0 {
		return nil, "", ErrInvalidDistance
	}

	qr := pricing.QuoteRequest{
		DistanceKm:      distance,
		VehicleType:     vt,
		DurationMinutes: req.DurationMinutes,
		Surge:           s.surge.Multiplier(ctx, req.Pickup.Lat, req.Pickup.Lng, s.now()),
	}

	if code := strings.ToUpper(strings.TrimSpace(req.PromoCode)); code != "" {
		promo, err := s.promos.GetByCode(ctx, code)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, "", ErrUnknownPromotion
		}
		if err != nil {
			return nil, "", err
		}
		used := false
		if passengerID != "" {
			if used, err = s.promos.HasUsed(ctx, code, passengerID); err != nil {
				return nil, "", err
			}
		}
		qr.Promo = &pricing.PromoInput{Promotion: promo, AlreadyUsed: used}
	}

	fare, err := s.engine.Quote(qr)
	if err != nil {
		if errors.Is(err, pricing.ErrInvalidDistance) {
			return nil, "", ErrInvalidDistance
		}
		return nil, "", err
	}
	return &pricedTrip{request: qr, fare: fare}, vt, nil
}

// BookRideRequest contains the parameters for booking a ride.
type BookRideRequest struct {
	TripRequest
	PassengerID   string
	PaymentMethod string
	Notes         string
}

// BookRideResponse contains the result of booking a ride.
type BookRideResponse struct {
	Ride           *domain.Ride      `json:"ride"`
	DriverAssigned bool              `json:"driver_assigned"`
	Assignment     *DriverAssignment `json:"assignment,omitempty"`
}

// BookRide prices a trip, stores the ride in requesting state and tries to
// dispatch a driver. Finding no driver is not an error: the ride stays open.
func (s *RideService) BookRide(ctx context.Context, req BookRideRequest) (*BookRideResponse, error) {
	if req.PassengerID == "" {
		return nil, ErrInvalidPassengerID
	}
	method, err := ValidatePaymentMethod(req.PaymentMethod)
	if err != nil {
		return nil, err
	}

	priced, vt, err := s.quote(ctx, req.PassengerID, req.TripRequest)
	if err != nil {
		return nil, err
	}

	rideID := uuid.NewString()
	fare := priced.fare

	redeemed := false
	if fare.Discount > 0 {
		err := s.promos.Redeem(ctx, fare.PromoCode, req.PassengerID, rideID)
		switch {
		case err == nil:
			redeemed = true
		case errors.Is(err, repository.ErrPromoExhausted), errors.Is(err, repository.ErrPromoAlreadyUsed):
			// Lost the last usage to a concurrent booking; price without the discount.
			fare = s.withoutDiscount(priced, err)
		default:
			return nil, err
		}
	}

	ride := &domain.Ride{
		ID:                rideID,
		PassengerID:       req.PassengerID,
		Status:            domain.RideStatusRequesting,
		Pickup:            req.Pickup,
		Dropoff:           req.Dropoff,
		VehicleType:       vt,
		EstimatedDistance: fare.DistanceKm,
		EstimatedDuration: fare.DurationMinutes,
		Fare:              fare,
		SurgeMultiplier:   fare.SurgeMultiplier,
		PaymentMethod:     method,
		PaymentStatus:     domain.PaymentStatusPending,
		Notes:             req.Notes,
		CreatedAt:         s.now().UTC(),
	}
	if redeemed {
		ride.PromoCode = fare.PromoCode
	}

	if err := s.rides.Create(ctx, ride); err != nil {
		if _, err := s.tolerateStale(ride, err); err != nil {
			if redeemed {
				if undoErr := s.promos.Unredeem(context.WithoutCancel(ctx), fare.PromoCode, req.PassengerID); undoErr != nil {
					s.logger.WithError(undoErr).WithField("promo_code", fare.PromoCode).Error("failed to return promotion usage")
				}
			}
			return nil, err
		}
	}
	s.notify(ctx, ride.ID, ride.Status)

	log := s.logger.WithFields(logrus.Fields{"ride_id": ride.ID, "passenger_id": ride.PassengerID})
	assignment, err := s.matcher.Dispatch(ctx, ride)
	switch {
	case errors.Is(err, ErrNoDriverAvailable):
		log.Info("no driver available, ride left open")
		return &BookRideResponse{Ride: ride}, nil
	case err != nil:
		// The ride is stored; drivers can still pick it from the open list.
		log.WithError(err).Warn("dispatch failed, ride left open")
		if current, getErr := s.rides.GetByID(ctx, ride.ID); getErr == nil {
			ride = current
		}
		return &BookRideResponse{Ride: ride, DriverAssigned: ride.DriverID != ""}, nil
	}

	s.notify(ctx, assignment.Ride.ID, assignment.Ride.Status)
	return &BookRideResponse{
		Ride:           assignment.Ride,
		DriverAssigned: true,
		Assignment:     assignment,
	}, nil
}

func (s *RideService) withoutDiscount(priced *pricedTrip, cause error) domain.FareBreakdown {
	fare := priced.fare
	fare.Discount = 0
	fare.Total = fare.Subtotal()
	fare.PromoReason = pricing.ReasonExhausted
	if errors.Is(cause, repository.ErrPromoAlreadyUsed) {
		fare.PromoReason = pricing.ReasonAlreadyUsed
	}
	return fare
}

// GetRide retrieves a ride visible to the caller.
func (s *RideService) GetRide(ctx context.Context, caller Caller, rideID string) (*domain.Ride, error) {
	if err := validateRideID(rideID); err != nil {
		return nil, err
	}

	ride, err := s.rides.GetByID(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if !caller.canAccess(ride) {
		return nil, ErrForbidden
	}
	return ride, nil
}

// ListRidesForUser returns the caller's rides, newest first. Passengers see
// the rides they booked, drivers the rides they were assigned.
func (s *RideService) ListRidesForUser(ctx context.Context, caller Caller, limit int) ([]*domain.Ride, error) {
	n := clampLimit(limit)
	switch caller.Role {
	case domain.RolePassenger:
		if caller.UserID == "" {
			return nil, ErrInvalidPassengerID
		}
		return s.rides.ListByPassenger(ctx, caller.UserID, n)
	case domain.RoleDriver:
		if caller.DriverID == "" {
			return nil, ErrInvalidDriverID
		}
		return s.rides.ListByDriver(ctx, caller.DriverID, n)
	default:
		return nil, ErrForbidden
	}
}

// OpenRide is a requesting ride with its distance from the asking driver.
type OpenRide struct {
	Ride       *domain.Ride `json:"ride"`
	DistanceKm float64      `json:"distance_km"`
}

// ListOpenRides returns requesting rides whose pickup is within radiusKm of
// the given point, nearest first.
func (s *RideService) ListOpenRides(ctx context.Context, caller Caller, lat, lng, radiusKm float64, limit int) ([]OpenRide, error) {
	if caller.Role != domain.RoleDriver && caller.Role != domain.RoleAdmin {
		return nil, ErrForbidden
	}
	if !geo.ValidCoordinate(lat, lng) {
		return nil, ErrInvalidLocation
	}
	if radiusKm <= 0 {
		radiusKm = defaultSearchRadiusKm
	}

	rides, err := s.rides.ListByStatus(ctx, domain.RideStatusRequesting, openRidesSample)
	if err != nil {
		return nil, err
	}

	var open []OpenRide
	for _, r := range rides {
		d := geo.HaversineKm(lat, lng, r.Pickup.Lat, r.Pickup.Lng)
		if d <= radiusKm {
			open = append(open, OpenRide{Ride: r, DistanceKm: d})
		}
	}
	geo.SortByDistance(open, func(o OpenRide) float64 { return o.DistanceKm })

	if n := int(clampLimit(limit)); len(open) > n {
		open = open[:n]
	}
	return open, nil
}

// UpdateRideStatusRequest contains the parameters for a lifecycle step.
type UpdateRideStatusRequest struct {
	RideID string
	Status string
	// Reason is recorded when cancelling.
	Reason string
}

// UpdateRideStatus moves a ride along its lifecycle on behalf of the caller.
// The change only applies if the ride is still in the status the caller saw.
func (s *RideService) UpdateRideStatus(ctx context.Context, caller Caller, req UpdateRideStatusRequest) (*domain.Ride, error) {
	if err := validateRideID(req.RideID); err != nil {
		return nil, err
	}
	to := domain.RideStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	if !to.Valid() {
		return nil, ErrInvalidStatus
	}

	ride, err := s.rides.GetByID(ctx, req.RideID)
	if err != nil {
		return nil, err
	}
	if !caller.canAccess(ride) {
		return nil, ErrForbidden
	}

	actor := caller.Actor()
	if err := domain.Transition(ride.Status, to, actor); err != nil {
		return nil, err
	}

	var updated *domain.Ride
	if to == domain.RideStatusCancelled {
		updated, err = s.rides.Cancel(ctx, ride.ID, ride.Status, actor, req.Reason)
	} else {
		updated, err = s.rides.Transition(ctx, ride.ID, repository.TransitionRequest{
			Expected: ride.Status,
			To:       to,
			At:       s.now().UTC(),
		})
	}
	if updated, err = s.tolerateStale(updated, err); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"ride_id": updated.ID,
		"from":    ride.Status,
		"status":  updated.Status,
		"actor":   actor,
	}).Info("ride status updated")
	s.notify(ctx, updated.ID, updated.Status)
	return updated, nil
}

// CancelRide cancels a ride on behalf of its passenger or driver.
func (s *RideService) CancelRide(ctx context.Context, caller Caller, rideID, reason string) (*domain.Ride, error) {
	return s.UpdateRideStatus(ctx, caller, UpdateRideStatusRequest{
		RideID: rideID,
		Status: string(domain.RideStatusCancelled),
		Reason: reason,
	})
}

// AcceptRide lets a driver take a requesting ride from the open list.
func (s *RideService) AcceptRide(ctx context.Context, caller Caller, rideID string) (*DriverAssignment, error) {
	if err := validateRideID(rideID); err != nil {
		return nil, err
	}
	if caller.Role != domain.RoleDriver {
		return nil, ErrForbidden
	}
	if caller.DriverID == "" {
		return nil, ErrInvalidDriverID
	}

	ride, err := s.rides.GetByID(ctx, rideID)
	if err != nil {
		return nil, err
	}

	assignment, err := s.matcher.Assign(ctx, ride, caller.DriverID)
	if err != nil {
		return nil, err
	}
	s.notify(ctx, assignment.Ride.ID, assignment.Ride.Status)
	return assignment, nil
}

// RateRide records the caller's rating of the other party on a completed ride.
func (s *RideService) RateRide(ctx context.Context, caller Caller, rideID string, rating int) (*domain.Ride, error) {
	if err := validateRideID(rideID); err != nil {
		return nil, err
	}
	if rating < 1 || rating > 5 {
		return nil, ErrInvalidRating
	}

	ride, err := s.rides.GetByID(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if !caller.canAccess(ride) {
		return nil, ErrForbidden
	}

	var req repository.RatingRequest
	switch caller.Role {
	case domain.RolePassenger:
		req.DriverRating = &rating
	case domain.RoleDriver:
		req.PassengerRating = &rating
	default:
		return nil, ErrForbidden
	}
	return s.rides.Rate(ctx, rideID, req)
}

// FindNearestDriver returns the closest eligible driver without reserving it.
func (s *RideService) FindNearestDriver(ctx context.Context, lat, lng float64, vehicleType string) (*DriverAssignment, error) {
	vt, err := domain.ParseVehicleType(vehicleType)
	if err != nil {
		return nil, ErrInvalidVehicleType
	}
	return s.matcher.FindNearestDriver(ctx, lat, lng, vt)
}

// tolerateStale treats a committed write whose views lag as a success. The
// store already queued the ride for repair.
func (s *RideService) tolerateStale(ride *domain.Ride, err error) (*domain.Ride, error) {
	var viewErr *repository.ViewError
	if errors.As(err, &viewErr) && ride != nil {
		s.logger.WithError(err).WithField("ride_id", ride.ID).Warn("ride views queued for repair")
		return ride, nil
	}
	return ride, err
}

func (s *RideService) notify(ctx context.Context, rideID string, status domain.RideStatus) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyRideStatusChanged(ctx, rideID, status); err != nil {
		s.logger.WithError(err).WithField("ride_id", rideID).Warn("failed to publish ride status")
	}
}

// ValidatePaymentMethod validates a payment method string.
func ValidatePaymentMethod(method string) (domain.PaymentMethod, error) {
	switch m := domain.PaymentMethod(strings.ToLower(strings.TrimSpace(method))); m {
	case domain.PaymentMethodCash, domain.PaymentMethodCard, domain.PaymentMethodWallet:
		return m, nil
	case "":
		return domain.PaymentMethodCash, nil // Default to cash
	default:
		return "", ErrInvalidPaymentMethod
	}
}

func validateRideID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrInvalidRideID
	}
	return nil
}

func clampLimit(limit int) int64 {
	switch {
	case limit <= 0:
		return defaultListLimit
	case limit > maxListLimit:
		return maxListLimit
	default:
		return int64(limit)
	}
}
