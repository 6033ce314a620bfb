package service

import (
	"errors"
	"fmt"

	"ridecore/internal/repository"
)

var (
	// ErrValidation is the parent of every input validation error.
	ErrValidation = errors.New("invalid request")

	// ErrInvalidRideID is returned when ride ID is empty or malformed.
	ErrInvalidRideID = fmt.Errorf("%w: invalid ride id", ErrValidation)

	// ErrInvalidPassengerID is returned when passenger ID is empty.
	ErrInvalidPassengerID = fmt.Errorf("%w: invalid passenger id", ErrValidation)

	// ErrInvalidDriverID is returned when driver ID is empty.
	ErrInvalidDriverID = fmt.Errorf("%w: invalid driver id", ErrValidation)

	// ErrInvalidLocation is returned when location coordinates are invalid.
	ErrInvalidLocation = fmt.Errorf("%w: invalid location", ErrValidation)

	// ErrInvalidPickupLocation is returned when pickup coordinates are invalid.
	ErrInvalidPickupLocation = fmt.Errorf("%w: invalid pickup location", ErrValidation)

	// ErrInvalidDropoffLocation is returned when dropoff coordinates are invalid.
	ErrInvalidDropoffLocation = fmt.Errorf("%w: invalid dropoff location", ErrValidation)

	// ErrInvalidDistance is returned when the trip distance is not positive.
	ErrInvalidDistance = fmt.Errorf("%w: invalid distance", ErrValidation)

	// ErrInvalidVehicleType is returned for a vehicle type outside the tariff table.
	ErrInvalidVehicleType = fmt.Errorf("%w: invalid vehicle type", ErrValidation)

	// ErrInvalidPaymentMethod is returned when payment method is invalid.
	ErrInvalidPaymentMethod = fmt.Errorf("%w: invalid payment method", ErrValidation)

	// ErrInvalidStatus is returned for an unknown ride status.
	ErrInvalidStatus = fmt.Errorf("%w: invalid ride status", ErrValidation)

	// ErrInvalidRating is returned when a rating is outside 1..5.
	ErrInvalidRating = fmt.Errorf("%w: rating must be between 1 and 5", ErrValidation)

	// ErrUnknownPromotion is returned when a promo code does not exist.
	ErrUnknownPromotion = fmt.Errorf("%w: unknown promotion code", repository.ErrNotFound)

	// ErrForbidden is returned when the caller is not a participant of the ride.
	ErrForbidden = errors.New("not allowed to access this ride")

	// ErrNoDriverAvailable is returned when no driver can be matched.
	ErrNoDriverAvailable = errors.New("no driver available")

	// ErrRideNotRequesting is returned when dispatching a ride that already left requesting.
	ErrRideNotRequesting = fmt.Errorf("%w: ride not in requesting state", repository.ErrConflict)
)
