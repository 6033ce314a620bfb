package domain

import (
	"errors"
	"fmt"
)

// Actor identifies who initiates a ride status change.
type Actor string

const (
	ActorPassenger Actor = "passenger"
	ActorDriver    Actor = "driver"
	// ActorSystem is the dispatcher assigning a driver to a requesting ride.
	ActorSystem Actor = "system"
)

// ErrInvalidTransition is returned when a status change is not in the lifecycle table.
var ErrInvalidTransition = errors.New("invalid ride status transition")

type edge struct {
	from RideStatus
	to   RideStatus
}

var transitions = map[edge][]Actor{
	{RideStatusRequesting, RideStatusAccepted}:  {ActorSystem},
	{RideStatusRequesting, RideStatusCancelled}: {ActorPassenger},
	{RideStatusAccepted, RideStatusCancelled}:   {ActorPassenger, ActorDriver},
	{RideStatusAccepted, RideStatusArrived}:     {ActorDriver},
	{RideStatusArrived, RideStatusInProgress}:   {ActorDriver},
	{RideStatusInProgress, RideStatusCompleted}: {ActorDriver},
}

// CanTransition reports whether actor may move a ride from one status to another.
func CanTransition(from, to RideStatus, actor Actor) bool {
	for _, a := range transitions[edge{from, to}] {
		if a == actor {
			return true
		}
	}
	return false
}

// CanAdvance reports whether any actor may move a ride between the two statuses.
func CanAdvance(from, to RideStatus) bool {
	return len(transitions[edge{from, to}]) > 0
}

// Transition validates a status change and describes the rejection when it is not allowed.
func Transition(from, to RideStatus, actor Actor) error {
	if CanTransition(from, to, actor) {
		return nil
	}
	return fmt.Errorf("%w: %s -> %s by %s", ErrInvalidTransition, from, to, actor)
}

// NextStatuses returns the statuses actor may move a ride to from the given status.
func NextStatuses(from RideStatus, actor Actor) []RideStatus {
	var out []RideStatus
	for _, to := range AllRideStatuses {
		if CanTransition(from, to, actor) {
			out = append(out, to)
		}
	}
	return out
}
