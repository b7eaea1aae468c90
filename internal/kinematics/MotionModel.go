// Package kinematics defines the MotionModel interface that turns segment
// lengths into travel times, along with built-in implementations.
//
// Walkers only ask a MotionModel how long a segment takes and how fast they
// can go; adding a new model means implementing MotionModel and registering
// its name in ModelByName.
package kinematics

import (
	"fmt"
	"time"
)

// MotionModel is the contract every kinematics implementation must satisfy.
// Distances are in the units of the motion plane (metres once projected),
// speeds in those units per second.
type MotionModel interface {
	// VMax returns the maximum speed the model will ever travel at.
	VMax() float64

	// TravelTime returns how long it takes to cover dist from rest to rest.
	// A model that cannot move returns 0, meaning arrival is immediate.
	TravelTime(dist float64) time.Duration
}

// ModelByName builds a registered model from its name and speed parameter.
func ModelByName(name string, speed float64) (MotionModel, error) {
	switch name {
	case "", ConstantModelName:
		return NewConstantSpeed(speed)
	default:
		return nil, fmt.Errorf("unknown kinematics model %q", name)
	}
}
