package kinematics

import (
	"fmt"
	"math"
	"time"
)

// ConstantModelName is the config discriminator string for ConstantSpeed.
const ConstantModelName = "constant"

// ConstantSpeed moves at one fixed speed with instantaneous acceleration.
type ConstantSpeed struct {
	Speed float64 `json:"speed" yaml:"speed"` // m/s
}

// NewConstantSpeed validates speed and returns the model.
func NewConstantSpeed(speed float64) (ConstantSpeed, error) {
	if speed < 0 || math.IsNaN(speed) || math.IsInf(speed, 0) {
		return ConstantSpeed{}, fmt.Errorf("speed must be a finite value >= 0, got %v", speed)
	}
	return ConstantSpeed{Speed: speed}, nil
}

func (c ConstantSpeed) VMax() float64 { return c.Speed }

// TravelTime is dist / Speed rounded to the nearest nanosecond, or 0 when
// Speed is 0.
func (c ConstantSpeed) TravelTime(dist float64) time.Duration {
	if c.Speed <= 0 {
		return 0
	}
	return time.Duration(math.Round(dist / c.Speed * float64(time.Second)))
}
