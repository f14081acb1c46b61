package scoring

import (
	"fmt"
	"math"
)

const (
	StrategyElapsedTime    = "elapsed_time"
	StrategyDeviceDistance = "device_distance"
	StrategyFixedStroke    = "fixed_stroke"
)

// Strategy prices an in-band sample that continues a streak. The first
// in-band sample of a streak is always worth exactly one unit and never
// reaches the strategy.
type Strategy interface {
	Name() string
	Continued(prev Streak, s Sample) float64
}

// ElapsedTime credits the wall-clock seconds since the previous in-band
// sample, rounded to the nearest whole unit.
type ElapsedTime struct{}

func (ElapsedTime) Name() string { return StrategyElapsedTime }

func (ElapsedTime) Continued(prev Streak, s Sample) float64 {
	if prev.LastInBandAt.IsZero() || s.Timestamp.IsZero() {
		return 1
	}
	return math.Round(s.Timestamp.Sub(prev.LastInBandAt).Seconds())
}

// DeviceDistance credits the meters the ergometer reports since the previous
// in-band sample. Samples without a device reading fall back to one unit.
type DeviceDistance struct{}

func (DeviceDistance) Name() string { return StrategyDeviceDistance }

func (DeviceDistance) Continued(prev Streak, s Sample) float64 {
	if prev.LastDeviceDistance == nil || s.DeviceDistance == nil {
		return 1
	}
	return math.Round(*s.DeviceDistance - *prev.LastDeviceDistance)
}

// FixedStroke credits the same amount for every in-band stroke.
type FixedStroke struct {
	Credit float64
}

func (FixedStroke) Name() string { return StrategyFixedStroke }

func (f FixedStroke) Continued(Streak, Sample) float64 {
	if f.Credit <= 0 {
		return 1
	}
	return f.Credit
}

// StrategyByName resolves a configured strategy name. An empty name selects elapsed time.
func StrategyByName(name string) (Strategy, error) {
	switch name {
	case "", StrategyElapsedTime:
		return ElapsedTime{}, nil
	case StrategyDeviceDistance:
		return DeviceDistance{}, nil
	case StrategyFixedStroke:
		return FixedStroke{Credit: 1}, nil
	default:
		return nil, fmt.Errorf("unknown scoring strategy %q", name)
	}
}
