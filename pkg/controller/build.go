package controller

import (
	"fmt"
	"time"

	"github.com/itohio/thermocycler/pkg/config"
	"github.com/itohio/thermocycler/pkg/control"
)

// NewLaw builds the control law described by cfg. now drives PID timing;
// nil uses time.Now.
func NewLaw(name string, cfg config.ControlConfig, now func() time.Time) (control.Law, error) {
	opts := []control.Option{control.WithEpsilon(cfg.Epsilon)}
	if cfg.Reverse {
		opts = append(opts, control.WithDirection(control.Decreasing))
	}

	switch cfg.Type {
	case config.LawInfiniteGain:
		return control.NewInfiniteGain(name, opts...), nil
	case config.LawProportional:
		return control.NewProportional(name, cfg.Gain, opts...), nil
	case config.LawPID:
		pid := control.NewPID(name, cfg.Kp, cfg.Ki, cfg.Kd, opts...)
		pid.ProportionalOnMeasurement = cfg.ProportionalOnMeasurement
		if now != nil {
			pid.Now = now
		}
		return pid, nil
	default:
		return nil, fmt.Errorf("%w: unknown control law %q", config.ErrInvalid, cfg.Type)
	}
}
