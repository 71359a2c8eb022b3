package aggregate

import (
	"fmt"

	"ephyscore/pkg/ephys"
)

// Hit trial conditions for correctly answered, no-early-lick trials.
const (
	HitLeft  = "good_noearlylick_left_hit"
	HitRight = "good_noearlylick_right_hit"
)

// Sides maps a left/right pair of names onto ipsi and contra for one hemisphere.
type Sides struct {
	Hemisphere ephys.Hemisphere
	Ipsi       string
	Contra     string
}

// ResolveHemisphere returns the single hemisphere shared by all units.
func ResolveHemisphere(units []ephys.UnitRecord) (ephys.Hemisphere, error) {
	if len(units) == 0 {
		return "", ephys.NoData("no units to resolve hemisphere")
	}
	hemi := units[0].Hemisphere
	for _, u := range units {
		if !u.Hemisphere.Valid() {
			return "", fmt.Errorf("unit %s: %w: hemisphere %q", u.Key, ephys.ErrInvalid, u.Hemisphere)
		}
		if u.Hemisphere != hemi {
			return "", fmt.Errorf("unit %s is %s, unit %s is %s: %w", units[0].Key, hemi, u.Key, u.Hemisphere, ephys.ErrMixedHemisphere)
		}
	}
	return hemi, nil
}

// TrialSides assigns left and right names to ipsi and contra. Units in the left
// hemisphere treat left as ipsi.
func TrialSides(hemi ephys.Hemisphere, left, right string) (Sides, error) {
	switch hemi {
	case ephys.HemisphereLeft:
		return Sides{Hemisphere: hemi, Ipsi: left, Contra: right}, nil
	case ephys.HemisphereRight:
		return Sides{Hemisphere: hemi, Ipsi: right, Contra: left}, nil
	default:
		return Sides{}, fmt.Errorf("trial sides: %w: hemisphere %q", ephys.ErrInvalid, hemi)
	}
}

// HitConditions returns the ipsi/contra hit conditions for a hemisphere.
func HitConditions(hemi ephys.Hemisphere) (Sides, error) {
	return TrialSides(hemi, HitLeft, HitRight)
}
