// Package config reads the figure and rendering settings from the environment.
// Storage and artifact backends read their own variables in their factories.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// DefaultMarkerScale multiplies normalized metrics into marker areas.
const DefaultMarkerScale = 1200

// Settings carries the tunables shared by the figure service and renderer.
type Settings struct {
	// MarkerScale converts a normalized weight in [0, 1] into a marker area.
	MarkerScale float64
	// FetchTimeout bounds every store call of a figure; zero disables it.
	FetchTimeout time.Duration
	// FigureWidth and FigureHeight override the per-figure size in inches; zero
	// keeps the figure default.
	FigureWidth  float64
	FigureHeight float64
	// SmoothBins is the moving-mean window applied to stacked PSTH rows;
	// values below 2 leave rows unsmoothed.
	SmoothBins int
}

// Defaults returns the settings used when nothing is configured.
func Defaults() Settings {
	return Settings{MarkerScale: DefaultMarkerScale}
}

// FromEnv reads settings from environment variables.
//
//	EPHYSCORE_MARKER_SCALE: marker area multiplier (default 1200)
//	EPHYSCORE_FETCH_TIMEOUT: Go duration bounding each store call (default none)
//	EPHYSCORE_FIGURE_WIDTH / EPHYSCORE_FIGURE_HEIGHT: figure size in inches
//	EPHYSCORE_PSTH_SMOOTH: moving-mean window in bins for stacked PSTHs (default off)
func FromEnv() (Settings, error) {
	s := Defaults()
	var err error
	if s.MarkerScale, err = positiveFloat("EPHYSCORE_MARKER_SCALE", s.MarkerScale); err != nil {
		return Settings{}, err
	}
	if raw := os.Getenv("EPHYSCORE_FETCH_TIMEOUT"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d < 0 {
			return Settings{}, fmt.Errorf("invalid EPHYSCORE_FETCH_TIMEOUT %q", raw)
		}
		s.FetchTimeout = d
	}
	if s.FigureWidth, err = positiveFloat("EPHYSCORE_FIGURE_WIDTH", 0); err != nil {
		return Settings{}, err
	}
	if s.FigureHeight, err = positiveFloat("EPHYSCORE_FIGURE_HEIGHT", 0); err != nil {
		return Settings{}, err
	}
	if raw := os.Getenv("EPHYSCORE_PSTH_SMOOTH"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return Settings{}, fmt.Errorf("invalid EPHYSCORE_PSTH_SMOOTH %q: want a bin count", raw)
		}
		s.SmoothBins = n
	}
	return s, nil
}

func positiveFloat(name string, fallback float64) (float64, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("invalid %s %q: want a positive number", name, raw)
	}
	return v, nil
}
