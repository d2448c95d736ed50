package config

import (
	"fmt"
	"strings"
)

const (
	QualityFast     = "fast"
	QualityBalanced = "balanced"
	QualityHigh     = "high"
	QualityUltra    = "ultra"
)

// StepPresets are the refinement step counts the model is tuned for.
var StepPresets = []int{3, 5, 10, 15}

// StepsForQuality maps a quality level to its refinement step count. An
// empty string selects the balanced preset.
func StepsForQuality(raw string) (int, error) {
	quality := strings.ToLower(strings.TrimSpace(raw))
	if quality == "" {
		quality = QualityBalanced
	}
	switch quality {
	case QualityFast:
		return 3, nil
	case QualityBalanced:
		return 5, nil
	case QualityHigh:
		return 10, nil
	case QualityUltra:
		return 15, nil
	default:
		return 0, fmt.Errorf(
			"invalid quality %q (expected %s|%s|%s|%s)",
			raw,
			QualityFast,
			QualityBalanced,
			QualityHigh,
			QualityUltra,
		)
	}
}

// IsPresetSteps reports whether steps is one of the tuned presets.
func IsPresetSteps(steps int) bool {
	for _, s := range StepPresets {
		if s == steps {
			return true
		}
	}
	return false
}
