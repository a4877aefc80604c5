package scoring

import (
	"fmt"

	"github.com/opensource-finance/fraudlens/internal/domain"
)

// Label thresholds. Scores below MediumThreshold are Low.
const (
	MediumThreshold = 40
	HighThreshold   = 70
)

// LabelFor classifies a score into a risk tier.
func LabelFor(score int) (domain.Label, error) {
	switch {
	case score < 0 || score > MaxScore:
		return domain.Label{}, fmt.Errorf("%w: score must be within 0-%d, got %d", domain.ErrInvalidInput, MaxScore, score)
	case score >= HighThreshold:
		return domain.LabelHigh, nil
	case score >= MediumThreshold:
		return domain.LabelMedium, nil
	default:
		return domain.LabelLow, nil
	}
}

// LabelFromString reconstructs a Label from its display string.
func LabelFromString(s string) (domain.Label, error) {
	switch s {
	case domain.LabelLow.Name:
		return domain.LabelLow, nil
	case domain.LabelMedium.Name:
		return domain.LabelMedium, nil
	case domain.LabelHigh.Name:
		return domain.LabelHigh, nil
	default:
		return domain.Label{}, fmt.Errorf("%w: unknown label %q", domain.ErrInvalidInput, s)
	}
}
