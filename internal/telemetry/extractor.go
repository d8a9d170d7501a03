package telemetry

import (
	"context"
	"fmt"

	"github.com/HerbHall/wispwatch/pkg/models"
)

// Extractor produces one monitoring result for one device.
type Extractor interface {
	Extract(ctx context.Context, dev models.Device) models.Result
}

// Compile-time interface guards.
var (
	_ Extractor = (*ONTExtractor)(nil)
	_ Extractor = (*RadioExtractor)(nil)
	_ Extractor = (*Set)(nil)
)

// Set dispatches to the family-specific extractor. The family set is
// closed, so this is a plain switch rather than a registry.
type Set struct {
	ont   *ONTExtractor
	radio *RadioExtractor
}

// NewSet bundles the per-family extractors.
func NewSet(ont *ONTExtractor, radio *RadioExtractor) *Set {
	return &Set{ont: ont, radio: radio}
}

// Extract routes the device to its family's extractor.
func (s *Set) Extract(ctx context.Context, dev models.Device) models.Result {
	switch dev.Family {
	case models.FamilyONTEPON, models.FamilyONTGPON:
		return s.ont.Extract(ctx, dev)
	case models.FamilyRadio:
		return s.radio.Extract(ctx, dev)
	default:
		return models.Failure(fmt.Sprintf("unknown device family %q", dev.Family))
	}
}
