package correction

import (
	"fmt"

	"github.com/clinforge/sdtmap/internal/sdtm"
)

// SubScoreFloor is the layer sub-score below which the layer
// contributes a feedback hint.
const SubScoreFloor = 80.0

// hintTemplates maps each layer to the advisory hint it contributes
// when its sub-score falls below the floor.
var hintTemplates = map[sdtm.Layer]string{
	sdtm.LayerStructural:  "structural sub-score %.1f: review required-variable mappings, declared lengths, and the sequence derivation",
	sdtm.LayerTerminology: "terminology sub-score %.1f: review codelist bindings and FORMAT decode maps for unmapped or variant terms",
	sdtm.LayerDateFormat:  "date format sub-score %.1f: review ISO8601DATEFORMAT source formats and start/end date pairings",
	sdtm.LayerBusiness:    "business-rule sub-score %.1f: review cross-field expectations flagged on affected records",
	sdtm.LayerCrossDomain: "cross-domain sub-score %.1f: review subject and visit references against the reference domain",
}

// Hints derives the feedback for one report: every layer scoring below
// the floor contributes its templated hint, in reporting order.
func Hints(report sdtm.ComplianceReport) []string {
	var hints []string
	for _, layer := range sdtm.AllLayers() {
		ls := report.LayerScoreFor(layer)
		if ls.Score >= SubScoreFloor {
			continue
		}
		hints = append(hints, fmt.Sprintf(hintTemplates[layer], ls.Score))
	}
	return hints
}
