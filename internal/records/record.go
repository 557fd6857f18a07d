// Package records persists one JSON file per document holding the model
// output next to its hand-labeled ground truth, plus per-page debug logs.
package records

import (
	"github.com/MrPrayat/DA235X/internal/schema"
)

// ExtractionRecord is the durable unit of work, keyed by document ID.
type ExtractionRecord struct {
	PDFID       string        `json:"pdf_id" yaml:"pdf_id"`
	ModelOutput schema.Record `json:"model_output" yaml:"model_output"`
	GroundTruth schema.Record `json:"ground_truth" yaml:"ground_truth"`
}
