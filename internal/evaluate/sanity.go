package evaluate

import (
	"reflect"
	"sort"

	"github.com/MrPrayat/DA235X/internal/records"
	"github.com/MrPrayat/DA235X/internal/schema"
)

// Mismatch is an unambiguous field where model output and ground truth
// both have a value and disagree.
type Mismatch struct {
	DocumentID  string `json:"pdf_id" yaml:"pdf_id"`
	Field       string `json:"field" yaml:"field"`
	ModelOutput any    `json:"model_output" yaml:"model_output"`
	GroundTruth any    `json:"ground_truth" yaml:"ground_truth"`
}

// Sanity lists mismatches on the policy's unambiguous fields, ordered by
// document ID then field. These are usually either labeling mistakes or
// consistent model misreads, and worth a human look.
func Sanity(s *schema.Schema, p Policy, recs []records.ExtractionRecord) []Mismatch {
	if s == nil {
		s = schema.Default()
	}
	var out []Mismatch
	for _, rec := range recs {
		pred := s.Normalize(rec.ModelOutput)
		truth := s.Normalize(rec.GroundTruth)
		for _, f := range s.Fields() {
			if f.Kind != schema.Scalar || !p.isUnambiguous(f.Name) {
				continue
			}
			pv, av := normalize(pred[f.Name]), normalize(truth[f.Name])
			if pv == nil || av == nil || reflect.DeepEqual(pv, av) {
				continue
			}
			out = append(out, Mismatch{
				DocumentID:  rec.PDFID,
				Field:       f.Name,
				ModelOutput: pred[f.Name],
				GroundTruth: truth[f.Name],
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].DocumentID != out[j].DocumentID {
			return out[i].DocumentID < out[j].DocumentID
		}
		return out[i].Field < out[j].Field
	})
	return out
}
