package deid

import (
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/dshills/phiscrub/internal/redact"
)

// clinicalResourceTypes carry observations rather than identity and pass
// through untouched.
var clinicalResourceTypes = []string{
	"Observation",
	"DiagnosticReport",
	"MedicationRequest",
	"MedicationAdministration",
	"MedicationStatement",
	"Procedure",
	"Condition",
	"Immunization",
}

// ClinicalResourceTypes returns the built-in pass-through resource types.
func ClinicalResourceTypes() []string {
	return append([]string(nil), clinicalResourceTypes...)
}

// Policy extends the built-in skip and structural-key lists. It can only add
// entries; the built-in lists always apply.
type Policy struct {
	SkipResourceTypes []string `yaml:"skipResourceTypes,omitempty" json:"skipResourceTypes,omitempty"`
	StructuralKeys    []string `yaml:"structuralKeys,omitempty" json:"structuralKeys,omitempty"`
}

// LoadPolicy loads a policy file from disk. Returns nil Policy and nil error if path is empty.
func LoadPolicy(path string) (*Policy, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading policy file: %w", err)
	}
	var p Policy
	if err := yaml.UnmarshalWithOptions(data, &p, yaml.DisallowUnknownField()); err != nil {
		return nil, fmt.Errorf("parsing policy file: %w", err)
	}
	return &p, nil
}

// Merge returns a policy holding the entries of both. Either may be nil.
func (p *Policy) Merge(o *Policy) *Policy {
	out := &Policy{}
	for _, src := range []*Policy{p, o} {
		if src == nil {
			continue
		}
		out.SkipResourceTypes = append(out.SkipResourceTypes, src.SkipResourceTypes...)
		out.StructuralKeys = append(out.StructuralKeys, src.StructuralKeys...)
	}
	return out
}

// SkipsResource reports whether resources of type rtype pass through
// unredacted. Matching is case-insensitive.
func (p *Policy) SkipsResource(rtype string) bool {
	for _, t := range clinicalResourceTypes {
		if strings.EqualFold(rtype, t) {
			return true
		}
	}
	if p == nil {
		return false
	}
	for _, t := range p.SkipResourceTypes {
		if strings.EqualFold(rtype, t) {
			return true
		}
	}
	return false
}

// IsStructural reports whether a final keypath segment is never PHI.
func (p *Policy) IsStructural(segment string) bool {
	if p == nil {
		return redact.IsStructuralKey(segment)
	}
	return redact.IsStructuralKey(segment, p.StructuralKeys...)
}
