// Package deid runs the de-identification pipeline over a FHIR bundle.
//
// For every entry the Engine flattens the resource into keypath leaves,
// classifies each string leaf, resolves the detector candidates and writes
// the redaction token back into a deep copy of the bundle. Clinical
// resources (Observation, Condition and friends) pass through untouched.
//
// The Report carries one AuditRow per redacted leaf plus a Summary. Policy
// files (YAML) can add resource types to skip and keys to treat as
// structural.
package deid
