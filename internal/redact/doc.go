// Package redact decides, for one flattened leaf at a time, whether its value
// is PHI and what it should be replaced with.
//
// Three detectors look at the same value independently: spans returned by a
// token-classification model, a hint taken from the keypath, and a fixed
// library of regex safeguards. Resolve combines their candidates under a
// fixed label priority (NAME > CONTACT > LOCATION > DATE > WEB > ID > OTHER)
// and then applies a small set of post-fix overrides against the trimmed
// value.
//
// Leaves whose final keypath segment is a structural FHIR key such as
// resourceType, system or code are never redacted.
package redact
