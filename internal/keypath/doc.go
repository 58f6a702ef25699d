// Package keypath flattens a document into dotted keypath leaves and writes
// replacement text back through the same paths.
//
// Flattened paths never carry array indices, so a path written back without
// an index reaches every element of each list it passes through. That
// fan-out is intentional: a redaction decided for one occurrence of a field
// applies to all of its siblings within the same subtree.
package keypath
