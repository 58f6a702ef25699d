// Package fhirdoc holds the document tree that every other package operates
// on: a recursive variant of null, bool, number, string, array and object
// values.
//
// Objects keep their members in input order and numbers keep their literal
// text, so a document that is parsed and encoded again without changes is
// reproduced faithfully. Redaction only ever swaps the text of String nodes;
// it never changes a node's kind, an object's key set or an array's length.
//
// Use [Parse] for JSON, [ParseYAML] for YAML, [Node.Clone] for the deep copy
// the rewriter mutates, and [MarshalIndent] to emit output.
package fhirdoc
