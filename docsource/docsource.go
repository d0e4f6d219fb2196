// Package docsource defines the external document-store extraction
// collaborator and the JSON/native-Go decoding helper the rest of the core
// uses to get to a map[string]any. Document-store extraction itself (e.g. a
// MongoDB cursor) is out of scope — this package only specifies the
// interface the core consumes.
package docsource

import "context"

// Document is one record pulled from the document store, already decoded to
// a generic map. SortKey is the value of whatever field the store sorts by
// (e.g. an ObjectID or an auto-increment column), used for the orchestrator's
// audit bounds (min/max sort key in the run summary).
type Document struct {
	Value   map[string]any
	SortKey any
	// Raw is the original serialized form of the document when the source
	// has one (e.g. the NDJSON line), kept so a rejected document can be
	// written to the reject file verbatim.
	Raw []byte
	// Err is set when the source could not decode this document (a JSON
	// parse error). The run treats such a document as rejected rather than
	// failing: per-document errors never fail the run.
	Err error
}

// Source is the external document-store extraction collaborator: a lazy
// sequence of JSON documents with a sortable audit field.
type Source interface {
	// Iterate streams documents matching query into the returned channel,
	// closing it when exhausted or when ctx is canceled. A document that
	// cannot be decoded is sent on the document channel with Err set; errors
	// that end the iteration (open, read, cancellation) are sent on the
	// returned error channel.
	Iterate(ctx context.Context, query any) (<-chan Document, <-chan error)
}
