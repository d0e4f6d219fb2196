package schema

import "github.com/gotitinc/mongo-bigquery/typemode"

// FieldEntry is one row of the Schema Store's `field` shape: a single Path
// mapped to its resolved TypeMode, plus whether operator policy has pinned
// ("forced") that type against further widening.
type FieldEntry struct {
	Path   string
	Type   typemode.TypeMode
	Forced bool
}
