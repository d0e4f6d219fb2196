package schema

import "github.com/gotitinc/mongo-bigquery/typemode"

// Policy is one operator-configured override for a path, drawn from the
// run configuration's `policies[]`: `data_type`/`mode` force the Store's
// resolved type for Path, and Required enables reject-on-missing during
// shredding.
type Policy struct {
	Path     string
	Required bool
	DataType *typemode.BaseType
	Mode     *typemode.Mode
}

// Forced reports whether this policy pins a type for its Path.
func (p Policy) Forced() bool { return p.DataType != nil }

// ForcedTypeMode resolves the (base, mode) a forced policy pins, defaulting
// Mode to Nullable when the policy only specifies a base type.
func (p Policy) ForcedTypeMode() typemode.TypeMode {
	mode := typemode.Nullable
	if p.Mode != nil {
		mode = *p.Mode
	}
	base := typemode.String
	if p.DataType != nil {
		base = *p.DataType
	}
	return typemode.TypeMode{Base: base, Mode: mode}
}

// ApplyPolicies forces every Policy with a DataType onto store before any
// observation is folded in, so the reducer's forced-fixpoint rule takes
// effect from the very first document.
func ApplyPolicies(store Store, policies []Policy) error {
	for _, p := range policies {
		if !p.Forced() {
			continue
		}
		if err := store.ForceField(p.Path, p.ForcedTypeMode()); err != nil {
			return err
		}
	}
	return nil
}

// RequiredPaths returns the set of paths whose policy marks them required,
// for the shredder's reject-on-missing check.
func RequiredPaths(policies []Policy) map[string]bool {
	req := make(map[string]bool)
	for _, p := range policies {
		if p.Required {
			req[p.Path] = true
		}
	}
	return req
}
