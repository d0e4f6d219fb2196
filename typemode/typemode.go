// Package typemode defines the Type-Mode lattice used by the Schema
// Observer and Reducer: the closed set of base types and modes a JSON value
// can be observed as, and the commutative, associative, idempotent widening
// operator ⊔ that merges two observations.
package typemode

import "fmt"

// BaseType is one of the five shapes a JSON value can take.
type BaseType int

const (
	Record BaseType = iota
	String
	Integer
	Float
	Boolean
)

func (b BaseType) String() string {
	switch b {
	case Record:
		return "record"
	case String:
		return "string"
	case Integer:
		return "integer"
	case Float:
		return "float"
	case Boolean:
		return "boolean"
	default:
		return fmt.Sprintf("BaseType(%d)", int(b))
	}
}

// Mode distinguishes a scalar/singular field from a repeated (array) one.
type Mode int

const (
	Nullable Mode = iota
	Repeated
)

func (m Mode) String() string {
	if m == Repeated {
		return "repeated"
	}
	return "nullable"
}

// TypeMode is one element of the widening lattice: a (base_type, mode) pair.
type TypeMode struct {
	Base BaseType
	Mode Mode
}

func (t TypeMode) String() string { return t.Base.String() + "-" + t.Mode.String() }

// Equal reports whether two TypeModes denote the same element.
func (t TypeMode) Equal(o TypeMode) bool { return t.Base == o.Base && t.Mode == o.Mode }

var (
	RecordNullable = TypeMode{Record, Nullable}
	RecordRepeated = TypeMode{Record, Repeated}
	StringNullable = TypeMode{String, Nullable}
	StringRepeated = TypeMode{String, Repeated}
	IntegerNullable = TypeMode{Integer, Nullable}
	IntegerRepeated = TypeMode{Integer, Repeated}
	FloatNullable  = TypeMode{Float, Nullable}
	FloatRepeated  = TypeMode{Float, Repeated}
	BooleanNullable = TypeMode{Boolean, Nullable}
	BooleanRepeated = TypeMode{Boolean, Repeated}
)

// Widen implements ⊔, the type-widening lattice, as the product of an
// independent mode lattice (repeated absorbs nullable) and a base-type
// lattice (record absorbs everything, string absorbs every other scalar,
// integer widens to float, any other scalar mismatch widens to string).
//
// The spec's own ordered-rule phrasing (§4.3 rule 4) reads as if mixed-type
// *repeated* scalars should widen straight to string even for an
// integer/float pair, echoing the nullable-mode rule 8 default. Taking that
// literally makes the lattice path-dependent: folding IntegerNullable,
// FloatNullable, FloatRepeated associates to FloatRepeated one way and to
// StringRepeated the other, depending on which pair widens first — which
// breaks the associativity law §8 requires of ⊔ and §9 already calls this
// rule "a design choice" with "ambiguous" source behavior. Keeping the base
// lattice mode-independent (integer/float always meet at float, repeated or
// not) is what makes Widen a genuine commutative, associative, idempotent
// semilattice, so that is the resolution implemented here; rule 4 still
// applies to base-type mismatches with no common narrower widening (e.g.
// boolean against integer, or boolean against string).
func Widen(a, b TypeMode) TypeMode {
	if a.Equal(b) {
		return a
	}
	mode := Nullable
	if a.Mode == Repeated || b.Mode == Repeated {
		mode = Repeated
	}
	return TypeMode{Base: widenBase(a.Base, b.Base), Mode: mode}
}

func widenBase(a, b BaseType) BaseType {
	switch {
	case a == b:
		return a
	case a == Record || b == Record:
		return Record
	case a == String || b == String:
		return String
	case (a == Integer && b == Float) || (a == Float && b == Integer):
		return Float
	default:
		// boolean mixed with any other scalar base has no common narrower
		// shape left but text.
		return String
	}
}

// WidenAll folds Widen over a non-empty slice of observations; the zero
// TypeMode is returned for an empty slice (callers should treat that as "no
// observation yet" rather than a real record-nullable).
func WidenAll(obs []TypeMode) TypeMode {
	if len(obs) == 0 {
		return TypeMode{}
	}
	acc := obs[0]
	for _, o := range obs[1:] {
		acc = Widen(acc, o)
	}
	return acc
}
