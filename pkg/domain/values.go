package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Value is the tagged scalar payload moved in and out of the value stores.
// The zero Value is undefined ("no value"); constructors produce defined
// values of a specific storage kind.
type Value struct {
	defined bool
	kind    StorageKind
	text    string
	integer int64
	float   float64
}

// TextValue builds a defined text value.
func TextValue(s string) Value { return Value{defined: true, kind: KindText, text: s} }

// IntValue builds a defined integer value.
func IntValue(n int64) Value { return Value{defined: true, kind: KindInteger, integer: n} }

// FloatValue builds a defined float value.
func FloatValue(f float64) Value { return Value{defined: true, kind: KindFloat, float: f} }

// AmountValue builds a defined monetary value in integral minor units.
func AmountValue(minorUnits int64) Value {
	return Value{defined: true, kind: KindAmount, integer: minorUnits}
}

// UUIDValue builds a defined UUID value from its canonical text form.
func UUIDValue(s string) Value { return Value{defined: true, kind: KindUUID, text: s} }

// CategoryValue builds a defined category reference.
func CategoryValue(id int64) Value {
	return Value{defined: true, kind: KindCategoryRef, integer: id}
}

// NoScalar is the undefined scalar value.
func NoScalar() Value { return Value{} }

// Defined reports whether the value carries data.
func (v Value) Defined() bool { return v.defined }

// Kind returns the storage kind of a defined value, or "" when undefined.
func (v Value) Kind() StorageKind {
	if !v.defined {
		return ""
	}
	return v.kind
}

// Text returns the textual payload of text and uuid values.
func (v Value) Text() string { return v.text }

// Int returns the integral payload of integer, amount, and category values.
func (v Value) Int() int64 { return v.integer }

// Float returns the payload of float values.
func (v Value) Float() float64 { return v.float }

// Equal reports whether two values are both undefined or carry the same kind
// and payload.
func (v Value) Equal(o Value) bool {
	if v.defined != o.defined {
		return false
	}
	if !v.defined {
		return true
	}
	return v.kind == o.kind && v.text == o.text && v.integer == o.integer && v.float == o.float
}

// String renders the payload for logs and changelog notes.
func (v Value) String() string {
	if !v.defined {
		return "<none>"
	}
	switch v.kind {
	case KindText, KindUUID:
		return v.text
	case KindFloat:
		return strconv.FormatFloat(v.float, 'g', -1, 64)
	default:
		return strconv.FormatInt(v.integer, 10)
	}
}

type valueJSON struct {
	Kind  StorageKind `json:"kind"`
	Text  string      `json:"text,omitempty"`
	Int   int64       `json:"int,omitempty"`
	Float float64     `json:"float,omitempty"`
}

// MarshalJSON encodes defined values with an explicit kind tag; undefined
// values encode as null.
func (v Value) MarshalJSON() ([]byte, error) {
	if !v.defined {
		return []byte("null"), nil
	}
	return json.Marshal(valueJSON{Kind: v.kind, Text: v.text, Int: v.integer, Float: v.float})
}

// UnmarshalJSON decodes the representation produced by MarshalJSON.
func (v *Value) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*v = Value{}
		return nil
	}
	var raw valueJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if !raw.Kind.Valid() {
		return fmt.Errorf("unknown value kind %q", raw.Kind)
	}
	*v = Value{defined: true, kind: raw.Kind, text: raw.Text, integer: raw.Int, float: raw.Float}
	return nil
}
