package domain

import (
	"bytes"
	"encoding/json"
)

// Opt holds a value that may be absent. Absent values encode as JSON null so
// that a denied permission or an undefined statistic is never confused with a
// real zero.
type Opt[T any] struct {
	value T
	ok    bool
}

// Some returns a present Opt holding v.
func Some[T any](v T) Opt[T] {
	return Opt[T]{value: v, ok: true}
}

// None returns an absent Opt.
func None[T any]() Opt[T] {
	return Opt[T]{}
}

// Get returns the value and whether it is present.
func (o Opt[T]) Get() (T, bool) {
	return o.value, o.ok
}

// Present reports whether a value is held.
func (o Opt[T]) Present() bool {
	return o.ok
}

// Or returns the held value, or def when absent.
func (o Opt[T]) Or(def T) T {
	if o.ok {
		return o.value
	}
	return def
}

// Ptr returns a pointer to a copy of the value, or nil when absent.
func (o Opt[T]) Ptr() *T {
	if !o.ok {
		return nil
	}
	v := o.value
	return &v
}

// FromPtr builds an Opt from a possibly nil pointer.
func FromPtr[T any](p *T) Opt[T] {
	if p == nil {
		return None[T]()
	}
	return Some(*p)
}

func (o Opt[T]) MarshalJSON() ([]byte, error) {
	if !o.ok {
		return []byte("null"), nil
	}
	return json.Marshal(o.value)
}

func (o *Opt[T]) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*o = None[T]()
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*o = Some(v)
	return nil
}
