package update

import "fmt"

// Opt is a present/absent field value. The zero value is absent.
type Opt[T any] struct {
	value T
	set   bool
}

func Some[T any](v T) Opt[T] {
	return Opt[T]{value: v, set: true}
}

func None[T any]() Opt[T] {
	return Opt[T]{}
}

func (o Opt[T]) Get() (T, bool) {
	return o.value, o.set
}

func (o Opt[T]) IsSet() bool {
	return o.set
}

// Or returns the value when present and fallback otherwise.
func (o Opt[T]) Or(fallback T) T {
	if !o.set {
		return fallback
	}
	return o.value
}

func (o Opt[T]) String() string {
	if !o.set {
		return "<unset>"
	}
	return fmt.Sprint(o.value)
}
