package update

import (
	"errors"
	"fmt"
	"math"
)

const (
	KindUpdate   = "Update"
	KindTactile  = "TactileUpdate"
	KindJoystick = "JoystickUpdate"
	KindScreen   = "ScreenUpdate"
)

var ErrValidation = errors.New("update: validation failed")

// ValidationError names the element and field that failed, with the bound it broke.
type ValidationError struct {
	Kind   string
	Index  int
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	where := e.Kind
	if e.Index >= 0 {
		where = fmt.Sprintf("%s[%d]", e.Kind, e.Index)
	}
	if e.Field == "" {
		return fmt.Sprintf("update: %s: %s", where, e.Reason)
	}
	return fmt.Sprintf("update: %s.%s: %s", where, e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(kind string, index int, field, reason string) *ValidationError {
	return &ValidationError{Kind: kind, Index: index, Field: field, Reason: reason}
}

// Update is one outbound message: an optional state label plus element changes.
type Update struct {
	State    Opt[string]
	Tactile  []TactileUpdate
	Joystick []JoystickUpdate
	Screen   []ScreenUpdate
}

// TactileUpdate changes one button. CooldownMS is in milliseconds.
type TactileUpdate struct {
	ID         int
	CooldownMS Opt[int64]
	Fired      Opt[bool]
	Progress   Opt[float64]
	Disabled   Opt[bool]
}

// JoystickUpdate changes one joystick. Angle is in radians.
type JoystickUpdate struct {
	ID        int
	Angle     Opt[float64]
	Intensity Opt[float64]
	Disabled  Opt[bool]
}

type Click struct {
	Intensity float64
	X         float64
	Y         float64
}

type ScreenUpdate struct {
	ID       int
	Clicks   []Click
	Disabled Opt[bool]
}

// Element is a single tactile, joystick or screen update.
type Element interface {
	Wrap() Update
}

func (t TactileUpdate) Wrap() Update {
	return Update{Tactile: []TactileUpdate{t}}
}

func (j JoystickUpdate) Wrap() Update {
	return Update{Joystick: []JoystickUpdate{j}}
}

func (s ScreenUpdate) Wrap() Update {
	return Update{Screen: []ScreenUpdate{s}}
}

// Wrap returns an Update holding exactly e.
func Wrap(e Element) Update {
	return e.Wrap()
}

// WithState returns a state-only update.
func WithState(label string) Update {
	return Update{State: Some(label)}
}

// TactileCooldown builds count tactile entries with ids 0..count-1, each with
// the given cooldown and no other field set.
func TactileCooldown(lengthMS int64, count int) Update {
	ids := make([]int, 0, max(count, 0))
	for i := 0; i < count; i++ {
		ids = append(ids, i)
	}
	return TactileCooldownIDs(lengthMS, ids)
}

func TactileCooldownIDs(lengthMS int64, ids []int) Update {
	out := Update{Tactile: make([]TactileUpdate, 0, len(ids))}
	for _, id := range ids {
		out.Tactile = append(out.Tactile, TactileUpdate{ID: id, CooldownMS: Some(lengthMS)})
	}
	return out
}

// TactileFired builds one tactile entry per id with only fired set.
func TactileFired(fired bool, ids []int) Update {
	out := Update{Tactile: make([]TactileUpdate, 0, len(ids))}
	for _, id := range ids {
		out.Tactile = append(out.Tactile, TactileUpdate{ID: id, Fired: Some(fired)})
	}
	return out
}

// IsEmpty reports whether u carries nothing to send.
func (u Update) IsEmpty() bool {
	return !u.State.IsSet() && len(u.Tactile) == 0 && len(u.Joystick) == 0 && len(u.Screen) == 0
}

// Validated is an Update that passed Validate. Only validated updates are encoded.
type Validated struct {
	u Update
}

func (v Validated) Update() Update {
	return v.u
}

// Validate checks every element against its field bounds and returns the
// first violation as a *ValidationError.
func Validate(u Update) (Validated, error) {
	for i, t := range u.Tactile {
		if err := t.check(i); err != nil {
			return Validated{}, err
		}
	}
	for i, j := range u.Joystick {
		if err := j.check(i); err != nil {
			return Validated{}, err
		}
	}
	for i, s := range u.Screen {
		if err := s.check(i); err != nil {
			return Validated{}, err
		}
	}
	return Validated{u: clone(u)}, nil
}

func (t TactileUpdate) check(i int) error {
	if t.ID < 0 {
		return invalid(KindTactile, i, "id", "must be 0 or greater")
	}
	if v, ok := t.CooldownMS.Get(); ok && v < 0 {
		return invalid(KindTactile, i, "cooldown", "must be 0 or greater")
	}
	if v, ok := t.Progress.Get(); ok && (math.IsNaN(v) || v < 0 || v > 1) {
		return invalid(KindTactile, i, "progress", "must be within [0, 1]")
	}
	return nil
}

func (j JoystickUpdate) check(i int) error {
	if j.ID < 0 {
		return invalid(KindJoystick, i, "id", "must be 0 or greater")
	}
	if v, ok := j.Angle.Get(); ok && (math.IsNaN(v) || v < 0 || v > 2*math.Pi) {
		return invalid(KindJoystick, i, "angle", "must be within [0, 2π]")
	}
	if v, ok := j.Intensity.Get(); ok && (math.IsNaN(v) || math.IsInf(v, 0) || v < 0) {
		return invalid(KindJoystick, i, "intensity", "must be 0 or greater")
	}
	return nil
}

func (s ScreenUpdate) check(i int) error {
	if s.ID < 0 {
		return invalid(KindScreen, i, "id", "must be 0 or greater")
	}
	for n, c := range s.Clicks {
		if !finite(c.Intensity) || !finite(c.X) || !finite(c.Y) {
			return invalid(KindScreen, i, fmt.Sprintf("clicks[%d]", n), "must be finite numbers")
		}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func clone(u Update) Update {
	out := Update{State: u.State}
	if len(u.Tactile) > 0 {
		out.Tactile = append([]TactileUpdate(nil), u.Tactile...)
	}
	if len(u.Joystick) > 0 {
		out.Joystick = append([]JoystickUpdate(nil), u.Joystick...)
	}
	if len(u.Screen) > 0 {
		out.Screen = make([]ScreenUpdate, len(u.Screen))
		for i, s := range u.Screen {
			s.Clicks = append([]Click(nil), s.Clicks...)
			out.Screen[i] = s
		}
	}
	return out
}
