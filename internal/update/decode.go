package update

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// FromJSON decodes a JSON object into an Update. See FromMap for field rules.
func FromJSON(data []byte) (Update, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return Update{}, invalid(KindUpdate, -1, "", fmt.Sprintf("invalid json: %v", err))
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return Update{}, invalid(KindUpdate, -1, "", fmt.Sprintf("expected object, got %s", typeName(raw)))
	}
	return FromMap(m)
}

// FromMap decodes an untyped mapping into an Update.
//
// Recognized keys are "state", "tactile", "joystick" and "screen" (the
// "_updates" suffixed spellings are accepted too). Unknown keys are ignored.
// Every element requires "id"; all other element fields are optional.
func FromMap(m map[string]any) (Update, error) {
	var out Update
	if v, ok := m["state"]; ok && v != nil {
		s, err := toString(v)
		if err != nil {
			return Update{}, invalid(KindUpdate, -1, "state", err.Error())
		}
		out.State = Some(s)
	}

	tactile, err := elementList(m, KindTactile, "tactile", "tactile_updates")
	if err != nil {
		return Update{}, err
	}
	for i, raw := range tactile {
		t, err := tactileFromMap(raw, i)
		if err != nil {
			return Update{}, err
		}
		out.Tactile = append(out.Tactile, t)
	}

	joystick, err := elementList(m, KindJoystick, "joystick", "joystick_updates")
	if err != nil {
		return Update{}, err
	}
	for i, raw := range joystick {
		j, err := joystickFromMap(raw, i)
		if err != nil {
			return Update{}, err
		}
		out.Joystick = append(out.Joystick, j)
	}

	screen, err := elementList(m, KindScreen, "screen", "screen_updates")
	if err != nil {
		return Update{}, err
	}
	for i, raw := range screen {
		s, err := screenFromMap(raw, i)
		if err != nil {
			return Update{}, err
		}
		out.Screen = append(out.Screen, s)
	}
	return out, nil
}

// TactileFromMap decodes a single tactile element.
func TactileFromMap(m map[string]any) (TactileUpdate, error) {
	return tactileFromMap(m, -1)
}

func JoystickFromMap(m map[string]any) (JoystickUpdate, error) {
	return joystickFromMap(m, -1)
}

func ScreenFromMap(m map[string]any) (ScreenUpdate, error) {
	return screenFromMap(m, -1)
}

func elementList(m map[string]any, kind string, keys ...string) ([]map[string]any, error) {
	for _, key := range keys {
		v, ok := m[key]
		if !ok || v == nil {
			continue
		}
		items, ok := v.([]any)
		if !ok {
			if typed, ok := v.([]map[string]any); ok {
				return typed, nil
			}
			return nil, invalid(KindUpdate, -1, key, fmt.Sprintf("expected list, got %s", typeName(v)))
		}
		out := make([]map[string]any, 0, len(items))
		for i, item := range items {
			obj, ok := item.(map[string]any)
			if !ok {
				return nil, invalid(kind, i, "", fmt.Sprintf("expected object, got %s", typeName(item)))
			}
			out = append(out, obj)
		}
		return out, nil
	}
	return nil, nil
}

func tactileFromMap(m map[string]any, index int) (TactileUpdate, error) {
	id, err := requiredID(m, KindTactile, index)
	if err != nil {
		return TactileUpdate{}, err
	}
	out := TactileUpdate{ID: id}
	if v, ok := present(m, "cooldown", "cooldown_ms"); ok {
		n, err := toInt(v)
		if err != nil {
			return TactileUpdate{}, invalid(KindTactile, index, "cooldown", err.Error())
		}
		out.CooldownMS = Some(n)
	}
	if v, ok := present(m, "fired"); ok {
		b, err := toBool(v)
		if err != nil {
			return TactileUpdate{}, invalid(KindTactile, index, "fired", err.Error())
		}
		out.Fired = Some(b)
	}
	if v, ok := present(m, "progress"); ok {
		f, err := toFloat(v)
		if err != nil {
			return TactileUpdate{}, invalid(KindTactile, index, "progress", err.Error())
		}
		out.Progress = Some(f)
	}
	if v, ok := present(m, "disabled"); ok {
		b, err := toBool(v)
		if err != nil {
			return TactileUpdate{}, invalid(KindTactile, index, "disabled", err.Error())
		}
		out.Disabled = Some(b)
	}
	return out, nil
}

func joystickFromMap(m map[string]any, index int) (JoystickUpdate, error) {
	id, err := requiredID(m, KindJoystick, index)
	if err != nil {
		return JoystickUpdate{}, err
	}
	out := JoystickUpdate{ID: id}
	if v, ok := present(m, "angle"); ok {
		f, err := toFloat(v)
		if err != nil {
			return JoystickUpdate{}, invalid(KindJoystick, index, "angle", err.Error())
		}
		out.Angle = Some(f)
	}
	if v, ok := present(m, "intensity"); ok {
		f, err := toFloat(v)
		if err != nil {
			return JoystickUpdate{}, invalid(KindJoystick, index, "intensity", err.Error())
		}
		out.Intensity = Some(f)
	}
	if v, ok := present(m, "disabled"); ok {
		b, err := toBool(v)
		if err != nil {
			return JoystickUpdate{}, invalid(KindJoystick, index, "disabled", err.Error())
		}
		out.Disabled = Some(b)
	}
	return out, nil
}

func screenFromMap(m map[string]any, index int) (ScreenUpdate, error) {
	id, err := requiredID(m, KindScreen, index)
	if err != nil {
		return ScreenUpdate{}, err
	}
	out := ScreenUpdate{ID: id}
	if v, ok := present(m, "clicks"); ok {
		items, ok := v.([]any)
		if !ok {
			return ScreenUpdate{}, invalid(KindScreen, index, "clicks", fmt.Sprintf("expected list, got %s", typeName(v)))
		}
		for n, item := range items {
			c, err := clickFrom(item)
			if err != nil {
				return ScreenUpdate{}, invalid(KindScreen, index, fmt.Sprintf("clicks[%d]", n), err.Error())
			}
			out.Clicks = append(out.Clicks, c)
		}
	}
	if v, ok := present(m, "disabled"); ok {
		b, err := toBool(v)
		if err != nil {
			return ScreenUpdate{}, invalid(KindScreen, index, "disabled", err.Error())
		}
		out.Disabled = Some(b)
	}
	return out, nil
}

// clickFrom accepts {"intensity", "x", "y"} objects or [x, y] / [x, y, intensity] lists.
func clickFrom(v any) (Click, error) {
	switch c := v.(type) {
	case map[string]any:
		var out Click
		var err error
		x, ok := present(c, "x")
		if !ok {
			return Click{}, fmt.Errorf("missing x")
		}
		if out.X, err = toFloat(x); err != nil {
			return Click{}, fmt.Errorf("x: %w", err)
		}
		y, ok := present(c, "y")
		if !ok {
			return Click{}, fmt.Errorf("missing y")
		}
		if out.Y, err = toFloat(y); err != nil {
			return Click{}, fmt.Errorf("y: %w", err)
		}
		if in, ok := present(c, "intensity"); ok {
			if out.Intensity, err = toFloat(in); err != nil {
				return Click{}, fmt.Errorf("intensity: %w", err)
			}
		}
		return out, nil
	case []any:
		if len(c) != 2 && len(c) != 3 {
			return Click{}, fmt.Errorf("expected 2 or 3 coordinates, got %d", len(c))
		}
		vals := make([]float64, len(c))
		for i, raw := range c {
			f, err := toFloat(raw)
			if err != nil {
				return Click{}, err
			}
			vals[i] = f
		}
		out := Click{X: vals[0], Y: vals[1]}
		if len(vals) == 3 {
			out.Intensity = vals[2]
		}
		return out, nil
	default:
		return Click{}, fmt.Errorf("expected object or list, got %s", typeName(v))
	}
}

func requiredID(m map[string]any, kind string, index int) (int, error) {
	v, ok := present(m, "id")
	if !ok {
		return 0, invalid(kind, index, "id", "required")
	}
	n, err := toInt(v)
	if err != nil {
		return 0, invalid(kind, index, "id", err.Error())
	}
	if n < 0 {
		return 0, invalid(kind, index, "id", "must be 0 or greater")
	}
	if n > math.MaxInt32 {
		return 0, invalid(kind, index, "id", "out of range")
	}
	return int(n), nil
}

func present(m map[string]any, keys ...string) (any, bool) {
	for _, key := range keys {
		if v, ok := m[key]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func toInt(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint:
		return uintToInt(uint64(n))
	case uint8:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint64:
		return uintToInt(n)
	case float32:
		return floatToInt(float64(n))
	case float64:
		return floatToInt(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, nil
		}
		f, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("expected integer, got %q", n.String())
		}
		return floatToInt(f)
	case string:
		s := strings.TrimSpace(n)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("expected integer, got %q", n)
		}
		return floatToInt(f)
	default:
		return 0, fmt.Errorf("expected integer, got %s", typeName(v))
	}
}

func uintToInt(n uint64) (int64, error) {
	if n > math.MaxInt64 {
		return 0, fmt.Errorf("integer %d out of range", n)
	}
	return int64(n), nil
}

func floatToInt(f float64) (int64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, fmt.Errorf("expected integer, got %v", f)
	}
	if f > math.MaxInt64 || f < math.MinInt64 {
		return 0, fmt.Errorf("integer %v out of range", f)
	}
	return int64(f), nil
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("expected number, got %q", n.String())
		}
		return f, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("expected number, got %q", n)
		}
		return f, nil
	case bool:
		return 0, fmt.Errorf("expected number, got bool")
	default:
		i, err := toInt(v)
		if err != nil {
			return 0, fmt.Errorf("expected number, got %s", typeName(v))
		}
		return float64(i), nil
	}
}

func toBool(v any) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(b))
		if err != nil {
			return false, fmt.Errorf("expected bool, got %q", b)
		}
		return parsed, nil
	default:
		return false, fmt.Errorf("expected bool, got %s", typeName(v))
	}
}

func toString(v any) (string, error) {
	switch s := v.(type) {
	case string:
		return s, nil
	case json.Number:
		return s.String(), nil
	case fmt.Stringer:
		return s.String(), nil
	default:
		return "", fmt.Errorf("expected string, got %s", typeName(v))
	}
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "object"
	case []any:
		return "list"
	case string:
		return "string"
	case bool:
		return "bool"
	case json.Number, float64, float32, int, int64, int32:
		return "number"
	default:
		return fmt.Sprintf("%T", v)
	}
}
