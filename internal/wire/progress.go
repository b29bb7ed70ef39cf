package wire

import (
	"github.com/danmuck/interactivectl/internal/update"
	"google.golang.org/protobuf/encoding/protowire"
)

// appendProgress writes only the fields that are present on u.
func appendProgress(b []byte, u update.Update) []byte {
	if s, ok := u.State.Get(); ok {
		b = appendStringField(b, 1, s)
	}
	for _, t := range u.Tactile {
		var msg []byte
		msg = appendVarintField(msg, 1, uint64(t.ID))
		if v, ok := t.CooldownMS.Get(); ok {
			msg = appendVarintField(msg, 2, uint64(v))
		}
		if v, ok := t.Fired.Get(); ok {
			msg = appendBoolField(msg, 3, v)
		}
		if v, ok := t.Progress.Get(); ok {
			msg = appendDoubleField(msg, 4, v)
		}
		if v, ok := t.Disabled.Get(); ok {
			msg = appendBoolField(msg, 5, v)
		}
		b = appendMessageField(b, 2, msg)
	}
	for _, j := range u.Joystick {
		var msg []byte
		msg = appendVarintField(msg, 1, uint64(j.ID))
		if v, ok := j.Angle.Get(); ok {
			msg = appendDoubleField(msg, 2, v)
		}
		if v, ok := j.Intensity.Get(); ok {
			msg = appendDoubleField(msg, 3, v)
		}
		if v, ok := j.Disabled.Get(); ok {
			msg = appendBoolField(msg, 4, v)
		}
		b = appendMessageField(b, 3, msg)
	}
	for _, s := range u.Screen {
		var msg []byte
		msg = appendVarintField(msg, 1, uint64(s.ID))
		for _, c := range s.Clicks {
			var click []byte
			click = appendDoubleField(click, 1, c.Intensity)
			click = appendDoubleField(click, 2, c.X)
			click = appendDoubleField(click, 3, c.Y)
			msg = appendMessageField(msg, 2, click)
		}
		if v, ok := s.Disabled.Get(); ok {
			msg = appendBoolField(msg, 3, v)
		}
		b = appendMessageField(b, 4, msg)
	}
	return b
}

func decodeProgress(body []byte) (ProgressUpdate, error) {
	var u update.Update
	r := newFieldReader("progress_update", body)
	for {
		ok, err := r.Next()
		if err != nil {
			return ProgressUpdate{}, err
		}
		if !ok {
			return ProgressUpdate{Update: u}, nil
		}
		switch r.num {
		case 1:
			s, err := r.Text()
			if err != nil {
				return ProgressUpdate{}, err
			}
			u.State = update.Some(s)
		case 2, 3, 4:
			msg, err := r.Bytes()
			if err != nil {
				return ProgressUpdate{}, err
			}
			if err := decodeProgressElement(&u, r.num, msg); err != nil {
				return ProgressUpdate{}, err
			}
		default:
			if err := r.Skip(); err != nil {
				return ProgressUpdate{}, err
			}
		}
	}
}

func decodeProgressElement(u *update.Update, num protowire.Number, msg []byte) error {
	switch num {
	case 2:
		t, err := decodeTactileUpdate(msg)
		if err != nil {
			return err
		}
		u.Tactile = append(u.Tactile, t)
	case 3:
		j, err := decodeJoystickUpdate(msg)
		if err != nil {
			return err
		}
		u.Joystick = append(u.Joystick, j)
	case 4:
		s, err := decodeScreenUpdate(msg)
		if err != nil {
			return err
		}
		u.Screen = append(u.Screen, s)
	}
	return nil
}

func decodeTactileUpdate(body []byte) (update.TactileUpdate, error) {
	var out update.TactileUpdate
	r := newFieldReader("progress_update.tactile", body)
	for {
		ok, err := r.Next()
		if err != nil || !ok {
			return out, err
		}
		switch r.num {
		case 1:
			var v uint64
			v, err = r.Varint()
			out.ID = int(v)
		case 2:
			var v uint64
			v, err = r.Varint()
			out.CooldownMS = update.Some(int64(v))
		case 3:
			var v bool
			v, err = r.Bool()
			out.Fired = update.Some(v)
		case 4:
			var v float64
			v, err = r.Double()
			out.Progress = update.Some(v)
		case 5:
			var v bool
			v, err = r.Bool()
			out.Disabled = update.Some(v)
		default:
			err = r.Skip()
		}
		if err != nil {
			return update.TactileUpdate{}, err
		}
	}
}

func decodeJoystickUpdate(body []byte) (update.JoystickUpdate, error) {
	var out update.JoystickUpdate
	r := newFieldReader("progress_update.joystick", body)
	for {
		ok, err := r.Next()
		if err != nil || !ok {
			return out, err
		}
		switch r.num {
		case 1:
			var v uint64
			v, err = r.Varint()
			out.ID = int(v)
		case 2:
			var v float64
			v, err = r.Double()
			out.Angle = update.Some(v)
		case 3:
			var v float64
			v, err = r.Double()
			out.Intensity = update.Some(v)
		case 4:
			var v bool
			v, err = r.Bool()
			out.Disabled = update.Some(v)
		default:
			err = r.Skip()
		}
		if err != nil {
			return update.JoystickUpdate{}, err
		}
	}
}

func decodeScreenUpdate(body []byte) (update.ScreenUpdate, error) {
	var out update.ScreenUpdate
	r := newFieldReader("progress_update.screen", body)
	for {
		ok, err := r.Next()
		if err != nil || !ok {
			return out, err
		}
		switch r.num {
		case 1:
			var v uint64
			v, err = r.Varint()
			out.ID = int(v)
		case 2:
			var msg []byte
			if msg, err = r.Bytes(); err == nil {
				var c update.Click
				c, err = decodeClick(msg)
				out.Clicks = append(out.Clicks, c)
			}
		case 3:
			var v bool
			v, err = r.Bool()
			out.Disabled = update.Some(v)
		default:
			err = r.Skip()
		}
		if err != nil {
			return update.ScreenUpdate{}, err
		}
	}
}

func decodeClick(body []byte) (update.Click, error) {
	var out update.Click
	r := newFieldReader("progress_update.screen.click", body)
	for {
		ok, err := r.Next()
		if err != nil || !ok {
			return out, err
		}
		switch r.num {
		case 1:
			out.Intensity, err = r.Double()
		case 2:
			out.X, err = r.Double()
		case 3:
			out.Y, err = r.Double()
		default:
			err = r.Skip()
		}
		if err != nil {
			return update.Click{}, err
		}
	}
}
