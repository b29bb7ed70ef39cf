package wire

func appendReport(b []byte, r Report) []byte {
	b = appendVarintField(b, 1, r.Time)
	for _, j := range r.Joystick {
		var msg []byte
		msg = appendVarintField(msg, 1, uint64(j.ID))
		msg = appendDoubleField(msg, 2, j.X)
		msg = appendDoubleField(msg, 3, j.Y)
		b = appendMessageField(b, 2, msg)
	}
	for _, t := range r.Tactile {
		var msg []byte
		msg = appendVarintField(msg, 1, uint64(t.ID))
		msg = appendDoubleField(msg, 2, t.Holding)
		msg = appendDoubleField(msg, 3, t.PressFrequency)
		msg = appendDoubleField(msg, 4, t.ReleaseFrequency)
		b = appendMessageField(b, 3, msg)
	}
	for _, s := range r.Screen {
		var msg []byte
		msg = appendVarintField(msg, 1, uint64(s.ID))
		msg = appendDoubleField(msg, 2, s.X)
		msg = appendDoubleField(msg, 3, s.Y)
		msg = appendDoubleField(msg, 4, s.Clicks)
		b = appendMessageField(b, 4, msg)
	}
	return b
}

func decodeReport(body []byte) (Report, error) {
	var out Report
	r := newFieldReader("report", body)
	for {
		ok, err := r.Next()
		if err != nil {
			return Report{}, err
		}
		if !ok {
			return out, nil
		}
		switch r.num {
		case 1:
			if out.Time, err = r.Varint(); err != nil {
				return Report{}, err
			}
		case 2:
			msg, err := r.Bytes()
			if err != nil {
				return Report{}, err
			}
			j, err := decodeJoystickReport(msg)
			if err != nil {
				return Report{}, err
			}
			out.Joystick = append(out.Joystick, j)
		case 3:
			msg, err := r.Bytes()
			if err != nil {
				return Report{}, err
			}
			t, err := decodeTactileReport(msg)
			if err != nil {
				return Report{}, err
			}
			out.Tactile = append(out.Tactile, t)
		case 4:
			msg, err := r.Bytes()
			if err != nil {
				return Report{}, err
			}
			s, err := decodeScreenReport(msg)
			if err != nil {
				return Report{}, err
			}
			out.Screen = append(out.Screen, s)
		default:
			if err := r.Skip(); err != nil {
				return Report{}, err
			}
		}
	}
}

func decodeTactileReport(body []byte) (TactileReport, error) {
	var out TactileReport
	r := newFieldReader("report.tactile", body)
	for {
		ok, err := r.Next()
		if err != nil || !ok {
			return out, err
		}
		switch r.num {
		case 1:
			var v uint64
			v, err = r.Varint()
			out.ID = uint32(v)
		case 2:
			out.Holding, err = r.Double()
		case 3:
			out.PressFrequency, err = r.Double()
		case 4:
			out.ReleaseFrequency, err = r.Double()
		default:
			err = r.Skip()
		}
		if err != nil {
			return TactileReport{}, err
		}
	}
}

func decodeJoystickReport(body []byte) (JoystickReport, error) {
	var out JoystickReport
	r := newFieldReader("report.joystick", body)
	for {
		ok, err := r.Next()
		if err != nil || !ok {
			return out, err
		}
		switch r.num {
		case 1:
			var v uint64
			v, err = r.Varint()
			out.ID = uint32(v)
		case 2:
			out.X, err = r.Double()
		case 3:
			out.Y, err = r.Double()
		default:
			err = r.Skip()
		}
		if err != nil {
			return JoystickReport{}, err
		}
	}
}

func decodeScreenReport(body []byte) (ScreenReport, error) {
	var out ScreenReport
	r := newFieldReader("report.screen", body)
	for {
		ok, err := r.Next()
		if err != nil || !ok {
			return out, err
		}
		switch r.num {
		case 1:
			var v uint64
			v, err = r.Varint()
			out.ID = uint32(v)
		case 2:
			out.X, err = r.Double()
		case 3:
			out.Y, err = r.Double()
		case 4:
			out.Clicks, err = r.Double()
		default:
			err = r.Skip()
		}
		if err != nil {
			return ScreenReport{}, err
		}
	}
}
