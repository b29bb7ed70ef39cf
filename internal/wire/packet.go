package wire

import (
	"errors"
	"fmt"

	"github.com/danmuck/interactivectl/internal/update"
)

// ID is the packet type tag written before every packet body.
type ID uint64

const (
	IDHandshake      ID = 0
	IDHandshakeACK   ID = 1
	IDReport         ID = 2
	IDError          ID = 3
	IDProgressUpdate ID = 4
)

var (
	ErrUnknownPacket = errors.New("wire: unknown packet")
	ErrMalformed     = errors.New("wire: malformed packet")
	ErrEmpty         = errors.New("wire: empty packet")
)

var names = map[ID]string{
	IDHandshake:      "handshake",
	IDHandshakeACK:   "handshake_ack",
	IDReport:         "report",
	IDError:          "error",
	IDProgressUpdate: "progress_update",
}

func (id ID) String() string {
	if name, ok := names[id]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", uint64(id))
}

// Known reports whether id is part of the packet catalogue.
func (id ID) Known() bool {
	_, ok := names[id]
	return ok
}

// Packet is one decoded wire packet.
type Packet interface {
	PacketID() ID
}

// Handshake authenticates the robot on a channel with its stream key.
type Handshake struct {
	Channel   uint32
	StreamKey string
}

type HandshakeACK struct{}

// Report is the periodic server snapshot of device input.
type Report struct {
	Time     uint64
	Tactile  []TactileReport
	Joystick []JoystickReport
	Screen   []ScreenReport
}

type TactileReport struct {
	ID               uint32
	Holding          float64
	PressFrequency   float64
	ReleaseFrequency float64
}

type JoystickReport struct {
	ID uint32
	X  float64
	Y  float64
}

type ScreenReport struct {
	ID     uint32
	X      float64
	Y      float64
	Clicks float64
}

// Error is a server-reported protocol error.
type Error struct {
	Message string
}

// ProgressUpdate carries one outbound update.
type ProgressUpdate struct {
	Update update.Update
}

func (Handshake) PacketID() ID      { return IDHandshake }
func (HandshakeACK) PacketID() ID   { return IDHandshakeACK }
func (Report) PacketID() ID         { return IDReport }
func (Error) PacketID() ID          { return IDError }
func (ProgressUpdate) PacketID() ID { return IDProgressUpdate }

// Cardinality is the number of tactile elements the report describes.
func (r Report) Cardinality() int {
	return len(r.Tactile)
}
