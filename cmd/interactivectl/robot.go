package main

import (
	"context"

	"github.com/danmuck/interactivectl/internal/interactive"
	"github.com/danmuck/interactivectl/internal/wire"
	"github.com/rs/zerolog/log"
)

// robot logs inbound packets and answers every report with a state label.
type robot struct {
	client *interactive.Client
	state  string
}

func newRobot(state string) *robot {
	return &robot{state: state}
}

func (r *robot) handlers() interactive.Handlers {
	return interactive.Handlers{
		OnConnect:    r.onConnect,
		OnReport:     r.onReport,
		OnError:      r.onError,
		OnDisconnect: r.onDisconnect,
	}
}

func (r *robot) onConnect(ctx context.Context, _ wire.HandshakeACK) error {
	log.Info().Str("conn_id", r.client.ConnID().String()).Msg("robot: connected")
	return nil
}

func (r *robot) onReport(ctx context.Context, rep wire.Report) error {
	for _, t := range rep.Tactile {
		if t.PressFrequency > 0 {
			log.Info().Uint32("tactile", t.ID).Int("presses", int(t.PressFrequency)).Msg("robot: pressed")
		}
	}
	if r.state == "" {
		return nil
	}
	return r.client.SetState(ctx, r.state)
}

func (r *robot) onError(ctx context.Context, pkt wire.Error) error {
	log.Warn().Str("message", pkt.Message).Msg("robot: error packet")
	return nil
}

func (r *robot) onDisconnect(reason error) {
	log.Info().AnErr("reason", reason).Int("attempts", r.client.Attempts()).Msg("robot: disconnected")
}
