package interactive

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/danmuck/interactivectl/internal/conn"
	"github.com/danmuck/interactivectl/internal/dispatch"
	"github.com/danmuck/interactivectl/internal/observability"
	"github.com/danmuck/interactivectl/internal/wire"
	"github.com/rs/zerolog/log"
)

func (c *Client) receiveInline(ctx context.Context, h *conn.Handle) error {
	for {
		data, err := h.ReceiveWithTimeout(ctx, c.cfg.Timeout)
		if err != nil {
			return receiveError(err)
		}
		if err := c.handlePacket(ctx, data); err != nil {
			return err
		}
	}
}

// receiveQueued feeds one handler goroutine so packets are still handled in
// receive order. Packets queued before the connection ends are drained.
func (c *Client) receiveQueued(ctx context.Context, h *conn.Handle) error {
	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	queue := make(chan []byte, c.cfg.QueueSize)
	handlerErr := make(chan error, 1)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for data := range queue {
			if err := c.handlePacket(loopCtx, data); err != nil {
				handlerErr <- err
				cancel()
				return
			}
		}
	}()

	recvErr := func() error {
		defer close(queue)
		for {
			data, err := h.ReceiveWithTimeout(loopCtx, c.cfg.Timeout)
			if err != nil {
				return err
			}
			select {
			case queue <- data:
			case <-loopCtx.Done():
				return loopCtx.Err()
			}
		}
	}()
	wg.Wait()

	select {
	case err := <-handlerErr:
		return err
	default:
	}
	return receiveError(recvErr)
}

func receiveError(err error) error {
	switch {
	case errors.Is(err, conn.ErrPeerClosed):
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return classify(err)
	}
}

// handlePacket decodes and dispatches one packet. Bytes that do not decode
// are logged and skipped. Report packets update the cardinality before their
// handler runs.
func (c *Client) handlePacket(ctx context.Context, data []byte) error {
	pkt, err := wire.Decode(data)
	if err != nil {
		observability.RecordPacket("undecodable", dispatch.Unknown.String())
		log.Warn().Err(err).Int("size", len(data)).Msg("interactive: unknown bytes received")
		return nil
	}
	if r, ok := pkt.(wire.Report); ok {
		c.setCardinality(r.Cardinality())
	}

	name := pkt.PacketID().String()
	outcome, err := c.dispatcher.Dispatch(ctx, pkt)
	observability.RecordPacket(name, outcome.String())
	if outcome == dispatch.Ignored {
		log.Debug().Str("packet", name).Msg("interactive: packet not handled")
	}
	if err == nil {
		return nil
	}

	herr := fmt.Errorf("%w: %s: %w", ErrHandler, name, err)
	if c.cfg.HandlerErrors == LogHandlerErrors {
		log.Error().Err(herr).Str("packet", name).Msg("interactive: handler error")
		return nil
	}
	return herr
}
