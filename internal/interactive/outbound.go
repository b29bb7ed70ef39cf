package interactive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/danmuck/interactivectl/internal/conn"
	"github.com/danmuck/interactivectl/internal/observability"
	"github.com/danmuck/interactivectl/internal/update"
	"github.com/danmuck/interactivectl/internal/wire"
	"github.com/rs/zerolog/log"
)

// Send validates v and writes it as one progress_update packet.
//
// v may be an update.Update, a single tactile/joystick/screen element, a
// map[string]any, or JSON as a string, []byte or json.RawMessage. Send
// returns ErrNotConnected without any I/O when no connection is up, and a
// *update.ValidationError (matching ErrValidation) when v is rejected.
func (c *Client) Send(ctx context.Context, v any) error {
	h := c.currentHandle()
	if h == nil {
		observability.RecordUpdate("not_connected")
		return ErrNotConnected
	}
	u, err := ToUpdate(v)
	if err != nil {
		observability.RecordUpdate("invalid")
		return err
	}
	valid, err := update.Validate(u)
	if err != nil {
		observability.RecordUpdate("invalid")
		return err
	}
	if s, ok := u.State.Get(); ok {
		c.mu.Lock()
		c.lastState, c.hasState = s, true
		c.mu.Unlock()
	}

	if err := h.Send(ctx, wire.EncodeUpdate(valid)); err != nil {
		if errors.Is(err, conn.ErrClosed) {
			observability.RecordUpdate("not_connected")
			return fmt.Errorf("%w: %w", ErrNotConnected, err)
		}
		observability.RecordUpdate("failed")
		return fmt.Errorf("%w: send: %w", ErrConnectionFailed, err)
	}
	observability.RecordUpdate("sent")
	log.Trace().
		Int("tactile", len(u.Tactile)).
		Int("joystick", len(u.Joystick)).
		Int("screen", len(u.Screen)).
		Msg("interactive: update sent")
	return nil
}

// SetState sends a state-only update.
func (c *Client) SetState(ctx context.Context, label string) error {
	return c.Send(ctx, update.WithState(label))
}

// TactileFire presses and releases the given buttons: one update with fired
// set, then one with it cleared. No ids means every known button.
func (c *Client) TactileFire(ctx context.Context, ids ...int) error {
	ids, err := c.tactileIDs(ids)
	if err != nil {
		return err
	}
	if err := c.Send(ctx, update.TactileFired(true, ids)); err != nil {
		return err
	}
	return c.Send(ctx, update.TactileFired(false, ids))
}

// TactileCooldown puts the given buttons on cooldown for lengthMS
// milliseconds. No ids means every known button.
func (c *Client) TactileCooldown(ctx context.Context, lengthMS int64, ids ...int) error {
	ids, err := c.tactileIDs(ids)
	if err != nil {
		return err
	}
	return c.Send(ctx, update.TactileCooldownIDs(lengthMS, ids))
}

func (c *Client) tactileIDs(ids []int) ([]int, error) {
	if c.currentHandle() == nil {
		return nil, ErrNotConnected
	}
	if len(ids) > 0 {
		return ids, nil
	}
	n, ok := c.Cardinality()
	if !ok {
		return nil, ErrUnknownCardinality
	}
	all := make([]int, n)
	for i := range all {
		all[i] = i
	}
	return all, nil
}

// ToUpdate converts anything Send accepts into an update.Update.
func ToUpdate(v any) (update.Update, error) {
	switch x := v.(type) {
	case update.Update:
		return x, nil
	case *update.Update:
		if x == nil {
			break
		}
		return *x, nil
	case update.Element:
		return x.Wrap(), nil
	case map[string]any:
		return update.FromMap(x)
	case json.RawMessage:
		return update.FromJSON(x)
	case []byte:
		return update.FromJSON(x)
	case string:
		return update.FromJSON([]byte(x))
	}
	return update.Update{}, &update.ValidationError{
		Kind:   update.KindUpdate,
		Index:  -1,
		Reason: fmt.Sprintf("unsupported update type %T", v),
	}
}
