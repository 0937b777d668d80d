package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/chaz8081/ecbridge/internal/board"
	"github.com/chaz8081/ecbridge/internal/moves"
)

// Feed decodes one sensor notification, lights the square of every action
// it produces, and queues the actions for reconstruction. It blocks while
// the action queue is full.
func (b *Bridge) Feed(ctx context.Context, data []byte) error {
	frame, err := board.ParseNotification(data)
	if err != nil {
		slog.Warn("[ECB] dropping notification", "error", err)
		return err
	}
	for a := range b.decoder.Decode(frame) {
		if err := b.transport.Light(ctx, a.Square); err != nil {
			slog.Debug("[ECB] lighting square", "square", a.Square, "error", err)
		}
		slog.Debug("[ECB] action", "action", a)
		if err := b.actions.Put(ctx, a); err != nil {
			return fmt.Errorf("bridge: queue action: %w", err)
		}
	}
	return nil
}

func (b *Bridge) discover(ctx context.Context, _ string) ([]string, error) {
	devices, err := b.transport.Discover(ctx)
	if err != nil {
		return nil, err
	}
	if len(devices) == 0 {
		return []string{NoDevices}, nil
	}
	lines := make([]string, 0, len(devices))
	for _, d := range devices {
		lines = append(lines, d.String())
	}
	return lines, nil
}

func (b *Bridge) connect(ctx context.Context, arg string) ([]string, error) {
	index, err := strconv.Atoi(arg)
	if err != nil {
		return nil, fmt.Errorf("bridge: connect: bad device index %q", arg)
	}
	if err := b.transport.Connect(ctx, index); err != nil {
		return nil, err
	}
	// The first notification from the new link is the baseline.
	b.decoder.Reset()
	return []string{b.transport.Status().String()}, nil
}

func (b *Bridge) disconnect(ctx context.Context, _ string) ([]string, error) {
	if err := b.transport.Disconnect(ctx); err != nil {
		return nil, err
	}
	return []string{b.transport.Status().String()}, nil
}

func (b *Bridge) status(_ context.Context, _ string) ([]string, error) {
	return []string{b.transport.Status().String()}, nil
}

// clean throws away the baseline and any half-read move, and ends echo
// suppression.
func (b *Bridge) clean(ctx context.Context, _ string) ([]string, error) {
	b.decoder.Reset()
	if n := b.actions.Drain(); n > 0 {
		slog.Debug("[ECB] dropped queued actions", "count", n)
	}
	if err := b.actions.Put(ctx, board.Action{}); err != nil {
		return nil, fmt.Errorf("bridge: queue reset: %w", err)
	}
	b.suppress.Reset()
	return nil, nil
}

// move shows an application move on the board and suppresses it until the
// player has replayed it. Ignored while no board is connected.
func (b *Bridge) move(ctx context.Context, arg string) ([]string, error) {
	m, err := moves.ParseMove(arg)
	if err != nil {
		return nil, err
	}
	if !b.transport.Status().Connected {
		slog.Debug("[ECB] move ignored while disconnected", "move", m)
		return nil, nil
	}
	b.suppress.Absorb(m)
	if err := b.transport.Light(ctx, m.From, m.To); err != nil {
		return nil, err
	}
	return nil, nil
}
