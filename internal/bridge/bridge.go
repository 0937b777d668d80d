// Package bridge connects the chessboard session to the application: it
// feeds sensor notifications to the move reconstructor, forwards resolved
// moves upstream, and runs the commands the application sends.
package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/corentings/chess/v2"
	"golang.org/x/sync/errgroup"

	"github.com/chaz8081/ecbridge/internal/ble"
	"github.com/chaz8081/ecbridge/internal/board"
	"github.com/chaz8081/ecbridge/internal/chanq"
	"github.com/chaz8081/ecbridge/internal/moves"
)

// Upstream notices.
const (
	FailureNotice = "bluetooth error"
	NoDevices     = "no devices"
)

// Transport is the board link the bridge drives. *ble.Session implements it.
type Transport interface {
	Discover(ctx context.Context) ([]ble.Device, error)
	Connect(ctx context.Context, index int) error
	Disconnect(ctx context.Context) error
	Status() ble.Status
	Light(ctx context.Context, squares ...chess.Square) error
	ClearLEDs(ctx context.Context) error
	OnNotification(fn func(data []byte))
	OnDisconnect(fn func())
}

var _ Transport = (*ble.Session)(nil)

// Reply is one line of output for the command being run. The reply with
// Terminal set carries no text and ends the command.
type Reply struct {
	Text     string
	Terminal bool
}

// Options configures the bridge.
type Options struct {
	SettleDelay  time.Duration // pause after each reconstruction before LEDs go dark
	ActionQueue  int
	CommandQueue int
	ReplyQueue   int
	MoveQueue    int
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		SettleDelay:  300 * time.Millisecond,
		ActionQueue:  256,
		CommandQueue: 16,
		ReplyQueue:   64,
		MoveQueue:    16,
	}
}

type handler func(ctx context.Context, arg string) ([]string, error)

// Bridge owns the decoder baseline, the action queue, and suppression
// state for one board session.
type Bridge struct {
	transport Transport
	opts      Options

	decoder  board.Decoder
	actions  *chanq.Queue[board.Action]
	commands *chanq.Queue[Command]
	replies  *chanq.Queue[Reply]
	moves    *chanq.Queue[moves.Move]

	recon    *moves.Reconstructor
	suppress Suppressor
	handlers map[CommandKind]handler
}

// New creates a bridge and registers its notification and disconnect hooks
// on t.
func New(t Transport, opts Options) *Bridge {
	b := &Bridge{
		transport: t,
		opts:      opts,
		actions:   chanq.New[board.Action](opts.ActionQueue),
		commands:  chanq.New[Command](opts.CommandQueue),
		replies:   chanq.New[Reply](opts.ReplyQueue),
		moves:     chanq.New[moves.Move](opts.MoveQueue),
	}
	b.recon = moves.NewReconstructor(b.actions)
	b.handlers = map[CommandKind]handler{
		CmdDiscover:   b.discover,
		CmdConnect:    b.connect,
		CmdDisconnect: b.disconnect,
		CmdStatus:     b.status,
		CmdClean:      b.clean,
		CmdMove:       b.move,
	}

	t.OnNotification(func(data []byte) {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("[ECB] panic handling notification", "panic", r, "stack", string(debug.Stack()))
			}
		}()
		_ = b.Feed(context.Background(), data)
	})
	t.OnDisconnect(func() {
		b.decoder.Reset()
		slog.Debug("[ECB] baseline reset after disconnect")
	})
	return b
}

// Submit queues a command for the command loop.
func (b *Bridge) Submit(ctx context.Context, cmd Command) error {
	return b.commands.Put(ctx, cmd)
}

// Replies is the queue of command output.
func (b *Bridge) Replies() *chanq.Queue[Reply] { return b.replies }

// Moves is the queue of moves read from the board.
func (b *Bridge) Moves() *chanq.Queue[moves.Move] { return b.moves }

// Suppressed returns the absorbed move while echo suppression is on.
func (b *Bridge) Suppressed() (moves.Move, bool) { return b.suppress.Pending() }

// Run runs the reconstruction and command loops until ctx is done. On
// return every queue is closed.
func (b *Bridge) Run(ctx context.Context) error {
	defer b.close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return b.reconstructLoop(gctx) })
	g.Go(func() error {
		// No more replies once the last command has been answered.
		defer b.replies.Close()
		return b.commandLoop(gctx)
	})
	return g.Wait()
}

// CloseCommands stops accepting commands. Commands already submitted are
// still run, then the reply queue is closed. Moves keep flowing until Run
// returns.
func (b *Bridge) CloseCommands() {
	b.commands.Close()
}

func (b *Bridge) close() {
	b.actions.Close()
	b.commands.Close()
	b.moves.Close()
	b.replies.Close()
}

func (b *Bridge) reconstructLoop(ctx context.Context) error {
	slog.Info("[ECB] reconstruction loop started")
	for {
		if closed := b.reconstructOnce(ctx); closed {
			slog.Info("[ECB] reconstruction loop stopped")
			return nil
		}
	}
}

// reconstructOnce waits for one move and forwards it. It reports true once
// the action queue is closed or ctx is done.
func (b *Bridge) reconstructOnce(ctx context.Context) (closed bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("[ECB] panic in reconstruction", "panic", r, "stack", string(debug.Stack()))
			closed = ctx.Err() != nil
		}
	}()

	m, outcome := b.recon.Next(ctx)
	if outcome == moves.OutcomeClosed {
		return true
	}

	if b.opts.SettleDelay > 0 {
		select {
		case <-time.After(b.opts.SettleDelay):
		case <-ctx.Done():
			return true
		}
	}
	if err := b.transport.ClearLEDs(ctx); err != nil {
		slog.Warn("[ECB] clearing LEDs", "error", err)
	}

	if outcome == moves.OutcomeResolved && b.suppress.Admit(m) {
		slog.Info("[ECB] move", "move", m)
		if err := b.moves.Put(ctx, m); err != nil {
			return true
		}
	}

	if target, ok := b.suppress.Pending(); ok {
		if err := b.transport.Light(ctx, target.From, target.To); err != nil {
			slog.Warn("[ECB] lighting absorbed move", "move", target, "error", err)
		}
	}
	return false
}

func (b *Bridge) commandLoop(ctx context.Context) error {
	slog.Info("[ECB] command loop started")
	for {
		cmd, ok := b.commands.Get(ctx)
		if !ok {
			slog.Info("[ECB] command loop stopped")
			return nil
		}
		b.dispatch(ctx, cmd)
	}
}

// dispatch runs cmd and emits its replies followed by the terminal marker.
// A failing command reports FailureNotice and the error text instead; a
// rejected line reports only its parse error.
func (b *Bridge) dispatch(ctx context.Context, cmd Command) {
	slog.Debug("[ECB] command", "command", cmd)
	var lines []string
	if cmd.Kind == CmdRejected {
		lines = []string{cmd.Err.Error()}
	} else {
		var err error
		lines, err = b.run(ctx, cmd)
		if err != nil {
			slog.Warn("[ECB] command failed", "command", cmd, "error", err)
			lines = []string{FailureNotice, err.Error()}
		}
	}
	for _, line := range lines {
		if b.replies.Put(ctx, Reply{Text: line}) != nil {
			return
		}
	}
	_ = b.replies.Put(ctx, Reply{Terminal: true})
}

func (b *Bridge) run(ctx context.Context, cmd Command) (lines []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("[ECB] panic in command", "command", cmd, "panic", r, "stack", string(debug.Stack()))
			lines, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()

	h, ok := b.handlers[cmd.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, cmd.Kind)
	}
	return h(ctx, cmd.Arg)
}
