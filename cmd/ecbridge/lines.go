package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/chaz8081/ecbridge/internal/bridge"
	"github.com/chaz8081/ecbridge/internal/moves"
)

const (
	terminalLine = "done"
	movePrefix   = "ecb "
)

// syncWriter serializes whole lines from several goroutines.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Line(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := io.WriteString(s.w, text+"\n")
	return err
}

// readCommands parses each input line and submits it. A line that does not
// parse is submitted as rejected, so its error is answered in turn.
func readCommands(ctx context.Context, r io.Reader, submit func(context.Context, bridge.Command) error) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		cmd, err := bridge.ParseCommand(line)
		if err != nil {
			slog.Debug("[ECB] bad command", "line", line, "error", err)
			cmd = bridge.Rejected(err)
		}
		if err := submit(ctx, cmd); err != nil {
			return fmt.Errorf("submit %s: %w", cmd, err)
		}
	}
	return sc.Err()
}

// serve runs br with commands read from in and output written to out. It
// returns when ctx is done, or once in is exhausted and every command read
// from it has been answered.
func serve(ctx context.Context, in io.Reader, out io.Writer, br *bridge.Bridge, sinks ...moveSink) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	w := &syncWriter{w: out}

	// Reads from stdin cannot be interrupted; on shutdown the reader is
	// abandoned and its next submit fails.
	go func() {
		if err := readCommands(ctx, in, br.Submit); err != nil {
			slog.Warn("[ECB] reading commands", "error", err)
		}
		br.CloseCommands()
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return br.Run(gctx) })
	g.Go(func() error {
		defer cancel()
		return writeOutput(gctx, w, br, sinks...)
	})
	return g.Wait()
}

// moveSink receives every move after it has been printed. Sink errors are
// logged and do not stop output.
type moveSink func(moves.Move) error

// logSink appends timestamped moves to w.
func logSink(w io.Writer) moveSink {
	return func(m moves.Move) error {
		_, err := fmt.Fprintf(w, "%s %s\n", time.Now().Format(time.RFC3339), m)
		return err
	}
}

// writeOutput prints command replies and board moves until ctx is done or
// the reply queue closes. Replies still queued at close are printed first.
func writeOutput(ctx context.Context, out *syncWriter, br *bridge.Bridge, sinks ...moveSink) error {
	replies, mv := br.Replies(), br.Moves()
	printMove := func(m moves.Move) error {
		if err := out.Line(moveLine(m)); err != nil {
			return err
		}
		for _, sink := range sinks {
			if err := sink(m); err != nil {
				slog.Warn("[ECB] move sink", "move", m, "error", err)
			}
		}
		return nil
	}
	for {
		select {
		case r := <-replies.C():
			if err := out.Line(replyLine(r)); err != nil {
				return err
			}
		case m := <-mv.C():
			if err := printMove(m); err != nil {
				return err
			}
		case <-replies.Done():
			for {
				r, ok := replies.TryGet()
				if !ok {
					break
				}
				if err := out.Line(replyLine(r)); err != nil {
					return err
				}
			}
			for {
				m, ok := mv.TryGet()
				if !ok {
					return nil
				}
				if err := printMove(m); err != nil {
					return err
				}
			}
		case <-ctx.Done():
			return nil
		}
	}
}

func replyLine(r bridge.Reply) string {
	if r.Terminal {
		return terminalLine
	}
	return r.Text
}

func moveLine(m moves.Move) string {
	return movePrefix + m.String()
}
