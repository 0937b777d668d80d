// Command ecb-replay runs recorded sensor notifications through the frame
// decoder and move reconstructor and prints the moves they produce. Each
// input line holds one notification in hex; blank lines and lines starting
// with # are skipped.
//
// Usage:
//
//	go run ./cmd/ecb-replay [-v] [-log-level debug] [file]
package main

import (
	"bufio"
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/chaz8081/ecbridge/internal/board"
	"github.com/chaz8081/ecbridge/internal/chanq"
	"github.com/chaz8081/ecbridge/internal/logging"
	"github.com/chaz8081/ecbridge/internal/moves"
)

func main() {
	verbose := flag.Bool("v", false, "print every decoded action")
	logLevel := flag.String("log-level", "warn", "log level: debug, info, warn, error")
	flag.Parse()

	level, err := logging.ParseLevel(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
	slog.SetDefault(logging.New(os.Stderr, level, "text"))

	in := io.Reader(os.Stdin)
	if flag.NArg() > 0 {
		f, err := os.Open(flag.Arg(0))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		in = f
	}

	if err := replay(context.Background(), in, os.Stdout, *verbose); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// replay decodes every notification in r and writes the resolved moves to
// w, one per line.
func replay(ctx context.Context, r io.Reader, w io.Writer, verbose bool) error {
	actions := chanq.New[board.Action](64)
	recon := moves.NewReconstructor(actions)

	var mu sync.Mutex
	emit := func(format string, args ...any) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(w, format+"\n", args...)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer actions.Close()
		var dec board.Decoder
		sc := bufio.NewScanner(r)
		for n := 1; sc.Scan(); n++ {
			data, ok, err := parseLine(sc.Text())
			if err != nil {
				return fmt.Errorf("line %d: %w", n, err)
			}
			if !ok {
				continue
			}
			frame, err := board.ParseNotification(data)
			if err != nil {
				slog.Warn("[ECB] skipping notification", "line", n, "error", err)
				continue
			}
			for a := range dec.Decode(frame) {
				if verbose {
					emit("# %s", a)
				}
				if err := actions.Put(ctx, a); err != nil {
					return err
				}
			}
		}
		return sc.Err()
	})
	g.Go(func() error {
		for {
			m, outcome := recon.Next(ctx)
			switch outcome {
			case moves.OutcomeClosed:
				return nil
			case moves.OutcomeResolved:
				emit("%s", m)
			case moves.OutcomeDiscarded:
				if verbose {
					emit("# discarded")
				}
			}
		}
	})
	return g.Wait()
}

var hexSeparators = strings.NewReplacer(" ", "", ":", "", "\t", "")

// parseLine decodes one hex notification. ok is false for blank and
// comment lines.
func parseLine(line string) (data []byte, ok bool, err error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return nil, false, nil
	}
	data, err = hex.DecodeString(hexSeparators.Replace(line))
	if err != nil {
		return nil, false, fmt.Errorf("bad hex: %w", err)
	}
	return data, true, nil
}
