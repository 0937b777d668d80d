package bridge

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnknownCommand is returned by ParseCommand for lines that are not part
// of the command vocabulary.
var ErrUnknownCommand = errors.New("bridge: unknown command")

// CommandKind identifies an inbound command.
type CommandKind int

const (
	CmdDiscover CommandKind = iota + 1
	CmdConnect
	CmdDisconnect
	CmdStatus
	CmdClean
	CmdMove
	// CmdRejected stands in for a line that did not parse. See Rejected.
	CmdRejected
)

var commandNames = map[string]CommandKind{
	"discover":   CmdDiscover,
	"connect":    CmdConnect,
	"disconnect": CmdDisconnect,
	"status":     CmdStatus,
	"clean":      CmdClean,
	"move":       CmdMove,
}

func (k CommandKind) String() string {
	if k == CmdRejected {
		return "rejected"
	}
	for name, kind := range commandNames {
		if kind == k {
			return name
		}
	}
	return fmt.Sprintf("CommandKind(%d)", int(k))
}

// takesArg reports whether the command needs exactly one argument.
func (k CommandKind) takesArg() bool {
	return k == CmdConnect || k == CmdMove
}

// Command is one request from the application.
type Command struct {
	Kind CommandKind
	Arg  string
	Err  error // parse error, set only for CmdRejected
}

// Rejected wraps the parse error of a bad line. Submitted like any other
// command, it is answered with the error text in its place in the queue.
func Rejected(err error) Command {
	if err == nil {
		err = ErrUnknownCommand
	}
	return Command{Kind: CmdRejected, Err: err}
}

func (c Command) String() string {
	if c.Kind == CmdRejected && c.Err != nil {
		return "rejected: " + c.Err.Error()
	}
	if c.Arg == "" {
		return c.Kind.String()
	}
	return c.Kind.String() + " " + c.Arg
}

// ParseCommand parses a line such as "connect 1" or "move e2e4". Names are
// case-insensitive; surrounding whitespace is ignored.
func ParseCommand(line string) (Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{}, fmt.Errorf("%w: empty line", ErrUnknownCommand)
	}
	kind, ok := commandNames[strings.ToLower(fields[0])]
	if !ok {
		return Command{}, fmt.Errorf("%w: %q", ErrUnknownCommand, fields[0])
	}

	args := fields[1:]
	switch {
	case kind.takesArg() && len(args) != 1:
		return Command{}, fmt.Errorf("bridge: %s takes one argument, got %d", kind, len(args))
	case !kind.takesArg() && len(args) != 0:
		return Command{}, fmt.Errorf("bridge: %s takes no arguments", kind)
	}

	cmd := Command{Kind: kind}
	if len(args) == 1 {
		cmd.Arg = args[0]
	}
	if kind == CmdConnect {
		if _, err := strconv.Atoi(cmd.Arg); err != nil {
			return Command{}, fmt.Errorf("bridge: connect: bad device index %q", cmd.Arg)
		}
	}
	return cmd, nil
}
