package domain

import (
	"fmt"
	"strings"
)

// Command tags the intent of a transition.
type Command string

const (
	CommandCreate   Command = "create"
	CommandDeposit  Command = "deposit"
	CommandWithdraw Command = "withdraw"
)

// Commands lists every command the validator understands.
var Commands = []Command{CommandCreate, CommandDeposit, CommandWithdraw}

// IsValid reports whether c is a known command.
func (c Command) IsValid() bool {
	switch c {
	case CommandCreate, CommandDeposit, CommandWithdraw:
		return true
	default:
		return false
	}
}

func (c Command) String() string {
	return string(c)
}

// ParseCommand parses a command tag, case-insensitively.
func ParseCommand(s string) (Command, error) {
	c := Command(strings.ToLower(strings.TrimSpace(s)))
	if !c.IsValid() {
		return "", fmt.Errorf("%w: unrecognized command %q", ErrInvalidArgument, s)
	}
	return c, nil
}
