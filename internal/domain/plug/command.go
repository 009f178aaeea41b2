package plug

import (
	"errors"
	"fmt"
	"strings"
)

// Command is one of the actions supported against a plug.
type Command int

const (
	// CommandStatus reports the plug alias, host and power state.
	CommandStatus Command = iota
	// CommandOn switches the relay on unless it already is.
	CommandOn
	// CommandOff switches the relay off unless it already is.
	CommandOff
	// CommandCycle forces an off, wait, on sequence.
	CommandCycle
)

// DefaultCommand runs when no command is given.
const DefaultCommand = CommandStatus

// ErrUnknownCommand is returned when a command name is not recognized.
var ErrUnknownCommand = errors.New("unknown command")

// Commands lists every command in the order shown to users.
func Commands() []Command {
	return []Command{CommandOn, CommandOff, CommandCycle, CommandStatus}
}

// Names returns the textual names of all commands.
func Names() []string {
	commands := Commands()
	names := make([]string, 0, len(commands))

	for _, c := range commands {
		names = append(names, c.String())
	}

	return names
}

// ParseCommand converts a command name into a Command.
// Names match exactly; case and surrounding spaces are significant.
func ParseCommand(name string) (Command, error) {
	switch name {
	case "status":
		return CommandStatus, nil
	case "on":
		return CommandOn, nil
	case "off":
		return CommandOff, nil
	case "cycle":
		return CommandCycle, nil
	default:
		return CommandStatus, fmt.Errorf("%w: %q (choose from %s)", ErrUnknownCommand, name, strings.Join(Names(), ", "))
	}
}

// String returns the command name as typed on the command line.
func (c Command) String() string {
	switch c {
	case CommandStatus:
		return "status"
	case CommandOn:
		return "on"
	case CommandOff:
		return "off"
	case CommandCycle:
		return "cycle"
	default:
		return fmt.Sprintf("command(%d)", int(c))
	}
}
