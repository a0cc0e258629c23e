package oled

import "strconv"

// CommandKind tags a Command.
type CommandKind uint8

const (
	CommandClear CommandKind = iota + 1
	CommandText
)

// Command is one render operation for the Controller. Build it with Clear or
// Text.
type Command struct {
	Kind CommandKind
	Text string // CommandText only
}

// Clear wipes the panel.
func Clear() Command {
	return Command{Kind: CommandClear}
}

// Text replaces the panel contents with s.
func Text(s string) Command {
	return Command{Kind: CommandText, Text: s}
}

func (c Command) String() string {
	switch c.Kind {
	case CommandClear:
		return "clear"
	case CommandText:
		return "text(" + strconv.Quote(c.Text) + ")"
	default:
		return "command(" + strconv.Itoa(int(c.Kind)) + ")"
	}
}
