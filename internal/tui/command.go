package tui

import (
	"fmt"
	"strings"
)

// Command is a parsed ":" command line.
type Command struct {
	Name string
	Args string
}

var commandAliases = map[string]string{
	"q":     "quit",
	"exit":  "quit",
	"h":     "help",
	"ch":    "channel",
	"c":     "channel",
	"open":  "channel",
	"msg":   "dm",
	"s":     "search",
	"find":  "search",
	"r":     "refresh",
	"m":     "members",
}

var knownCommands = map[string]bool{
	"quit": true, "help": true, "channel": true, "dm": true, "search": true,
	"read": true, "poll": true, "polling": true, "refresh": true,
	"members": true, "older": true, "retry": true,
}

// commandsWithArgs lists commands that cannot run without an argument.
var commandsWithArgs = map[string]bool{"channel": true, "dm": true, "polling": true}

// ParseCommand parses a command line without its leading ':'. Aliases are
// resolved to their canonical names.
func ParseCommand(input string) (Command, error) {
	input = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(input), ":"))
	if input == "" {
		return Command{}, fmt.Errorf("empty command")
	}
	name, args, _ := strings.Cut(input, " ")
	cmd := Command{Name: strings.ToLower(name), Args: strings.TrimSpace(args)}
	if canonical, ok := commandAliases[cmd.Name]; ok {
		cmd.Name = canonical
	}
	if !knownCommands[cmd.Name] {
		return cmd, fmt.Errorf("unknown command %q", name)
	}
	if commandsWithArgs[cmd.Name] && cmd.Args == "" {
		return cmd, fmt.Errorf(":%s needs an argument", cmd.Name)
	}
	if cmd.Name == "polling" && cmd.Args != "on" && cmd.Args != "off" {
		return cmd, fmt.Errorf(":polling takes on or off")
	}
	return cmd, nil
}
