package commands

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"scoreboard/internal/client/display"
)

// ErrExit is returned by the exit command to end the console loop
var ErrExit = errors.New("exit")

// Command defines a console command with its handler
type Command struct {
	Name        string
	ShortName   string
	Category    string
	Description string
	Usage       string
	Handler     func(*Session, []string) error
}

// Registry manages command registration and execution
type Registry struct {
	session  *Session
	commands map[string]*Command
}

const (
	categoryMatch  = "Match Commands"
	categoryRoster = "Roster Commands"
	categoryAuth   = "Auth Commands"
	categoryUtil   = "Utility Commands"
)

var categories = []string{categoryMatch, categoryRoster, categoryAuth, categoryUtil}

func NewRegistry(session *Session) *Registry {
	r := &Registry{
		session:  session,
		commands: make(map[string]*Command),
	}

	r.registerMatchCommands()
	r.registerRosterCommands()
	r.registerAuthCommands()
	r.registerDebugCommands()

	r.Register(&Command{
		Name:        "help",
		ShortName:   "?",
		Category:    categoryUtil,
		Description: "Show available commands",
		Usage:       "help [command]",
		Handler:     r.helpHandler,
	})

	r.Register(&Command{
		Name:        "exit",
		ShortName:   "x",
		Category:    categoryUtil,
		Description: "Exit the console",
		Usage:       "exit",
		Handler: func(s *Session, args []string) error {
			s.printf("%sGoodbye!%s\n", display.Cyan, display.Reset)
			return ErrExit
		},
	})

	return r
}

func (r *Registry) Register(cmd *Command) {
	r.commands[cmd.Name] = cmd
	if cmd.ShortName != "" {
		r.commands[cmd.ShortName] = cmd
	}
}

// Execute runs one input line. A trailing -v traces API calls for that
// command. It returns false once the console should exit.
func (r *Registry) Execute(input string) bool {
	parts, err := splitArgs(input)
	if err != nil {
		display.Error(r.session.out, err)
		return true
	}
	if len(parts) == 0 {
		return true
	}

	verbose := false
	if n := len(parts); n > 1 && parts[n-1] == "-v" {
		verbose = true
		parts = parts[:n-1]
	}

	cmdName := parts[0]
	cmd, exists := r.commands[cmdName]
	if !exists {
		r.session.printf("%sUnknown command: %s%s\n", display.Red, cmdName, display.Reset)
		r.session.printf("Type 'help' for available commands\n")
		return true
	}

	r.session.SetVerbose(verbose)
	defer r.session.SetVerbose(false)

	if err := cmd.Handler(r.session, parts[1:]); err != nil {
		if errors.Is(err, ErrExit) {
			return false
		}
		display.Error(r.session.out, err)
	}
	return true
}

// Names lists command names for completion
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.commands))
	for name, cmd := range r.commands {
		if name == cmd.Name {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (r *Registry) helpHandler(s *Session, args []string) error {
	if len(args) > 0 {
		cmd, exists := r.commands[args[0]]
		if !exists {
			return fmt.Errorf("unknown command: %s", args[0])
		}
		s.printf("\n%s%s%s - %s\n", display.Cyan, cmd.Name, display.Reset, cmd.Description)
		if cmd.ShortName != "" {
			s.printf("Short form: %s%s%s\n", display.Cyan, cmd.ShortName, display.Reset)
		}
		s.printf("Usage: %s\n", cmd.Usage)
		return nil
	}

	s.printf("\n%sAvailable Commands:%s\n", display.Cyan, display.Reset)

	grouped := make(map[string][]*Command)
	for _, name := range r.Names() {
		cmd := r.commands[name]
		grouped[cmd.Category] = append(grouped[cmd.Category], cmd)
	}
	for _, category := range categories {
		s.printf("\n%s%s:%s\n", display.Yellow, category, display.Reset)
		for _, cmd := range grouped[category] {
			shortPart := "    "
			if cmd.ShortName != "" {
				shortPart = fmt.Sprintf("[%s%s%s] ", display.Cyan, cmd.ShortName, display.Reset)
			}
			s.printf("  %s%-10s %s\n", shortPart, cmd.Name, cmd.Description)
		}
	}

	s.printf("\nType 'help <command>' for detailed usage\n")
	s.printf("Quote names with spaces; add '-v' to any command for verbose output\n")
	return nil
}

// usage formats a usage error for cmd
func usage(text string) error {
	return fmt.Errorf("usage: %s", strings.TrimSpace(text))
}
