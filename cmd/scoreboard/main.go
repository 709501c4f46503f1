// Package main implements the operator console for the scoreboard server.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"scoreboard/internal/client/commands"
	"scoreboard/internal/client/display"
	"scoreboard/internal/logging"

	"github.com/chzyer/readline"
	"github.com/spf13/pflag"
)

func main() {
	fs := pflag.NewFlagSet("scoreboard", pflag.ContinueOnError)
	apiURL := fs.String("api", "http://localhost:8080", "Scoreboard server URL")
	timezone := fs.String("timezone", "", "IANA zone for clocks and dates (local zone if empty)")
	logLevel := fs.String("log-level", "warn", "Log level: trace, debug, info, warn, error")
	history := fs.String("history", ".scoreboard_history", "Command history file, empty to disable")
	pageSize := fs.Int("page-size", 10, "Dashboard page size")
	halftime := fs.Duration("halftime", 5*time.Minute, "Halftime break length")
	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(2)
	}

	loc := time.Local
	if *timezone != "" {
		var err error
		if loc, err = time.LoadLocation(*timezone); err != nil {
			fmt.Fprintf(os.Stderr, "%sinvalid timezone %q: %s%s\n", display.Red, *timezone, err, display.Reset)
			os.Exit(2)
		}
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          display.Prompt("scoreboard"),
		HistoryFile:     *history,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Printf("%s%s%s\n", display.Red, err.Error(), display.Reset)
		os.Exit(1)
	}
	defer rl.Close()

	// subscription callbacks print between prompts; readline's writers redraw it
	session := commands.NewSession(commands.Config{
		APIURL:   *apiURL,
		Location: loc,
		PageSize: *pageSize,
		Halftime: *halftime,
		Logger: logging.New(logging.Options{
			Name:   "console",
			Level:  *logLevel,
			Output: rl.Stderr(),
		}),
	}, rl.Stdout())
	defer session.Close()

	registry := commands.NewRegistry(session)
	rl.Config.AutoComplete = completer(registry)

	fmt.Fprintf(rl.Stdout(), "%sScoreboard Console%s\n", display.Cyan, display.Reset)
	fmt.Fprintf(rl.Stdout(), "%sAPI: %s%s\n", display.Cyan, *apiURL, display.Reset)
	fmt.Fprintf(rl.Stdout(), "Type 'help' for commands\n\n")

	for {
		rl.SetPrompt(buildPrompt(session))

		line, err := rl.Readline()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "quit" {
			break
		}
		if !registry.Execute(line) {
			break
		}
	}
}

func completer(r *commands.Registry) readline.AutoCompleter {
	items := make([]readline.PrefixCompleterInterface, 0)
	for _, name := range r.Names() {
		items = append(items, readline.PcItem(name))
	}
	return readline.NewPrefixCompleter(items...)
}

func buildPrompt(s *commands.Session) string {
	var parts []string
	if name := s.Client.Username(); name != "" {
		parts = append(parts, display.Magenta+name+display.Reset)
	}
	if id := s.OpenMatchID(); id != "" {
		if len(id) > 8 {
			id = id[:8]
		}
		parts = append(parts, display.White+id+display.Reset)
	}

	prompt := "scoreboard"
	if len(parts) > 0 {
		prompt += display.Yellow + " [" + display.Reset + strings.Join(parts, display.Yellow+" - "+display.Reset) + display.Yellow + "]"
	}
	return display.Prompt(prompt)
}
