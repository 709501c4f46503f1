package commands

import (
	"fmt"
	"strings"
	"time"

	"scoreboard/internal/client/display"
)

func (r *Registry) registerDebugCommands() {
	r.Register(&Command{
		Name:        "health",
		ShortName:   ".",
		Category:    categoryUtil,
		Description: "Check server health",
		Usage:       "health",
		Handler:     healthHandler,
	})

	r.Register(&Command{
		Name:        "url",
		ShortName:   "/",
		Category:    categoryUtil,
		Description: "Show or set the server URL",
		Usage:       "url [apiUrl]",
		Handler:     urlHandler,
	})

	r.Register(&Command{
		Name:        "raw",
		ShortName:   ":",
		Category:    categoryUtil,
		Description: "Send raw API request",
		Usage:       "raw <method> <path> [json-body]",
		Handler:     rawRequestHandler,
	})

	r.Register(&Command{
		Name:        "clear",
		ShortName:   "-",
		Category:    categoryUtil,
		Description: "Clear screen",
		Usage:       "clear",
		Handler:     clearHandler,
	})
}

func healthHandler(s *Session, args []string) error {
	ctx, cancel := s.context()
	defer cancel()
	resp, err := s.Client.Health(ctx)
	if err != nil {
		return err
	}

	s.printf("%sServer Health:%s\n", display.Cyan, display.Reset)
	s.printf("  Status:   %s\n", resp.Status)
	s.printf("  Time:     %s\n", time.Unix(resp.Time, 0).In(s.cfg.Location).Format("2006-01-02 15:04:05"))
	if resp.Storage != "" {
		s.printf("  Storage:  %s\n", resp.Storage)
	}
	s.printf("  Revision: %d\n", resp.Revision)
	return nil
}

func urlHandler(s *Session, args []string) error {
	if len(args) == 0 {
		s.printf("Current API URL: %s\n", s.Client.BaseURL())
		return nil
	}

	url := args[0]
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "http://" + url
	}
	s.Reconnect(url)

	s.printf("%sAPI URL set to: %s%s\n", display.Cyan, url, display.Reset)
	return nil
}

func rawRequestHandler(s *Session, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: raw <method> <path> [json-body]")
	}

	method := strings.ToUpper(args[0])
	path := args[1]
	body := ""
	if len(args) > 2 {
		body = strings.Join(args[2:], " ")
	}

	ctx, cancel := s.context()
	defer cancel()
	resp, err := s.Client.RawRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	if len(resp) == 0 {
		display.Success(s.out, "OK")
		return nil
	}
	display.PrettyPrintJSON(s.out, resp)
	return nil
}

func clearHandler(s *Session, args []string) error {
	s.printf("\033[H\033[2J")
	return nil
}
