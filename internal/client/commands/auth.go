package commands

import (
	"fmt"

	"scoreboard/internal/client/display"
)

func (r *Registry) registerAuthCommands() {
	r.Register(&Command{
		Name:        "register",
		ShortName:   "r",
		Category:    categoryAuth,
		Description: "Register an operator account and sign in",
		Usage:       "register <username> <email> [password]",
		Handler:     registerHandler,
	})

	r.Register(&Command{
		Name:        "login",
		ShortName:   "l",
		Category:    categoryAuth,
		Description: "Sign in with username or email",
		Usage:       "login <username|email> [password]",
		Handler:     loginHandler,
	})

	r.Register(&Command{
		Name:        "logout",
		Category:    categoryAuth,
		Description: "Sign out and revoke the session",
		Usage:       "logout",
		Handler:     logoutHandler,
	})

	r.Register(&Command{
		Name:        "whoami",
		ShortName:   "i",
		Category:    categoryAuth,
		Description: "Show the signed-in operator",
		Usage:       "whoami",
		Handler:     whoamiHandler,
	})
}

// password takes the argument at idx, prompting when it is missing
func password(s *Session, args []string, idx int) (string, error) {
	if len(args) > idx {
		return args[idx], nil
	}
	return s.ReadPassword(display.Yellow + "Password: " + display.Reset)
}

func registerHandler(s *Session, args []string) error {
	if len(args) < 2 {
		return usage("register <username> <email> [password]")
	}
	pw, err := password(s, args, 2)
	if err != nil {
		return err
	}

	ctx, cancel := s.context()
	defer cancel()
	resp, err := s.Client.Register(ctx, args[0], args[1], pw)
	if err != nil {
		return err
	}

	display.Success(s.out, "Registered successfully")
	s.printf("User ID: %s\n", resp.UserID)
	s.printf("Username: %s\n", resp.Username)
	return nil
}

func loginHandler(s *Session, args []string) error {
	if len(args) < 1 {
		return usage("login <username|email> [password]")
	}
	pw, err := password(s, args, 1)
	if err != nil {
		return err
	}

	ctx, cancel := s.context()
	defer cancel()
	resp, err := s.Client.Login(ctx, args[0], pw)
	if err != nil {
		return err
	}

	display.Success(s.out, "Logged in successfully")
	s.printf("User ID: %s\n", resp.UserID)
	s.printf("Username: %s\n", resp.Username)
	return nil
}

func logoutHandler(s *Session, args []string) error {
	ctx, cancel := s.context()
	defer cancel()
	err := s.Client.SignOut(ctx)
	display.Success(s.out, "Logged out")
	if err != nil {
		return fmt.Errorf("server session not revoked: %w", err)
	}
	return nil
}

func whoamiHandler(s *Session, args []string) error {
	if s.Client.Token() == "" {
		s.printf("%sNot authenticated%s\n", display.Yellow, display.Reset)
		return nil
	}

	ctx, cancel := s.context()
	defer cancel()
	user, err := s.Client.GetCurrentUser(ctx)
	if err != nil {
		return err
	}

	s.printf("%sCurrent User:%s\n", display.Cyan, display.Reset)
	s.printf("  User ID:  %s\n", user.UserID)
	s.printf("  Username: %s\n", user.Username)
	s.printf("  Email:    %s\n", user.Email)
	s.printf("  Created:  %s\n", user.CreatedAt.In(s.cfg.Location).Format("2006-01-02 15:04"))
	return nil
}
