// Package cli implements the server's `db` administration subcommands.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"scoreboard/internal/server/storage"

	"github.com/google/uuid"
	"github.com/lixenwraith/auth"
	"github.com/spf13/pflag"
	"golang.org/x/term"
)

// out is where command results are printed
var out io.Writer = os.Stdout

// Run is the entry point for the CLI mini-app
func Run(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("subcommand required: init, delete, query, export, user")
	}

	switch args[0] {
	case "init":
		return runInit(args[1:])
	case "delete":
		return runDelete(args[1:])
	case "query":
		return runQuery(args[1:])
	case "export":
		return runExport(args[1:])
	case "user":
		if len(args) < 2 {
			return fmt.Errorf("user subcommand required: add, delete, passwd, list")
		}
		return runUser(args[1], args[2:])
	default:
		return fmt.Errorf("unknown subcommand: %s", args[0])
	}
}

func newFlagSet(name string) (*pflag.FlagSet, *string) {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	path := fs.String("path", "", "Database file path (required)")
	return fs, path
}

// open parses fs and opens the database named by its --path flag
func open(fs *pflag.FlagSet, path *string, args []string) (*storage.Store, error) {
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if *path == "" {
		return nil, fmt.Errorf("database path required")
	}
	st, err := storage.NewStore(*path, false, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return st, nil
}

func runInit(args []string) error {
	fs, path := newFlagSet("init")
	st, err := open(fs, path, args)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.InitDB(); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	fmt.Fprintf(out, "Database initialized at: %s\n", *path)
	return nil
}

func runDelete(args []string) error {
	fs, path := newFlagSet("delete")
	st, err := open(fs, path, args)
	if err != nil {
		return err
	}
	if err := st.DeleteDB(); err != nil {
		return fmt.Errorf("failed to delete database: %w", err)
	}
	fmt.Fprintf(out, "Database deleted: %s\n", *path)
	return nil
}

func runQuery(args []string) error {
	fs, path := newFlagSet("query")
	collection := fs.String("collection", "", "Collection to list (optional, * for all)")
	key := fs.String("key", "", "Node key to filter (optional, * for all)")
	full := fs.Bool("full", false, "Print whole values instead of a preview")

	st, err := open(fs, path, args)
	if err != nil {
		return err
	}
	defer st.Close()

	nodes, err := st.QueryNodes(*collection, *key)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}
	if len(nodes) == 0 {
		fmt.Fprintln(out, "No nodes found")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "Collection\tKey\tVersion\tUpdated\tValue")
	fmt.Fprintln(w, strings.Repeat("-", 100))
	for _, n := range nodes {
		value := n.Value
		if !*full && len(value) > 60 {
			value = value[:57] + "..."
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			n.Collection, n.Key, n.Version, n.UpdatedAt.Format("2006-01-02 15:04:05"), value)
	}
	w.Flush()

	fmt.Fprintf(out, "\nFound %d node(s)\n", len(nodes))
	return nil
}

func runUser(subcommand string, args []string) error {
	switch subcommand {
	case "add":
		return runUserAdd(args)
	case "delete":
		return runUserDelete(args)
	case "passwd":
		return runUserPasswd(args)
	case "list":
		return runUserList(args)
	default:
		return fmt.Errorf("unknown user subcommand: %s", subcommand)
	}
}

// readPassword takes the flag value, or prompts without echo when interactive
func readPassword(flagValue string, interactive bool, prompt string) (string, error) {
	switch {
	case interactive && flagValue != "":
		return "", fmt.Errorf("cannot use --interactive with --password")
	case interactive:
		fmt.Fprint(out, prompt)
		pw, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Fprintln(out)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		flagValue = string(pw)
	case flagValue == "":
		return "", fmt.Errorf("password required: use --password or --interactive")
	}
	if len(flagValue) < 8 {
		return "", fmt.Errorf("password must be at least 8 characters")
	}
	return flagValue, nil
}

func runUserAdd(args []string) error {
	fs, path := newFlagSet("user add")
	username := fs.String("username", "", "Username (required)")
	email := fs.String("email", "", "Email address (required)")
	password := fs.String("password", "", "Password")
	hash := fs.String("hash", "", "Pre-computed PHC password hash")
	interactive := fs.Bool("interactive", false, "Interactive password prompt")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *username == "" || *email == "" {
		return fmt.Errorf("username and email required")
	}

	var passwordHash string
	if *hash != "" {
		if *password != "" || *interactive {
			return fmt.Errorf("cannot combine --hash with a password")
		}
		if err := auth.ValidatePHCHashFormat(*hash); err != nil {
			return fmt.Errorf("invalid hash format: %w", err)
		}
		passwordHash = *hash
	} else {
		pw, err := readPassword(*password, *interactive, "Enter password: ")
		if err != nil {
			return err
		}
		if passwordHash, err = auth.HashPassword(pw); err != nil {
			return fmt.Errorf("failed to hash password: %w", err)
		}
	}

	st, err := open(fs, path, nil)
	if err != nil {
		return err
	}
	defer st.Close()

	record := storage.UserRecord{
		UserID:       uuid.New().String(),
		Username:     strings.ToLower(*username),
		Email:        strings.ToLower(*email),
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := st.CreateUser(record); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	fmt.Fprintf(out, "User created successfully:\n")
	fmt.Fprintf(out, "  ID: %s\n", record.UserID)
	fmt.Fprintf(out, "  Username: %s\n", record.Username)
	fmt.Fprintf(out, "  Email: %s\n", record.Email)
	return nil
}

// lookupUser resolves --username or --id, exactly one of which must be set
func lookupUser(st *storage.Store, username, id string) (*storage.UserRecord, error) {
	switch {
	case username == "" && id == "":
		return nil, fmt.Errorf("either --username or --id required")
	case username != "" && id != "":
		return nil, fmt.Errorf("specify either --username or --id, not both")
	case id != "":
		user, err := st.GetUserByID(id)
		if err != nil {
			return nil, fmt.Errorf("user not found: %s", id)
		}
		return user, nil
	}
	user, err := st.GetUserByUsername(strings.ToLower(username))
	if err != nil {
		return nil, fmt.Errorf("user not found: %s", username)
	}
	return user, nil
}

func runUserDelete(args []string) error {
	fs, path := newFlagSet("user delete")
	username := fs.String("username", "", "Username to delete")
	userID := fs.String("id", "", "User ID to delete")

	st, err := open(fs, path, args)
	if err != nil {
		return err
	}
	defer st.Close()

	user, err := lookupUser(st, *username, *userID)
	if err != nil {
		return err
	}
	if err := st.DeleteUserByID(user.UserID); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	fmt.Fprintf(out, "User deleted: %s (%s)\n", user.Username, user.UserID)
	return nil
}

func runUserPasswd(args []string) error {
	fs, path := newFlagSet("user passwd")
	username := fs.String("username", "", "Username")
	userID := fs.String("id", "", "User ID")
	password := fs.String("password", "", "New password")
	interactive := fs.Bool("interactive", false, "Interactive password prompt")

	st, err := open(fs, path, args)
	if err != nil {
		return err
	}
	defer st.Close()

	user, err := lookupUser(st, *username, *userID)
	if err != nil {
		return err
	}
	pw, err := readPassword(*password, *interactive, "Enter new password: ")
	if err != nil {
		return err
	}
	passwordHash, err := auth.HashPassword(pw)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := st.UpdateUserPassword(user.UserID, passwordHash); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	// Existing tokens stay signed in until they expire or sign out
	fmt.Fprintf(out, "Password updated for user: %s\n", user.Username)
	return nil
}

func runUserList(args []string) error {
	fs, path := newFlagSet("user list")
	asJSON := fs.Bool("json", false, "Print as JSON")

	st, err := open(fs, path, args)
	if err != nil {
		return err
	}
	defer st.Close()

	users, err := st.GetAllUsers()
	if err != nil {
		return fmt.Errorf("failed to list users: %w", err)
	}

	if *asJSON {
		type row struct {
			UserID    string     `json:"userId"`
			Username  string     `json:"username"`
			Email     string     `json:"email"`
			CreatedAt time.Time  `json:"createdAt"`
			LastLogin *time.Time `json:"lastLoginAt,omitempty"`
		}
		rows := make([]row, 0, len(users))
		for _, u := range users {
			rows = append(rows, row{u.UserID, u.Username, u.Email, u.CreatedAt, u.LastLoginAt})
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	if len(users) == 0 {
		fmt.Fprintln(out, "No users found")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "User ID\tUsername\tEmail\tCreated\tLast Login")
	fmt.Fprintln(w, strings.Repeat("-", 100))
	for _, u := range users {
		lastLogin := "never"
		if u.LastLoginAt != nil {
			lastLogin = u.LastLoginAt.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			u.UserID[:8]+"...",
			u.Username,
			u.Email,
			u.CreatedAt.Format("2006-01-02 15:04"),
			lastLogin,
		)
	}
	w.Flush()

	fmt.Fprintf(out, "\nTotal users: %d\n", len(users))
	return nil
}
