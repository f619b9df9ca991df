package cli

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/mrlokans/linkrelay/internal/config"
	"github.com/mrlokans/linkrelay/internal/guard"
	"github.com/mrlokans/linkrelay/internal/session"
)

// EnvPassword lets scripts pass the password without exposing it in argv.
const EnvPassword = "LINKRELAY_PASSWORD"

// SessionCommand signs in to a running relay and inspects the session the
// same way the browser does.
type SessionCommand struct {
	Action     string
	RelayURL   string
	CookieFile string
	Username   string
	Password   string
	Path       string
	Timeout    time.Duration

	out io.Writer
}

func NewSessionCommand() *SessionCommand {
	return &SessionCommand{out: os.Stdout}
}

func defaultCookieFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".linkrelay-cookies.json"
	}
	return filepath.Join(home, ".linkrelay-cookies.json")
}

func (cmd *SessionCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("session", flag.ContinueOnError)

	fs.StringVar(&cmd.RelayURL, "url", "http://localhost:3000", "Base URL of the relay (over http the relay must run with AUTH_SECURE_COOKIES=false)")
	fs.StringVar(&cmd.CookieFile, "cookies", defaultCookieFile(), "File keeping the session cookies between runs")
	fs.StringVar(&cmd.Username, "user", "", "Username for login")
	fs.StringVar(&cmd.Password, "password", os.Getenv(EnvPassword), "Password for login (or set "+EnvPassword+")")
	fs.StringVar(&cmd.Path, "path", "", "Page to visit after resolving the session (whoami only)")
	fs.DurationVar(&cmd.Timeout, "timeout", 10*time.Second, "Request timeout")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s session <whoami|login|logout> [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Manage a relay session from the command line.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s session login -user ana\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s session whoami -path /dashboard\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s session logout\n", os.Args[0])
	}

	if len(args) == 0 {
		fs.Usage()
		return errors.New("missing action")
	}
	cmd.Action = args[0]
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	switch cmd.Action {
	case "whoami", "logout":
	case "login":
		if cmd.Username == "" {
			return fmt.Errorf("required flag -user not provided")
		}
		if cmd.Password == "" {
			return fmt.Errorf("password required: use -password or %s", EnvPassword)
		}
	default:
		return fmt.Errorf("unknown action %q", cmd.Action)
	}
	return nil
}

func (cmd *SessionCommand) Run(ctx context.Context) error {
	client, err := session.NewClient(cmd.RelayURL, cmd.Timeout)
	if err != nil {
		return err
	}
	if err := loadCookies(cmd.CookieFile, client); err != nil {
		return err
	}

	routes := config.NewConfig().Routes
	table, err := guard.NewTable(guard.Rules{
		Protected: routes.Protected,
		AuthOnly:  routes.AuthOnly,
		Public:    routes.Public,
	})
	if err != nil {
		return fmt.Errorf("invalid route table: %w", err)
	}

	start := cmd.Path
	if start == "" {
		start = routes.HomePath
	}
	nav := session.NewMemoryNavigator(start)
	manager := session.NewManager(client, nav, table, session.Options{
		LoginPath: routes.LoginPath,
		HomePath:  routes.HomePath,
	})

	switch cmd.Action {
	case "login":
		if err := manager.Login(ctx, cmd.Username, cmd.Password); err != nil {
			return fmt.Errorf("login failed: %w", err)
		}
	case "logout":
		if err := manager.Logout(ctx); err != nil {
			fmt.Fprintf(cmd.out, "Relay logout failed, local session cleared anyway: %v\n", err)
		}
	default:
		manager.Init(ctx)
	}

	cmd.report(manager.State(), nav)
	return saveCookies(cmd.CookieFile, client)
}

func (cmd *SessionCommand) report(state session.State, nav *session.MemoryNavigator) {
	if state.Authenticated() {
		fmt.Fprintf(cmd.out, "Signed in as %s\n", state.Identity.Username)
	} else {
		fmt.Fprintln(cmd.out, "Not signed in")
	}
	fmt.Fprintf(cmd.out, "Location: %s\n", nav.Path())
}

type savedCookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

func loadCookies(path string, client *session.Client) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read cookie file: %w", err)
	}

	var saved []savedCookie
	if err := json.Unmarshal(data, &saved); err != nil {
		return fmt.Errorf("failed to parse cookie file %s: %w", path, err)
	}
	cookies := make([]*http.Cookie, 0, len(saved))
	for _, c := range saved {
		cookies = append(cookies, &http.Cookie{Name: c.Name, Value: c.Value, Path: "/"})
	}
	client.SetCookies(cookies)
	return nil
}

func saveCookies(path string, client *session.Client) error {
	saved := []savedCookie{}
	for _, c := range client.Cookies() {
		saved = append(saved, savedCookie{Name: c.Name, Value: c.Value})
	}
	data, err := json.MarshalIndent(saved, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write cookie file: %w", err)
	}
	return nil
}
