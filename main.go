package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mrlokans/linkrelay/internal/cli"
	"github.com/mrlokans/linkrelay/internal/config"
	"github.com/mrlokans/linkrelay/internal/entrypoint"
)

// Version information - set at build time via ldflags
var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	// If no arguments or "serve" command, run the HTTP server
	if len(os.Args) < 2 || os.Args[1] == "serve" {
		cfg := config.NewConfig()
		entrypoint.Run(cfg, Version)
		return
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "session":
		cmd := cli.NewSessionCommand()
		if err := cmd.ParseFlags(args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		err := cmd.Run(ctx)
		stop()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

	case "audit":
		cmd := cli.NewAuditCommand()
		if err := cmd.ParseFlags(args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if err := cmd.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

	case "version", "-v", "--version":
		fmt.Printf("linkrelay %s (%s)\n", Version, Commit)

	case "help", "-h", "--help":
		printUsage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [command] [options]\n\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  serve     Start the relay server (default)\n")
	fmt.Fprintf(os.Stderr, "  session   Sign in, inspect or end a relay session (whoami|login|logout)\n")
	fmt.Fprintf(os.Stderr, "  audit     Show recent authentication events from the audit database\n")
	fmt.Fprintf(os.Stderr, "  version   Print version information\n")
	fmt.Fprintf(os.Stderr, "  help      Show this help message\n")
	fmt.Fprintf(os.Stderr, "\nRun '%s <command> -h' for command-specific options.\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "\nEnvironment:\n")
	fmt.Fprintf(os.Stderr, "  UPSTREAM_URL           Base URL of the user/link API (default http://localhost:8000)\n")
	fmt.Fprintf(os.Stderr, "  AUTH_CSRF_SECRET       Enables CSRF protection when set\n")
	fmt.Fprintf(os.Stderr, "  AUTH_CREDENTIAL_STORE  cookie (default) or session\n")
	fmt.Fprintf(os.Stderr, "  AUTH_SESSION_SECRET    Encrypts tokens in the session database when set\n")
	fmt.Fprintf(os.Stderr, "  AUTH_SECURE_COOKIES    Set to false for local development over HTTP\n")
	fmt.Fprintf(os.Stderr, "  AUDIT_ENABLED          Record auth events to SQLite\n")
}
