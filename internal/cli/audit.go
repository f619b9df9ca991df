package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/mrlokans/linkrelay/internal/audit"
	"github.com/mrlokans/linkrelay/internal/config"
)

// AuditCommand prints recent authentication events from the audit database.
type AuditCommand struct {
	DatabasePath string
	Username     string
	Limit        int

	out io.Writer
}

func NewAuditCommand() *AuditCommand {
	return &AuditCommand{out: os.Stdout}
}

func (cmd *AuditCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("audit", flag.ContinueOnError)

	fs.StringVar(&cmd.DatabasePath, "db", config.DefaultAuditDBPath, "Path to the audit database")
	fs.StringVar(&cmd.Username, "user", "", "Only show events for this username")
	fs.IntVar(&cmd.Limit, "limit", 20, "Maximum number of events to show")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s audit [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Show recent login, registration and logout events, newest first.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}
	if cmd.Limit <= 0 {
		return fmt.Errorf("-limit must be positive")
	}
	return nil
}

func (cmd *AuditCommand) Run() error {
	if _, err := os.Stat(cmd.DatabasePath); errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("audit database not found: %s", cmd.DatabasePath)
	}

	db, err := audit.Open(cmd.DatabasePath)
	if err != nil {
		return err
	}
	svc := audit.NewService(db)
	defer svc.Close()

	events, err := svc.Recent(cmd.Username, cmd.Limit)
	if err != nil {
		return fmt.Errorf("failed to read audit events: %w", err)
	}
	if len(events) == 0 {
		fmt.Fprintln(cmd.out, "No events")
		return nil
	}

	w := tabwriter.NewWriter(cmd.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tACTION\tUSER\tSTATUS\tIP")
	for _, e := range events {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			e.CreatedAt.Local().Format(time.DateTime), e.Action, e.Username, e.Status, e.IPAddress)
	}
	return w.Flush()
}
