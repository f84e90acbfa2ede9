package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"auction-service/internal/models"
	"auction-service/internal/store"
)

// Exit codes
const (
	ExitSuccess      = 0
	ExitRejected     = 1 // the ledger refused the operation
	ExitCommandError = 2 // bad flags, unreachable database
)

// ExitError carries the process exit code of a failed command
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// wrap classifies err: rejections exit 1, everything else 2
func wrap(message string, err error) *ExitError {
	code := ExitCommandError
	if models.IsRejection(err) {
		code = ExitRejected
	}
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitRejected
}

// RootOptions holds global flags for all commands
type RootOptions struct {
	Driver   string
	Database string
	Format   string
}

var validFormats = []string{"text", "json"}

// NewRootCommand creates the root command of the auction admin CLI
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "auctionctl",
		Short: "Administer the auction ledger",
		Long:  "Run migrations, reconcile expired auctions and inspect or remove listings directly against the ledger.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(validFormats, opts.Format) {
				return &ExitError{Code: ExitCommandError, Message: fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, validFormats)}
			}
			if _, err := store.ParseDialect(opts.Driver); err != nil {
				return &ExitError{Code: ExitCommandError, Message: "invalid driver", Err: err}
			}
			if opts.Database == "" {
				return &ExitError{Code: ExitCommandError, Message: "--db or DATABASE_URL is required"}
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Driver, "driver", envOr("DATABASE_DRIVER", "postgres"), "ledger driver (postgres|sqlite3)")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", os.Getenv("DATABASE_URL"), "database URL or SQLite path")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(newMigrateCommand(opts))
	cmd.AddCommand(newReconcileCommand(opts))
	cmd.AddCommand(newShowCommand(opts))
	cmd.AddCommand(newListCommand(opts))
	cmd.AddCommand(newCancelCommand(opts))

	return cmd
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (o *RootOptions) open() (*store.Store, error) {
	s, err := store.NewStore(o.Driver, o.Database)
	if err != nil {
		return nil, &ExitError{Code: ExitCommandError, Message: "failed to open ledger", Err: err}
	}
	return s, nil
}

func (o *RootOptions) write(w io.Writer, v any, text func(io.Writer)) error {
	if o.Format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(w)
	return nil
}
