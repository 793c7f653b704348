// Package cli implements the formfill command line tool.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/a3tai/mcp-pdf-filler/internal/config"
	"github.com/a3tai/mcp-pdf-filler/internal/service"
)

// CLI encapsulates the command-line interface with its dependencies.
type CLI struct {
	version     string
	verbose     bool
	templates   string
	output      string
	maxFileSize int64
	initialized bool
	rootCmd     *cobra.Command
}

// New creates a new CLI instance with the given version string.
func New(version string) *CLI {
	c := &CLI{version: version}
	c.setupCommands()
	return c
}

func (c *CLI) setupCommands() {
	c.rootCmd = &cobra.Command{
		Use:           "formfill",
		Short:         "Fill PDF form templates from structured data",
		Version:       c.version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			c.initApp(cmd.ErrOrStderr())
		},
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
		},
	}

	flags := c.rootCmd.PersistentFlags()
	flags.BoolVarP(&c.verbose, "verbose", "v", false, "Enable verbose/debug output")
	flags.StringVar(&c.templates, "templates", config.DefaultTemplates, "Templates directory")
	flags.StringVar(&c.output, "output", config.DefaultOutput, "Output directory for rendered documents")
	flags.Int64Var(&c.maxFileSize, "maxfilesize", config.DefaultMaxFileSize, "Maximum template PDF size in bytes")

	c.rootCmd.AddCommand(c.newTemplatesCommand())
	c.rootCmd.AddCommand(c.newFieldsCommand())
	c.rootCmd.AddCommand(c.newSchemaCommand())
	c.rootCmd.AddCommand(c.newResolveCommand())
	c.rootCmd.AddCommand(c.newRenderCommand())
	c.rootCmd.AddCommand(c.newLabelCommand())
}

// Run executes the CLI until completion or until the process is interrupted.
func (c *CLI) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := c.rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(c.rootCmd.ErrOrStderr(), "Error:", err)
		return err
	}
	return nil
}

// initApp installs the slog handler once per process.
func (c *CLI) initApp(w io.Writer) {
	if c.initialized {
		return
	}
	c.initialized = true

	level := slog.LevelWarn
	if c.verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
	})))
}

func (c *CLI) service() (*service.Service, error) {
	if c.maxFileSize <= 0 {
		return nil, fmt.Errorf("maximum file size must be positive")
	}
	svc, err := service.NewService(c.templates, c.output, c.maxFileSize, c.verbose)
	if err != nil {
		return nil, err
	}
	slog.Debug("Opened template store", "templates", svc.TemplatesRoot(), "output", svc.OutputDir())
	return svc, nil
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
