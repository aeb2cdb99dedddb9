// Command credbudctl scores applications and analyzes statements offline,
// and load-tests a running CredBud server.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/opensource-finance/credbud/internal/config"
	"github.com/opensource-finance/credbud/internal/domain"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var version = "dev"

func newRootCmd() *cobra.Command {
	var logLevel string

	root := &cobra.Command{
		Use:           "credbudctl",
		Short:         "CredBud scoring and statement tools",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logger := config.NewLogger(domain.LoggingConfig{Level: logLevel, Format: "text"}, cmd.ErrOrStderr())
			slog.SetDefault(logger)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	root.PersistentFlags().StringP("output", "o", "json", "output format (json, yaml)")

	root.AddCommand(newScoreCmd())
	root.AddCommand(newAnalyzeCmd())
	root.AddCommand(newBenchCmd())
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// render writes v in the format chosen by --output.
func render(cmd *cobra.Command, v any) error {
	format, _ := cmd.Flags().GetString("output")
	return encode(cmd.OutOrStdout(), format, v)
}

func encode(w io.Writer, format string, v any) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(v)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}
