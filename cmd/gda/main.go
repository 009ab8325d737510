// Command gda renders and executes batches of persistence actions described
// in YAML files against the entity mappings of one or more mapping files.
//
// Settings come from flags, from GDA_* environment variables (a .env file in
// the working directory is loaded first) and from an optional gda.yaml
// config file, in that order of precedence.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/fabrimaciel/gda/persist"
	"github.com/fabrimaciel/gda/schema"
)

// Version is set at build time.
var Version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := newRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app carries the settings shared by the sub-commands.
type app struct {
	v      *viper.Viper
	logger *slog.Logger
}

func newRootCommand() *cobra.Command {
	a := &app{v: viper.New(), logger: slog.Default()}
	root := &cobra.Command{
		Use:           "gda",
		Short:         "Render and execute persistence action batches",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.configure(cmd)
		},
	}
	pf := root.PersistentFlags()
	pf.String("config", "", "config file (default ./gda.yaml)")
	pf.String("dialect", "", "SQL dialect: generic, oracle, mysql, postgres or sqlite")
	pf.StringSlice("schema", nil, "mapping files")
	pf.String("log-format", "text", "log format: text or json")
	pf.Bool("debug", false, "log every statement")
	for _, name := range []string{"dialect", "schema", "log-format", "debug"} {
		_ = a.v.BindPFlag(name, pf.Lookup(name))
	}
	root.AddCommand(a.renderCommand(), a.execCommand(), a.schemaCommand())
	return root
}

// configure loads .env, the environment and the config file, and builds the
// logger.
func (a *app) configure(cmd *cobra.Command) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	a.v.SetEnvPrefix("GDA")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()
	if file, _ := cmd.Flags().GetString("config"); file != "" {
		a.v.SetConfigFile(file)
	} else {
		a.v.SetConfigName("gda")
		a.v.SetConfigType("yaml")
		a.v.AddConfigPath(".")
	}
	if err := a.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}
	a.logger = newLogger(cmd.ErrOrStderr(), a.v.GetString("log-format"), a.v.GetBool("debug"))
	return nil
}

func newLogger(w io.Writer, format string, debug bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if debug {
		opts.Level = slog.LevelDebug
	}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// registry loads the configured mapping files.
func (a *app) registry(ctx context.Context) (*schema.Registry, error) {
	paths := a.v.GetStringSlice("schema")
	if len(paths) == 0 {
		return nil, errors.New("no mapping file: set --schema or GDA_SCHEMA")
	}
	return schema.LoadFiles(ctx, paths...)
}

// executer returns an executer for the configured dialect, falling back to
// provider when no dialect is configured.
func (a *app) executer(s schema.TypeSchema, provider string, opts ...persist.Option) (*persist.Executer, error) {
	if d := a.v.GetString("dialect"); d != "" {
		provider = d
	}
	opts = append([]persist.Option{persist.WithDialect(provider), persist.WithLogger(a.logger)}, opts...)
	return persist.New(s, opts...)
}
