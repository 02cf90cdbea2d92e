package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/vk/mathgrid/internal/app"
	"github.com/vk/mathgrid/internal/config"
	"github.com/vk/mathgrid/internal/ctxlog"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

func usageError(err error) error {
	return &ExitError{Code: 2, Message: err.Error()}
}

// options holds the persistent flags shared by every command.
type options struct {
	configPath string
	roots      []string
	logLevel   string
	logFormat  string
	queueMode  string
	permits    int
	storePath  string

	// serve only
	port     int
	relayURL string
}

func (o *options) bind(fs *pflag.FlagSet) {
	fs.StringVarP(&o.configPath, "config", "c", "", "Path to the settings file (default ~/.mathgrid/settings.hcl).")
	fs.StringSliceVarP(&o.roots, "root", "r", nil, "Archive root directory; repeat for several roots.")
	fs.StringVar(&o.logLevel, "log-level", "", "Logging level: 'debug', 'info', 'warn' or 'error'.")
	fs.StringVar(&o.logFormat, "log-format", "", "Log output format: 'text' or 'json'.")
	fs.StringVar(&o.queueMode, "queue", "", "Build queue mode: 'counting' or 'linear'.")
	fs.IntVar(&o.permits, "permits", 0, "Concurrent builds in counting mode.")
	fs.StringVar(&o.storePath, "store", "", "Directory of the persistent relation store.")
}

// config loads the settings file and applies the flags the user set.
func (o *options) config(ctx context.Context, fs *pflag.FlagSet) (*config.Config, error) {
	cfg, err := config.Load(ctx, o.configPath)
	if err != nil {
		return nil, usageError(err)
	}
	if fs.Changed("root") {
		cfg.ArchiveRoots = o.roots
	}
	if fs.Changed("log-level") {
		cfg.Log.Level = o.logLevel
	}
	if fs.Changed("log-format") {
		cfg.Log.Format = o.logFormat
	}
	if fs.Changed("queue") {
		cfg.Queue.Mode = o.queueMode
	}
	if fs.Changed("permits") {
		cfg.Queue.Permits = o.permits
	}
	if fs.Changed("store") {
		cfg.TripleStore.Path = o.storePath
		cfg.TripleStore.InMemory = false
	}
	if fs.Changed("port") {
		cfg.Server.Port = o.port
	}
	if fs.Changed("relay-url") {
		cfg.Relay.URL = o.relayURL
	}
	if err := cfg.Validate(); err != nil {
		return nil, usageError(err)
	}
	return cfg, nil
}

// NewRootCommand builds the mathgrid command tree writing to outW.
func NewRootCommand(outW io.Writer) *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "mathgrid",
		Short: "mathgrid - build and query archives of formal mathematical knowledge",
		Long: `mathgrid discovers math archives on disk, builds their documents
and modules through a pipeline of targets, and answers queries about the
relations between them.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	opts.bind(root.PersistentFlags())
	root.SetOut(outW)
	root.SetErr(outW)

	root.AddCommand(
		newBuildCommand(opts, outW),
		newStatusCommand(opts, outW),
		newQueryCommand(opts, outW),
		newServeCommand(opts, outW),
	)
	return root
}

// withApp loads the configuration, starts an app and loads the archives
// before calling f. The app is closed afterwards.
func withApp(cmd *cobra.Command, opts *options, outW io.Writer, f func(context.Context, *app.App) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := opts.config(ctxlog.WithLogger(ctx, slog.Default()), cmd.Flags())
	if err != nil {
		return err
	}
	a, err := app.NewApp(outW, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Load(ctx); err != nil {
		return fmt.Errorf("loading archives: %w", err)
	}
	return f(ctx, a)
}
