package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vk/mathgrid/internal/app"
	"github.com/vk/mathgrid/internal/archives"
	"github.com/vk/mathgrid/internal/buildgraph"
	"github.com/vk/mathgrid/internal/queue"
	"github.com/vk/mathgrid/internal/uri"
)

func newBuildCommand(opts *options, outW io.Writer) *cobra.Command {
	var goal string
	cmd := &cobra.Command{
		Use:   "build ARCHIVE [PATH...]",
		Short: "Build files of an archive",
		Long: `Build the given source files of ARCHIVE, or every file that is new or
stale when no paths are given. Paths are relative to the archive's source
directory.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uri.ParseArchiveID(args[0])
			if err != nil {
				return usageError(fmt.Errorf("invalid archive id %q: %w", args[0], err))
			}
			req := app.BuildRequest{Archive: id, Paths: args[1:]}
			if goal != "" {
				code, err := buildgraph.ParseCode(goal)
				if err != nil {
					return usageError(fmt.Errorf("invalid goal: %w", err))
				}
				req.Goal = buildgraph.ArtifactTypeID(code)
			}

			return withApp(cmd, opts, outW, func(ctx context.Context, a *app.App) error {
				tasks, err := a.Build(ctx, req)
				if err != nil {
					return err
				}
				return reportTasks(outW, tasks)
			})
		},
	}
	cmd.Flags().StringVarP(&goal, "goal", "g", "", "Artifact type to build towards instead of the format's goals.")
	return cmd
}

// reportTasks prints one line per task and fails when any task failed.
func reportTasks(w io.Writer, tasks []*queue.Task) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	failed := 0
	for _, t := range tasks {
		targets := make([]string, 0, len(t.Steps()))
		for _, s := range t.Steps() {
			targets = append(targets, s.Target.String())
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", t.State(), t.Path, strings.Join(targets, ","))
		if t.State() == queue.Failed {
			failed++
			fmt.Fprintf(tw, "\t  %s\t\n", t.Err())
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if failed > 0 {
		return &ExitError{Code: 1, Message: fmt.Sprintf("%d of %d build tasks failed", failed, len(tasks))}
	}
	return nil
}

func newStatusCommand(opts *options, outW io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "status [ARCHIVE]",
		Short: "Show archives or the build state of one archive's files",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var id uri.ArchiveID
			if len(args) == 1 {
				var err error
				if id, err = uri.ParseArchiveID(args[0]); err != nil {
					return usageError(fmt.Errorf("invalid archive id %q: %w", args[0], err))
				}
			}
			return withApp(cmd, opts, outW, func(_ context.Context, a *app.App) error {
				if id.IsZero() {
					return printArchives(outW, a.Archives())
				}
				return printFiles(outW, a.Archives(), id)
			})
		},
	}
}

func printArchives(w io.Writer, m *archives.Manager) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ARCHIVE\tFILES\tPENDING")
	m.WithTree(func(t *archives.Tree) {
		for _, a := range t.Archives() {
			files := a.Files()
			pending := 0
			for _, f := range files {
				for _, s := range f.States {
					if s.NeedsBuild() {
						pending++
						break
					}
				}
			}
			fmt.Fprintf(tw, "%s\t%d\t%d\n", a.ID().String(), len(files), pending)
		}
	})
	return tw.Flush()
}

func printFiles(w io.Writer, m *archives.Manager, id uri.ArchiveID) error {
	var files []archives.SourceFile
	if !m.WithArchive(id, func(a *archives.Archive) { files = a.Files() }) {
		return &ExitError{Code: 1, Message: fmt.Sprintf("archive %q not found", id.String())}
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PATH\tFORMAT\tTARGET\tSTATE")
	for _, f := range files {
		targets := make([]buildgraph.TargetID, 0, len(f.States))
		for t := range f.States {
			targets = append(targets, t)
		}
		sort.Slice(targets, func(i, j int) bool { return targets[i].String() < targets[j].String() })
		if len(targets) == 0 {
			fmt.Fprintf(tw, "%s\t%s\t-\t%s\n", f.Path, f.Format, archives.New)
		}
		for _, t := range targets {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", f.Path, f.Format, t, f.States[t].Kind)
		}
	}
	return tw.Flush()
}

func newQueryCommand(opts *options, outW io.Writer) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "query PATTERN",
		Short: "Match a triple pattern against the built relations",
		Long: `Match a single triple pattern such as

  ?m <http://mathhub.info/ulo#declares> ?s

against the relations of every built document. Use --store to query a
persistent store filled by earlier builds.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, outW, func(ctx context.Context, a *app.App) error {
				rs, err := a.Query(ctx, args[0])
				if err != nil {
					return usageError(err)
				}
				if asJSON {
					enc := json.NewEncoder(outW)
					enc.SetIndent("", "  ")
					return enc.Encode(rs)
				}
				tw := tabwriter.NewWriter(outW, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "?"+strings.Join(rs.Vars, "\t?"))
				for _, row := range rs.Rows {
					cells := make([]string, len(row))
					for i, term := range row {
						cells[i] = term.String()
					}
					fmt.Fprintln(tw, strings.Join(cells, "\t"))
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result set as JSON.")
	return cmd
}

func newServeCommand(opts *options, outW io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Watch the archives, rebuild what changes and serve status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			cmd.SetContext(ctx)

			return withApp(cmd, opts, outW, func(ctx context.Context, a *app.App) error {
				return a.Serve(ctx)
			})
		},
	}
	cmd.Flags().IntVarP(&opts.port, "port", "p", 0, "Port of the status server; 0 disables it.")
	cmd.Flags().StringVar(&opts.relayURL, "relay-url", "", "socket.io endpoint to forward notifications to.")
	return cmd
}
