package cmd

import (
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/amankb/internal/index"
	"github.com/Aman-CERP/amankb/internal/output"
	"github.com/Aman-CERP/amankb/internal/service"
	"github.com/Aman-CERP/amankb/internal/watcher"
)

func newWatchCmd(g *globalFlags) *cobra.Command {
	var poll bool
	var debounce time.Duration

	cmd := &cobra.Command{
		Use:   "watch <knowledge-base | path>",
		Short: "Re-index directories as files change",
		Long: `Index a knowledge base or directory, then keep it up to date as files
are created, modified or deleted. Stop with Ctrl+C.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			return withService(g, func(svc *service.Service) error {
				roots, err := svc.Registry().Resolve(args[0])
				if err != nil {
					return err
				}

				out := output.New(cmd.OutOrStdout())
				opts := watcher.DefaultOptions()
				opts.ForcePolling = poll
				if debounce > 0 {
					opts.DebounceWindow = debounce
				}

				eg, ctx := errgroup.WithContext(ctx)
				for _, root := range roots {
					w, err := watcher.New(svc.Indexer(), opts)
					if err != nil {
						return err
					}
					w.OnResult = func(res *index.Result, err error) {
						switch {
						case err != nil:
							out.Error(err.Error())
						case res.Message != index.MsgUpToDate:
							out.IndexResults([]*index.Result{res})
						}
					}
					out.Statusf("👀", "Watching %s", root)
					eg.Go(func() error {
						return w.Run(ctx, root)
					})
				}
				err = eg.Wait()
				slog.Info("watch_stopped", slog.Int("roots", len(roots)))
				return err
			})
		},
	}

	cmd.Flags().BoolVar(&poll, "poll", false, "Poll for changes instead of using filesystem notifications")
	cmd.Flags().DurationVar(&debounce, "debounce", 0, "Quiet period before re-indexing (default 500ms)")

	return cmd
}
