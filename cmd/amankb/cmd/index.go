package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	kberrors "github.com/Aman-CERP/amankb/internal/errors"
	"github.com/Aman-CERP/amankb/internal/index"
	"github.com/Aman-CERP/amankb/internal/output"
	"github.com/Aman-CERP/amankb/internal/service"
	"github.com/Aman-CERP/amankb/internal/ui"
)

type indexFlags struct {
	force       bool
	noRecursive bool
	plain       bool
	json        bool
}

func newIndexCmd(g *globalFlags) *cobra.Command {
	var f indexFlags

	cmd := &cobra.Command{
		Use:   "index [knowledge-base | path]...",
		Short: "Index directories for semantic search",
		Long: `Index one or more knowledge bases or directories.

Only files added or modified since the last pass are processed, and
deleted files are reported. Use --force to drop the index and rebuild it.`,
		Example: `  amankb index ~/notes
  amankb index research --force
  amankb index . --no-recursive`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			return withService(g, func(svc *service.Service) error {
				opts := index.Options{Recursive: !f.noRecursive, Force: f.force}
				out := output.New(cmd.OutOrStdout())

				var renderer ui.Renderer
				if !f.json {
					renderer = ui.NewRenderer(ui.Config{Output: cmd.ErrOrStderr(), ForcePlain: f.plain, Root: args[0]})
					if err := renderer.Start(ctx); err != nil {
						return err
					}
					opts.Renderer = renderer
				}

				var all []*index.Result
				for _, target := range args {
					results, err := svc.Index(ctx, target, opts)
					if err != nil {
						if renderer != nil {
							_ = renderer.Stop()
						}
						return err
					}
					all = append(all, results...)
				}
				if renderer != nil {
					_ = renderer.Stop()
				}

				if f.json {
					return out.JSON(all)
				}
				out.IndexResults(all)
				return failedResults(all)
			})
		},
	}

	cmd.Flags().BoolVar(&f.force, "force", false, "Drop the index and rebuild it from scratch")
	cmd.Flags().BoolVar(&f.noRecursive, "no-recursive", false, "Do not descend into subdirectories")
	cmd.Flags().BoolVar(&f.plain, "plain", false, "Plain text progress instead of the interactive view")
	cmd.Flags().BoolVar(&f.json, "json", false, "Print results as JSON")

	return cmd
}

func newRefreshCmd(g *globalFlags) *cobra.Command {
	var noRecursive, jsonOut bool

	cmd := &cobra.Command{
		Use:   "refresh [knowledge-base | path]",
		Short: "Pick up changes in indexed directories",
		Long: `Run an incremental pass over a knowledge base or directory, or over
every indexed directory when no argument is given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			return withService(g, func(svc *service.Service) error {
				results, err := svc.Refresh(ctx, firstArg(args), !noRecursive)
				if err != nil {
					return err
				}
				out := output.New(cmd.OutOrStdout())
				if jsonOut {
					return out.JSON(nonNil(results))
				}
				if len(results) == 0 {
					out.Status("", "No indexes to refresh")
					return nil
				}
				out.IndexResults(results)
				return failedResults(results)
			})
		},
	}

	cmd.Flags().BoolVar(&noRecursive, "no-recursive", false, "Do not descend into subdirectories")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print results as JSON")

	return cmd
}

func newDropCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "drop <knowledge-base | path>",
		Short: "Delete the index of a directory",
		Long:  `Delete the vector collection and cache directory of a knowledge base or directory. Source files are not touched.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(g, func(svc *service.Service) error {
				results, err := svc.Drop(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				output.New(cmd.OutOrStdout()).DropResults(results)
				return nil
			})
		},
	}
}

func newListCmd(g *globalFlags) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List indexed directories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withService(g, func(svc *service.Service) error {
				indexes, err := svc.Indexes()
				if err != nil {
					return err
				}
				out := output.New(cmd.OutOrStdout())
				if jsonOut {
					return out.JSON(nonNil(indexes))
				}
				out.Indexes(indexes)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print as JSON")
	return cmd
}

// failedResults turns error results into a non-zero exit.
func failedResults(results []*index.Result) error {
	failed := 0
	for _, r := range results {
		if r.Status == index.StatusError {
			failed++
		}
	}
	if failed > 0 {
		return kberrors.New(kberrors.ErrCodeIndexFailed, fmt.Sprintf("%d indexing pass(es) failed", failed), nil)
	}
	return nil
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
