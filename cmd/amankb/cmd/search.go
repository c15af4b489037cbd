package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	kberrors "github.com/Aman-CERP/amankb/internal/errors"
	"github.com/Aman-CERP/amankb/internal/output"
	"github.com/Aman-CERP/amankb/internal/search"
	"github.com/Aman-CERP/amankb/internal/service"
)

type searchFlags struct {
	kb        string
	tags      []string
	filters   []string
	limit     int
	threshold float64
	json      bool
}

func newSearchCmd(g *globalFlags) *cobra.Command {
	var f searchFlags

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Semantic search over indexed knowledge",
		Long: `Search a knowledge base or directory by meaning. Without --kb every
registered knowledge base is searched.

Filters are either field=value equality or a comparison such as
"sharpe>1.5". Tags must all be present on a result.`,
		Example: `  amankb search "mean reversion entry rules"
  amankb search "momentum" --kb research --tag backtest --filter "sharpe>1.5"
  amankb search "parse config" --kb ~/src/tool --filter type=code --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			meta, err := parseFilters(f.filters)
			if err != nil {
				return err
			}

			return withService(g, func(svc *service.Service) error {
				opts := svc.Engine().DefaultOptions()
				opts.Tags = f.tags
				opts.Metadata = meta
				if cmd.Flags().Changed("limit") {
					opts.Limit = f.limit
				}
				if cmd.Flags().Changed("threshold") {
					opts.Threshold = f.threshold
				}

				results, err := svc.Search(cmd.Context(), f.kb, query, opts)
				if err != nil {
					return err
				}
				out := output.New(cmd.OutOrStdout())
				if f.json {
					return out.JSON(nonNil(results))
				}
				out.SearchResults(query, results)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&f.kb, "kb", "k", "", "Knowledge base name or directory (default: all registered)")
	cmd.Flags().StringArrayVarP(&f.tags, "tag", "t", nil, "Required tag (repeatable)")
	cmd.Flags().StringArrayVarP(&f.filters, "filter", "f", nil, `Metadata filter, "field=value" or "field>number" (repeatable)`)
	cmd.Flags().IntVarP(&f.limit, "limit", "n", 10, "Maximum number of results")
	cmd.Flags().Float64Var(&f.threshold, "threshold", 0.5, "Minimum similarity score (0-1)")
	cmd.Flags().BoolVar(&f.json, "json", false, "Print results as JSON")

	return cmd
}

// parseFilters converts --filter values into search metadata filters.
// Comparisons keep the whole expression as the key.
func parseFilters(raw []string) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	meta := make(map[string]any, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if strings.ContainsAny(r, "<>!") {
			meta[r] = nil
			continue
		}
		key, value, ok := strings.Cut(r, "=")
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		if !ok || key == "" || value == "" {
			return nil, kberrors.MalformedFilter(fmt.Sprintf("filter %q must be field=value or a comparison", r))
		}
		meta[key] = value
	}
	return meta, nil
}

func newTagsCmd(g *globalFlags) *cobra.Command {
	var kb string
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "tags",
		Short: "List tags with their chunk counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withService(g, func(svc *service.Service) error {
				tags, err := svc.Tags(cmd.Context(), kb)
				if err != nil {
					return err
				}
				out := output.New(cmd.OutOrStdout())
				if jsonOut {
					return out.JSON(nonNil(tags))
				}
				out.Tags(tags)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&kb, "kb", "k", "", "Knowledge base name or directory (default: all registered)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print as JSON")
	return cmd
}

func newFieldsCmd(g *globalFlags) *cobra.Command {
	var kb string
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "fields",
		Short: "Describe filterable metadata fields",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withService(g, func(svc *service.Service) error {
				fields, err := svc.Fields(cmd.Context(), kb)
				if err != nil {
					return err
				}
				out := output.New(cmd.OutOrStdout())
				if jsonOut {
					if fields == nil {
						fields = map[string]search.FieldInfo{}
					}
					return out.JSON(fields)
				}
				out.Fields(fields)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&kb, "kb", "k", "", "Knowledge base name or directory (default: all registered)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print as JSON")
	return cmd
}

func newKnowledgesCmd(g *globalFlags) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "knowledges",
		Short: "List registered knowledge bases",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withService(g, func(svc *service.Service) error {
				kbs, err := svc.Knowledges()
				if err != nil {
					return err
				}
				out := output.New(cmd.OutOrStdout())
				if jsonOut {
					return out.JSON(nonNil(kbs))
				}
				out.Knowledges(kbs)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print as JSON")
	return cmd
}
