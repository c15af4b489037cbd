package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amankb/internal/config"
	"github.com/Aman-CERP/amankb/internal/mcp"
	"github.com/Aman-CERP/amankb/internal/service"
)

func newServeCmd(g *globalFlags) *cobra.Command {
	var transport, addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve knowledge tools over MCP",
		Long: `Start the MCP server exposing indexing and search as tools.

The stdio transport is for editors and assistants that launch the
server themselves; nothing but JSON-RPC is written to stdout. The http
transport serves the streamable HTTP protocol on --addr.`,
		Example: `  amankb serve
  amankb serve --transport http --addr 127.0.0.1:8765`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			cfg, err := loadConfig(g)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("transport") {
				cfg.Server.Transport = transport
			}
			if cmd.Flags().Changed("addr") {
				cfg.Server.HTTPAddr = addr
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			svc, err := service.New(cfg, service.Dependencies{})
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()

			srv, err := mcp.NewServer(svc, cfg)
			if err != nil {
				return err
			}
			return srv.Serve(ctx)
		},
	}

	cmd.Flags().StringVar(&transport, "transport", config.TransportStdio, "Transport: stdio or http")
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address for the http transport")

	return cmd
}
