// Command mcp-gateway runs the multi-tenant MCP gateway: the HTTP surface
// that authenticates callers, assigns them a per-user worker container, and
// proxies their MCP session and web traffic to it.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/mcp-getgather/mcp-gateway/internal/config"
	"github.com/mcp-getgather/mcp-gateway/internal/gateway"
	"github.com/mcp-getgather/mcp-gateway/internal/log"
)

func main() {
	if err := rootCommand().ExecuteContext(context.Background()); err != nil {
		// %+v prints pkg/errors' attached stack trace when the error chain
		// carries one, falling back to a plain message otherwise.
		fmt.Fprintf(os.Stderr, "%+v\n", err)
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "mcp-gateway",
		Short:         "Multi-tenant gateway fronting per-user MCP worker containers",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(gatewayCommand())
	return cmd
}

func gatewayCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gateway",
		Short: "Manage the gateway process",
	}
	cmd.AddCommand(runCommand())
	return cmd
}

func runCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Boot the gateway and serve until terminated",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := config.Load()
			if err != nil {
				return err
			}
			log.SetLevel(log.ParseLevel(settings.LogLevel))

			gw, err := gateway.New(settings)
			if err != nil {
				return errors.Wrap(err, "constructing gateway")
			}
			return gw.Run(cmd.Context())
		},
	}
}
