package cli

import (
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"scribeflow/internal/bootstrap"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if port != "" {
				opts.cfg.Port = port
			}
			if !opts.verbose {
				gin.SetMode(gin.ReleaseMode)
			}
			return bootstrap.Serve(cmd.Context(), opts.cfg, opts.logger)
		},
	}
	cmd.Flags().StringVarP(&port, "port", "p", "", "listen port (default from PORT)")
	return cmd
}
