package serve

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nameatlas/nameatlas/internal/analysis"
	"github.com/nameatlas/nameatlas/internal/conf"
)

// Command creates the command that runs the HTTP API server.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the name analysis API server",
		Long:  "Start the HTTP API serving combination analysis, part lookups and provider diagnostics.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return analysis.Serve(settings)
		},
	}

	if err := setupFlags(cmd, settings); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

// setupFlags configures flags specific to the serve command.
func setupFlags(cmd *cobra.Command, settings *conf.Settings) error {
	cmd.Flags().StringVar(&settings.WebServer.Port, "port", viper.GetString("webserver.port"), "Port for the API server")
	cmd.Flags().BoolVar(&settings.WebServer.AutoTLS, "autotls", viper.GetBool("webserver.autotls"), "Enable automatic TLS via Let's Encrypt")
	cmd.Flags().StringVar(&settings.WebServer.Host, "host", viper.GetString("webserver.host"), "Hostname used for TLS certificates")

	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}

	return nil
}
