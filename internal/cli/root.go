package cli

import (
	"log"
	"os"

	"github.com/spf13/cobra"

	"quizbee-service/internal/config"
)

var (
	port       string
	configPath string
)

// Execute runs the CLI.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	// .env must be applied before the flag defaults below read the environment.
	if err := config.LoadEnv(); err != nil {
		log.Printf("load .env: %v", err)
	}
	envPort := os.Getenv("PORT")
	envConfig := os.Getenv("CONFIG_PATH")
	if envConfig == "" {
		envConfig = "config/config.yaml"
	}

	cmd := &cobra.Command{
		Use:          "quizbee",
		Short:        "Quiz delivery service: elimination and finals rounds over HTTP",
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&port, "port", envPort, "port to listen on (overrides server.port)")
	cmd.PersistentFlags().StringVar(&configPath, "config", envConfig, "path to YAML config")
	cmd.AddCommand(NewStartCmd(&configPath, &port))
	cmd.AddCommand(NewCleanupCmd(&configPath))
	cmd.AddCommand(NewCatalogCmd(&configPath))
	return cmd
}
