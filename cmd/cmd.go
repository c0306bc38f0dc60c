// cmd.go - Haupt-CLI Setup und Root Command
// Hauptfunktionen: NewCLI, appendEnvDocs
package cmd

import (
	"fmt"
	"log"
	"net"

	"github.com/spf13/cobra"

	"github.com/7blacky7/tensorbatch/envconfig"
	"github.com/7blacky7/tensorbatch/server"
	"github.com/7blacky7/tensorbatch/version"
)

// appendEnvDocs - Fuegt Umgebungsvariablen-Dokumentation zum Command hinzu
func appendEnvDocs(cmd *cobra.Command, envs []envconfig.EnvVar) {
	if len(envs) == 0 {
		return
	}

	envUsage := `
Environment Variables:
`
	for _, e := range envs {
		envUsage += fmt.Sprintf("      %-24s   %s\n", e.Name, e.Description)
	}

	cmd.SetUsageTemplate(cmd.UsageTemplate() + envUsage)
}

// RunServer startet den HTTP-Server auf dem konfigurierten Host
func RunServer(_ *cobra.Command, _ []string) error {
	host := envconfig.Host()
	ln, err := net.Listen("tcp", host.Host)
	if err != nil {
		return err
	}

	return server.Serve(ln)
}

// NewCLI - Erstellt das Haupt-CLI mit allen Commands
func NewCLI() *cobra.Command {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	cobra.EnableCommandSorting = false

	rootCmd := &cobra.Command{
		Use:           "tensorbatch",
		Short:         "Request batching server for inference serving",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version.Version,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	serveCmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"start"},
		Short:   "Start tensorbatch",
		Args:    cobra.ExactArgs(0),
		RunE:    RunServer,
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show batcher queue statistics",
		Args:  cobra.ExactArgs(0),
		RunE:  StatusHandler,
	}

	envVars := envconfig.AsMap()
	appendEnvDocs(serveCmd, []envconfig.EnvVar{
		envVars["TB_HOST"],
		envVars["TB_DEBUG"],
		envVars["TB_ORIGINS"],
		envVars["TB_NUM_BATCH_THREADS"],
		envVars["TB_MAX_QUEUE"],
	})
	appendEnvDocs(statusCmd, []envconfig.EnvVar{envVars["TB_HOST"]})

	rootCmd.AddCommand(serveCmd, statusCmd)

	return rootCmd
}
