// Tempo CLI — инструмент командной строки для управления
// jobs и просмотра runs через HTTP API.
//
// Использование:
//
//	tempo [--api-url URL] [--api-key KEY] [--json] <command> <subcommand> [flags]
//
// Команды:
//
//	job  Управление jobs
//	run  Просмотр runs
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/Tempo/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var apiURL string
	var apiKey string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "tempo",
		Short:         "Tempo CLI — distributed job scheduler",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", envOr("TEMPO_API_URL", "http://localhost:8080"), "API server URL")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", os.Getenv("TEMPO_API_KEY"), "API key (X-API-Key header)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *cli.Client { return cli.NewClient(apiURL, apiKey) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewJobCmd(clientFn, outputFn),
		cli.NewRunCmd(clientFn, outputFn),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
