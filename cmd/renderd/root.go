package cmd

import (
	"fmt"
	"os"
	"strings"

	run "github.com/renderiq/render-server/cmd/renderd/run"
	"github.com/renderiq/render-server/internal/config"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const renderPrefix = "RENDER"

var Cmd = &cobra.Command{
	Use:   "renderd",
	Short: "Renderiq render server",
	Long:  "Generation pipeline server for architectural visualization: chains, pipeline memory and webhook notifications",

	// Runs before this command and any subcommands
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Set global viper options
		viper.SetEnvPrefix(renderPrefix)
		viper.SetEnvKeyReplacer(strings.NewReplacer(
			`-`, `_`, // convert hyphens to underscores
			`.`, `_`, // convert dots to underscores
		))
		viper.AutomaticEnv()

		// Bind all flags from the current command persistent parent flags
		if err := viper.BindPFlags(cmd.Flags()); err != nil {
			return err
		}

		if err := viper.BindPFlags(cmd.PersistentFlags()); err != nil {
			return err
		}

		// Load config and env files
		if err := config.LoadEnvAndConfigFiles(); err != nil {
			return err
		}

		return nil
	},
}

func Execute() {
	if err := Cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	pflags := Cmd.PersistentFlags()

	pflags.String("render-home", "", "Path to the render home directory")
	pflags.String("config-file", "", "Path to the config file")
	pflags.String("env-file", "", "Path to the env file")

	viper.KeyDelimiter(":::")

	// Bind flags to viper
	viper.BindPFlag("render_home", pflags.Lookup("render-home"))
	viper.BindPFlag("config_file", pflags.Lookup("config-file"))
	viper.BindPFlag("env_file", pflags.Lookup("env-file"))

	Cmd.AddCommand(run.Cmd)
	Cmd.CompletionOptions.HiddenDefaultCmd = true
}
