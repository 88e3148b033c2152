package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration helpers",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Prints the configuration after merging defaults, the config file,
FNHOST_* environment variables and flags. YAML unless -o json is given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSettings(viper.GetViper())
		if err != nil {
			return err
		}
		if !IsJSONOutput() {
			outputFormat = "yaml"
		}
		_, err = encode(cmd.OutOrStdout(), s)
		return err
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
}
