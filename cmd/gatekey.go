package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"visitor-access-control/internal/config"
	"visitor-access-control/internal/routes"
)

var gatekeyCmd = &cobra.Command{
	Use:   "gatekey <key>",
	Short: "Hash a gate API key for configuration",
	Long:  `Hashes a gate device API key with the configured secret. Put the output in GATE_KEY_HASH.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(routes.GateKeyEncode(args[0], config.Cfg.Secret))
	},
}

func init() {
	rootCmd.AddCommand(gatekeyCmd)
}
