package root

import (
	"os"

	"github.com/spf13/cobra"
)

// RootCmd is the rulesched command. Subcommand packages register themselves
// on it from init.
var RootCmd = &cobra.Command{
	Use:   "rulesched",
	Short: "Time-window scheduling for PCE rules and rule sets",
	Long: `Attach recurring or one-time schedules to PCE rules and rule sets,
and reconcile their enabled state against those schedules.

Configuration comes from the TOML file named by --config or RULESCHED_CONFIG,
then the environment.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	RootCmd.PersistentFlags().String("config", "", "path to a TOML config file (default $RULESCHED_CONFIG)")
	RootCmd.PersistentFlags().Bool("json", false, "output JSON instead of tables")
}

// GetRoot returns RootCmd.
func GetRoot() *cobra.Command {
	return RootCmd
}

// JSON reports whether --json was given.
func JSON(cmd *cobra.Command) bool {
	v, _ := cmd.Root().PersistentFlags().GetBool("json")
	return v
}

// ConfigPath is --config, falling back to RULESCHED_CONFIG.
func ConfigPath(cmd *cobra.Command) string {
	if v, _ := cmd.Root().PersistentFlags().GetString("config"); v != "" {
		return v
	}
	return os.Getenv("RULESCHED_CONFIG")
}
