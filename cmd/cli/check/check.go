package check

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/crucial707/rule-scheduler/cmd/cli/app"
	"github.com/crucial707/rule-scheduler/cmd/cli/output"
	"github.com/crucial707/rule-scheduler/cmd/cli/root"
	"github.com/crucial707/rule-scheduler/internal/config"
	"github.com/crucial707/rule-scheduler/internal/engine"
	"github.com/crucial707/rule-scheduler/internal/pce"
	"github.com/crucial707/rule-scheduler/internal/scheduler"
)

func init() {
	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Run one reconciliation pass and print its log",
		Long: `Run one reconciliation pass: every scheduled target is brought to the
state its window asks for, and expired one-time schedules are removed.
Exits non-zero when any target failed.`,
		Args: cobra.NoArgs,
		RunE: runCheck,
	}

	monitorCmd := &cobra.Command{
		Use:   "monitor",
		Short: "Run reconciliation passes until interrupted",
		Long: `Run a pass now and then every interval until SIGINT or SIGTERM.
The config file is watched; PCE and monitor settings apply without restart.`,
		Args: cobra.NoArgs,
		RunE: runMonitor,
	}
	monitorCmd.Flags().Duration("interval", 0, "pass interval (default from ILLUMIO_CHECK_INTERVAL)")

	root.GetRoot().AddCommand(checkCmd, monitorCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	a, err := app.Open(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	entries, err := a.Engine.Check(cmd.Context(), true)
	if err != nil {
		return err
	}

	if root.JSON(cmd) {
		if entries == nil {
			entries = []engine.Entry{}
		}
		if err := output.PrintJSON(entries); err != nil {
			return err
		}
	} else {
		printEntries(entries, a.Engine.Location())
	}

	sum := engine.Summary(entries)
	if n := sum[engine.OutcomeFailed]; n > 0 {
		return fmt.Errorf("%d of %d targets failed", n, len(entries))
	}
	return nil
}

func printEntries(entries []engine.Entry, loc *time.Location) {
	if len(entries) == 0 {
		fmt.Println("No schedules to check.")
		return
	}
	rows := make([][]interface{}, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []interface{}{
			e.At.In(loc).Format("15:04:05"),
			e.Outcome,
			output.Truncate(e.Name, 32),
			pce.ID(e.TargetRef),
			e.Desired,
			e.Message,
		})
	}
	output.RenderTable([]string{"Time", "Outcome", "Name", "ID", "Desired", "Message"}, rows)

	sum := engine.Summary(entries)
	fmt.Printf("%d checked: %d changed, %d annotated, %d expired, %d failed\n",
		len(entries), sum[engine.OutcomeChanged], sum[engine.OutcomeAnnotated], sum[engine.OutcomeExpired], sum[engine.OutcomeFailed])
}

func runMonitor(cmd *cobra.Command, args []string) error {
	a, err := app.Open(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	interval := a.Config.Monitor.Interval()
	if v, _ := cmd.Flags().GetDuration("interval"); v > 0 {
		interval = v
	}
	if interval <= 0 {
		return fmt.Errorf("invalid interval %s", interval)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d := scheduler.New(a.Engine, interval, a.Log)
	if err := config.Watch(ctx, a.ConfigPath, a.Log, func(next config.Config) {
		a.PCE.Apply(next.PCE)
		if err := a.Engine.Reconfigure(next.Monitor); err != nil {
			a.Log.Warn().Err(err).Msg("monitor settings not applied")
		}
		if !cmd.Flags().Changed("interval") {
			d.SetInterval(next.Monitor.Interval())
		}
	}); err != nil {
		a.Log.Warn().Err(err).Msg("config watch disabled")
	}

	a.Log.Info().Dur("interval", interval).Msg("monitoring")
	return d.Run(ctx)
}
