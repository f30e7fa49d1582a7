package schedule

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/crucial707/rule-scheduler/cmd/cli/app"
	"github.com/crucial707/rule-scheduler/cmd/cli/output"
	"github.com/crucial707/rule-scheduler/cmd/cli/root"
	"github.com/crucial707/rule-scheduler/internal/engine"
	"github.com/crucial707/rule-scheduler/internal/models"
	"github.com/crucial707/rule-scheduler/internal/pce"
)

func init() {
	scheduleCmd := &cobra.Command{
		Use:     "schedule",
		Aliases: []string{"schedules"},
		Short:   "Manage rule and rule set schedules",
	}
	scheduleCmd.AddCommand(addCmd(), listCmd(), showCmd(), deleteCmd())
	root.GetRoot().AddCommand(scheduleCmd)
}

func addCmd() *cobra.Command {
	var in models.ScheduleInput
	var days string
	var ruleSet bool

	cmd := &cobra.Command{
		Use:   "add <href>",
		Short: "Create or replace the schedule on a rule or rule set",
		Long: `Create or replace the schedule on a rule or rule set.

Examples:
  rulesched schedule add /orgs/1/sec_policy/draft/rule_sets/7 --type recurring --days Mon,Tue --start 08:00 --end 18:00
  rulesched schedule add /orgs/1/sec_policy/draft/rule_sets/7/sec_rules/3 --type one_time --expire-at "2025-01-31 18:00"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.Open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			ref := args[0]

			in.Days = models.SplitDays(days)
			in.IsRuleSet = nil
			if cmd.Flags().Changed("ruleset") {
				in.IsRuleSet = &ruleSet
			}
			s, err := in.Build(ref, pce.IsRuleSetHref(ref), a.Engine.Location())
			if err != nil {
				return err
			}

			name, detail, err := a.Describe(cmd.Context(), ref)
			if err != nil {
				return fmt.Errorf("look up %s: %w", ref, err)
			}
			if s.DisplayName == "" {
				s.DisplayName = name
			}
			if s.Detail == (models.Detail{}) {
				s.Detail = detail
			}
			if prev, err := a.Engine.Schedule(cmd.Context(), ref); err == nil && prev != nil {
				s.CreatedAt = prev.CreatedAt
			}

			if err := a.Engine.Submit(cmd.Context(), s); err != nil {
				return err
			}
			if root.JSON(cmd) {
				return output.PrintJSON(s)
			}
			fmt.Printf("Scheduled %s: %s\n", displayName(s), s.Describe(a.Engine.Location()))
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&in.Name, "name", "", "display name (default: looked up in the PCE)")
	f.StringVar((*string)(&in.Type), "type", "recurring", "recurring or one_time")
	f.StringVar(&in.Action, "action", "allow", "recurring action: allow or block")
	f.StringVar(&days, "days", "", "comma separated days, e.g. Mon,Tue or Everyday")
	f.StringVar(&in.Start, "start", "", "window start HH:MM")
	f.StringVar(&in.End, "end", "", "window end HH:MM")
	f.StringVar(&in.ExpireAt, "expire-at", "", `one_time expiry, "YYYY-MM-DD HH:MM" or RFC 3339`)
	f.BoolVar(&ruleSet, "ruleset", false, "treat the target as a rule set (default: from the href)")
	return cmd
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List schedules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.Open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			list, err := a.Engine.Schedules(cmd.Context())
			if err != nil {
				return err
			}
			if root.JSON(cmd) {
				if list == nil {
					list = []models.Schedule{}
				}
				return output.PrintJSON(list)
			}
			if len(list) == 0 {
				fmt.Println("No schedules.")
				return nil
			}
			loc := a.Engine.Location()
			rows := make([][]interface{}, 0, len(list))
			for _, s := range list {
				rows = append(rows, []interface{}{
					pce.ID(s.TargetRef),
					scope(s),
					output.Truncate(displayName(s), 40),
					s.Describe(loc),
					s.CreatedAt.In(loc).Format("2006-01-02 15:04"),
				})
			}
			output.RenderTable([]string{"ID", "Scope", "Name", "Schedule", "Created"}, rows)
			return nil
		},
	}
}

func showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <href>",
		Short: "Show the schedule on one target",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.Open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			s, err := a.Engine.Schedule(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if s == nil {
				return fmt.Errorf("%s: %w", args[0], engine.ErrNoSchedule)
			}
			if root.JSON(cmd) {
				return output.PrintJSON(s)
			}
			loc := a.Engine.Location()
			output.RenderTable([]string{"Field", "Value"}, [][]interface{}{
				{"Target", s.TargetRef},
				{"Scope", scope(*s)},
				{"Name", displayName(*s)},
				{"Schedule", s.Describe(loc)},
				{"Rule set", s.Detail.RuleSet},
				{"Source", s.Detail.Source},
				{"Destination", s.Detail.Destination},
				{"Service", s.Detail.Service},
				{"Created", s.CreatedAt.In(loc).Format("2006-01-02 15:04:05")},
			})
			return nil
		},
	}
}

func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "delete <href>",
		Aliases: []string{"rm"},
		Short:   "Delete a schedule and strip its tag from the target",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.Open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Engine.Remove(cmd.Context(), args[0]); err != nil {
				if errors.Is(err, engine.ErrNoSchedule) {
					return fmt.Errorf("%s: %w", args[0], err)
				}
				return err
			}
			fmt.Println("Schedule deleted")
			return nil
		},
	}
}

func scope(s models.Schedule) string {
	if s.Scope == models.ScopeRuleSet {
		return "rule set"
	}
	return "rule"
}

func displayName(s models.Schedule) string {
	if strings.TrimSpace(s.DisplayName) != "" {
		return s.DisplayName
	}
	return pce.ID(s.TargetRef)
}
