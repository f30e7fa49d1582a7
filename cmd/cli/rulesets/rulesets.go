package rulesets

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/crucial707/rule-scheduler/cmd/cli/app"
	"github.com/crucial707/rule-scheduler/cmd/cli/output"
	"github.com/crucial707/rule-scheduler/cmd/cli/root"
	"github.com/crucial707/rule-scheduler/internal/models"
	"github.com/crucial707/rule-scheduler/internal/pce"
)

const (
	markScheduled = "★"
	markContains  = "●"
)

func init() {
	rulesetsCmd := &cobra.Command{
		Use:   "rulesets",
		Short: "Browse draft rule sets and their rules",
		Long: `Browse draft rule sets. ` + markScheduled + ` marks a scheduled rule set or rule,
` + markContains + ` a rule set with at least one scheduled rule.`,
	}

	searchCmd := &cobra.Command{
		Use:   "search [name]",
		Short: "List rule sets whose name contains name",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSearch,
	}

	showCmd := &cobra.Command{
		Use:   "show <id|href>",
		Short: "Show a rule set's rules",
		Args:  cobra.ExactArgs(1),
		RunE:  runShow,
	}

	rulesetsCmd.AddCommand(searchCmd, showCmd)
	root.GetRoot().AddCommand(rulesetsCmd)
}

func marker(href string, kinds map[string]models.Kind) string {
	if kinds[href] != models.KindNone {
		return markScheduled
	}
	prefix := href + "/sec_rules/"
	for ref := range kinds {
		if strings.HasPrefix(ref, prefix) {
			return markContains
		}
	}
	return ""
}

func enabled(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func runSearch(cmd *cobra.Command, args []string) error {
	a, err := app.Open(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	name := ""
	if len(args) == 1 {
		name = args[0]
	}
	sets, err := a.PCE.RuleSets(cmd.Context(), name)
	if err != nil {
		return err
	}
	if root.JSON(cmd) {
		if sets == nil {
			sets = []pce.RuleSet{}
		}
		return output.PrintJSON(sets)
	}
	if len(sets) == 0 {
		fmt.Println("No rule sets found.")
		return nil
	}
	kinds, err := a.Kinds(cmd.Context())
	if err != nil {
		return err
	}
	rows := make([][]interface{}, 0, len(sets))
	for _, rs := range sets {
		rows = append(rows, []interface{}{
			marker(rs.Href, kinds),
			pce.ID(rs.Href),
			output.Truncate(rs.Name, 48),
			enabled(rs.Enabled),
			len(rs.Rules),
		})
	}
	output.RenderTable([]string{"", "ID", "Name", "State", "Rules"}, rows)
	return nil
}

func runShow(cmd *cobra.Command, args []string) error {
	a, err := app.Open(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	rs, err := a.PCE.RuleSet(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if root.JSON(cmd) {
		return output.PrintJSON(rs)
	}
	kinds, err := a.Kinds(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Printf("%s %s (%s) [%s]\n", marker(rs.Href, kinds), rs.Name, rs.Href, enabled(rs.Enabled))
	if len(rs.Rules) == 0 {
		fmt.Println("No rules.")
		return nil
	}
	rows := make([][]interface{}, 0, len(rs.Rules))
	for _, r := range rs.Rules {
		mark := ""
		if kinds[r.Href] != models.KindNone {
			mark = markScheduled
		}
		rows = append(rows, []interface{}{
			mark,
			pce.ID(r.Href),
			enabled(r.Enabled),
			output.Truncate(a.PCE.DescribeActors(cmd.Context(), r.Sources()), 40),
			output.Truncate(a.PCE.DescribeActors(cmd.Context(), r.Providers), 40),
			output.Truncate(pce.DescribeServices(r.IngressServices), 30),
			output.Truncate(r.Description, 30),
		})
	}
	output.RenderTable([]string{"", "ID", "State", "Source", "Destination", "Service", "Note"}, rows)
	return nil
}
