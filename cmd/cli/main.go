package main

import (
	"fmt"
	"os"

	_ "github.com/crucial707/rule-scheduler/cmd/cli/check"
	"github.com/crucial707/rule-scheduler/cmd/cli/root"
	_ "github.com/crucial707/rule-scheduler/cmd/cli/rulesets"
	_ "github.com/crucial707/rule-scheduler/cmd/cli/schedule"
)

func main() {
	if err := root.GetRoot().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
