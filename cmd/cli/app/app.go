// Package app wires the CLI to the store, the PCE client and the engine.
package app

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/crucial707/rule-scheduler/cmd/cli/root"
	"github.com/crucial707/rule-scheduler/internal/config"
	"github.com/crucial707/rule-scheduler/internal/engine"
	"github.com/crucial707/rule-scheduler/internal/logging"
	"github.com/crucial707/rule-scheduler/internal/models"
	"github.com/crucial707/rule-scheduler/internal/pce"
	"github.com/crucial707/rule-scheduler/internal/repo"
)

// App is one CLI invocation's view of the system.
type App struct {
	Config     config.Config
	ConfigPath string
	Log        zerolog.Logger
	Store      repo.Store
	Audit      repo.AuditLog
	PCE        *pce.Client
	Engine     *engine.Engine
}

// Open loads configuration for cmd and opens everything behind it. Logs go
// to stderr so stdout stays parseable.
func Open(cmd *cobra.Command) (*App, error) {
	path := root.ConfigPath(cmd)
	cfg, err := config.LoadFile(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := logging.NewWriter(os.Stderr, cfg.LogFormat, cfg.LogLevel)

	store, audit, err := repo.Open(cmd.Context(), cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	client := pce.New(cfg.PCE, log)
	opts, err := engine.FromConfig(cfg.Monitor)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	opts = append(opts,
		engine.WithLogger(log),
		engine.WithAudit(audit),
		engine.WithReadiness(client.Ready),
	)
	return &App{
		Config:     cfg,
		ConfigPath: path,
		Log:        log,
		Store:      store,
		Audit:      audit,
		PCE:        client,
		Engine:     engine.New(store, client, opts...),
	}, nil
}

func (a *App) Close() error { return a.Store.Close() }

// Describe looks a target up in the PCE for its display name and detail.
// Without PCE credentials it returns zero values and no error.
func (a *App) Describe(ctx context.Context, ref string) (string, models.Detail, error) {
	if err := a.PCE.Ready(); err != nil {
		a.Log.Warn().Err(err).Msg("target details skipped")
		return "", models.Detail{}, nil
	}
	rs, err := a.PCE.RuleSet(ctx, pce.ParentRuleSet(ref))
	if err != nil {
		return "", models.Detail{}, err
	}
	if pce.IsRuleSetHref(ref) {
		return rs.Name, models.Detail{RuleSet: rs.Name}, nil
	}
	for _, r := range rs.Rules {
		if r.Href != ref {
			continue
		}
		name := r.Description
		if name == "" {
			name = fmt.Sprintf("%s #%s", rs.Name, pce.ID(ref))
		}
		return name, models.Detail{
			RuleSet:     rs.Name,
			Source:      a.PCE.DescribeActors(ctx, r.Sources()),
			Destination: a.PCE.DescribeActors(ctx, r.Providers),
			Service:     pce.DescribeServices(r.IngressServices),
		}, nil
	}
	return "", models.Detail{}, fmt.Errorf("rule %s: %w", ref, pce.ErrNotFound)
}

// Kinds maps each scheduled target ref to its schedule kind.
func (a *App) Kinds(ctx context.Context) (map[string]models.Kind, error) {
	list, err := a.Engine.Schedules(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]models.Kind, len(list))
	for _, s := range list {
		out[s.TargetRef] = s.Kind()
	}
	return out, nil
}
