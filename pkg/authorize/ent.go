package authorize

import (
	"context"
	"log/slog"
	"sync/atomic"

	psqlwatcher "github.com/IguteChung/casbin-psql-watcher"
	casbin "github.com/casbin/casbin/v2"
	fileadapter "github.com/casbin/casbin/v2/persist/file-adapter"
	entadapter "github.com/casbin/ent-adapter"
)

// policyLoadHealthy is false while the last watcher-triggered reload failed.
var policyLoadHealthy atomic.Bool

func init() {
	policyLoadHealthy.Store(true)
}

// IsPolicyHealthy reports whether the last policy reload succeeded.
func IsPolicyHealthy() bool {
	return policyLoadHealthy.Load()
}

// CleanupFunc releases enforcer resources on shutdown.
type CleanupFunc func(ctx context.Context)

// NewEnforcer creates a DistributedEnforcer backed by the casbin_rule table.
// With sync enabled a postgres LISTEN/NOTIFY watcher reloads policy on every
// instance after a change.
func NewEnforcer(cfg Config, dsn string) (*casbin.DistributedEnforcer, CleanupFunc, error) {
	a, err := entadapter.NewAdapter("postgres", dsn)
	if err != nil {
		return nil, nil, err
	}

	e, err := casbin.NewDistributedEnforcer(cfg.CasbinModelPath, a)
	if err != nil {
		return nil, nil, err
	}
	e.EnableAutoSave(true)
	e.EnableEnforce(true)

	if !cfg.PolicySyncEnabled {
		return e, func(context.Context) {}, nil
	}

	w, err := psqlwatcher.NewWatcherWithConnString(context.Background(), dsn, psqlwatcher.Option{
		Channel: "casbin_policy_update",
	})
	if err != nil {
		return nil, nil, err
	}

	err = w.SetUpdateCallback(func(msg string) {
		slog.Debug("authorize: policy update received", "message", msg)
		if err := e.LoadPolicy(); err != nil {
			slog.Error("authorize: policy reload failed", "error", err)
			policyLoadHealthy.Store(false)
			return
		}
		policyLoadHealthy.Store(true)
	})
	if err != nil {
		return nil, nil, err
	}

	if err := e.SetWatcher(w); err != nil {
		return nil, nil, err
	}

	cleanup := func(ctx context.Context) {
		w.Close()
		e.StopAutoLoadPolicy()
		slog.Info("authorize: enforcer stopped")
	}

	return e, cleanup, nil
}

// NewFileEnforcer creates an enforcer whose policy lives in a CSV file. Used
// by single-node deployments and tests. The file adapter cannot save single
// rules, so changes stay in memory until SavePolicy is called.
func NewFileEnforcer(cfg Config) (*casbin.DistributedEnforcer, error) {
	e, err := casbin.NewDistributedEnforcer(cfg.CasbinModelPath, fileadapter.NewAdapter(cfg.PolicyPath))
	if err != nil {
		return nil, err
	}
	e.EnableAutoSave(false)
	e.EnableEnforce(true)
	return e, nil
}
