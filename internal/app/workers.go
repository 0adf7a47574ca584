package app

import (
	"context"
	"log/slog"
	"time"

	"go.uber.org/fx"

	"github.com/Alijeyrad/tabib_backend/internal/feed"
	"github.com/Alijeyrad/tabib_backend/internal/repo"
	"github.com/Alijeyrad/tabib_backend/pkg/observability"
)

const projectorPatchTimeout = 5 * time.Second

// WorkerModule keeps the projection cache in step with the change feed.
var WorkerModule = fx.Module("workers",
	fx.Provide(ProvideProjector),
	fx.Invoke(RegisterProjector),
)

func ProvideProjector(store repo.Store, log *slog.Logger, metrics *observability.ClinicMetrics) *feed.Projector {
	return feed.NewProjector(store, log, metrics)
}

type projectorParams struct {
	fx.In

	Lc        fx.Lifecycle
	Bus       feed.Bus
	Projector *feed.Projector
	Log       *slog.Logger
}

// RegisterProjector subscribes before warming so no change committed during
// the initial fetch is missed. Until the warm-up succeeds the HTTP list
// endpoints fall back to the store.
func RegisterProjector(p projectorParams) {
	var unsubscribe func()
	p.Lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			unsub, err := p.Bus.Subscribe(p.Projector.Handler(projectorPatchTimeout))
			if err != nil {
				return err
			}
			unsubscribe = unsub

			go func() {
				wctx, cancel := context.WithTimeout(context.Background(), time.Minute)
				defer cancel()
				if err := p.Projector.Warm(wctx); err != nil {
					p.Log.Error("projector: warm failed", "error", err)
					return
				}
				p.Log.Info("projector: warm")
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if unsubscribe != nil {
				unsubscribe()
			}
			return nil
		},
	})
}
