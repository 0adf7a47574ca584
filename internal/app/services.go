package app

import (
	"log/slog"
	"time"

	"go.uber.org/fx"

	"github.com/Alijeyrad/tabib_backend/config"
	"github.com/Alijeyrad/tabib_backend/internal/feed"
	"github.com/Alijeyrad/tabib_backend/internal/queue"
	"github.com/Alijeyrad/tabib_backend/internal/repo"
	"github.com/Alijeyrad/tabib_backend/internal/service/assistant"
	"github.com/Alijeyrad/tabib_backend/internal/service/auth"
	"github.com/Alijeyrad/tabib_backend/internal/service/cashier"
	"github.com/Alijeyrad/tabib_backend/internal/service/consult"
	svcfile "github.com/Alijeyrad/tabib_backend/internal/service/file"
	"github.com/Alijeyrad/tabib_backend/internal/service/lab"
	"github.com/Alijeyrad/tabib_backend/internal/service/patient"
	"github.com/Alijeyrad/tabib_backend/internal/service/prescription"
	"github.com/Alijeyrad/tabib_backend/internal/service/staff"
	"github.com/Alijeyrad/tabib_backend/internal/service/visit"
	"github.com/Alijeyrad/tabib_backend/pkg/ai"
	"github.com/Alijeyrad/tabib_backend/pkg/authorize"
	"github.com/Alijeyrad/tabib_backend/pkg/crypto"
	"github.com/Alijeyrad/tabib_backend/pkg/observability"
	pasetotoken "github.com/Alijeyrad/tabib_backend/pkg/paseto"
	redispkg "github.com/Alijeyrad/tabib_backend/pkg/redis"
	"github.com/Alijeyrad/tabib_backend/pkg/util/clock"
	"github.com/Alijeyrad/tabib_backend/pkg/util/password"
)

// ServiceModule provides all application service dependencies.
var ServiceModule = fx.Module("services",
	fx.Provide(
		ProvideFileService,
		ProvideAssistantService,
		ProvidePatientService,
		ProvideVisitService,
		ProvideCashierService,
		ProvideLabService,
		ProvideConsultService,
		ProvidePrescriptionService,
		ProvideAuthService,
		ProvideStaffService,
	),
)

func ProvideFileService(objects svcfile.ObjectStore, log *slog.Logger, metrics *observability.ClinicMetrics) svcfile.Service {
	return svcfile.New(objects, log, metrics)
}

func ProvideAssistantService(client *ai.Client, log *slog.Logger) assistant.Service {
	return assistant.New(client, log)
}

func ProvidePatientService(
	store repo.Store,
	cipher *crypto.FieldCipher,
	cfg *config.Config,
	pub feed.Publisher,
	clk clock.Clock,
	log *slog.Logger,
) patient.Service {
	return patient.New(store, cipher, cfg.Clinic.PhoneRegion, pub, clk, log)
}

type visitParams struct {
	fx.In

	Store    repo.Store
	Counter  queue.Counter
	Files    svcfile.Service
	Feed     feed.Publisher
	Clock    clock.Clock
	Location *time.Location
	Metrics  *observability.ClinicMetrics
	Log      *slog.Logger
}

func ProvideVisitService(p visitParams) visit.Service {
	return visit.New(visit.Deps{
		Store:    p.Store,
		Counter:  p.Counter,
		Files:    p.Files,
		Feed:     p.Feed,
		Clock:    p.Clock,
		Location: p.Location,
		Metrics:  p.Metrics,
		Log:      p.Log,
	})
}

func ProvideCashierService(
	store repo.Store,
	pub feed.Publisher,
	clk clock.Clock,
	loc *time.Location,
	metrics *observability.ClinicMetrics,
	log *slog.Logger,
) cashier.Service {
	return cashier.New(store, pub, clk, loc, metrics, log)
}

func ProvideLabService(
	store repo.Store,
	files svcfile.Service,
	pub feed.Publisher,
	clk clock.Clock,
	cfg *config.Config,
	metrics *observability.ClinicMetrics,
	log *slog.Logger,
) lab.Service {
	return lab.New(lab.Deps{
		Store:        store,
		Files:        files,
		Feed:         pub,
		Clock:        clk,
		ArchiveLimit: cfg.Clinic.ArchiveLimit,
		Metrics:      metrics,
		Log:          log,
	})
}

type consultParams struct {
	fx.In

	Store     repo.Store
	Counter   queue.Counter
	Assistant assistant.Service
	Feed      feed.Publisher
	Clock     clock.Clock
	Location  *time.Location
	Metrics   *observability.ClinicMetrics
	Log       *slog.Logger
}

func ProvideConsultService(p consultParams) consult.Service {
	return consult.New(consult.Deps{
		Store:     p.Store,
		Counter:   p.Counter,
		Assistant: p.Assistant,
		Feed:      p.Feed,
		Clock:     p.Clock,
		Location:  p.Location,
		Metrics:   p.Metrics,
		Log:       p.Log,
	})
}

func ProvidePrescriptionService(store repo.Store, clk clock.Clock, log *slog.Logger) prescription.Service {
	return prescription.New(store, clk, log)
}

func ProvideAuthService(
	store repo.Store,
	tokens *pasetotoken.Manager,
	sessions *redispkg.Sessions,
	attempts *redispkg.Attempts,
	hasher *password.Hasher,
	log *slog.Logger,
) auth.Service {
	return auth.New(auth.Deps{
		Store:    store,
		Tokens:   tokens,
		Sessions: sessions,
		Attempts: attempts,
		Hasher:   hasher,
		Log:      log,
	})
}

func ProvideStaffService(store repo.Store, authz authorize.IAuthorization, hasher *password.Hasher, log *slog.Logger) staff.Service {
	return staff.New(store, authz, hasher, log)
}
