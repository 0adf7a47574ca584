package router

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"

	"github.com/Alijeyrad/tabib_backend/config"
	"github.com/Alijeyrad/tabib_backend/internal/api/http/handler"
	"github.com/Alijeyrad/tabib_backend/internal/api/http/middleware"
	"github.com/Alijeyrad/tabib_backend/internal/feed"
	"github.com/Alijeyrad/tabib_backend/internal/service/assistant"
	"github.com/Alijeyrad/tabib_backend/internal/service/auth"
	"github.com/Alijeyrad/tabib_backend/internal/service/cashier"
	"github.com/Alijeyrad/tabib_backend/internal/service/consult"
	"github.com/Alijeyrad/tabib_backend/internal/service/file"
	"github.com/Alijeyrad/tabib_backend/internal/service/lab"
	"github.com/Alijeyrad/tabib_backend/internal/service/patient"
	"github.com/Alijeyrad/tabib_backend/internal/service/prescription"
	"github.com/Alijeyrad/tabib_backend/internal/service/staff"
	"github.com/Alijeyrad/tabib_backend/internal/service/visit"
	"github.com/Alijeyrad/tabib_backend/pkg/authorize"
)

// Module provides the Router to the fx graph.
var Module = fx.Module("router", fx.Provide(NewRouter))

type Params struct {
	fx.In

	Cfg       *config.Config
	Log       *slog.Logger
	Location  *time.Location
	Auth      authorize.IAuthorization
	Bus       feed.Bus
	Projector *feed.Projector

	AuthSvc         auth.Service
	StaffSvc        staff.Service
	PatientSvc      patient.Service
	VisitSvc        visit.Service
	CashierSvc      cashier.Service
	LabSvc          lab.Service
	ConsultSvc      consult.Service
	PrescriptionSvc prescription.Service
	AssistantSvc    assistant.Service
	FileSvc         file.Service
}

type Router struct {
	p     Params
	feedH *handler.FeedHandler
}

func NewRouter(p Params) *Router {
	return &Router{p: p, feedH: handler.NewFeedHandler(p.Bus, p.Log)}
}

// Close ends the open change streams so a graceful shutdown does not wait on
// them.
func (r *Router) Close() {
	r.feedH.Close()
}

func (r *Router) Register(app *fiber.App) {
	// 1. Health & Metrics
	r.registerSystemRoutes(app)

	// 2. Initialize Middlewares
	authRequired := middleware.AuthRequired(r.p.AuthSvc)

	// Permission helper
	requirePerm := func(res authorize.Resource, act authorize.Action) fiber.Handler {
		return middleware.RequirePermission(r.p.Auth, res, act)
	}

	// 3. Initialize Handlers
	authH := handler.NewAuthHandler(r.p.AuthSvc)
	staffH := handler.NewStaffHandler(r.p.StaffSvc)
	patientH := handler.NewPatientHandler(r.p.PatientSvc, r.p.VisitSvc, r.p.PrescriptionSvc)
	visitH := handler.NewVisitHandler(r.p.VisitSvc, r.p.PrescriptionSvc, r.p.Projector, r.p.Cfg.Clinic.DefaultVisitFee)
	cashierH := handler.NewCashierHandler(r.p.CashierSvc, r.p.Projector, r.p.Location)
	labH := handler.NewLabHandler(r.p.LabSvc, r.p.Projector)
	consultH := handler.NewConsultHandler(r.p.ConsultSvc, r.p.Projector)
	prescriptionH := handler.NewPrescriptionHandler(r.p.PrescriptionSvc)
	assistantH := handler.NewAssistantHandler(r.p.AssistantSvc, r.p.PatientSvc)
	fileH := handler.NewFileHandler(r.p.FileSvc)

	api := app.Group("/api/v1")

	// 4. Delegate to sub-files
	r.registerAuthRoutes(api, authH, authRequired)
	r.registerStaffRoutes(api, staffH, authRequired, requirePerm)
	r.registerPatientRoutes(api, patientH, authRequired, requirePerm)
	r.registerVisitRoutes(api, visitH, labH, authRequired, requirePerm)
	r.registerCashierRoutes(api, cashierH, authRequired, requirePerm)
	r.registerLabRoutes(api, labH, authRequired, requirePerm)
	r.registerConsultRoutes(api, consultH, authRequired, requirePerm)
	r.registerPrescriptionRoutes(api, prescriptionH, authRequired, requirePerm)
	r.registerAssistantRoutes(api, assistantH, authRequired, requirePerm)
	r.registerFileRoutes(api, fileH, authRequired, requirePerm)
	r.registerFeedRoutes(api, r.feedH, authRequired, requirePerm)
}

func (r *Router) registerSystemRoutes(app *fiber.App) {
	app.Get(healthcheck.LivenessEndpoint, healthcheck.New())
	app.Get(healthcheck.ReadinessEndpoint, healthcheck.New(healthcheck.Config{
		Probe: func(c fiber.Ctx) bool { return authorize.IsPolicyHealthy() },
	}))
	app.Get(healthcheck.StartupEndpoint, healthcheck.New(healthcheck.Config{
		Probe: func(c fiber.Ctx) bool { return r.p.Projector.Warmed() },
	}))

	if r.p.Cfg.Observability.Enabled && r.p.Cfg.Observability.Metrics.Enabled {
		app.Get(r.p.Cfg.Observability.Metrics.Endpoint(), adaptor.HTTPHandler(promhttp.Handler()))
	}
}
