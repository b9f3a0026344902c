package server

import (
	"context"
	"net/http"
	"time"

	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/backoffice/internal/audit"
	auditdomain "github.com/smallbiznis/backoffice/internal/audit/domain"
	"github.com/smallbiznis/backoffice/internal/catchup"
	catchupdomain "github.com/smallbiznis/backoffice/internal/catchup/domain"
	"github.com/smallbiznis/backoffice/internal/config"
	"github.com/smallbiznis/backoffice/internal/instance"
	instancedomain "github.com/smallbiznis/backoffice/internal/instance/domain"
	obslogger "github.com/smallbiznis/backoffice/internal/logger"
	obstracing "github.com/smallbiznis/backoffice/internal/observability/tracing"
	"github.com/smallbiznis/backoffice/internal/payment"
	paymentdomain "github.com/smallbiznis/backoffice/internal/payment/domain"
	"github.com/smallbiznis/backoffice/internal/providers/pdf"
	"github.com/smallbiznis/backoffice/internal/schedule"
	scheduledomain "github.com/smallbiznis/backoffice/internal/schedule/domain"
	"github.com/smallbiznis/backoffice/internal/scheduler"
	"github.com/smallbiznis/backoffice/internal/sequence"
	sequencedomain "github.com/smallbiznis/backoffice/internal/sequence/domain"
	"github.com/smallbiznis/backoffice/pkg/telemetry/correlation"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	sequence.Module,
	audit.Module,
	pdf.Module,
	instance.Module,
	catchup.Module,
	schedule.Module,
	payment.Module,
	scheduler.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(cfg config.Config, log *zap.Logger) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.SentryDSN != "" {
		r.Use(sentrygin.New(sentrygin.Options{
			Repanic: true,
			Timeout: 2 * time.Second,
		}))
	}
	r.Use(correlation.Middleware())
	r.Use(obstracing.GinMiddleware())
	r.Use(obslogger.GinMiddleware(log))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(cfg config.Config, log *zap.Logger) *gin.Engine {
	return NewEngine(cfg, log)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine      *gin.Engine
	cfg         config.Config
	sequence    sequencedomain.Allocator
	auditSvc    auditdomain.Service
	instanceSvc instancedomain.Service
	scheduleSvc scheduledomain.Service
	catchUp     catchupdomain.Generator
	paymentSvc  paymentdomain.Service
	scheduler   *scheduler.Scheduler
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Cfg         config.Config
	Sequence    sequencedomain.Allocator
	AuditSvc    auditdomain.Service
	InstanceSvc instancedomain.Service
	ScheduleSvc scheduledomain.Service
	CatchUp     catchupdomain.Generator
	PaymentSvc  paymentdomain.Service
	Scheduler   *scheduler.Scheduler `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:      p.Gin,
		cfg:         p.Cfg,
		sequence:    p.Sequence,
		auditSvc:    p.AuditSvc,
		instanceSvc: p.InstanceSvc,
		scheduleSvc: p.ScheduleSvc,
		catchUp:     p.CatchUp,
		paymentSvc:  p.PaymentSvc,
		scheduler:   p.Scheduler,
	}

	svc.registerAPIRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/v1")

	api.POST("/instances", s.CreateOneOffInstance)
	api.GET("/instances", s.ListInstances)
	api.GET("/instances/:id", s.GetInstance)
	api.POST("/instances/:id/payments", s.ApplyPayment)
	api.GET("/instances/:id/payments", s.ListPayments)

	api.PUT("/payments/:id", s.EditLatestPayment)

	api.POST("/schedules", s.CreateSchedule)
	api.GET("/schedules", s.ListSchedules)
	api.GET("/schedules/:id", s.GetSchedule)
	api.POST("/schedules/:id/supersede", s.SupersedeSchedule)
	api.POST("/schedules/:id/catch-up", s.RunCatchUp)

	api.POST("/sweeps", s.RunSweep)

	api.POST("/document-ids", s.ReserveDocumentID)
	api.GET("/document-ids/next", s.PeekDocumentID)
	api.GET("/document-ids/lookup", s.LookupDocumentID)

	api.GET("/audit-logs", s.ListAuditLogs)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, errorResponse{Error: errorPayload{Type: "not_found", Message: "route not found"}})
	})
}
