package errorreport

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/smallbiznis/backoffice/internal/config"
	"github.com/smallbiznis/backoffice/pkg/telemetry/correlation"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const flushTimeout = 2 * time.Second

type Options struct {
	DSN         string
	Environment string
	Release     string
	SampleRate  float64
	BeforeSend  func(*sentry.Event, *sentry.EventHint) *sentry.Event
}

// Reporter forwards failures nobody is waiting on, such as a broken sweep,
// to sentry. A nil or disabled Reporter drops everything.
type Reporter struct {
	hub *sentry.Hub
	log *zap.Logger
}

func NewReporter(opts Options, log *zap.Logger) (*Reporter, error) {
	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:         opts.DSN,
		Environment: opts.Environment,
		Release:     opts.Release,
		SampleRate:  opts.SampleRate,
		BeforeSend:  opts.BeforeSend,
	})
	if err != nil {
		return nil, err
	}
	return &Reporter{
		hub: sentry.NewHub(client, sentry.NewScope()),
		log: log.Named("errorreport"),
	}, nil
}

// New builds the process reporter. Without SENTRY_DSN it is disabled. When
// enabled the client is also bound to the global hub so request middleware
// reports through it.
func New(cfg config.Config, log *zap.Logger) (*Reporter, error) {
	if cfg.SentryDSN == "" {
		log.Info("error reporting disabled, SENTRY_DSN not set")
		return &Reporter{log: log.Named("errorreport")}, nil
	}

	r, err := NewReporter(Options{
		DSN:         cfg.SentryDSN,
		Environment: cfg.Environment,
		Release:     cfg.AppName + "@" + cfg.AppVersion,
		SampleRate:  cfg.SentrySampleRate,
	}, log)
	if err != nil {
		return nil, err
	}
	sentry.CurrentHub().BindClient(r.hub.Client())
	r.log.Info("error reporting enabled", zap.String("environment", cfg.Environment))
	return r, nil
}

func (r *Reporter) Enabled() bool {
	return r != nil && r.hub != nil
}

// Capture reports err with tags. The correlation id of ctx, if any, is
// attached so the event can be matched to its logs.
func (r *Reporter) Capture(ctx context.Context, err error, tags map[string]string) {
	if !r.Enabled() || err == nil {
		return
	}
	r.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		if id := correlation.ExtractCorrelationID(ctx); id != "" {
			scope.SetTag("correlation_id", id)
		}
		r.hub.CaptureException(err)
	})
}

func (r *Reporter) Flush() bool {
	if !r.Enabled() {
		return true
	}
	return r.hub.Flush(flushTimeout)
}

func RegisterHooks(lc fx.Lifecycle, r *Reporter) {
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			if !r.Flush() {
				r.log.Warn("error report flush timed out")
			}
			return nil
		},
	})
}
