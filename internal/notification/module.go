// Package notification wires the delivery pipeline: the outbox, rate limits,
// channel providers and the dispatcher that ties them to the lead lifecycle.
// It is not HTTP-facing; receipts arrive through the leads admin routes.
package notification

import (
	"crypto/tls"
	"fmt"

	"github.com/syed-c/standzon-sub008/internal/builders"
	"github.com/syed-c/standzon-sub008/internal/notification/dispatch"
	"github.com/syed-c/standzon-sub008/internal/notification/outbox"
	"github.com/syed-c/standzon-sub008/internal/notification/provider"
	"github.com/syed-c/standzon-sub008/internal/notification/ratelimit"
	"github.com/syed-c/standzon-sub008/platform/config"
	"github.com/syed-c/standzon-sub008/platform/logger"

	"github.com/redis/go-redis/v9"
)

// ModuleConfig combines the config interfaces the notification module reads.
type ModuleConfig interface {
	config.DispatchConfig
	config.EmailConfig
	config.SMSConfig
	config.SchedulerConfig
}

// Deps are the collaborators owned by other modules. Enqueuer and Observer
// may be nil.
type Deps struct {
	Jobs      outbox.Store
	Leads     dispatch.LeadStore
	Directory builders.Reader
	Tracker   dispatch.Transitioner
	Enqueuer  dispatch.Enqueuer
	Observer  dispatch.Observer
	Config    ModuleConfig
	Log       *logger.Logger
}

// Module owns the dispatcher and the Redis connection of the rate limiter.
type Module struct {
	dispatcher *dispatch.Dispatcher
	redis      *redis.Client
}

// New builds the module. Without REDIS_URL the rate limiter is per-process;
// channels without a configured provider log instead of sending.
func New(d Deps) (*Module, error) {
	log := d.Log
	if log == nil {
		log = logger.Discard()
	}

	sender, err := buildSender(d.Config, log)
	if err != nil {
		return nil, err
	}

	m := &Module{}
	var limiter ratelimit.Limiter = ratelimit.NewMemory()
	if url := d.Config.GetRedisURL(); url != "" {
		client, err := newRedisClient(url, d.Config.GetRedisTLSInsecure())
		if err != nil {
			return nil, err
		}
		m.redis = client
		limiter = ratelimit.NewRedis(client)
	} else {
		log.Warn("REDIS_URL not configured; notification rate limits are per process")
	}

	opts := []dispatch.Option{dispatch.WithPolicy(dispatch.PolicyFromConfig(d.Config))}
	if d.Enqueuer != nil {
		opts = append(opts, dispatch.WithEnqueuer(d.Enqueuer))
	}
	if d.Observer != nil {
		opts = append(opts, dispatch.WithObserver(d.Observer))
	}
	m.dispatcher = dispatch.New(d.Jobs, d.Leads, d.Directory, limiter, sender, d.Tracker, log, opts...)
	return m, nil
}

// Dispatcher returns the job dispatcher.
func (m *Module) Dispatcher() *dispatch.Dispatcher {
	return m.dispatcher
}

// Close releases the rate limiter's Redis connection.
func (m *Module) Close() error {
	if m == nil || m.redis == nil {
		return nil
	}
	return m.redis.Close()
}

func buildSender(cfg ModuleConfig, log *logger.Logger) (*provider.Router, error) {
	router := provider.NewRouter()
	fallback := provider.NewLogSender(log)

	if cfg.GetEmailEnabled() {
		email, err := provider.NewEmailSender(cfg)
		if err != nil {
			return nil, fmt.Errorf("email provider: %w", err)
		}
		router.Register(builders.ChannelEmail, email)
	} else {
		log.Warn("email disabled; email notifications are logged only")
		router.Register(builders.ChannelEmail, fallback)
	}

	if sms := provider.NewSMSSender(cfg, log); sms != nil {
		router.Register(builders.ChannelSMS, sms)
	} else {
		log.Warn("SMS_GATEWAY_URL not configured; sms notifications are logged only")
		router.Register(builders.ChannelSMS, fallback)
	}
	return router, nil
}

func newRedisClient(url string, tlsInsecure bool) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if tlsInsecure {
		if opt.TLSConfig == nil {
			opt.TLSConfig = &tls.Config{}
		}
		opt.TLSConfig.InsecureSkipVerify = true
	}
	return redis.NewClient(opt), nil
}
