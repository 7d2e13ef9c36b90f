package goMFA

import (
	"time"

	"github.com/MrEthical07/goMFA/internal/limiters"
	"github.com/MrEthical07/goMFA/method"
	"github.com/MrEthical07/goMFA/notify"
	"github.com/MrEthical07/goMFA/records"
	"github.com/MrEthical07/goMFA/registry"
	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/MrEthical07/goMFA"

// Builder assembles an [Engine].
//
// Builder instances are intended to be configured during initialization and then discarded after Build.
type Builder struct {
	config    Config
	catalogue registry.Catalogue
	methods   []method.Method
	records   records.Repository
	redis     redis.UniversalClient
	logger    *zap.Logger
	handlers  []notify.Handler
	tracer    trace.TracerProvider
	now       func() time.Time

	built bool
}

// New returns a builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the builder's config with a copy of cfg.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithCatalogue sets the constructors Config.Methods names resolve through.
func (b *Builder) WithCatalogue(cat registry.Catalogue) *Builder {
	b.catalogue = cat
	return b
}

// WithMethods adds method instances after those named in Config.Methods.
func (b *Builder) WithMethods(methods ...method.Method) *Builder {
	b.methods = append(b.methods, methods...)
	return b
}

// WithRepository sets where registered methods are stored. Required.
func (b *Builder) WithRepository(repo records.Repository) *Builder {
	b.records = repo
	return b
}

// WithRedis enables the verification lockout. Without a client failed
// attempts are not limited.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithNotificationHandlers sets the handlers notification events fan out to.
func (b *Builder) WithNotificationHandlers(handlers ...notify.Handler) *Builder {
	b.handlers = append(b.handlers, handlers...)
	return b
}

// WithTracerProvider overrides the global OpenTelemetry tracer provider.
func (b *Builder) WithTracerProvider(tp trace.TracerProvider) *Builder {
	b.tracer = tp
	return b
}

// WithClock overrides time.Now for grace periods and record timestamps.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration, resolves the method registry and
// starts the notification dispatcher. A Builder can be used once.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.records == nil {
		return nil, configError("records repository required", "call WithRepository with records.NewMemory(), records.NewRedis or records.NewGorm")
	}

	// -------- METHOD REGISTRY --------
	var methods []method.Method
	if len(cfg.Methods) > 0 {
		resolved, err := registry.Resolve(cfg.Methods, b.catalogue)
		if err != nil {
			return nil, err
		}
		methods = append(methods, resolved...)
	}
	methods = append(methods, b.methods...)
	if len(methods) == 0 {
		return nil, configError("at least one method must be configured", "set Config.Methods or call WithMethods")
	}
	reg, err := registry.New(methods...)
	if err != nil {
		return nil, err
	}
	if backup := cfg.Policy.BackupMethod; backup != "" {
		if _, ok := reg.ByURLSegment(backup); !ok {
			return nil, configError("Policy BackupMethod "+backup+" is not a configured method", "add the backup method to Config.Methods")
		}
		if reg.Len() < 2 {
			return nil, configError("a backup method needs at least one other method", "configure a primary method next to the backup method")
		}
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	tp := b.tracer
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	now := b.now
	if now == nil {
		now = time.Now
	}

	engine := &Engine{
		config:   cfg,
		registry: reg,
		records:  b.records,
		limiter: limiters.NewVerificationLimiter(b.redis, limiters.VerificationConfig{
			MaxAttempts: cfg.Verification.MaxAttempts,
			Cooldown:    cfg.Verification.Cooldown,
		}),
		notifier: notify.NewDispatcher(notify.Config{
			Enabled:    cfg.Notifications.Enabled && len(b.handlers) > 0,
			BufferSize: cfg.Notifications.BufferSize,
			DropIfFull: cfg.Notifications.DropIfFull,
		}, logger, b.handlers...),
		metrics: NewMetrics(cfg.Metrics),
		logger:  logger,
		tracer:  tp.Tracer(tracerName),
		now:     now,
	}

	b.built = true

	return engine, nil
}
