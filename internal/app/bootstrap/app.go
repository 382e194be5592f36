package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/clinic-booking-agent/internal/adminbot"
	"github.com/wolfman30/clinic-booking-agent/internal/api/router"
	"github.com/wolfman30/clinic-booking-agent/internal/appointments"
	"github.com/wolfman30/clinic-booking-agent/internal/availability"
	"github.com/wolfman30/clinic-booking-agent/internal/booking"
	"github.com/wolfman30/clinic-booking-agent/internal/calendar"
	appconfig "github.com/wolfman30/clinic-booking-agent/internal/config"
	"github.com/wolfman30/clinic-booking-agent/internal/conversation"
	"github.com/wolfman30/clinic-booking-agent/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/clinic-booking-agent/internal/http/middleware"
	"github.com/wolfman30/clinic-booking-agent/internal/intake"
	"github.com/wolfman30/clinic-booking-agent/internal/messaging"
	"github.com/wolfman30/clinic-booking-agent/internal/notify"
	"github.com/wolfman30/clinic-booking-agent/internal/observability/metrics"
	"github.com/wolfman30/clinic-booking-agent/internal/reminders"
	"github.com/wolfman30/clinic-booking-agent/internal/support"
	"github.com/wolfman30/clinic-booking-agent/pkg/logging"
)

const rateLimitSweepInterval = time.Minute

// Deps lets callers inject collaborators. Anything left nil is built from
// the config.
type Deps struct {
	AWS      *aws.Config
	Stores   *Stores
	Sender   messaging.Sender
	LLM      conversation.LLMClient
	Model    string
	Calendar calendar.Client
	Email    notify.EmailSender
	// Queue and Jobs travel together: when Queue is set, Jobs is used as
	// given and may be nil.
	Queue    conversation.Queue
	Jobs     conversation.JobTracker
	Redis    *redis.Client
	Registry *prometheus.Registry
}

// App is the wired runtime shared by the API server and the worker binary.
type App struct {
	Config      *appconfig.Config
	Logger      *logging.Logger
	Registry    *prometheus.Registry
	Metrics     *metrics.Metrics
	Stores      *Stores
	Sender      messaging.Sender
	Lifecycle   *appointments.Service
	Escalations *support.EscalationService
	Agent       *conversation.Agent
	Publisher   *conversation.Publisher
	Jobs        conversation.JobTracker
	Worker      *conversation.Worker
	Sweeper     *reminders.Sweeper
	Bot         *adminbot.Bot
	Gate        *intake.Gate
	Webhook     *handlers.EvolutionWebhookHandler
	RateLimiter *httpmiddleware.RateLimiter

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	workers bool
	closers []func()
}

// Build wires every component. It fails only on configuration errors; optional
// collaborators (Redis, email, Google Calendar) degrade with a warning.
func Build(ctx context.Context, cfg *appconfig.Config, deps Deps, logger *logging.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	app := &App{Config: cfg, Logger: logger}
	loc := cfg.Location()

	app.Registry = deps.Registry
	if app.Registry == nil {
		app.Registry = prometheus.NewRegistry()
		app.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	app.Metrics = metrics.New(app.Registry)

	stores, err := app.buildStores(ctx, deps.Stores)
	if err != nil {
		return nil, err
	}
	app.Stores = stores

	app.Sender = deps.Sender
	if app.Sender == nil {
		sender, err := BuildSender(cfg, logger)
		if err != nil {
			return nil, err
		}
		app.Sender = sender
	}

	llm, model := deps.LLM, deps.Model
	if llm == nil {
		llm, model, err = BuildLLMClient(ctx, cfg, deps.AWS, logger)
		if err != nil {
			return nil, err
		}
	}

	cal := deps.Calendar
	if cal == nil {
		if cal, err = BuildCalendar(ctx, cfg, logger); err != nil {
			return nil, err
		}
	}
	cal = calendar.NewInstrumentedClient(cal, app.Metrics)

	queue, jobs := deps.Queue, deps.Jobs
	if queue == nil {
		if queue, jobs, err = BuildTurnQueue(cfg, deps.AWS); err != nil {
			return nil, err
		}
	}
	app.Jobs = jobs
	app.workers = cfg.UseMemoryQueue

	email := deps.Email
	if email == nil {
		email = BuildEmailSender(cfg, deps.AWS, logger)
	}
	notifier := notify.NewService(app.Sender, email, notify.Config{
		AttendantAddress: cfg.AttendantAddress,
		AttendantEmail:   cfg.AttendantEmail,
		ClinicName:       cfg.ClinicName,
		Location:         loc,
	}, logger)

	app.Escalations = support.NewEscalationService(stores.Escalations, stores.Conversations, notifier, logger)
	app.Lifecycle = appointments.NewService(stores.Appointments, stores.Catalog, stores.Patients, cal, logger)
	engine := availability.NewEngine(stores.Catalog, cal, loc, logger)
	tools := booking.NewService(booking.Dependencies{
		Catalog:       stores.Catalog,
		Patients:      stores.Patients,
		Appointments:  stores.Appointments,
		Lifecycle:     app.Lifecycle,
		Availability:  engine,
		FAQ:           stores.FAQ,
		Escalations:   app.Escalations,
		Conversations: stores.Conversations,
		Location:      loc,
		Logger:        logger,
	})

	temperature := float32(cfg.LLMTemperature)
	app.Agent = conversation.NewAgent(stores.Conversations, stores.Patients, llm, tools, conversation.AgentConfig{
		Clinic: conversation.ClinicProfile{
			Name:    cfg.ClinicName,
			BotName: cfg.BotName,
			Phone:   cfg.ClinicPhone,
			Address: cfg.ClinicAddress,
		},
		Model:         model,
		MaxRounds:     cfg.LLMMaxRounds,
		LLMTimeout:    cfg.LLMTimeout,
		Location:      loc,
		HistoryWindow: cfg.LLMHistoryWindow,
		MaxTokens:     int32(cfg.LLMMaxTokens),
		Temperature:   &temperature,
	}, logger, conversation.WithAgentMetrics(app.Metrics))

	var recorder conversation.JobRecorder
	var updater conversation.JobUpdater
	if jobs != nil {
		recorder, updater = jobs, jobs
	}
	app.Publisher = conversation.NewPublisher(queue, recorder, logger)
	app.Worker = conversation.NewWorker(app.Agent, queue, updater, app.Sender, logger,
		conversation.WithWorkerCount(cfg.WorkerCount),
		conversation.WithWorkerMetrics(app.Metrics),
	)

	app.Sweeper = reminders.NewSweeper(app.Lifecycle, stores.Appointments, stores.Patients, stores.Catalog, app.Sender,
		reminders.Clinic{Name: cfg.ClinicName, Phone: cfg.ClinicPhone, Address: cfg.ClinicAddress},
		loc, logger, reminders.WithMetrics(app.Metrics))

	app.Bot = adminbot.New(stores.Appointments, stores.Catalog, stores.Patients, app.Escalations, stores.Conversations, loc, logger)

	redisClient := deps.Redis
	if redisClient == nil {
		redisClient = BuildRedisClient(ctx, cfg, logger, true)
		if redisClient != nil {
			app.closers = append(app.closers, func() { _ = redisClient.Close() })
		}
	}
	var primary intake.Deduper
	if redisClient != nil {
		primary = intake.NewRedisDeduper(redisClient, cfg.DedupeTTL)
	}
	app.Gate = intake.NewGate(
		intake.NewFallbackDeduper(primary, cfg.DedupeTTL, logger),
		app.Sender,
		stores.Conversations,
		app.Bot,
		app.Publisher,
		intake.Config{OperatorAddress: cfg.AttendantAddress, DebounceWindow: cfg.DebounceWindow},
		app.Metrics,
		logger,
	)
	app.Webhook = handlers.NewEvolutionWebhookHandler(app.Gate, cfg.GatewayTimeout, logger)
	app.RateLimiter = httpmiddleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)

	logger.Info("runtime wired",
		"model", model,
		"memory_queue", cfg.UseMemoryQueue,
		"jobs_tracked", jobs != nil,
		"redis", redisClient != nil,
		"email", email != nil,
	)
	return app, nil
}

func (a *App) buildStores(ctx context.Context, injected *Stores) (*Stores, error) {
	if injected != nil {
		return injected, nil
	}
	pool, err := ConnectPostgres(ctx, a.Config.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if pool == nil {
		a.Logger.Warn("DATABASE_URL not set; using in-memory stores")
		return NewMemoryStores(), nil
	}
	db, err := OpenSQL(a.Config.DatabaseURL)
	if err != nil {
		pool.Close()
		return nil, err
	}
	a.closers = append(a.closers, pool.Close, func() { _ = db.Close() })
	return NewPostgresStores(pool, db), nil
}

// Handler returns the HTTP surface.
func (a *App) Handler() http.Handler {
	cfg := &router.Config{
		Logger:         a.Logger,
		Webhook:        a.Webhook,
		WebhookToken:   a.Config.EvolutionWebhookToken,
		RateLimiter:    a.RateLimiter,
		AdminSecret:    a.Config.AdminJWTSecret,
		Escalations:    handlers.NewAdminEscalationsHandler(a.Escalations, a.Logger),
		Reminders:      handlers.NewAdminRemindersHandler(a.Sweeper, a.Logger),
		MetricsHandler: promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{}),
	}
	if a.Jobs != nil {
		cfg.Jobs = conversation.NewJobHandler(a.Jobs, a.Logger)
	}
	return router.New(cfg)
}

// Components selects the background loops Start runs.
type Components struct {
	Workers   bool
	Reminders bool
}

// Start launches the selected background loops. They stop when ctx is
// cancelled or Shutdown is called.
func (a *App) Start(ctx context.Context, c Components) {
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if c.Workers {
		a.Worker.Start(ctx)
	}
	if c.Reminders {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.Sweeper.Start(ctx, a.Config.ReminderInterval)
		}()
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.RateLimiter.Run(ctx, rateLimitSweepInterval)
	}()
}

// InlineWorkers reports whether turns are consumed in this process.
func (a *App) InlineWorkers() bool { return a.workers }

// Shutdown drains in-flight webhook events and pending debounce buffers, then
// stops the background loops and releases connections.
func (a *App) Shutdown(ctx context.Context) error {
	a.Webhook.Wait()
	a.Gate.Flush()
	if a.cancel != nil {
		a.cancel()
	}

	done := make(chan struct{})
	go func() {
		a.Worker.Wait()
		a.wg.Wait()
		close(done)
	}()
	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = fmt.Errorf("bootstrap: shutdown: %w", ctx.Err())
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	return err
}
