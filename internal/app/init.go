package app

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	server "github.com/kpizzy812/TMAMARKET/internal/adapters/primary/http"
	fulfillmentController "github.com/kpizzy812/TMAMARKET/internal/adapters/primary/http/controllers/fulfillment"
	healthcheckController "github.com/kpizzy812/TMAMARKET/internal/adapters/primary/http/controllers/healthcheck"
	paymentController "github.com/kpizzy812/TMAMARKET/internal/adapters/primary/http/controllers/payment"
	sbpController "github.com/kpizzy812/TMAMARKET/internal/adapters/primary/http/controllers/sbp"
	"github.com/kpizzy812/TMAMARKET/internal/adapters/primary/http/middlewares"
	kafkaConsumerAdapter "github.com/kpizzy812/TMAMARKET/internal/adapters/primary/kafka"
	kafkaHandlers "github.com/kpizzy812/TMAMARKET/internal/adapters/primary/kafka/handlers"
	"github.com/kpizzy812/TMAMARKET/internal/adapters/secondary/chain/bsc"
	"github.com/kpizzy812/TMAMARKET/internal/adapters/secondary/chain/ton"
	"github.com/kpizzy812/TMAMARKET/internal/adapters/secondary/chain/tron"
	kafkaAdapter "github.com/kpizzy812/TMAMARKET/internal/adapters/secondary/kafka"
	"github.com/kpizzy812/TMAMARKET/internal/adapters/secondary/sbp"
	"github.com/kpizzy812/TMAMARKET/internal/adapters/secondary/storage/inmemory"
	"github.com/kpizzy812/TMAMARKET/internal/adapters/secondary/storage/pg"
	redisAdapter "github.com/kpizzy812/TMAMARKET/internal/adapters/secondary/storage/redis"
	s3Adapter "github.com/kpizzy812/TMAMARKET/internal/adapters/secondary/storage/s3"
	"github.com/kpizzy812/TMAMARKET/internal/adapters/secondary/telegram"
	"github.com/kpizzy812/TMAMARKET/internal/domain"
	"github.com/kpizzy812/TMAMARKET/internal/ports/cache"
	kafkaPorts "github.com/kpizzy812/TMAMARKET/internal/ports/kafka"
	observerPorts "github.com/kpizzy812/TMAMARKET/internal/ports/observer"
	paymentPorts "github.com/kpizzy812/TMAMARKET/internal/ports/payment"
	"github.com/kpizzy812/TMAMARKET/internal/ports/repository"
	"github.com/kpizzy812/TMAMARKET/internal/ports/service"
	checkpointRepo "github.com/kpizzy812/TMAMARKET/internal/repository/checkpoint"
	"github.com/kpizzy812/TMAMARKET/internal/repository/uow"
	alerterService "github.com/kpizzy812/TMAMARKET/internal/services/alerter"
	eventsService "github.com/kpizzy812/TMAMARKET/internal/services/events"
	jobScheduler "github.com/kpizzy812/TMAMARKET/internal/services/jobs"
	notifierService "github.com/kpizzy812/TMAMARKET/internal/services/notifier"
	observerService "github.com/kpizzy812/TMAMARKET/internal/services/observer"
	"github.com/kpizzy812/TMAMARKET/internal/usecases/matching"
	paymentUsecase "github.com/kpizzy812/TMAMARKET/internal/usecases/payment"
	"github.com/kpizzy812/TMAMARKET/internal/usecases/settlement"
	"github.com/jmoiron/sqlx"
)

const (
	kafkaPaymentEvents = "payment_events"
	kafkaOrderCommands = "order_commands"
)

type Dependencies struct {
	DB             *sqlx.DB // nil для memory
	HTTPServer     *server.Server
	Observers      []*observerService.Worker
	KafkaProducer  *kafkaAdapter.Producer
	KafkaConsumers map[string]*kafkaConsumerAdapter.Consumer
	Cache          *redisAdapter.Client
	JobScheduler   *jobScheduler.Scheduler
	Coordinator    *settlement.Service
}

// storage репозитории выбранного драйвера
type storage struct {
	Requests    repository.IPaymentRequestRepo
	Ledger      repository.ISettlementLedger
	Unmatched   repository.IUnmatchedTransferRepo
	Orders      repository.IOrderSettlementRepo
	Checkpoints repository.ICheckpointRepo
	Tx          repository.ITxManager
	Pinger      healthcheckController.Pinger
}

// initDependencies собирает приложение
func (a *App) initDependencies(ctx context.Context) (*Dependencies, error) {
	deps := &Dependencies{
		KafkaConsumers: make(map[string]*kafkaConsumerAdapter.Consumer),
	}

	store, err := a.initStorage(ctx, deps)
	if err != nil {
		return nil, err
	}

	var lock cache.ILock
	var healthCache cache.Cache
	if a.Cfg.Redis.Enabled {
		redisClient, err := a.Cfg.Redis.NewConnection(ctx)
		if err != nil {
			a.Log.Warn("failed to init redis, using in-process transfer lock", "error", err)
		} else {
			deps.Cache = redisAdapter.NewClient(redisClient, a.Cfg.Redis.KeyPrefix)
			lock = deps.Cache
			healthCache = deps.Cache
			a.Log.Info("redis connected successfully")
		}
	}
	if lock == nil {
		lock = inmemory.NewLock()
	}

	alerter := a.initAlerter()
	events, err := a.initEventPublisher(deps)
	if err != nil {
		return nil, err
	}

	coordinator := settlement.New(store.Orders, events, a.initNotifier(), a.Cfg.Notifier.Timeout, a.Log)
	deps.Coordinator = coordinator

	var gateway paymentPorts.IPaymentGateway
	if a.Cfg.SBP.Enabled {
		gateway = sbp.NewClient(a.Cfg.SBP, a.Log)
	}

	sources, policies, networks, err := a.initSources(ctx, store, gateway)
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		a.Log.Warn("no payment networks enabled")
	}

	engine := matching.New(
		store.Tx,
		store.Ledger,
		store.Unmatched,
		lock,
		coordinator,
		matching.Config{
			Policies:  policies,
			ClockSkew: a.Cfg.Engine.ClockSkew,
			LockTTL:   a.Cfg.Engine.TransferLockTTL,
		},
		a.Log,
	)

	payments := paymentUsecase.New(
		store.Requests,
		store.Orders,
		store.Unmatched,
		store.Tx,
		gateway,
		coordinator,
		paymentUsecase.Config{
			Window:       a.Cfg.Engine.PaymentWindow,
			UniqueAmount: a.Cfg.Engine.UniqueAmount,
			Networks:     networks,
		},
		a.Log,
	)

	health := observerService.NewHealthRegistry(healthCache, a.Log)
	for _, src := range sources {
		deps.Observers = append(deps.Observers, observerService.NewWorker(
			src.source,
			engine,
			store.Checkpoints,
			events,
			alerter,
			health,
			observerService.Config{
				PollInterval:  src.pollInterval,
				Confirmations: src.confirmations,
				Backoff: observerService.BackoffConfig{
					Base:      a.Cfg.Engine.BackoffBase,
					Cap:       a.Cfg.Engine.BackoffCap,
					Jitter:    a.Cfg.Engine.BackoffJitter,
					Threshold: a.Cfg.Engine.CircuitThreshold,
				},
			},
			a.Log,
		))
	}

	if err := a.initKafkaConsumers(deps, payments); err != nil {
		return nil, err
	}

	deps.HTTPServer = a.initHTTP(store.Pinger, health, payments, coordinator, gateway, engine)

	scheduler, err := a.initJobScheduler(ctx, store, coordinator, alerter, lock)
	if err != nil {
		return nil, err
	}
	deps.JobScheduler = scheduler

	return deps, nil
}

func (a *App) initStorage(ctx context.Context, deps *Dependencies) (*storage, error) {
	if a.Cfg.Engine.StorageDriver == StorageDriverMemory {
		a.Log.Warn("in-memory storage enabled, data is lost on restart")
		mem := inmemory.NewStore()
		return &storage{
			Requests:    mem.Requests(),
			Ledger:      mem.Ledger(),
			Unmatched:   mem.Unmatched(),
			Orders:      mem.Orders(),
			Checkpoints: mem.Checkpoints(),
			Tx:          mem.TxManager(),
			Pinger:      mem,
		}, nil
	}

	db, err := a.initPostgres(ctx, a.Cfg.Engine.AutoMigrate)
	if err != nil {
		return nil, fmt.Errorf("failed to init postgres: %w", err)
	}
	deps.DB = db

	persistenceLayer := pg.NewDB(db, a.Log)
	repos := uow.Repositories(persistenceLayer, a.Log)
	return &storage{
		Requests:    repos.Requests,
		Ledger:      repos.Ledger,
		Unmatched:   repos.Unmatched,
		Orders:      repos.Orders,
		Checkpoints: checkpointRepo.New(persistenceLayer, a.Log),
		Tx:          uow.New(persistenceLayer, a.Log),
		Pinger:      persistenceLayer,
	}, nil
}

func (a *App) initAlerter() service.IAlerterService {
	cfg := a.Cfg.Alerter
	if !cfg.Enabled() {
		return alerterService.New(nil, cfg, a.Log)
	}
	client := telegram.NewClient(a.Cfg.Notifier.BaseURL, cfg.BotToken, a.Cfg.Notifier.Timeout, a.Log)
	return alerterService.New(client, cfg, a.Log)
}

func (a *App) initNotifier() service.INotificationService {
	if !a.Cfg.Notifier.Enabled() {
		a.Log.Info("telegram notifier is not configured, notifications disabled")
		return nil
	}
	client := telegram.NewClient(a.Cfg.Notifier.BaseURL, a.Cfg.Notifier.BotToken, a.Cfg.Notifier.Timeout, a.Log)
	return notifierService.New(client, a.Cfg.Notifier.AdminChatID, a.Log)
}

// initEventPublisher producer событий, без Kafka события пишутся в лог
func (a *App) initEventPublisher(deps *Dependencies) (service.IEventPublisher, error) {
	var producer kafkaPorts.IKafkaProducer

	if cfg := a.Cfg.Kafka.Get(kafkaPaymentEvents); cfg != nil && cfg.Topic != "" {
		prod, err := kafkaAdapter.NewProducer(cfg, a.Log)
		if err != nil {
			return nil, fmt.Errorf("failed to create kafka producer: %w", err)
		}
		deps.KafkaProducer = prod
		producer = prod
		a.Log.Info("kafka event producer ready", "topic", cfg.Topic)
	} else {
		a.Log.Warn("kafka payment events are not configured, events go to log only")
	}

	return eventsService.New(producer, a.Log), nil
}

func (a *App) initKafkaConsumers(deps *Dependencies, payments *paymentUsecase.Service) error {
	cfg := a.Cfg.Kafka.Get(kafkaOrderCommands)
	if cfg == nil || cfg.ConsumerGroup == "" {
		return nil
	}

	handler := kafkaHandlers.NewOrderCommandsHandler(payments, a.Log)
	consumer, err := kafkaConsumerAdapter.NewConsumer(cfg, handler, a.Log)
	if err != nil {
		return fmt.Errorf("failed to create kafka consumer %s: %w", kafkaOrderCommands, err)
	}
	deps.KafkaConsumers[kafkaOrderCommands] = consumer
	return nil
}

// networkSource источник и его параметры опроса
type networkSource struct {
	source        observerPorts.Source
	pollInterval  time.Duration
	confirmations uint64
}

// initSources источники включённых сетей, политики сопоставления и параметры заявок
func (a *App) initSources(
	ctx context.Context,
	store *storage,
	gateway paymentPorts.IPaymentGateway,
) ([]networkSource, map[domain.Network]matching.NetworkPolicy, map[domain.Network]paymentUsecase.NetworkSettings, error) {
	var sources []networkSource
	policies := make(map[domain.Network]matching.NetworkPolicy)
	networks := make(map[domain.Network]paymentUsecase.NetworkSettings)

	usdt := func(collectors []string) paymentUsecase.NetworkSettings {
		return paymentUsecase.NetworkSettings{
			Collector: collectors[0],
			Min:       a.Cfg.Engine.MinUSDT,
			Max:       a.Cfg.Engine.MaxUSDT,
		}
	}

	if a.Cfg.Tron.Enabled {
		collectors, err := canonicalCollectors(domain.NetworkTRC20, a.Cfg.Tron.Collectors, tron.Canonical)
		if err != nil {
			return nil, nil, nil, err
		}
		sources = append(sources, networkSource{
			source:        tron.NewClient(a.Cfg.Tron, collectors, a.Log),
			pollInterval:  a.Cfg.Tron.PollInterval,
			confirmations: a.Cfg.Tron.Confirmations,
		})
		policies[domain.NetworkTRC20] = matching.NetworkPolicy{Tolerance: a.Cfg.Tron.Tolerance}
		networks[domain.NetworkTRC20] = usdt(collectors)
	}

	if a.Cfg.BSC.Enabled {
		collectors, err := canonicalCollectors(domain.NetworkBEP20, a.Cfg.BSC.Collectors, bsc.Canonical)
		if err != nil {
			return nil, nil, nil, err
		}
		rpc, err := bsc.Dial(ctx, a.Cfg.BSC)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to dial bsc rpc: %w", err)
		}
		sources = append(sources, networkSource{
			source:        bsc.NewClient(a.Cfg.BSC, rpc, collectors, a.Log),
			pollInterval:  a.Cfg.BSC.PollInterval,
			confirmations: a.Cfg.BSC.Confirmations,
		})
		policies[domain.NetworkBEP20] = matching.NetworkPolicy{Tolerance: a.Cfg.BSC.Tolerance}
		networks[domain.NetworkBEP20] = usdt(collectors)
	}

	if a.Cfg.TON.Enabled {
		collectors, err := canonicalCollectors(domain.NetworkTON, a.Cfg.TON.Collectors, ton.Canonical)
		if err != nil {
			return nil, nil, nil, err
		}
		sources = append(sources, networkSource{
			source:        ton.NewClient(a.Cfg.TON, collectors, a.Log),
			pollInterval:  a.Cfg.TON.PollInterval,
			confirmations: a.Cfg.TON.Confirmations,
		})
		policies[domain.NetworkTON] = matching.NetworkPolicy{Tolerance: a.Cfg.TON.Tolerance}
		networks[domain.NetworkTON] = usdt(collectors)
	}

	if gateway != nil {
		if gateway.MerchantID() == "" {
			return nil, nil, nil, fmt.Errorf("sbp merchant id is required")
		}
		sources = append(sources, networkSource{
			source:        observerService.NewGatewaySource(store.Requests, gateway, a.Cfg.SBP.CheckInterval, a.Log),
			pollInterval:  a.Cfg.SBP.PollInterval,
			confirmations: 1,
		})
		policies[domain.NetworkSBP] = matching.NetworkPolicy{Tolerance: a.Cfg.SBP.Tolerance}
		networks[domain.NetworkSBP] = paymentUsecase.NetworkSettings{
			Collector: gateway.MerchantID(),
			Min:       a.Cfg.Engine.MinRUB,
			Max:       a.Cfg.Engine.MaxRUB,
		}
	}

	for network := range networks {
		a.Log.Info("payment network enabled", "network", network, "collector", networks[network].Collector)
	}

	return sources, policies, networks, nil
}

// canonicalCollectors адреса сборщиков в том виде, в котором их отдаёт источник
func canonicalCollectors(network domain.Network, raw []string, canonical func(string) (string, error)) ([]string, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%s: at least one collector address is required", network)
	}
	out := make([]string, 0, len(raw))
	for _, addr := range raw {
		c, err := canonical(addr)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid collector %q: %w", network, addr, err)
		}
		out = append(out, c)
	}
	return out, nil
}

func (a *App) initHTTP(
	pinger healthcheckController.Pinger,
	health *observerService.HealthRegistry,
	payments *paymentUsecase.Service,
	coordinator *settlement.Service,
	gateway paymentPorts.IPaymentGateway,
	engine *matching.Engine,
) *server.Server {
	var auth []gin.HandlerFunc
	if a.Cfg.Auth.Enabled() {
		auth = append(auth, middlewares.BearerAuth(a.Cfg.Auth, a.Log))
	} else {
		a.Log.Warn("api auth secret is not set, /api/v1 is unauthenticated")
	}

	controllers := []server.Controller{
		healthcheckController.New(pinger, health, a.Log, auth...),
		paymentController.New(payments, a.Log, auth...),
		fulfillmentController.New(coordinator, a.Log, auth...),
	}
	if gateway != nil {
		controllers = append(controllers, sbpController.New(gateway, engine, a.Log))
	}

	return server.New(a.Cfg.Server, a.Log, controllers...)
}

func (a *App) initJobScheduler(
	ctx context.Context,
	store *storage,
	coordinator *settlement.Service,
	alerter service.IAlerterService,
	lock cache.ILock,
) (*jobScheduler.Scheduler, error) {
	scheduler := jobScheduler.NewScheduler(a.Log, alerter, lock)

	scheduler.Register(jobScheduler.NewExpirySweeper(
		store.Requests,
		store.Ledger,
		coordinator,
		a.Cfg.Engine.SweepInterval,
		a.Cfg.Engine.RedriveGrace,
		a.Log,
	))

	if a.Cfg.S3.Enabled() {
		minioClient, err := a.Cfg.S3.Connect(ctx)
		if err != nil {
			a.Log.Warn("failed to init s3, reconciliation export disabled", "error", err)
			return scheduler, nil
		}
		export, err := jobScheduler.NewReconciliationExport(
			store.Unmatched,
			s3Adapter.NewClient(minioClient, a.Cfg.S3, a.Log),
			alerter,
			a.Cfg.Engine.ReconciliationCron,
			a.Log,
		)
		if err != nil {
			return nil, err
		}
		scheduler.Register(export)
	}

	return scheduler, nil
}

// initPostgres подключение к PostgreSQL, миграции по флагу
func (a *App) initPostgres(ctx context.Context, migrate bool) (*sqlx.DB, error) {
	db, err := a.Cfg.Postgres.NewConnection(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	a.Log.Info("postgres connected successfully")

	if migrate {
		if err := pg.RunMigrations(ctx, db, a.Log); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	return db, nil
}
