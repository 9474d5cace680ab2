package di

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"curricula/application/commands"
	commandbus "curricula/application/commands/bus"
	"curricula/application/ports"
	"curricula/application/queries"
	querybus "curricula/application/queries/bus"
	"curricula/application/services"
	domaincfg "curricula/domain/config"
	"curricula/domain/core/aggregates"
	"curricula/domain/energy"
	"curricula/domain/events"
	"curricula/domain/mastery"
	"curricula/infrastructure/config"
	"curricula/infrastructure/messaging/eventbridge"
	"curricula/infrastructure/messaging/inprocess"
	"curricula/infrastructure/persistence/memory"
	"curricula/infrastructure/persistence/recovery"
	"curricula/infrastructure/persistence/txlog"
	"curricula/interfaces/http/rest"
	"curricula/interfaces/http/rest/middleware"
	"curricula/pkg/auth"
	pkgerrors "curricula/pkg/errors"
	"curricula/pkg/observability"
)

// Container holds all application dependencies
type Container struct {
	Config     *config.Config
	Logger     *zap.Logger
	Metrics    *observability.Metrics
	Graph      *aggregates.ConceptGraph
	Tracker    *mastery.Tracker
	Weights    *energy.Store
	Model      *energy.Model
	Planner    *services.CurriculumPlanner
	Adapter    *services.WeightAdapter
	Sessions   *services.SessionService
	TxLog      ports.TransactionLog
	Snapshots  ports.SnapshotStore
	Recoverer  *recovery.Recoverer
	EventBus   *inprocess.EventBus
	Publisher  ports.EventPublisher
	CommandBus *commandbus.CommandBus
	QueryBus   *querybus.QueryBus
	Cache      ports.Cache
	Router     *rest.Router
}

// ProvideLogger creates a new logger instance
func ProvideLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.IsProduction() {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}

// ProvideMetrics creates the metrics bundle
func ProvideMetrics() *observability.Metrics {
	return observability.NewMetrics()
}

// ProvideDomainConfig extracts the pedagogy configuration
func ProvideDomainConfig(cfg *config.Config) *domaincfg.DomainConfig {
	return cfg.Domain
}

// ProvideGraph creates the concept graph aggregate
func ProvideGraph() *aggregates.ConceptGraph {
	return aggregates.NewConceptGraph()
}

// ProvideTracker creates the mastery tracker
func ProvideTracker(domainCfg *domaincfg.DomainConfig) *mastery.Tracker {
	return mastery.NewTracker(domainCfg)
}

// ProvideWeightStore creates the weight store seeded with the defaults
func ProvideWeightStore() *energy.Store {
	return energy.NewStore(energy.DefaultWeights())
}

// ProvideModel creates the energy model
func ProvideModel(
	graph *aggregates.ConceptGraph,
	tracker *mastery.Tracker,
	weights *energy.Store,
	domainCfg *domaincfg.DomainConfig,
) *energy.Model {
	return energy.NewModel(graph, tracker, weights, domainCfg.MasteryThreshold)
}

// ProvideTransactionLog opens the append-only log under the data directory
func ProvideTransactionLog(cfg *config.Config, logger *zap.Logger) (ports.TransactionLog, error) {
	return txlog.Open(cfg.DataDir, cfg.LogFsync, logger)
}

// ProvideSnapshotStore creates the snapshot store
func ProvideSnapshotStore(cfg *config.Config) (ports.SnapshotStore, error) {
	return txlog.NewFileSnapshotStore(cfg.DataDir)
}

// ProvideTrajectoryRepository creates the trajectory repository
func ProvideTrajectoryRepository() ports.TrajectoryRepository {
	return memory.NewTrajectoryRepository()
}

// ProvideEventBus creates the in-process event bus with the metrics
// subscriber already attached
func ProvideEventBus(
	graph *aggregates.ConceptGraph,
	metrics *observability.Metrics,
	logger *zap.Logger,
) (*inprocess.EventBus, error) {
	eventBus := inprocess.NewEventBus(logger)
	subscriber := inprocess.NewMetricsSubscriber(graph, metrics)
	if err := subscriber.Register(eventBus); err != nil {
		return nil, err
	}
	return eventBus, nil
}

// ProvideEventPublisher returns the publisher command handlers write to.
// The in-process bus always receives events; with EventBridge enabled they
// are additionally forwarded to the configured external bus.
func ProvideEventPublisher(
	ctx context.Context,
	cfg *config.Config,
	eventBus *inprocess.EventBus,
	logger *zap.Logger,
) (ports.EventPublisher, error) {
	if !cfg.UseEventBridge {
		return eventBus, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	external := eventbridge.NewPublisher(awsCfg, cfg.EventBusName, logger)
	return &fanoutPublisher{local: eventBus, external: external}, nil
}

// fanoutPublisher delivers events locally first; an external delivery
// failure is reported but does not undo the local dispatch.
type fanoutPublisher struct {
	local    ports.EventPublisher
	external ports.EventPublisher
}

func (f *fanoutPublisher) Publish(ctx context.Context, event events.DomainEvent) error {
	if err := f.local.Publish(ctx, event); err != nil {
		return err
	}
	return f.external.Publish(ctx, event)
}

func (f *fanoutPublisher) PublishBatch(ctx context.Context, batch []events.DomainEvent) error {
	if err := f.local.PublishBatch(ctx, batch); err != nil {
		return err
	}
	return f.external.PublishBatch(ctx, batch)
}

// ProvideSessionService creates the trajectory session service
func ProvideSessionService(
	trajectories ports.TrajectoryRepository,
	publisher ports.EventPublisher,
	logger *zap.Logger,
) *services.SessionService {
	return services.NewSessionService(trajectories, publisher, logger)
}

// ProvidePlanner creates the curriculum planner
func ProvidePlanner(
	graph *aggregates.ConceptGraph,
	tracker *mastery.Tracker,
	model *energy.Model,
	domainCfg *domaincfg.DomainConfig,
	publisher ports.EventPublisher,
	logger *zap.Logger,
) *services.CurriculumPlanner {
	return services.NewCurriculumPlanner(graph, tracker, model, domainCfg, publisher, logger)
}

// ProvideWeightAdapter creates the contrastive weight adapter
func ProvideWeightAdapter(
	trajectories ports.TrajectoryRepository,
	model *energy.Model,
	weights *energy.Store,
	domainCfg *domaincfg.DomainConfig,
	publisher ports.EventPublisher,
	logger *zap.Logger,
) *services.WeightAdapter {
	return services.NewWeightAdapter(trajectories, model, weights, domainCfg, publisher, logger)
}

// ProvideRecoverer creates the snapshot and replay coordinator
func ProvideRecoverer(
	graph *aggregates.ConceptGraph,
	tracker *mastery.Tracker,
	weights *energy.Store,
	sessions *services.SessionService,
	txLog ports.TransactionLog,
	snapshots ports.SnapshotStore,
	logger *zap.Logger,
) *recovery.Recoverer {
	return recovery.NewRecoverer(graph, tracker, weights, sessions, txLog, snapshots, logger)
}

// ProvideInMemoryCache creates the query result cache
func ProvideInMemoryCache() ports.Cache {
	return NewInMemoryCache()
}

// commandAdapter bridges a typed command handler into the bus contract
type commandAdapter struct {
	handle func(ctx context.Context, cmd commandbus.Command) (interface{}, error)
}

func (a *commandAdapter) Handle(ctx context.Context, cmd commandbus.Command) (interface{}, error) {
	return a.handle(ctx, cmd)
}

// ProvideCommandBus creates a command bus with registered handlers
func ProvideCommandBus(
	graph *aggregates.ConceptGraph,
	tracker *mastery.Tracker,
	planner *services.CurriculumPlanner,
	sessions *services.SessionService,
	adapter *services.WeightAdapter,
	txLog ports.TransactionLog,
	publisher ports.EventPublisher,
	metrics *observability.Metrics,
	logger *zap.Logger,
) (*commandbus.CommandBus, error) {
	cmdBus := commandbus.NewCommandBus()
	pipeline := commandbus.NewPipeline(
		commandbus.LoggingMiddleware(logger),
		commandbus.MetricsMiddleware(metrics.CommandTotal, metrics.CommandDuration),
	)

	deltaHandler := commands.NewSubmitGraphDeltaHandler(graph, planner, txLog, publisher, logger)
	if err := cmdBus.Register(commands.SubmitGraphDeltaCommand{}, pipeline.Execute(&commandAdapter{
		handle: func(ctx context.Context, cmd commandbus.Command) (interface{}, error) {
			c, ok := cmd.(commands.SubmitGraphDeltaCommand)
			if !ok {
				return nil, fmt.Errorf("invalid command type %T", cmd)
			}
			return deltaHandler.Handle(ctx, c)
		},
	})); err != nil {
		return nil, err
	}

	assessmentHandler := commands.NewRecordAssessmentHandler(graph, tracker, planner, sessions, txLog, publisher, logger)
	if err := cmdBus.Register(commands.RecordAssessmentCommand{}, pipeline.Execute(&commandAdapter{
		handle: func(ctx context.Context, cmd commandbus.Command) (interface{}, error) {
			c, ok := cmd.(commands.RecordAssessmentCommand)
			if !ok {
				return nil, fmt.Errorf("invalid command type %T", cmd)
			}
			return assessmentHandler.Handle(ctx, c)
		},
	})); err != nil {
		return nil, err
	}

	closeHandler := commands.NewCloseTrajectoryHandler(sessions, txLog, logger)
	if err := cmdBus.Register(commands.CloseTrajectoryCommand{}, pipeline.Execute(&commandAdapter{
		handle: func(ctx context.Context, cmd commandbus.Command) (interface{}, error) {
			c, ok := cmd.(commands.CloseTrajectoryCommand)
			if !ok {
				return nil, fmt.Errorf("invalid command type %T", cmd)
			}
			return closeHandler.Handle(ctx, c)
		},
	})); err != nil {
		return nil, err
	}

	adaptHandler := commands.NewAdaptWeightsHandler(adapter, txLog, logger)
	if err := cmdBus.Register(commands.AdaptWeightsCommand{}, pipeline.Execute(&commandAdapter{
		handle: func(ctx context.Context, cmd commandbus.Command) (interface{}, error) {
			c, ok := cmd.(commands.AdaptWeightsCommand)
			if !ok {
				return nil, fmt.Errorf("invalid command type %T", cmd)
			}
			return adaptHandler.Handle(ctx, c)
		},
	})); err != nil {
		return nil, err
	}

	return cmdBus, nil
}

// queryAdapter bridges a typed query handler into the bus contract
type queryAdapter struct {
	handle func(ctx context.Context, query querybus.Query) (interface{}, error)
}

func (a *queryAdapter) Handle(ctx context.Context, query querybus.Query) (interface{}, error) {
	return a.handle(ctx, query)
}

// ProvideQueryBus creates a query bus with registered handlers
func ProvideQueryBus(
	cfg *config.Config,
	graph *aggregates.ConceptGraph,
	tracker *mastery.Tracker,
	planner *services.CurriculumPlanner,
	weights *energy.Store,
	trajectories ports.TrajectoryRepository,
	cache ports.Cache,
	metrics *observability.Metrics,
) (*querybus.QueryBus, error) {
	queryBus := querybus.NewQueryBus()
	withMetrics := querybus.NewMetricsMiddleware(metrics.QueryTotal, metrics.QueryDuration)
	withCache := querybus.NewCachingMiddleware(cache, cfg.QueryCacheTTL)

	graphHandler := queries.NewGetGraphHandler(graph)
	if err := queryBus.Register(queries.GetGraphQuery{}, withMetrics.Wrap(withCache.Wrap(&queryAdapter{
		handle: func(ctx context.Context, query querybus.Query) (interface{}, error) {
			q, ok := query.(queries.GetGraphQuery)
			if !ok {
				return nil, fmt.Errorf("invalid query type %T", query)
			}
			return graphHandler.Handle(ctx, q)
		},
	}))); err != nil {
		return nil, err
	}

	nextActionHandler := queries.NewGetNextActionHandler(planner)
	if err := queryBus.Register(queries.GetNextActionQuery{}, withMetrics.Wrap(&queryAdapter{
		handle: func(ctx context.Context, query querybus.Query) (interface{}, error) {
			q, ok := query.(queries.GetNextActionQuery)
			if !ok {
				return nil, fmt.Errorf("invalid query type %T", query)
			}
			return nextActionHandler.Handle(ctx, q)
		},
	})); err != nil {
		return nil, err
	}

	curriculumHandler := queries.NewGetCurriculumHandler(planner, graph, tracker)
	if err := queryBus.Register(queries.GetCurriculumQuery{}, withMetrics.Wrap(&queryAdapter{
		handle: func(ctx context.Context, query querybus.Query) (interface{}, error) {
			q, ok := query.(queries.GetCurriculumQuery)
			if !ok {
				return nil, fmt.Errorf("invalid query type %T", query)
			}
			return curriculumHandler.Handle(ctx, q)
		},
	})); err != nil {
		return nil, err
	}

	validateHandler := queries.NewValidateCurriculumHandler(planner)
	if err := queryBus.Register(queries.ValidateCurriculumQuery{}, withMetrics.Wrap(&queryAdapter{
		handle: func(ctx context.Context, query querybus.Query) (interface{}, error) {
			q, ok := query.(queries.ValidateCurriculumQuery)
			if !ok {
				return nil, fmt.Errorf("invalid query type %T", query)
			}
			return validateHandler.Handle(ctx, q)
		},
	})); err != nil {
		return nil, err
	}

	progressHandler := queries.NewGetProgressHandler(graph, tracker)
	if err := queryBus.Register(queries.GetProgressQuery{}, withMetrics.Wrap(&queryAdapter{
		handle: func(ctx context.Context, query querybus.Query) (interface{}, error) {
			q, ok := query.(queries.GetProgressQuery)
			if !ok {
				return nil, fmt.Errorf("invalid query type %T", query)
			}
			return progressHandler.Handle(ctx, q)
		},
	})); err != nil {
		return nil, err
	}

	historyHandler := queries.NewGetHistoryHandler(trajectories)
	if err := queryBus.Register(queries.GetHistoryQuery{}, withMetrics.Wrap(&queryAdapter{
		handle: func(ctx context.Context, query querybus.Query) (interface{}, error) {
			q, ok := query.(queries.GetHistoryQuery)
			if !ok {
				return nil, fmt.Errorf("invalid query type %T", query)
			}
			return historyHandler.Handle(ctx, q)
		},
	})); err != nil {
		return nil, err
	}

	weightsHandler := queries.NewGetWeightsHandler(weights)
	if err := queryBus.Register(queries.GetWeightsQuery{}, withMetrics.Wrap(&queryAdapter{
		handle: func(ctx context.Context, query querybus.Query) (interface{}, error) {
			q, ok := query.(queries.GetWeightsQuery)
			if !ok {
				return nil, fmt.Errorf("invalid query type %T", query)
			}
			return weightsHandler.Handle(ctx, q)
		},
	})); err != nil {
		return nil, err
	}

	return queryBus, nil
}

// ProvideErrorHandler creates the HTTP error handler
func ProvideErrorHandler(cfg *config.Config, logger *zap.Logger) *pkgerrors.ErrorHandler {
	return pkgerrors.NewErrorHandler(logger, !cfg.IsProduction())
}

// ProvideJWTValidator creates the token validator
func ProvideJWTValidator(cfg *config.Config) (*auth.JWTValidator, error) {
	return auth.NewJWTValidator(auth.JWTConfig{
		SigningMethod: "HS256",
		SecretKey:     cfg.JWTSecret,
		Issuer:        cfg.JWTIssuer,
	})
}

// ProvideAuthMiddlewareConfig bundles the authentication middleware deps
func ProvideAuthMiddlewareConfig(validator *auth.JWTValidator, logger *zap.Logger) middleware.AuthMiddlewareConfig {
	return middleware.AuthMiddlewareConfig{
		Validator:   validator,
		IPLimiter:   auth.NewIPRateLimiter(300),
		UserLimiter: auth.NewUserRateLimiter(120),
		Logger:      logger,
	}
}

// ProvideRouter creates the HTTP router
func ProvideRouter(
	cfg *config.Config,
	commandBus *commandbus.CommandBus,
	queryBus *querybus.QueryBus,
	errHandler *pkgerrors.ErrorHandler,
	metrics *observability.Metrics,
	authConfig middleware.AuthMiddlewareConfig,
	logger *zap.Logger,
) *rest.Router {
	return rest.NewRouter(cfg, commandBus, queryBus, errHandler, metrics, authConfig, logger)
}
