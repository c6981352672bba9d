package railflow

import (
	"github.com/drblury/railflow/internal/api"
	"github.com/drblury/railflow/internal/classifier"
	"github.com/drblury/railflow/internal/events"
	"github.com/drblury/railflow/internal/feed"
	"github.com/drblury/railflow/internal/pipeline"
	"github.com/drblury/railflow/internal/provision"
	"github.com/drblury/railflow/internal/relay"
	runtimepkg "github.com/drblury/railflow/internal/runtime"
	configpkg "github.com/drblury/railflow/internal/runtime/config"
	errspkg "github.com/drblury/railflow/internal/runtime/errors"
	idspkg "github.com/drblury/railflow/internal/runtime/ids"
	jsoncodec "github.com/drblury/railflow/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/railflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/railflow/internal/runtime/metadata"
	metricspkg "github.com/drblury/railflow/internal/runtime/metrics"
	"github.com/drblury/railflow/internal/sink"
	"github.com/drblury/railflow/internal/store"
	transportpkg "github.com/drblury/railflow/transport"
)

type (
	Config              = configpkg.Config
	Service             = runtimepkg.Service
	ServiceDependencies = runtimepkg.ServiceDependencies
	HandlerInfo         = runtimepkg.HandlerInfo

	MessageHandlerRegistration = runtimepkg.MessageHandlerRegistration
	MiddlewareBuilder          = runtimepkg.MiddlewareBuilder
	MiddlewareRegistration     = runtimepkg.MiddlewareRegistration

	Event        = events.Event
	EventKind    = events.Kind
	Activation   = events.Activation
	Cancellation = events.Cancellation

	Classifier      = classifier.Classifier
	ClassifiedBatch = classifier.Batch

	FeedConfig  = feed.Config
	FeedClient  = feed.Client
	FeedMessage = feed.Message
	FeedHandler = feed.Handler

	Pipeline        = pipeline.Pipeline
	PipelineOutcome = pipeline.Outcome
	RelayPublisher  = relay.Publisher
	RelayResult     = relay.Result

	Sink           = sink.Sink
	Store          = store.Store
	ActiveTrain    = store.ActiveTrain
	CancelledTrain = store.CancelledTrain
	Page           = store.Page

	TopicSettings = provision.Settings

	Metrics  = metricspkg.Metrics
	Metadata = metadatapkg.Metadata

	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger

	Transport         = transportpkg.Transport
	TransportRole     = transportpkg.Role
	TransportBuilder  = transportpkg.Builder
	TransportConfig   = transportpkg.Config
	TransportRegistry = transportpkg.Registry
	Capabilities      = transportpkg.Capabilities

	ConfigValidationError = errspkg.ConfigValidationError
	ConnectionError       = errspkg.ConnectionError
	SubscriptionError     = errspkg.SubscriptionError
	ParseError            = errspkg.ParseError
	PublishError          = errspkg.PublishError
)

var (
	LoadConfig = configpkg.Load

	NewService             = runtimepkg.NewService
	RegisterMessageHandler = runtimepkg.RegisterMessageHandler
	ServeHTTP              = runtimepkg.ServeHTTP

	DefaultMiddlewares      = runtimepkg.DefaultMiddlewares
	CorrelationIDMiddleware = runtimepkg.CorrelationIDMiddleware
	LogMessagesMiddleware   = runtimepkg.LogMessagesMiddleware
	TracerMiddleware        = runtimepkg.TracerMiddleware
	MetricsMiddleware       = runtimepkg.MetricsMiddleware
	RecovererMiddleware     = runtimepkg.RecovererMiddleware

	NewClassifier     = classifier.New
	NewFeedClient     = feed.NewClient
	NewFeedMessage    = feed.NewMessage
	NewPipeline       = pipeline.New
	NewRelayPublisher = relay.NewPublisher
	NewSink           = sink.New
	NewStore          = store.New
	OpenStore         = store.Open
	MigrateStore      = store.Migrate
	NewAPIRouter      = api.NewRouter
	CreateTopics      = provision.CreateTopics
	NewMetrics        = metricspkg.New

	KindForTopic    = events.KindForTopic
	FormatTimestamp = events.FormatTimestamp

	DefaultTransportRegistry = transportpkg.DefaultRegistry
	RegisterTransport        = transportpkg.RegisterWithCapabilities
	BuildTransport           = transportpkg.Build
	GetCapabilities          = transportpkg.GetCapabilities

	Marshal   = jsoncodec.Marshal
	Unmarshal = jsoncodec.Unmarshal
	Encode    = jsoncodec.Encode
	Decode    = jsoncodec.Decode

	ErrServiceRequired      = errspkg.ErrServiceRequired
	ErrHandlerRequired      = errspkg.ErrHandlerRequired
	ErrConsumeQueueRequired = errspkg.ErrConsumeQueueRequired
	ErrHandlerNameRequired  = errspkg.ErrHandlerNameRequired
	ErrPublisherRequired    = errspkg.ErrPublisherRequired
	ErrSubscriberRequired   = errspkg.ErrSubscriberRequired
	ErrConfigRequired       = errspkg.ErrConfigRequired
	ErrLoggerRequired       = errspkg.ErrLoggerRequired
	ErrStoreRequired        = errspkg.ErrStoreRequired
	ErrUnknownEventKind     = errspkg.ErrUnknownEventKind

	NewLogger            = loggingpkg.New
	NewSlogServiceLogger = loggingpkg.NewSlogServiceLogger
	NewNopLogger         = loggingpkg.NewNopLogger

	NewMetadata = metadatapkg.New
	CreateULID  = idspkg.CreateULID
)

const (
	TopicActivation   = events.TopicActivation
	TopicCancellation = events.TopicCancellation

	KindActivation   = events.KindActivation
	KindCancellation = events.KindCancellation

	RolePublisher  = transportpkg.RolePublisher
	RoleSubscriber = transportpkg.RoleSubscriber
	RoleBoth       = transportpkg.RoleBoth

	MetadataKeyCorrelationID = metadatapkg.KeyCorrelationID
	MetadataKeyFeedMessageID = metadatapkg.KeyFeedMessageID
	MetadataKeyEventKind     = metadatapkg.KeyEventKind
)
