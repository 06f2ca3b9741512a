package testfixtures

import (
	"log/slog"
	"time"

	"github.com/MarkLark86/superdesk-planning/internal/application"
	"github.com/MarkLark86/superdesk-planning/internal/recurrence"
)

// ServiceFactory assists tests with constructing application services using
// deterministic identifiers and clocks.
type ServiceFactory struct {
	Clock          *Clock
	IDGenerator    *IDGenerator
	Location       *time.Location
	MaxOccurrences int
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory with defaults.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{
		Clock:       NewClock(time.Time{}),
		IDGenerator: NewIDGenerator("id"),
		Location:    time.UTC,
	}
	for _, opt := range opts {
		opt(factory)
	}
	if factory.Clock == nil {
		factory.Clock = NewClock(time.Time{})
	}
	if factory.IDGenerator == nil {
		factory.IDGenerator = NewIDGenerator("id")
	}
	if factory.Location == nil {
		factory.Location = time.UTC
	}
	return factory
}

// WithClock overrides the clock used by the factory.
func WithClock(clock *Clock) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Clock = clock
	}
}

// WithIDGenerator overrides the identifier generator used by the factory.
func WithIDGenerator(generator *IDGenerator) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.IDGenerator = generator
	}
}

// WithLocation sets the default timezone handed to services.
func WithLocation(loc *time.Location) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Location = loc
	}
}

// WithMaxOccurrences sets the expansion ceiling.
func WithMaxOccurrences(limit int) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.MaxOccurrences = limit
	}
}

// EventServiceDeps captures dependencies for constructing an event service.
type EventServiceDeps struct {
	Store      application.EventStore
	Notifier   application.Notifier
	History    application.HistoryRecorder
	Authorizer application.Authorizer
	Logger     *slog.Logger
}

// NewEventService builds an event service using the supplied dependencies
// combined with the factory defaults.
func (f *ServiceFactory) NewEventService(deps EventServiceDeps) *application.EventService {
	idGen := f.IDGenerator.NextFunc()
	return application.NewEventService(application.EventServiceDeps{
		Store:       deps.Store,
		Expander:    application.NewSeriesExpander(recurrence.NewEngine(f.MaxOccurrences), idGen, f.Location),
		Notifier:    deps.Notifier,
		History:     deps.History,
		Authorizer:  deps.Authorizer,
		IDGenerator: idGen,
		Now:         f.Clock.NowFunc(),
		Location:    f.Location,
		Logger:      deps.Logger,
	})
}

// EditorPrincipal returns a principal holding the event management privilege.
func EditorPrincipal(userID string) application.Principal {
	return application.Principal{
		UserID:     userID,
		SessionID:  userID + "-session",
		Privileges: []string{application.PrivilegeEventManagement},
	}
}
