package testfixtures

import (
	"log/slog"
	"time"

	"github.com/example/matchbook/internal/application"
	"github.com/example/matchbook/internal/metrics"
	"github.com/example/matchbook/internal/reservation"
	"github.com/example/matchbook/internal/venue"
)

// ServiceFactory assists tests with constructing application services using
// deterministic identifiers and clocks.
type ServiceFactory struct {
	Clock       *Clock
	IDGenerator *IDGenerator
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory with defaults.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{
		Clock:       NewClock(time.Time{}),
		IDGenerator: NewIDGenerator("res"),
	}
	for _, opt := range opts {
		opt(factory)
	}
	if factory.Clock == nil {
		factory.Clock = NewClock(time.Time{})
	}
	if factory.IDGenerator == nil {
		factory.IDGenerator = NewIDGenerator("res")
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

// PersonaServiceDeps captures dependencies for constructing a persona service.
type PersonaServiceDeps struct {
	Personas    application.PersonaRepository
	Assignments application.AssignmentRepository
	Now         func() time.Time
	Locker      application.Locker
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
}

// NewPersonaService builds a persona service using the supplied dependencies
// combined with the factory defaults.
func (f *ServiceFactory) NewPersonaService(deps PersonaServiceDeps) *application.PersonaService {
	now := deps.Now
	if now == nil {
		now = f.Clock.NowFunc()
	}
	return application.NewPersonaServiceWithOptions(
		deps.Personas,
		deps.Assignments,
		now,
		application.PersonaServiceOptions{
			Locker:  deps.Locker,
			Metrics: deps.Metrics,
			Logger:  deps.Logger,
		},
	)
}

// ReservationServiceDeps captures dependencies for constructing a reservation
// service. A nil Venues falls back to the embedded venue directory.
type ReservationServiceDeps struct {
	Reservations application.ReservationRepository
	Venues       application.VenueDirectory
	Payments     reservation.PaymentProcessor
	IDGenerator  func() string
	Now          func() time.Time
	Locker       application.Locker
	Metrics      *metrics.Metrics
	Logger       *slog.Logger
}

// NewReservationService builds a reservation service using the supplied
// dependencies combined with the factory defaults.
func (f *ServiceFactory) NewReservationService(deps ReservationServiceDeps) (*application.ReservationService, error) {
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = f.IDGenerator.NextFunc()
	}
	now := deps.Now
	if now == nil {
		now = f.Clock.NowFunc()
	}
	venues := deps.Venues
	if venues == nil {
		directory, err := venue.Default()
		if err != nil {
			return nil, err
		}
		venues = directory
	}
	return application.NewReservationServiceWithOptions(
		deps.Reservations,
		venues,
		idGen,
		now,
		application.ReservationServiceOptions{
			Payments: deps.Payments,
			Locker:   deps.Locker,
			Metrics:  deps.Metrics,
			Logger:   deps.Logger,
		},
	), nil
}
