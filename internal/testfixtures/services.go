package testfixtures

import (
	"log/slog"
	"time"

	"github.com/example/hall-allocation/internal/application"
	"github.com/example/hall-allocation/internal/persistence"
)

// ServiceFactory assists tests with constructing application services using
// deterministic identifiers and clocks.
type ServiceFactory struct {
	Clock       *Clock
	IDGenerator *IDGenerator
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory with defaults. The default
// clock steps one second per reading.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{
		Clock:       NewSteppingClock(time.Time{}, time.Second),
		IDGenerator: NewIDGenerator("id"),
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

// AllocationServiceDeps captures dependencies for constructing the allocation engine.
type AllocationServiceDeps struct {
	Store       persistence.AllocationStore
	Notifier    application.Notifier
	IDGenerator func() string
	Now         func() time.Time
	Logger      *slog.Logger
	Options     []application.AllocationOption
}

// NewAllocationService builds the allocation engine using the supplied
// dependencies combined with the factory defaults.
func (f *ServiceFactory) NewAllocationService(deps AllocationServiceDeps) *application.AllocationService {
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = f.IDGenerator.NextFunc()
	}
	now := deps.Now
	if now == nil {
		now = f.Clock.NowFunc()
	}
	return application.NewAllocationServiceWithLogger(
		deps.Store,
		deps.Notifier,
		idGen,
		now,
		deps.Logger,
		deps.Options...,
	)
}

// RoomServiceDeps captures dependencies for constructing a room service.
type RoomServiceDeps struct {
	Rooms       application.RoomRepository
	IDGenerator func() string
	Now         func() time.Time
	Logger      *slog.Logger
}

// NewRoomService builds a room service using the supplied dependencies.
func (f *ServiceFactory) NewRoomService(deps RoomServiceDeps) *application.RoomService {
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = f.IDGenerator.NextFunc()
	}
	now := deps.Now
	if now == nil {
		now = f.Clock.NowFunc()
	}
	return application.NewRoomServiceWithLogger(
		deps.Rooms,
		idGen,
		now,
		deps.Logger,
	)
}

// StudentServiceDeps captures dependencies for constructing a student service.
type StudentServiceDeps struct {
	Students     application.StudentRepository
	IDGenerator  func() string
	Now          func() time.Time
	HashPassword func(string) (string, error)
}

// NewStudentService builds a student service using the supplied dependencies.
// Passwords are stored verbatim unless a hasher is supplied.
func (f *ServiceFactory) NewStudentService(deps StudentServiceDeps) *application.StudentService {
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = f.IDGenerator.NextFunc()
	}
	now := deps.Now
	if now == nil {
		now = f.Clock.NowFunc()
	}
	hash := deps.HashPassword
	if hash == nil {
		hash = func(password string) (string, error) { return password, nil }
	}
	return application.NewStudentService(deps.Students, idGen, now, hash)
}

// AuthServiceDeps captures dependencies for constructing an auth service.
type AuthServiceDeps struct {
	Credentials    application.CredentialStore
	Students       application.StudentDirectory
	Sessions       application.SessionRepository
	PasswordVerify application.PasswordVerifier
	TokenGenerator func() string
	Now            func() time.Time
	SessionTTL     time.Duration
	Logger         *slog.Logger
}

// NewAuthService builds an auth service using the supplied dependencies.
// Tokens come from the factory's ID generator and time from its clock
// unless overridden.
func (f *ServiceFactory) NewAuthService(deps AuthServiceDeps) *application.AuthService {
	token := deps.TokenGenerator
	if token == nil {
		token = f.IDGenerator.NextFunc()
	}
	now := deps.Now
	if now == nil {
		now = f.Clock.NowFunc()
	}
	return application.NewAuthService(application.AuthDeps{
		Credentials: deps.Credentials,
		Students:    deps.Students,
		Sessions:    deps.Sessions,
		Verify:      deps.PasswordVerify,
		NewToken:    token,
		Now:         now,
		SessionTTL:  deps.SessionTTL,
		Logger:      deps.Logger,
	})
}
