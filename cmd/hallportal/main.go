package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/example/hall-allocation/internal/application"
	"github.com/example/hall-allocation/internal/config"
	httptransport "github.com/example/hall-allocation/internal/http"
	"github.com/example/hall-allocation/internal/logging"
	"github.com/example/hall-allocation/internal/notify"
	"github.com/example/hall-allocation/internal/persistence"
	"github.com/example/hall-allocation/internal/persistence/sqlite"
	"github.com/example/hall-allocation/internal/seed"
)

const sessionSweepInterval = time.Hour

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		bootstrap := slog.New(slog.NewJSONHandler(os.Stderr, nil))
		bootstrap.Error("hall portal exited", "error", err)
		os.Exit(1)
	}
}

type options struct {
	envFile     string
	seedFile    string
	migrateOnly bool
}

func parseFlags(args []string) (options, error) {
	var opts options
	flags := pflag.NewFlagSet("hallportal", pflag.ContinueOnError)
	flags.StringVar(&opts.envFile, "env-file", ".env", "dotenv file applied before reading the environment")
	flags.StringVar(&opts.seedFile, "seed", "", "YAML inventory of rooms and warden accounts to create at startup")
	flags.BoolVar(&opts.migrateOnly, "migrate-only", false, "apply schema migrations (and the seed, if any) then exit")
	if err := flags.Parse(args); err != nil {
		return options{}, err
	}
	if flags.NArg() > 0 {
		return options{}, fmt.Errorf("unexpected arguments: %v", flags.Args())
	}
	return opts, nil
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}

	if err := config.LoadEnvFile(opts.envFile); err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logger := logging.New(stdout, cfg.LogLevel, cfg.LogFormat)

	hall, err := newPortal(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := hall.Close(); cerr != nil {
			logger.Error("failed to release resources", "error", cerr)
		}
	}()

	if opts.seedFile != "" {
		inv, err := seed.LoadFile(opts.seedFile)
		if err != nil {
			return err
		}
		report, err := hall.Seed(ctx, inv)
		if err != nil {
			return fmt.Errorf("seed inventory: %w", err)
		}
		logger.Info("inventory seeded",
			"rooms_created", report.RoomsCreated,
			"rooms_skipped", report.RoomsSkipped,
			"admins_created", report.AdminsCreated,
			"admins_skipped", report.AdminsSkipped,
		)
	}

	if opts.migrateOnly {
		logger.Info("migrations applied, exiting")
		return nil
	}

	go sweepSessions(ctx, hall.storage, time.Now, sessionSweepInterval, logger)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           hall.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}
	}()

	logger.Info("hall portal listening", "addr", server.Addr, "notifier", cfg.Notifier)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

// portal owns the storage, services and notifier of a running hall portal.
type portal struct {
	storage       *sqlite.Storage
	closeNotifier func() error
	logger        *slog.Logger

	rooms       *application.RoomService
	students    *application.StudentService
	auth        *application.AuthService
	allocations *application.AllocationService
}

func newPortal(ctx context.Context, cfg config.Config, logger *slog.Logger) (*portal, error) {
	storage, err := sqlite.Open(ctx, cfg.SQLitePath, logger)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	if err := storage.Migrate(ctx); err != nil {
		_ = storage.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	notifier, closeNotifier := newNotifier(ctx, cfg, logger)

	idGenerator := uuid.NewString
	tokenGenerator := func() string { return randomHex(32) }
	now := time.Now
	students := newStudentRepositoryAdapter(storage)

	return &portal{
		storage:       storage,
		closeNotifier: closeNotifier,
		logger:        logger,
		rooms:         application.NewRoomServiceWithLogger(newRoomRepositoryAdapter(storage), idGenerator, now, logger),
		students:      application.NewStudentService(students, idGenerator, now, application.HashPassword),
		auth: application.NewAuthService(application.AuthDeps{
			Credentials: newCredentialStoreAdapter(storage),
			Students:    students,
			Sessions:    newSessionRepositoryAdapter(storage),
			Verify:      application.VerifyPassword,
			NewToken:    tokenGenerator,
			Now:         now,
			SessionTTL:  cfg.SessionTTL,
			Logger:      logger,
		}),
		allocations: application.NewAllocationServiceWithLogger(
			storage,
			notifier,
			idGenerator,
			now,
			logger,
			application.WithNotifyTimeout(cfg.NotifyTimeout),
			application.WithMaxCapacity(cfg.MaxRoomCapacity),
		),
	}, nil
}

// Handler returns the routed API wrapped in request logging.
func (p *portal) Handler() http.Handler {
	router := httptransport.NewRouter(httptransport.RouterConfig{
		Auth:        httptransport.NewAuthHandler(p.auth, p.logger),
		Students:    httptransport.NewStudentHandler(p.students, p.logger),
		Rooms:       httptransport.NewRoomHandler(p.rooms, p.allocations, p.logger),
		Allocations: httptransport.NewAllocationHandler(p.allocations, p.logger),
		Sessions:    p.auth,
		Logger:      p.logger,
	})
	return httptransport.RequestLogger(p.logger)(router)
}

// Seed writes a room and warden inventory.
func (p *portal) Seed(ctx context.Context, inv seed.Inventory) (seed.Report, error) {
	seeder := seed.NewSeeder(p.rooms, p.storage, uuid.NewString, time.Now, application.HashPassword, p.logger)
	return seeder.Apply(ctx, inv)
}

// Close waits for in-flight notifications before closing the notifier and storage.
func (p *portal) Close() error {
	p.allocations.Wait()

	var errs []error
	if p.closeNotifier != nil {
		if err := p.closeNotifier(); err != nil {
			errs = append(errs, fmt.Errorf("close notifier: %w", err))
		}
	}
	if err := p.storage.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close storage: %w", err))
	}
	return errors.Join(errs...)
}

// newNotifier selects the notification backend. The returned close function
// may be nil.
func newNotifier(ctx context.Context, cfg config.Config, logger *slog.Logger) (application.Notifier, func() error) {
	switch cfg.Notifier {
	case config.NotifierRedis:
		client := notify.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		notifier := notify.NewRedisStreamNotifier(client, cfg.Redis.Stream, notify.WithMaxLen(100000))

		pingCtx, cancel := context.WithTimeout(ctx, cfg.NotifyTimeout)
		defer cancel()
		if err := notifier.Ping(pingCtx); err != nil {
			logger.Warn("redis is unreachable, notifications will fail until it recovers", "addr", cfg.Redis.Addr, "error", err)
		}
		return notifier, client.Close
	case config.NotifierWebhook:
		return notify.NewWebhookNotifier(cfg.WebhookURL, cfg.NotifyTimeout, 2), nil
	default:
		return notify.NewLogNotifier(logger), nil
	}
}

// sweepSessions purges expired sessions until ctx is done.
func sweepSessions(ctx context.Context, sessions persistence.SessionRepository, now func() time.Time, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := sessions.DeleteExpiredSessions(ctx, now()); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("failed to purge expired sessions", "error", err)
			}
		}
	}
}

func randomHex(bytes int) string {
	if bytes <= 0 {
		bytes = 16
	}
	buf := make([]byte, bytes)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return fmt.Sprintf("fallback-%s", uuid.NewString())
	}
	return hex.EncodeToString(buf)
}
