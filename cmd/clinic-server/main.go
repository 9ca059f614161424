package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/woundcare/clinic/internal/config"
	"github.com/woundcare/clinic/internal/domain/commission"
	"github.com/woundcare/clinic/internal/domain/invoice"
	"github.com/woundcare/clinic/internal/domain/patient"
	"github.com/woundcare/clinic/internal/domain/referral"
	"github.com/woundcare/clinic/internal/domain/salesrep"
	"github.com/woundcare/clinic/internal/domain/treatment"
	"github.com/woundcare/clinic/internal/platform/auth"
	"github.com/woundcare/clinic/internal/platform/blobstore"
	"github.com/woundcare/clinic/internal/platform/cache"
	"github.com/woundcare/clinic/internal/platform/db"
	"github.com/woundcare/clinic/internal/platform/httperr"
	"github.com/woundcare/clinic/internal/platform/jobs"
	"github.com/woundcare/clinic/internal/platform/middleware"
	"github.com/woundcare/clinic/internal/platform/validate"
	"github.com/woundcare/clinic/internal/platform/websocket"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "clinic-server",
		Short: "Wound care clinic billing and commission API",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(clinicCmd())
	rootCmd.AddCommand(userCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

// connect loads the config and opens the pool for the one-shot commands.
func connect(ctx context.Context) (*config.Config, *pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, nil, err
	}
	return cfg, pool, nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending shared and clinic migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			clinic, _ := cmd.Flags().GetString("clinic")
			all, _ := cmd.Flags().GetBool("all")

			ctx := context.Background()
			cfg, pool, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			n, err := db.NewMigrator(pool, db.SharedDir(cfg.MigrationsDir)).Up(ctx, db.SharedSchema)
			if err != nil {
				return fmt.Errorf("shared migrations failed: %w", err)
			}
			fmt.Printf("Applied %d shared migration(s).\n", n)

			clinics := []string{clinic}
			if all {
				if clinics, err = db.ListClinics(ctx, pool); err != nil {
					return err
				}
			} else if clinic == "" {
				clinics = []string{cfg.DefaultClinic}
			}

			migrator := db.NewMigrator(pool, db.ClinicDir(cfg.MigrationsDir))
			for _, id := range clinics {
				if !db.ValidClinicID(id) {
					return fmt.Errorf("invalid clinic identifier: %s", id)
				}
				n, err := migrator.Up(ctx, db.ClinicSchema(id))
				if err != nil {
					return fmt.Errorf("migrations for clinic %s failed: %w", id, err)
				}
				fmt.Printf("Applied %d migration(s) to clinic %s.\n", n, id)
			}
			return nil
		},
	}
	upCmd.Flags().String("clinic", "", "Clinic to migrate (default DEFAULT_CLINIC)")
	upCmd.Flags().Bool("all", false, "Migrate every existing clinic schema")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			clinic, _ := cmd.Flags().GetString("clinic")

			ctx := context.Background()
			cfg, pool, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			if clinic == "" {
				clinic = cfg.DefaultClinic
			}
			schema := db.ClinicSchema(clinic)
			statuses, err := db.NewMigrator(pool, db.ClinicDir(cfg.MigrationsDir)).Status(ctx, schema)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("Migration status for schema: %s\n", schema)
			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("clinic", "", "Clinic to inspect (default DEFAULT_CLINIC)")
	cmd.AddCommand(statusCmd)

	return cmd
}

func clinicCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clinic",
		Short: "Manage clinics",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create and migrate a clinic schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			if name == "" {
				return fmt.Errorf("--name is required")
			}

			ctx := context.Background()
			cfg, pool, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			fmt.Printf("Creating clinic schema: %s\n", db.ClinicSchema(name))
			if err := db.CreateClinicSchema(ctx, pool, name, db.ClinicDir(cfg.MigrationsDir)); err != nil {
				return err
			}
			fmt.Println("Clinic created and migrated.")
			return nil
		},
	}
	createCmd.Flags().String("name", "", "Clinic identifier (lowercase alphanumeric)")

	cmd.AddCommand(createCmd)
	return cmd
}

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage staff logins",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create or reset a staff login",
		RunE: func(cmd *cobra.Command, args []string) error {
			email, _ := cmd.Flags().GetString("email")
			password, _ := cmd.Flags().GetString("password")
			roles, _ := cmd.Flags().GetStringSlice("role")
			clinic, _ := cmd.Flags().GetString("clinic")

			ctx := context.Background()
			cfg, pool, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			if clinic == "" {
				clinic = cfg.DefaultClinic
			}
			u, err := auth.NewUser(email, password, clinic, roles)
			if err != nil {
				return err
			}
			if err := auth.NewUserStorePG(pool).Create(ctx, u); err != nil {
				return fmt.Errorf("save user: %w", err)
			}
			fmt.Printf("User %s (%s) saved for clinic %s.\n", u.Email, strings.Join(u.Roles, ","), u.ClinicID)
			return nil
		},
	}
	createCmd.Flags().String("email", "", "Login email")
	createCmd.Flags().String("password", "", "Password (min 8 characters)")
	createCmd.Flags().StringSlice("role", nil, "Role: admin, billing, clinician or sales (repeatable)")
	createCmd.Flags().String("clinic", "", "Clinic the user belongs to (default DEFAULT_CLINIC)")

	cmd.AddCommand(createCmd)
	return cmd
}

// resolveSigningKey returns the configured HS256 key, or a random 32-byte
// key when none is set. The second value reports whether it was generated.
func resolveSigningKey(configured string) ([]byte, bool, error) {
	if configured != "" {
		return []byte(configured), false, nil
	}
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, false, fmt.Errorf("generate signing key: %w", err)
	}
	return key, true, nil
}

func newLogger(dev bool) zerolog.Logger {
	if dev {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func runServer() error {
	logger := newLogger(os.Getenv("ENV") == "development")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}
	loc := cfg.Location()

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Real-time channel and cache
	hub := websocket.NewHub(logger)

	var (
		store  cache.Store = cache.NopStore{}
		locker jobs.Locker
	)
	if cfg.RedisURL != "" {
		rdb, err := cache.Open(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer rdb.Close()
		store = cache.NewRedisStore(rdb)
		locker = jobs.NewRedisLocker(rdb)
		logger.Info().Msg("connected to redis")
	} else {
		logger.Warn().Msg("REDIS_URL not set, read cache and sweep lock disabled")
	}
	notifier := cache.NewInvalidator(store, hub, logger)

	// Export archive
	var blobs blobstore.Store = blobstore.NewInMemoryStore()
	switch {
	case cfg.ExportBucket == "":
	case cfg.ExportBackend == "gcs":
		gcsStore, err := blobstore.NewGCSStore(ctx, cfg.ExportBucket, cfg.GCSCredentials)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to configure export bucket")
		}
		defer gcsStore.Close()
		blobs = gcsStore
		logger.Info().Str("bucket", cfg.ExportBucket).Msg("archiving exports to gcs")
	default:
		s3Store, err := blobstore.NewS3Store(cfg.AWSRegion, cfg.ExportBucket)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to configure export bucket")
		}
		blobs = s3Store
		logger.Info().Str("bucket", cfg.ExportBucket).Msg("archiving exports to s3")
	}
	archiver := blobstore.NewArchiver(blobs, logger)

	// Domain services
	tx := db.TxRunner(pool)

	repRepo := salesrep.NewRepo(pool)
	repSvc := salesrep.NewService(repRepo, notifier)

	patientSvc := patient.NewService(patient.NewRepo(pool), repRepo, notifier, loc)

	referralSvc := referral.NewService(referral.NewRepo(pool), patientSvc, repRepo, tx, notifier)

	treatmentSvc := treatment.NewService(treatment.NewRepo(pool), patientSvc, repRepo, tx, notifier, store,
		treatment.Config{Location: loc, CacheTTL: cfg.CacheTTL})

	commissionSvc := commission.NewService(commission.NewRepo(pool), notifier, store, archiver,
		commission.Config{Location: loc, CacheTTL: cfg.CacheTTL})

	invoiceSvc := invoice.NewService(invoice.NewRepo(pool), patientSvc, tx, notifier, archiver,
		invoice.Config{Location: loc, ClinicName: cfg.ClinicName})

	// Auth
	signingKey, generated, err := resolveSigningKey(cfg.JWTSigningKey)
	if err != nil {
		logger.Fatal().Err(err).Msg("signing key")
	}
	if generated {
		logger.Warn().Msg("JWT_SIGNING_KEY not set, login tokens are signed with a per-process key")
	}
	tokens := auth.NewTokenIssuer(signingKey, cfg.AuthIssuer, cfg.AuthAudience, cfg.TokenTTL)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = validate.New()
	e.HTTPErrorHandler = httperr.Handler(logger)

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", "X-Clinic-ID"},
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	if cfg.DevAuth() {
		logger.Warn().Msg("development auth enabled, unauthenticated requests run as admin")
		e.Use(auth.DevAuthMiddleware(auth.AuthSkipper))
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			JWKSURL:    cfg.AuthJWKSURL,
			SigningKey: []byte(cfg.JWTSigningKey),
			Skipper:    auth.AuthSkipper,
		}))
	}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/health/db", db.HealthHandler(pool))

	websocket.NewHandler(hub, cfg.DefaultClinic, cfg.CORSOrigins, logger).RegisterRoutes(e)

	api := e.Group("/api")
	rateLimitCfg := middleware.DefaultRateLimitConfig()
	if cfg.RateLimitRPS > 0 {
		rateLimitCfg.RequestsPerSecond = cfg.RateLimitRPS
		rateLimitCfg.BurstSize = cfg.RateLimitBurst
	}
	api.Use(middleware.RateLimit(rateLimitCfg))

	auth.NewLoginHandler(auth.NewUserStorePG(pool), tokens, logger).RegisterRoutes(api)

	clinicAPI := api.Group("", db.ClinicMiddleware(pool, cfg.DefaultClinic), middleware.Audit(logger))
	salesrep.NewHandler(repSvc).RegisterRoutes(clinicAPI)
	patient.NewHandler(patientSvc).RegisterRoutes(clinicAPI)
	referral.NewHandler(referralSvc).RegisterRoutes(clinicAPI)
	treatment.NewHandler(treatmentSvc).RegisterRoutes(clinicAPI)
	commission.NewHandler(commissionSvc).RegisterRoutes(clinicAPI)
	invoice.NewHandler(invoiceSvc).RegisterRoutes(clinicAPI)
	blobstore.NewHandler(blobs).RegisterRoutes(clinicAPI)

	// Background jobs
	sweep := jobs.NewOverdueSweep(jobs.PoolClinics{Pool: pool}, treatmentSvc, notifier, hub, locker, loc, logger)
	scheduler := jobs.NewScheduler(loc, logger)
	err = scheduler.Add("overdue-sweep", cfg.OverdueSweepCron, func(ctx context.Context) error {
		_, err := sweep.Run(ctx)
		return err
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to schedule overdue sweep")
	}
	scheduler.Start()
	defer scheduler.Stop()

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
