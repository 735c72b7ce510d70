package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/his/his/internal/config"
	"github.com/his/his/internal/domain/admission"
	"github.com/his/his/internal/domain/billing"
	"github.com/his/his/internal/domain/coding"
	"github.com/his/his/internal/domain/lab"
	"github.com/his/his/internal/domain/pharmacy"
	"github.com/his/his/internal/domain/settings"
	"github.com/his/his/internal/domain/surgery"
	"github.com/his/his/internal/domain/tariff"
	"github.com/his/his/internal/platform/auth"
	"github.com/his/his/internal/platform/db"
	"github.com/his/his/internal/platform/middleware"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "his-server",
		Short: "Hospital billing and pharmacy API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

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

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

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
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	// Auth middleware
	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			SigningKey: []byte(cfg.AuthSigningKey),
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
		}))
	}

	// Audit middleware
	e.Use(middleware.Audit(logger))

	// API group
	apiV1 := e.Group("/api/v1")

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	// Health checks
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))

	// Settings
	settingsSvc := settings.NewService(settings.NewRepoPG(pool))
	settings.NewHandler(settingsSvc).RegisterRoutes(apiV1)

	// Tariffs
	tariffSvc := tariff.NewService(tariff.NewRepoPG(pool))
	tariff.NewHandler(tariffSvc).RegisterRoutes(apiV1)

	// Clinical coding
	codingSvc := coding.NewService(coding.NewRepoPG(pool))
	coding.NewHandler(codingSvc).RegisterRoutes(apiV1)

	// Admissions
	admissionSvc := admission.NewService(admission.NewRepoPG(pool))
	admission.NewHandler(admissionSvc).RegisterRoutes(apiV1)

	// Lab orders
	labSvc := lab.NewService(lab.NewRepoPG(pool))
	lab.NewHandler(labSvc).RegisterRoutes(apiV1)

	// Surgical cases
	surgerySvc := surgery.NewService(surgery.NewRepoPG(pool))
	surgery.NewHandler(surgerySvc).RegisterRoutes(apiV1)

	// Pharmacy
	pharmacySvc := pharmacy.NewService(
		pharmacy.NewBatchRepoPG(pool),
		pharmacy.NewPrescriptionRepoPG(pool),
		pharmacy.NewDispenseRepoPG(pool),
	)
	pharmacySvc.SetTxRunner(func(ctx context.Context, fn func(ctx context.Context) error) error {
		return db.WithTx(ctx, pool, fn)
	})
	pharmacy.NewHandler(pharmacySvc).RegisterRoutes(apiV1)

	// Billing
	billingSvc := billing.NewService(
		billing.NewBillRepoPG(pool),
		billing.NewPaymentRepoPG(pool),
		billing.NewAuditRepoPG(pool),
	)
	billingSvc.SetTxRunner(func(ctx context.Context, fn func(ctx context.Context) error) error {
		return db.WithTx(ctx, pool, fn)
	})
	billingSvc.SetTariffFinder(tariffSvc)
	billingSvc.SetFinalizeGate(settingsSvc, &codingStatusAdapter{svc: codingSvc})
	billingSvc.SetChargeSources(
		&bedChargeAdapter{svc: admissionSvc},
		&theatreChargeAdapter{svc: surgerySvc},
		&labChargeAdapter{svc: labSvc},
		&dispenseChargeAdapter{svc: pharmacySvc},
	)
	billing.NewHandler(billingSvc).RegisterRoutes(apiV1)

	// Completed dispenses land on the patient's draft bill automatically.
	pharmacySvc.SetChargeRecorder(&dispenseChargeRecorder{svc: billingSvc})

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

// codingStatusAdapter adapts the coding service to billing.CodingStatusReader,
// keeping the billing package decoupled from the coding package.
type codingStatusAdapter struct {
	svc *coding.Service
}

func (a *codingStatusAdapter) StatusForVisit(ctx context.Context, visitID uuid.UUID) (string, bool, error) {
	rec, err := a.svc.GetByVisit(ctx, visitID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return rec.Status, true, nil
}

// bedChargeAdapter adapts the admission service to billing.BedChargeSource.
type bedChargeAdapter struct {
	svc *admission.Service
}

func (a *bedChargeAdapter) BedChargeInfo(ctx context.Context, admissionID uuid.UUID) (*billing.BedChargeInfo, error) {
	adm, err := a.svc.Get(ctx, admissionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: admission", billing.ErrNotFound)
		}
		return nil, err
	}
	return &billing.BedChargeInfo{
		PatientID: adm.PatientID,
		Ward:      adm.Ward,
		Days:      adm.Days(time.Now()),
	}, nil
}

// theatreChargeAdapter adapts the surgery service to billing.TheatreChargeSource.
type theatreChargeAdapter struct {
	svc *surgery.Service
}

func (a *theatreChargeAdapter) TheatreChargeInfo(ctx context.Context, caseID uuid.UUID) (*billing.TheatreChargeInfo, error) {
	sc, err := a.svc.Get(ctx, caseID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: surgical case", billing.ErrNotFound)
		}
		return nil, err
	}
	return &billing.TheatreChargeInfo{
		PatientID:     sc.PatientID,
		ProcedureName: sc.ProcedureName,
		Category:      sc.Category,
	}, nil
}

// labChargeAdapter adapts the lab service to billing.LabChargeSource.
type labChargeAdapter struct {
	svc *lab.Service
}

func (a *labChargeAdapter) LabChargeInfo(ctx context.Context, orderID uuid.UUID) (*billing.LabChargeInfo, error) {
	o, err := a.svc.Get(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: lab order", billing.ErrNotFound)
		}
		return nil, err
	}
	return &billing.LabChargeInfo{
		PatientID: o.PatientID,
		TestName:  o.TestName,
		TestCode:  o.TestCode,
	}, nil
}

// dispenseChargeAdapter adapts the pharmacy service to
// billing.DispenseChargeSource.
type dispenseChargeAdapter struct {
	svc *pharmacy.Service
}

func (a *dispenseChargeAdapter) DispenseChargeInfo(ctx context.Context, dispenseID uuid.UUID) (*billing.DispenseChargeInfo, error) {
	d, err := a.svc.GetDispense(ctx, dispenseID)
	if err != nil {
		if errors.Is(err, pharmacy.ErrNotFound) {
			return nil, fmt.Errorf("%w: dispense", billing.ErrNotFound)
		}
		return nil, err
	}
	return &billing.DispenseChargeInfo{
		PatientID:      d.PatientID,
		DispenseNumber: d.DispenseNumber,
		NetAmount:      d.NetAmount,
	}, nil
}

// dispenseChargeRecorder adapts the billing service to
// pharmacy.ChargeRecorder so finished dispenses bill themselves.
type dispenseChargeRecorder struct {
	svc *billing.Service
}

func (r *dispenseChargeRecorder) RecordDispenseCharge(ctx context.Context, d *pharmacy.Dispense) error {
	outcome, err := r.svc.GeneratePharmacyCharges(ctx, d.ID, d.DispensedBy)
	if err != nil {
		return err
	}
	if !outcome.Charged {
		return fmt.Errorf("dispense %s not charged: %s", d.DispenseNumber, outcome.SkipReason)
	}
	return nil
}
