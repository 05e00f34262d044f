package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"retain/internal/archive"
	"retain/internal/catalog"
	"retain/internal/config"
	"retain/internal/database"
	"retain/internal/resolver"
)

// App is the application layer between the CLI and the archive service.
// It constructs all dependencies from config and manages their lifecycle.
type App struct {
	Cfg        *config.Config
	Repo       *database.SQLiteRepository
	Queue      archive.ChecksumQueue
	Oracle     *database.SQLiteUsageOracle
	Resolver   archive.Resolver
	Catalog    archive.AssetCatalog
	Engine     *archive.ChecksumEngine
	Gates      *archive.GateValidator
	Compliance *archive.ComplianceClock
	Service    *archive.Service
	Reconciler *archive.Reconciler
	Logger     archive.Logger

	logFile *os.File
}

// New creates a fully wired App from the given config. operation identifies
// the CLI command being run (e.g. "Execute", "Reconcile") and tags every log
// line. The caller must call Close when done.
func New(ctx context.Context, cfg *config.Config, operation string) (*App, error) {
	clock := archive.RealClock{}

	repo, err := database.NewRepositoryFromConfig(cfg.Database, clock)
	if err != nil {
		return nil, fmt.Errorf("creating repository: %w", err)
	}

	if err := repo.Migrate(); err != nil {
		repo.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}

	res, err := resolver.NewResolverFromConfig(ctx, cfg.Storage)
	if err != nil {
		repo.Close()
		return nil, fmt.Errorf("creating resolver: %w", err)
	}

	cat, err := newCatalog(ctx, cfg.Storage)
	if err != nil {
		repo.Close()
		return nil, fmt.Errorf("creating catalog: %w", err)
	}

	cutoff, err := cfg.CutoffTime()
	if err != nil {
		repo.Close()
		return nil, err
	}

	opID := time.Now().UTC().Format("20060102T150405Z")
	slogger, logFile, err := newLogger(cfg.LogDir, opID)
	if err != nil {
		repo.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger.With("op", operation)}

	hashTimeout := time.Duration(cfg.Checksum.TimeoutSeconds) * time.Second
	queue := database.NewSQLiteChecksumQueue(repo.DB(), clock)
	oracle := database.NewSQLiteUsageOracle(repo.DB(), clock)
	engine := archive.NewChecksumEngine(res, hashTimeout)
	gates := archive.NewGateValidator(res, oracle, hashTimeout)
	compliance := archive.NewComplianceClock(cutoff)

	svc := archive.NewService(archive.ServiceParams{
		Repo:              repo,
		Queue:             queue,
		Catalog:           cat,
		Gates:             gates,
		Engine:            engine,
		Resolver:          res,
		Compliance:        compliance,
		Logger:            logger,
		Clock:             clock,
		IDGen:             archive.UUIDGenerator{},
		AllowInUseExecute: cfg.Compliance.AllowInUseExecute,
		SyncChecksumLimit: cfg.Checksum.SyncLimitBytes,
	})

	rec := archive.NewReconciler(repo, gates, engine, compliance, clock, logger)

	return &App{
		Cfg:        cfg,
		Repo:       repo,
		Queue:      queue,
		Oracle:     oracle,
		Resolver:   res,
		Catalog:    cat,
		Engine:     engine,
		Gates:      gates,
		Compliance: compliance,
		Service:    svc,
		Reconciler: rec,
		Logger:     logger,
		logFile:    logFile,
	}, nil
}

// NewWorker creates a checksum worker wired to this app's queue and store.
func (a *App) NewWorker(id string) *archive.Worker {
	lease := time.Duration(a.Cfg.Checksum.LeaseSeconds) * time.Second
	poll := time.Duration(a.Cfg.Checksum.PollSeconds) * time.Second
	return archive.NewWorker(id, a.Queue, a.Repo, a.Engine, a.Logger, lease, poll)
}

// Close releases the database and the log file.
func (a *App) Close() error {
	var firstErr error
	if err := a.Repo.Close(); err != nil {
		firstErr = fmt.Errorf("closing database: %w", err)
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}

// newCatalog builds the asset catalog matching the storage backend.
func newCatalog(ctx context.Context, cfg config.StorageConfig) (archive.AssetCatalog, error) {
	switch cfg.Type {
	case "s3":
		return catalog.NewS3Catalog(ctx, cfg)
	default:
		root := cfg.Root
		if root == "" {
			root = "/"
		}
		return catalog.NewFilesystemCatalog(root)
	}
}
