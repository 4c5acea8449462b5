// interfaces.go: this code defines the interface for the database operations
package datastore

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tphakala/birdnet-artifacts/internal/conf"
	"github.com/tphakala/birdnet-artifacts/internal/errors"
	"github.com/tphakala/birdnet-artifacts/internal/logger"
)

// Interface abstracts the underlying database implementation and defines the
// operations the artifact pipeline and the viewer API need.
type Interface interface {
	Open() error
	Close() error

	// pipeline
	PendingWork(ctx context.Context) ([]WorkItem, error)
	WorkItemByID(ctx context.Context, id uint) (*WorkItem, error)
	UpdateArtifactPaths(ctx context.Context, id uint, audioPath, spectrogramPath *string) (int64, error)
	ProgressCounts(ctx context.Context) (ProgressCounts, error)

	// viewer
	Sessions(ctx context.Context) ([]SessionSummary, error)
	ListDetections(ctx context.Context, filter DetectionFilter) ([]Detection, error)
	GetDetection(ctx context.Context, id uint) (*Detection, error)
	UpdateQualityStatus(ctx context.Context, id uint, status QualityStatus, notes string) (int64, error)
	QualityCounts(ctx context.Context) (QualityCounts, error)
	Overview(ctx context.Context) (Overview, error)

	Insert(ctx context.Context, d *Detection) error
}

// DataStore implements Interface using a GORM database.
type DataStore struct {
	DB       *gorm.DB // GORM database instance
	Settings *conf.Settings
	now      func() time.Time
}

// New creates a new store for the configured database type. The store must
// be opened before use.
func New(settings *conf.Settings) (Interface, error) {
	switch settings.Database.Type {
	case "sqlite", "":
		return &SQLiteStore{DataStore: DataStore{Settings: settings}}, nil
	case "mysql":
		return &MySQLStore{DataStore: DataStore{Settings: settings}}, nil
	default:
		return nil, errors.Newf("unsupported database type %q", settings.Database.Type).
			Component("datastore").
			Category(errors.CategoryConfiguration).
			Context("database_type", settings.Database.Type).
			Build()
	}
}

// GetLogger returns the datastore module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("datastore")
}

// gormConfig routes GORM logging through the central logger.
func gormConfig(settings *conf.Settings) *gorm.Config {
	var threshold time.Duration
	if settings != nil {
		threshold = settings.Database.SlowQueryThreshold
	}
	return &gorm.Config{
		Logger: logger.NewGormLoggerAdapter(GetLogger(), threshold),
	}
}

// performAutoMigration creates or updates the detection table.
func performAutoMigration(db *gorm.DB, dbType, connectionInfo string) error {
	start := time.Now()
	if err := db.AutoMigrate(&Detection{}); err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "auto_migrate").
			Context("db_type", dbType).
			Build()
	}

	GetLogger().Debug("database schema ready",
		logger.String("db_type", dbType),
		logger.String("connection", connectionInfo),
		logger.Duration("duration", time.Since(start)))
	return nil
}

// Close releases the underlying connection pool.
func (ds *DataStore) Close() error {
	if ds.DB == nil {
		return nil
	}
	sqlDB, err := ds.DB.DB()
	if err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "close").
			Build()
	}
	return sqlDB.Close()
}

func (ds *DataStore) clock() time.Time {
	if ds.now != nil {
		return ds.now()
	}
	return time.Now()
}

func (ds *DataStore) ready() error {
	if ds.DB == nil {
		return errors.Newf("database connection is not initialized").
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	return nil
}
