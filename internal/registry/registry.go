// Package registry persists fitted forecasters with their metrics and schema and
// tracks which version is in production.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/AliyaAkhtar/AQI-PREDICTION/internal/airquality"
)

// modelVersion is one registered artifact.
type modelVersion struct {
	ID           uint   `gorm:"primaryKey"`
	Name         string `gorm:"size:128;not null;uniqueIndex:idx_model_versions_name_version"`
	Version      int    `gorm:"not null;uniqueIndex:idx_model_versions_name_version"`
	RunID        string `gorm:"size:64;index"`
	RunName      string `gorm:"size:128"`
	Candidate    string `gorm:"size:64"`
	Stage        string `gorm:"size:16;not null;index"`
	Params       string `gorm:"type:text"`
	MAE24        float64
	MAE48        float64
	MAE72        float64
	RMSE24       float64
	RMSE48       float64
	RMSE72       float64
	RMSEAvg      float64
	InputSchema  string `gorm:"type:text"`
	OutputSchema string `gorm:"type:text"`
	Artifact     []byte
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (modelVersion) TableName() string {
	return "model_versions"
}

// Registry is a gorm-backed model registry.
type Registry struct {
	db    *gorm.DB
	clock clockwork.Clock
}

// Open connects with driver "sqlite" or "postgres" and migrates the schema.
func Open(driver, dsn string, clock clockwork.Clock) (*Registry, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported registry driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open registry: %w", err)
	}
	if driver == "sqlite" {
		// one writer; also keeps ":memory:" databases shared
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return New(db, clock)
}

// New wraps an existing connection and migrates the schema.
func New(db *gorm.DB, clock clockwork.Clock) (*Registry, error) {
	if err := db.AutoMigrate(&modelVersion{}); err != nil {
		return nil, fmt.Errorf("migrate registry: %w", err)
	}
	return &Registry{db: db, clock: clock}, nil
}

// Close releases the underlying connection pool.
func (r *Registry) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Register stores run and its artifact as the next version of run.Name in the
// staged stage. The returned run carries the assigned version.
func (r *Registry) Register(ctx context.Context, run airquality.ModelRun, artifact []byte) (airquality.ModelRun, error) {
	params, err := json.Marshal(run.Params)
	if err != nil {
		return run, fmt.Errorf("encode params: %w", err)
	}
	input, err := json.Marshal(run.FeatureNames)
	if err != nil {
		return run, fmt.Errorf("encode input schema: %w", err)
	}
	output, err := json.Marshal(run.Targets)
	if err != nil {
		return run, fmt.Errorf("encode output schema: %w", err)
	}

	rec := modelVersion{
		Name:         run.Name,
		RunID:        run.RunID,
		RunName:      run.RunName,
		Candidate:    run.Candidate,
		Stage:        string(airquality.StageStaged),
		Params:       string(params),
		MAE24:        run.Metrics.MAE24,
		MAE48:        run.Metrics.MAE48,
		MAE72:        run.Metrics.MAE72,
		RMSE24:       run.Metrics.RMSE24,
		RMSE48:       run.Metrics.RMSE48,
		RMSE72:       run.Metrics.RMSE72,
		RMSEAvg:      run.Metrics.RMSEAvg,
		InputSchema:  string(input),
		OutputSchema: string(output),
		Artifact:     artifact,
		CreatedAt:    r.clock.Now().UTC(),
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var latest int
		if err := tx.Model(&modelVersion{}).
			Where("name = ?", run.Name).
			Select("COALESCE(MAX(version), 0)").
			Scan(&latest).Error; err != nil {
			return err
		}
		rec.Version = latest + 1
		return tx.Create(&rec).Error
	})
	if err != nil {
		return run, fmt.Errorf("register %s: %w", run.Name, err)
	}
	return toRun(rec)
}

// List returns every version of name, oldest first.
func (r *Registry) List(ctx context.Context, name string) ([]airquality.ModelRun, error) {
	var recs []modelVersion
	if err := r.db.WithContext(ctx).
		Omit("artifact").
		Where("name = ?", name).
		Order("version ASC").
		Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list %s: %w", name, err)
	}

	runs := make([]airquality.ModelRun, 0, len(recs))
	for _, rec := range recs {
		run, err := toRun(rec)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, nil
}

// Production returns the version of name currently in production.
func (r *Registry) Production(ctx context.Context, name string) (airquality.ModelRun, error) {
	var rec modelVersion
	err := r.db.WithContext(ctx).
		Omit("artifact").
		Where("name = ? AND stage = ?", name, string(airquality.StageProduction)).
		Order("version DESC").
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return airquality.ModelRun{}, fmt.Errorf("%w: %s", airquality.ErrNoProductionModel, name)
	}
	if err != nil {
		return airquality.ModelRun{}, fmt.Errorf("load production %s: %w", name, err)
	}
	return toRun(rec)
}

// Artifact returns the serialized forecaster of a version.
func (r *Registry) Artifact(ctx context.Context, name string, version int) ([]byte, error) {
	var rec modelVersion
	err := r.db.WithContext(ctx).
		Select("artifact").
		Where("name = ? AND version = ?", name, version).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s v%d", airquality.ErrNotFound, name, version)
	}
	if err != nil {
		return nil, fmt.Errorf("load artifact %s v%d: %w", name, version, err)
	}
	return rec.Artifact, nil
}

// Promote moves version to production and archives the previous holder in one
// transaction, so exactly one version is in production afterwards.
func (r *Registry) Promote(ctx context.Context, name string, version int) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&modelVersion{}).
			Where("name = ? AND version = ?", name, version).
			Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return fmt.Errorf("%w: %s v%d", airquality.ErrNotFound, name, version)
		}

		if err := tx.Model(&modelVersion{}).
			Where("name = ? AND stage = ? AND version <> ?", name, string(airquality.StageProduction), version).
			Update("stage", string(airquality.StageArchived)).Error; err != nil {
			return fmt.Errorf("archive previous production: %w", err)
		}
		if err := tx.Model(&modelVersion{}).
			Where("name = ? AND version = ?", name, version).
			Update("stage", string(airquality.StageProduction)).Error; err != nil {
			return fmt.Errorf("promote %s v%d: %w", name, version, err)
		}
		return nil
	})
}

func toRun(rec modelVersion) (airquality.ModelRun, error) {
	run := airquality.ModelRun{
		Name:      rec.Name,
		Version:   rec.Version,
		RunID:     rec.RunID,
		RunName:   rec.RunName,
		Candidate: rec.Candidate,
		Stage:     airquality.Stage(rec.Stage),
		Metrics: airquality.HorizonMetrics{
			MAE24:   rec.MAE24,
			MAE48:   rec.MAE48,
			MAE72:   rec.MAE72,
			RMSE24:  rec.RMSE24,
			RMSE48:  rec.RMSE48,
			RMSE72:  rec.RMSE72,
			RMSEAvg: rec.RMSEAvg,
		},
		CreatedAt: rec.CreatedAt.UTC(),
	}
	if rec.Params != "" {
		if err := json.Unmarshal([]byte(rec.Params), &run.Params); err != nil {
			return run, fmt.Errorf("decode params of %s v%d: %w", rec.Name, rec.Version, err)
		}
	}
	if rec.InputSchema != "" {
		if err := json.Unmarshal([]byte(rec.InputSchema), &run.FeatureNames); err != nil {
			return run, fmt.Errorf("decode input schema of %s v%d: %w", rec.Name, rec.Version, err)
		}
	}
	if rec.OutputSchema != "" {
		if err := json.Unmarshal([]byte(rec.OutputSchema), &run.Targets); err != nil {
			return run, fmt.Errorf("decode output schema of %s v%d: %w", rec.Name, rec.Version, err)
		}
	}
	return run, nil
}
