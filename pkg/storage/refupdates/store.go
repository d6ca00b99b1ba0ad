package refupdates

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gerritevents/pkg/storage"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const defaultTable = "gerritevents_ref_updates"

// Config mirrors the storage configuration for the ref updates table.
type Config struct {
	Driver      string
	DSN         string
	Dialect     string
	Table       string
	AutoMigrate bool
}

// Store implements storage.RefUpdateStore on top of GORM.
type Store struct {
	db    *gorm.DB
	table string
}

var _ storage.RefUpdateStore = (*Store)(nil)

type row struct {
	ID             uint64     `gorm:"column:id;primaryKey;autoIncrement"`
	Project        string     `gorm:"column:project;size:255;not null;index:idx_ref_updates_project_ref"`
	RefName        string     `gorm:"column:ref_name;size:255;not null;index:idx_ref_updates_project_ref"`
	Ref            string     `gorm:"column:ref;size:300"`
	OldRev         string     `gorm:"column:old_rev;size:64"`
	NewRev         string     `gorm:"column:new_rev;size:64"`
	Submitter      string     `gorm:"column:submitter;size:255"`
	RequestID      string     `gorm:"column:request_id;size:128"`
	EventCreatedOn *time.Time `gorm:"column:event_created_on"`
	CreatedAt      time.Time  `gorm:"column:created_at;autoCreateTime"`
}

// Open creates a GORM-backed ref updates store.
func Open(cfg Config) (*Store, error) {
	if cfg.Driver == "" && cfg.Dialect == "" {
		return nil, errors.New("storage driver or dialect is required")
	}
	if cfg.DSN == "" {
		return nil, errors.New("storage dsn is required")
	}
	driver := normalizeDriver(cfg.Driver)
	if driver == "" {
		driver = normalizeDriver(cfg.Dialect)
	}
	if driver == "" {
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Driver)
	}

	gormDB, err := openGorm(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s storage: %w", driver, err)
	}

	table := strings.TrimSpace(cfg.Table)
	if table == "" {
		table = defaultTable
	}
	store := &Store{db: gormDB, table: table}
	if cfg.AutoMigrate {
		if err := store.tableDB().AutoMigrate(&row{}); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("migrate %s: %w", table, err)
		}
	}
	return store, nil
}

// Close closes the underlying DB connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveRefUpdate appends a ref update. Every update is kept, so a ref's
// history can be listed later.
func (s *Store) SaveRefUpdate(ctx context.Context, record storage.RefUpdateRecord) error {
	if s == nil || s.db == nil {
		return errors.New("store is not initialized")
	}
	if record.Project == "" {
		return errors.New("project is required")
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	// Timestamps are stored in UTC so that range filters compare correctly on
	// drivers that keep them as text.
	record.CreatedAt = record.CreatedAt.UTC()
	data := toRow(record)
	data.ID = 0
	return s.tableDB().WithContext(ctx).Create(&data).Error
}

// LatestRefUpdate returns the most recent update of refName in project, or
// nil when none was stored.
func (s *Store) LatestRefUpdate(ctx context.Context, project, refName string) (*storage.RefUpdateRecord, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	var data row
	err := s.tableDB().
		WithContext(ctx).
		Where("project = ? AND ref_name = ?", project, refName).
		Order("created_at desc").
		Order("id desc").
		Take(&data).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	record := fromRow(data)
	return &record, nil
}

// ListRefUpdates lists updates matching filter, newest first.
func (s *Store) ListRefUpdates(ctx context.Context, filter storage.RefUpdateFilter) ([]storage.RefUpdateRecord, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	query := s.tableDB().WithContext(ctx)
	if filter.Project != "" {
		query = query.Where("project = ?", filter.Project)
	}
	if filter.RefName != "" {
		query = query.Where("ref_name = ?", filter.RefName)
	}
	if filter.Since != nil {
		query = query.Where("created_at >= ?", filter.Since.UTC())
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var data []row
	if err := query.Order("created_at desc").Order("id desc").Find(&data).Error; err != nil {
		return nil, err
	}
	records := make([]storage.RefUpdateRecord, 0, len(data))
	for _, item := range data {
		records = append(records, fromRow(item))
	}
	return records, nil
}

func (s *Store) tableDB() *gorm.DB {
	return s.db.Table(s.table)
}

func toRow(record storage.RefUpdateRecord) row {
	return row{
		ID:             record.ID,
		Project:        record.Project,
		RefName:        record.RefName,
		Ref:            record.Ref,
		OldRev:         record.OldRev,
		NewRev:         record.NewRev,
		Submitter:      record.Submitter,
		RequestID:      record.RequestID,
		EventCreatedOn: record.EventCreatedOn,
		CreatedAt:      record.CreatedAt,
	}
}

func fromRow(data row) storage.RefUpdateRecord {
	return storage.RefUpdateRecord{
		ID:             data.ID,
		Project:        data.Project,
		RefName:        data.RefName,
		Ref:            data.Ref,
		OldRev:         data.OldRev,
		NewRev:         data.NewRev,
		Submitter:      data.Submitter,
		RequestID:      data.RequestID,
		EventCreatedOn: data.EventCreatedOn,
		CreatedAt:      data.CreatedAt,
	}
}

func normalizeDriver(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "postgres", "postgresql", "pgx":
		return "postgres"
	case "mysql":
		return "mysql"
	case "sqlite", "sqlite3":
		return "sqlite"
	default:
		return ""
	}
}

func openGorm(driver, dsn string) (*gorm.DB, error) {
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)}
	switch driver {
	case "postgres":
		return gorm.Open(postgres.Open(dsn), cfg)
	case "mysql":
		return gorm.Open(mysql.Open(dsn), cfg)
	case "sqlite":
		return gorm.Open(sqlite.Open(dsn), cfg)
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", driver)
	}
}
