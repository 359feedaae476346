// Package database keeps the download history and resolved links in SQLite.
package database

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
	"moul.io/zapgorm2"

	media_fetch "github.com/alanbriolat/media-fetch"
	"github.com/alanbriolat/media-fetch/internal/session"
	"github.com/alanbriolat/media-fetch/resolve"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

type Database struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

func NewDatabase(path string) (*Database, error) {
	logger := zapgorm2.New(zap.L().Named("gorm"))
	logger.IgnoreRecordNotFoundError = true
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, err
	}
	return &Database{db, zap.S().Named("database")}, nil
}

// Open is NewDatabase followed by Migrate.
func Open(path string) (*Database, error) {
	d, err := NewDatabase(path)
	if err != nil {
		return nil, err
	}
	if err := d.Migrate(); err != nil {
		d.Close()
		return nil, fmt.Errorf("failed to migrate %v: %w", path, err)
	}
	return d, nil
}

func (d *Database) Migrate() error {
	d.log.Debug("running database migrations")
	fs, err := iofs.New(embedMigrations, "migrations")
	if err != nil {
		return err
	}
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	driver, err := sqlite3.WithInstance(sqlDB, &sqlite3.Config{})
	if err != nil {
		return err
	}
	m, err := migrate.NewWithInstance("iofs", fs, "sqlite3", driver)
	if err != nil {
		return err
	}
	err = m.Up()
	switch err {
	case nil:
		d.log.Info("database migration complete")
	case migrate.ErrNoChange:
		d.log.Debug("no database migration required")
	default:
		return err
	}
	return nil
}

func (d *Database) Close() {
	if sqlDB, err := d.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

type Download struct {
	ID          string `gorm:"primaryKey"`
	URL         string
	SavePath    string
	Filename    string
	AddedAt     time.Time
	Status      string
	Error       string
	ResolvedURL string
	Redirects   int
	Platform    string
	Provider    string
	Name        string
	SelectedURL string
	Degraded    string
	Path        string
	Bytes       int64
	// JSON encoded media_fetch.Candidates, empty if none were supplied
	Candidates string
}

func (Download) TableName() string {
	return "download"
}

func downloadFromState(s *session.DownloadPersistentState) (Download, error) {
	var candidates string
	if s.Candidates != nil {
		data, err := json.Marshal(s.Candidates)
		if err != nil {
			return Download{}, err
		}
		candidates = string(data)
	}
	return Download{
		ID:          string(s.ID),
		URL:         s.URL,
		SavePath:    s.SavePath,
		Filename:    s.Filename,
		AddedAt:     s.AddedAt,
		Status:      string(s.Status),
		Error:       s.Error,
		ResolvedURL: s.ResolvedURL,
		Redirects:   s.Redirects,
		Platform:    string(s.Platform),
		Provider:    s.Provider,
		Name:        s.Name,
		SelectedURL: s.SelectedURL,
		Degraded:    s.Degraded,
		Path:        s.Path,
		Bytes:       s.Bytes,
		Candidates:  candidates,
	}, nil
}

func (r Download) State() (session.DownloadPersistentState, error) {
	state := session.DownloadPersistentState{
		ID:          session.DownloadID(r.ID),
		URL:         r.URL,
		SavePath:    r.SavePath,
		Filename:    r.Filename,
		AddedAt:     r.AddedAt,
		Status:      session.DownloadStatus(r.Status),
		Error:       r.Error,
		ResolvedURL: r.ResolvedURL,
		Redirects:   r.Redirects,
		Platform:    media_fetch.Platform(r.Platform),
		Provider:    r.Provider,
		Name:        r.Name,
		SelectedURL: r.SelectedURL,
		Degraded:    r.Degraded,
		Path:        r.Path,
		Bytes:       r.Bytes,
	}
	if r.Candidates != "" {
		state.Candidates = &media_fetch.Candidates{}
		if err := json.Unmarshal([]byte(r.Candidates), state.Candidates); err != nil {
			return state, fmt.Errorf("invalid candidates of download %v: %w", r.ID, err)
		}
	}
	return state, nil
}

type Link struct {
	ShortURL   string `gorm:"primaryKey"`
	URL        string
	Redirects  int
	Stop       string
	Error      string
	ResolvedAt time.Time
}

func (Link) TableName() string {
	return "link"
}

// ListDownloads returns every download, oldest first.
func (d *Database) ListDownloads() ([]session.DownloadPersistentState, error) {
	return d.findDownloads(d.db.Order("added_at"))
}

// RecentDownloads returns up to limit downloads, newest first, optionally only those with the given status.
func (d *Database) RecentDownloads(limit int, status session.DownloadStatus) ([]session.DownloadPersistentState, error) {
	query := d.db.Order("added_at DESC").Limit(limit)
	if status != session.DownloadStatusUndefined {
		query = query.Where("status = ?", string(status))
	}
	return d.findDownloads(query)
}

func (d *Database) findDownloads(query *gorm.DB) ([]session.DownloadPersistentState, error) {
	var rows []Download
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	states := make([]session.DownloadPersistentState, len(rows))
	for i, row := range rows {
		var err error
		if states[i], err = row.State(); err != nil {
			return nil, err
		}
	}
	return states, nil
}

// WriteDownload inserts the download or replaces the existing row with the same ID.
func (d *Database) WriteDownload(state *session.DownloadPersistentState) error {
	row, err := downloadFromState(state)
	if err != nil {
		return err
	}
	return d.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
}

func (d *Database) DeleteDownload(state *session.DownloadPersistentState) error {
	return d.db.Delete(&Download{}, "id = ?", string(state.ID)).Error
}

// GetLink returns (nil, nil) if the error is only that no such row exists.
func (d *Database) GetLink(shortURL string) (*resolve.CanonicalLink, error) {
	var row Link
	if err := d.db.Where("short_url = ?", shortURL).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		} else {
			return nil, err
		}
	}
	return &resolve.CanonicalLink{
		ShortURL:  row.ShortURL,
		URL:       row.URL,
		Redirects: row.Redirects,
		Stop:      resolve.StopReason(row.Stop),
		Err:       row.Error,
	}, nil
}

func (d *Database) PutLink(link *resolve.CanonicalLink) error {
	row := Link{
		ShortURL:   link.ShortURL,
		URL:        link.URL,
		Redirects:  link.Redirects,
		Stop:       string(link.Stop),
		Error:      link.Err,
		ResolvedAt: time.Now().UTC(),
	}
	return d.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
}
