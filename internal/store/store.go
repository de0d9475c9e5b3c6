package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"marketobs/internal/model"
)

// Store owns the sqlite database. All pipeline writes go through a single
// transaction per cycle (see Transaction).
type Store struct {
	db *gorm.DB
}

// Open connects to the sqlite database at path and bootstraps the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	if err := s.db.AutoMigrate(
		&model.WatchlistEntry{},
		&model.PriceSnapshot{},
		&model.NewsItem{},
		&model.Analysis{},
	); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	// gorm cannot express the IFNULL columns of the dedupe index.
	return s.db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_news_items_dedupe
		ON news_items (ticker, headline, IFNULL(url, ''), IFNULL(published_at, ''))
	`).Error
}

// Transaction runs fn against a tx-scoped store; all writes commit together.
func (s *Store) Transaction(fn func(tx *Store) error) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

// Watchlist

func (s *Store) ListTickers() ([]string, error) {
	var tickers []string
	err := s.db.Model(&model.WatchlistEntry{}).
		Order("ticker ASC").
		Pluck("ticker", &tickers).Error
	if err != nil {
		return nil, err
	}
	for i, t := range tickers {
		tickers[i] = model.NormalizeTicker(t)
	}
	return tickers, nil
}

var ErrDuplicateTicker = errors.New("ticker already on watchlist")

func (s *Store) AddTicker(ticker string) (*model.WatchlistEntry, error) {
	entry := model.WatchlistEntry{
		Ticker:    model.NormalizeTicker(ticker),
		CreatedAt: model.UTCNow(),
	}
	res := s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&entry)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrDuplicateTicker
	}
	return &entry, nil
}

func (s *Store) RemoveTicker(ticker string) (bool, error) {
	res := s.db.Where("ticker = ?", model.NormalizeTicker(ticker)).
		Delete(&model.WatchlistEntry{})
	return res.RowsAffected > 0, res.Error
}

// Pipeline writes

func (s *Store) InsertSnapshot(snap *model.PriceSnapshot) error {
	return s.db.Create(snap).Error
}

// PreviousPrice returns the price of the most recent snapshot for ticker,
// or nil when none exists.
func (s *Store) PreviousPrice(ticker string) (*float64, error) {
	var snap model.PriceSnapshot
	err := s.db.Where("ticker = ?", ticker).
		Order("captured_at DESC, id DESC").
		First(&snap).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return snap.Price, nil
}

// InsertNewsIgnoreDup appends a news row unless the dedupe tuple already
// exists. Reports whether a row was actually written.
func (s *Store) InsertNewsIgnoreDup(item *model.NewsItem) (bool, error) {
	res := s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(item)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) InsertAnalysis(a *model.Analysis) error {
	return s.db.Create(a).Error
}

// Read projections for the query API

func (s *Store) LatestAnalysis(ticker string) (*model.Analysis, error) {
	var a model.Analysis
	err := s.db.Where("ticker = ?", ticker).
		Order("created_at DESC, id DESC").
		First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) Analyses(ticker string, limit int) ([]model.Analysis, error) {
	var out []model.Analysis
	err := s.db.Where("ticker = ?", ticker).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (s *Store) Prices(ticker string, limit, offset int) ([]model.PriceSnapshot, int64, error) {
	q := s.db.Model(&model.PriceSnapshot{})
	if ticker != "" {
		q = q.Where("ticker = ?", ticker)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var out []model.PriceSnapshot
	err := q.Order("captured_at DESC, id DESC").
		Limit(limit).Offset(offset).
		Find(&out).Error
	return out, total, err
}

func (s *Store) News(ticker string, limit, offset int) ([]model.NewsItem, int64, error) {
	q := s.db.Model(&model.NewsItem{})
	if ticker != "" {
		q = q.Where("ticker = ?", ticker)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var out []model.NewsItem
	err := q.Order("fetched_at DESC, id DESC").
		Limit(limit).Offset(offset).
		Find(&out).Error
	return out, total, err
}
