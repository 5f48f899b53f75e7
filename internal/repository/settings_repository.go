package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/huandu/go-sqlbuilder"
	"github.com/jmoiron/sqlx"

	"variant-merger/internal/models"
)

const settingsKey = "operator_settings"

// SQLiteSettings implements SettingsRepository as a JSON value in the settings table
type SQLiteSettings struct {
	db       *sqlx.DB
	defaults models.Settings
	now      func() time.Time
}

// NewSQLiteSettings creates the settings store. defaults are returned until settings are saved.
func NewSQLiteSettings(db *sqlx.DB, defaults models.Settings) *SQLiteSettings {
	return &SQLiteSettings{db: db, defaults: defaults, now: time.Now}
}

// GetSettings returns the stored settings, or the defaults when none are stored
func (s *SQLiteSettings) GetSettings(ctx context.Context) (models.Settings, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("value").From("settings").Where(sb.Equal("key", settingsKey))
	query, args := sb.Build()

	var value string
	if err := s.db.GetContext(ctx, &value, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return s.defaults, nil
		}
		return models.Settings{}, fmt.Errorf("failed to get settings: %w", err)
	}

	var settings models.Settings
	if err := json.Unmarshal([]byte(value), &settings); err != nil {
		return models.Settings{}, fmt.Errorf("failed to decode settings: %w", err)
	}
	return settings, nil
}

// SaveSettings replaces the stored settings
func (s *SQLiteSettings) SaveSettings(ctx context.Context, settings models.Settings) error {
	return s.write(ctx, settings, true)
}

// SeedSettings stores defaults only when no settings exist yet
func (s *SQLiteSettings) SeedSettings(ctx context.Context, defaults models.Settings) error {
	return s.write(ctx, defaults, false)
}

func (s *SQLiteSettings) write(ctx context.Context, settings models.Settings, replace bool) error {
	value, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}

	ib := sqlbuilder.SQLite.NewInsertBuilder()
	if replace {
		ib.ReplaceInto("settings")
	} else {
		ib.InsertIgnoreInto("settings")
	}
	ib.Cols("key", "value", "updated_at")
	ib.Values(settingsKey, string(value), s.now().UnixMilli())
	query, args := ib.Build()

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}
