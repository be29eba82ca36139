package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"
)

const (
	SettingSprintStart          = "sprint_start"
	SettingSprintLengthDays     = "sprint_length_days"
	SettingAutoAssignLimit      = "auto_assign_limit"
	SettingHighUtilizationPct   = "high_utilization_pct"
	SettingAtCapacityPct        = "at_capacity_pct"
	SettingDefaultCapacityHours = "default_capacity_hours"
)

func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	return getSetting(ctx, s.db, key)
}

func getSetting(ctx context.Context, exec executor, key string) (string, error) {
	var value string
	err := exec.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("setting %q: %w", key, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("get setting %q: %w", key, err)
	}
	return value, nil
}

// GetFloatSetting parses a numeric setting, falling back to def when it is unset or blank.
func (s *Store) GetFloatSetting(ctx context.Context, key string, def float64) (float64, error) {
	v, err := s.GetSetting(ctx, key)
	if errors.Is(err, ErrNotFound) || (err == nil && v == "") {
		return def, nil
	}
	if err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("setting %q: %w", key, err)
	}
	return f, nil
}

func (s *Store) GetIntSetting(ctx context.Context, key string, def int) (int, error) {
	f, err := s.GetFloatSetting(ctx, key, float64(def))
	if err != nil {
		return 0, err
	}
	return int(f), nil
}

// ValidateSetting checks a value for one of the planning settings. Keys
// outside the planning set are rejected.
func ValidateSetting(key, value string) error {
	switch key {
	case SettingSprintStart:
		if value == "" {
			return nil
		}
		if _, err := time.Parse(time.DateOnly, value); err != nil {
			return fmt.Errorf("%s must be YYYY-MM-DD: %w", key, ErrInvalid)
		}
	case SettingSprintLengthDays, SettingAutoAssignLimit:
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 {
			return fmt.Errorf("%s must be a positive whole number: %w", key, ErrInvalid)
		}
	case SettingHighUtilizationPct, SettingAtCapacityPct:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil || f <= 0 || f > 100 {
			return fmt.Errorf("%s must be a percentage above 0 and at most 100: %w", key, ErrInvalid)
		}
	case SettingDefaultCapacityHours:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil || f < 0 {
			return fmt.Errorf("%s must be a non-negative number: %w", key, ErrInvalid)
		}
	default:
		return fmt.Errorf("unknown setting %q: %w", key, ErrInvalid)
	}
	return nil
}

// ValidateThresholds requires 0 < high < at <= 100 so every utilization band is reachable.
func ValidateThresholds(high, at float64) error {
	if high <= 0 || at > 100 || high >= at {
		return fmt.Errorf("%s (%g) must be above 0 and below %s (%g), which must be at most 100: %w",
			SettingHighUtilizationPct, high, SettingAtCapacityPct, at, ErrInvalid)
	}
	return nil
}

// SetSetting writes a raw value. Callers taking user input go through SetSettings.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	return setSetting(ctx, s.db, key, value)
}

func setSetting(ctx context.Context, exec executor, key, value string) error {
	_, err := exec.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("set setting %q: %w", key, err)
	}
	return nil
}

// SetSettings validates and writes a batch of planning settings atomically.
// The utilization thresholds are checked as a pair against the stored values,
// so raising both in one call works even when either change alone would not.
func (s *Store) SetSettings(ctx context.Context, values map[string]string) error {
	for k, v := range values {
		if err := ValidateSetting(k, v); err != nil {
			return err
		}
	}
	return s.InTx(ctx, func(tx *Tx) error {
		_, hasHigh := values[SettingHighUtilizationPct]
		_, hasAt := values[SettingAtCapacityPct]
		if hasHigh || hasAt {
			high, err := thresholdValue(ctx, tx.tx, values, SettingHighUtilizationPct, 70)
			if err != nil {
				return err
			}
			at, err := thresholdValue(ctx, tx.tx, values, SettingAtCapacityPct, 90)
			if err != nil {
				return err
			}
			if err := ValidateThresholds(high, at); err != nil {
				return err
			}
		}
		for k, v := range values {
			if err := setSetting(ctx, tx.tx, k, v); err != nil {
				return err
			}
		}
		return nil
	})
}

// thresholdValue prefers the pending value for key, then the stored one, then def.
func thresholdValue(ctx context.Context, exec executor, pending map[string]string, key string, def float64) (float64, error) {
	v, ok := pending[key]
	if !ok {
		stored, err := getSetting(ctx, exec, key)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return 0, err
		}
		v = stored
	}
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		// A corrupt stored value is replaced by the default for the pair check.
		return def, nil
	}
	return f, nil
}

func (s *Store) GetAllSettings(ctx context.Context) ([]Setting, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM settings ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	defer rows.Close()

	var settings []Setting
	for rows.Next() {
		var s Setting
		if err := rows.Scan(&s.Key, &s.Value); err != nil {
			return nil, err
		}
		settings = append(settings, s)
	}
	return settings, rows.Err()
}
