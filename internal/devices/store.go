// Package devices owns the device registry: sqlite persistence with
// encrypted credentials, the status cache, and the lifecycle service
// that ties device creation/deletion to gateway reconciliation.
package devices

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/HerbHall/wispwatch/internal/vault"
	"github.com/HerbHall/wispwatch/pkg/models"
)

// ErrNotFound is returned when a device id has no row.
var ErrNotFound = errors.New("device not found")

// Store persists device descriptors. Passwords are encrypted with the
// vault codec before they touch the database; List returns descriptors
// without credentials, GetWithCredentials decrypts on the way out.
type Store struct {
	db    *sql.DB
	codec *vault.Codec
}

// NewStore creates a device store over the shared database.
func NewStore(db *sql.DB, codec *vault.Codec) *Store {
	return &Store{db: db, codec: codec}
}

const deviceColumns = `id, name, family, host, username, password_enc,
	inner_ip, nat_port, tunnel_ip,
	poll_interval_sec, retry_attempts, retry_delay_sec,
	notify_json, created_at, updated_at`

// Insert stores a new device, encrypting its password.
func (s *Store) Insert(ctx context.Context, dev *models.Device) error {
	enc, err := s.codec.Encrypt(dev.Password)
	if err != nil {
		return fmt.Errorf("encrypt credentials: %w", err)
	}
	notify, err := json.Marshal(dev.Notify)
	if err != nil {
		return fmt.Errorf("marshal notify settings: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO devices (`+deviceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		dev.ID, dev.Name, string(dev.Family), dev.Host, dev.Username, enc,
		dev.InnerIP, dev.NATPort, dev.TunnelIP,
		int(dev.PollInterval.Seconds()), dev.RetryAttempts, int(dev.RetryDelay.Seconds()),
		string(notify), dev.CreatedAt, dev.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert device %s: %w", dev.ID, err)
	}
	return nil
}

// Update rewrites a device's mutable fields. The family column is
// deliberately not part of the statement: family is immutable. An
// empty Password keeps the stored credential; updates rarely carry
// the password, and overwriting it with an encrypted empty string
// would lock the poller out of the device.
func (s *Store) Update(ctx context.Context, dev *models.Device) error {
	notify, err := json.Marshal(dev.Notify)
	if err != nil {
		return fmt.Errorf("marshal notify settings: %w", err)
	}

	passwordSet := "password_enc = password_enc,"
	args := []any{dev.Name, dev.Host, dev.Username}
	if dev.Password != "" {
		enc, err := s.codec.Encrypt(dev.Password)
		if err != nil {
			return fmt.Errorf("encrypt credentials: %w", err)
		}
		passwordSet = "password_enc = ?,"
		args = append(args, enc)
	}
	args = append(args,
		dev.InnerIP, dev.NATPort, dev.TunnelIP,
		int(dev.PollInterval.Seconds()), dev.RetryAttempts, int(dev.RetryDelay.Seconds()),
		string(notify), dev.ID,
	)

	res, err := s.db.ExecContext(ctx, `
		UPDATE devices SET
			name = ?, host = ?, username = ?, `+passwordSet+`
			inner_ip = ?, nat_port = ?, tunnel_ip = ?,
			poll_interval_sec = ?, retry_attempts = ?, retry_delay_sec = ?,
			notify_json = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("update device %s: %w", dev.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a device; the status cache row goes with it.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM devices WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete device %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns all devices without credentials.
func (s *Store) List(ctx context.Context) ([]models.Device, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+deviceColumns+" FROM devices ORDER BY created_at, id")
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer rows.Close()

	var out []models.Device
	for rows.Next() {
		dev, _, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, dev)
	}
	return out, rows.Err()
}

// GetWithCredentials returns one device with its password decrypted.
func (s *Store) GetWithCredentials(ctx context.Context, id string) (models.Device, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+deviceColumns+" FROM devices WHERE id = ?", id)
	dev, enc, err := scanDevice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Device{}, ErrNotFound
	}
	if err != nil {
		return models.Device{}, err
	}

	dev.Password, err = s.codec.Decrypt(enc)
	if err != nil {
		return models.Device{}, fmt.Errorf("decrypt credentials for %s: %w", id, err)
	}
	return dev, nil
}

// UpdateCache records the latest poll outcome for a device.
func (s *Store) UpdateCache(ctx context.Context, deviceID string, status models.DeviceStatus, metrics models.Metrics) error {
	blob, err := json.Marshal(metrics)
	if err != nil {
		return fmt.Errorf("marshal metrics: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO status_cache (device_id, status, metrics_json, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(device_id) DO UPDATE SET
			status = excluded.status,
			metrics_json = excluded.metrics_json,
			updated_at = CURRENT_TIMESTAMP`,
		deviceID, string(status), string(blob),
	)
	if err != nil {
		return fmt.Errorf("update status cache for %s: %w", deviceID, err)
	}
	return nil
}

// CachedStatus reads back the cached state of a device.
func (s *Store) CachedStatus(ctx context.Context, deviceID string) (models.DeviceStatus, models.Metrics, error) {
	var status string
	var blob string
	err := s.db.QueryRowContext(ctx,
		"SELECT status, metrics_json FROM status_cache WHERE device_id = ?", deviceID,
	).Scan(&status, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return models.StatusUnknown, models.Metrics{}, nil
	}
	if err != nil {
		return "", models.Metrics{}, fmt.Errorf("read status cache for %s: %w", deviceID, err)
	}

	var metrics models.Metrics
	if err := json.Unmarshal([]byte(blob), &metrics); err != nil {
		return "", models.Metrics{}, fmt.Errorf("unmarshal cached metrics for %s: %w", deviceID, err)
	}
	return models.DeviceStatus(status), metrics, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(row rowScanner) (models.Device, string, error) {
	var dev models.Device
	var family, enc, notify string
	var intervalSec, delaySec int

	err := row.Scan(
		&dev.ID, &dev.Name, &family, &dev.Host, &dev.Username, &enc,
		&dev.InnerIP, &dev.NATPort, &dev.TunnelIP,
		&intervalSec, &dev.RetryAttempts, &delaySec,
		&notify, &dev.CreatedAt, &dev.UpdatedAt,
	)
	if err != nil {
		return models.Device{}, "", err
	}

	dev.Family = models.DeviceFamily(family)
	dev.PollInterval = time.Duration(intervalSec) * time.Second
	dev.RetryDelay = time.Duration(delaySec) * time.Second
	if err := json.Unmarshal([]byte(notify), &dev.Notify); err != nil {
		return models.Device{}, "", fmt.Errorf("unmarshal notify settings for %s: %w", dev.ID, err)
	}
	return dev, enc, nil
}
