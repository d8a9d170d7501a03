package devices

import (
	"database/sql"

	"github.com/HerbHall/wispwatch/internal/store"
)

// Migrations returns the device registry's schema migrations.
func Migrations() []store.Migration {
	return []store.Migration{
		{
			Version:     1,
			Description: "create device registry and status cache",
			Up: func(tx *sql.Tx) error {
				stmts := []string{
					`CREATE TABLE IF NOT EXISTS devices (
						id                TEXT PRIMARY KEY,
						name              TEXT NOT NULL,
						family            TEXT NOT NULL,
						host              TEXT NOT NULL DEFAULT '',
						username          TEXT NOT NULL DEFAULT '',
						password_enc      TEXT NOT NULL DEFAULT '',
						inner_ip          TEXT NOT NULL DEFAULT '',
						nat_port          INTEGER NOT NULL DEFAULT 0,
						tunnel_ip         TEXT NOT NULL DEFAULT '',
						poll_interval_sec INTEGER NOT NULL DEFAULT 300,
						retry_attempts    INTEGER NOT NULL DEFAULT 3,
						retry_delay_sec   INTEGER NOT NULL DEFAULT 10,
						notify_json       TEXT NOT NULL DEFAULT '{}',
						created_at        DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
						updated_at        DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
					)`,
					`CREATE INDEX IF NOT EXISTS idx_devices_family ON devices(family)`,

					`CREATE TABLE IF NOT EXISTS status_cache (
						device_id    TEXT PRIMARY KEY REFERENCES devices(id) ON DELETE CASCADE,
						status       TEXT NOT NULL,
						metrics_json TEXT NOT NULL DEFAULT '{}',
						updated_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
					)`,
				}
				for _, stmt := range stmts {
					if _, err := tx.Exec(stmt); err != nil {
						return err
					}
				}
				return nil
			},
		},
	}
}
