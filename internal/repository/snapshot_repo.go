package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"pvs_monitor/internal/models"
)

type SnapshotSQLite struct {
	db *sql.DB
}

func NewSnapshotSQLite(db *sql.DB) *SnapshotSQLite {
	return &SnapshotSQLite{db: db}
}

var _ SnapshotRepo = (*SnapshotSQLite)(nil)

const (
	upsertDeviceSQL = `
		INSERT INTO device_snapshot (serial, device_type, model, type, descr, state, metrics, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(serial) DO UPDATE SET
			device_type=excluded.device_type,
			model=excluded.model,
			type=excluded.type,
			descr=excluded.descr,
			state=excluded.state,
			metrics=excluded.metrics,
			updated_at=excluded.updated_at
	`

	selectDevicesSQL = `
		SELECT serial, device_type, model, type, descr, state, metrics, updated_at
		FROM device_snapshot ORDER BY device_type, serial
	`
)

// Save upserts every device in one transaction. A zero timestamp means now.
func (r *SnapshotSQLite) Save(ctx context.Context, devices []models.DeviceRecord, at time.Time) error {
	if at.IsZero() {
		at = time.Now()
	}
	at = at.UTC()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin snapshot transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, d := range devices {
		metrics, err := json.Marshal(d.Metrics)
		if err != nil {
			return fmt.Errorf("marshal metrics for %s: %w", d.Serial, err)
		}
		if _, err := tx.ExecContext(ctx, upsertDeviceSQL,
			d.Serial,
			string(d.DeviceType),
			d.Model,
			d.Type,
			d.Description,
			d.State,
			string(metrics),
			at,
		); err != nil {
			return fmt.Errorf("upsert device %s: %w", d.Serial, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

// Load returns the stored devices. UpdatedAt is the newest device timestamp; Available is
// left false since only a live poll can say that.
func (r *SnapshotSQLite) Load(ctx context.Context) (models.Snapshot, error) {
	rows, err := r.db.QueryContext(ctx, selectDevicesSQL)
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("select devices: %w", err)
	}
	defer rows.Close()

	var snap models.Snapshot
	for rows.Next() {
		var (
			d          models.DeviceRecord
			deviceType string
			metricsStr sql.NullString
			updatedAt  time.Time
		)
		if err := rows.Scan(&d.Serial, &deviceType, &d.Model, &d.Type, &d.Description, &d.State, &metricsStr, &updatedAt); err != nil {
			return models.Snapshot{}, fmt.Errorf("scan device: %w", err)
		}
		d.DeviceType = models.DeviceType(deviceType)
		d.Metrics = map[string]any{}
		if metricsStr.Valid && metricsStr.String != "" {
			if err := json.Unmarshal([]byte(metricsStr.String), &d.Metrics); err != nil {
				return models.Snapshot{}, fmt.Errorf("decode metrics for %s: %w", d.Serial, err)
			}
		}
		if updatedAt.After(snap.UpdatedAt) {
			snap.UpdatedAt = updatedAt.UTC()
		}
		snap.Devices = append(snap.Devices, d)
	}
	if err := rows.Err(); err != nil {
		return models.Snapshot{}, err
	}
	return snap, nil
}
