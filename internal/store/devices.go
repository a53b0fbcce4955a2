package store

import (
	"database/sql"
	"errors"
	"fmt"

	"cuecast/internal/models"
)

const deviceColumns = `device_id, name, role, first_seen, last_seen, last_state, last_media, immersive_mode, position_seconds`

func scanDevice(scanner interface{ Scan(...any) error }) (models.Device, error) {
	var d models.Device
	err := scanner.Scan(&d.DeviceID, &d.Name, &d.Role, &d.FirstSeen, &d.LastSeen,
		&d.Playback.State, &d.Playback.CurrentMedia, &d.Playback.ImmersiveMode, &d.Playback.PositionSeconds)
	d.Playback.LastUpdate = d.LastSeen
	return d, err
}

// UpsertDevice records a registration. first_seen survives repeated
// registrations; name and role track the latest register message.
func (s *Store) UpsertDevice(deviceID, name string, role models.DeviceRole) error {
	_, err := s.db.Exec(`INSERT INTO devices (device_id, name, role) VALUES (?, ?, ?)
		ON CONFLICT(device_id) DO UPDATE SET
			name = excluded.name,
			role = excluded.role,
			last_seen = CURRENT_TIMESTAMP`,
		deviceID, name, role)
	if err != nil {
		return fmt.Errorf("upserting device %s: %w", deviceID, err)
	}
	return nil
}

// MarkDeviceSeen stamps last_seen, typically on disconnect.
func (s *Store) MarkDeviceSeen(deviceID string) error {
	_, err := s.db.Exec(`UPDATE devices SET last_seen = CURRENT_TIMESTAMP WHERE device_id = ?`, deviceID)
	if err != nil {
		return fmt.Errorf("marking device %s seen: %w", deviceID, err)
	}
	return nil
}

// UpdateDevicePlayback persists a status report's snapshot.
func (s *Store) UpdateDevicePlayback(deviceID string, snap models.PlaybackSnapshot) error {
	_, err := s.db.Exec(`UPDATE devices SET
			last_state = ?, last_media = ?, immersive_mode = ?, position_seconds = ?, last_seen = CURRENT_TIMESTAMP
		WHERE device_id = ?`,
		snap.State, snap.CurrentMedia, snap.ImmersiveMode, snap.PositionSeconds, deviceID)
	if err != nil {
		return fmt.Errorf("updating playback for %s: %w", deviceID, err)
	}
	return nil
}

func (s *Store) GetDevice(deviceID string) (*models.Device, error) {
	d, err := scanDevice(s.db.QueryRow(`SELECT `+deviceColumns+` FROM devices WHERE device_id = ?`, deviceID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("device %s: %w", deviceID, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting device: %w", err)
	}
	return &d, nil
}

// ListDevices returns every known device, optionally filtered by role.
func (s *Store) ListDevices(role models.DeviceRole) ([]models.Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices`
	args := []any{}
	if role != "" {
		query += ` WHERE role = ?`
		args = append(args, role)
	}
	query += ` ORDER BY last_seen DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}
	defer rows.Close()

	devices := []models.Device{}
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, d)
	}
	return devices, rows.Err()
}

func (s *Store) CountDevices(role models.DeviceRole) (int, error) {
	query := `SELECT COUNT(*) FROM devices`
	args := []any{}
	if role != "" {
		query += ` WHERE role = ?`
		args = append(args, role)
	}
	var n int
	if err := s.db.QueryRow(query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting devices: %w", err)
	}
	return n, nil
}
