package store

import (
	"fmt"

	"cuecast/internal/models"
)

// InsertTransfer archives one terminal transfer.
func (s *Store) InsertTransfer(t models.Transfer) error {
	_, err := s.db.Exec(`INSERT INTO transfer_history
			(transfer_id, device_id, filename, total_bytes, bytes_sent, status, error, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.DeviceID, t.Filename, t.TotalBytes, t.BytesTransferred, t.Status, t.Error, t.StartedAt, t.EndedAt)
	if err != nil {
		return fmt.Errorf("inserting transfer %s: %w", t.ID, err)
	}
	return nil
}

// ListTransferHistory pages the archive, newest first.
func (s *Store) ListTransferHistory(limit, offset int) ([]models.Transfer, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.db.Query(`SELECT transfer_id, device_id, filename, total_bytes, bytes_sent, status, error, started_at, ended_at
		FROM transfer_history ORDER BY ended_at DESC, id DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing transfer history: %w", err)
	}
	defer rows.Close()

	transfers := []models.Transfer{}
	for rows.Next() {
		var t models.Transfer
		if err := rows.Scan(&t.ID, &t.DeviceID, &t.Filename, &t.TotalBytes, &t.BytesTransferred,
			&t.Status, &t.Error, &t.StartedAt, &t.EndedAt); err != nil {
			return nil, err
		}
		transfers = append(transfers, t)
	}
	return transfers, rows.Err()
}

// TransferStats summarizes the archive for the stats endpoint.
type TransferStats struct {
	Completed  int   `json:"completed"`
	Failed     int   `json:"failed"`
	BytesMoved int64 `json:"bytes_moved"`
}

func (s *Store) GetTransferStats() (TransferStats, error) {
	var st TransferStats
	err := s.db.QueryRow(`SELECT
			COUNT(CASE WHEN status = 'completed' THEN 1 END),
			COUNT(CASE WHEN status = 'failed' THEN 1 END),
			COALESCE(SUM(CASE WHEN status = 'completed' THEN bytes_sent ELSE 0 END), 0)
		FROM transfer_history`).Scan(&st.Completed, &st.Failed, &st.BytesMoved)
	if err != nil {
		return TransferStats{}, fmt.Errorf("transfer stats: %w", err)
	}
	return st, nil
}

// PruneTransferHistory keeps the newest keep rows, bounding the
// archive.
func (s *Store) PruneTransferHistory(keep int) (int64, error) {
	if keep <= 0 {
		return 0, nil
	}
	res, err := s.db.Exec(`DELETE FROM transfer_history WHERE id NOT IN
		(SELECT id FROM transfer_history ORDER BY ended_at DESC, id DESC LIMIT ?)`, keep)
	if err != nil {
		return 0, fmt.Errorf("pruning transfer history: %w", err)
	}
	removed, _ := res.RowsAffected()
	return removed, nil
}
