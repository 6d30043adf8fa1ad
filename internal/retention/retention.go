// Package retention bounds the number of stored turns.
package retention

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/stupiduntilnot/chatkeep/internal/turn"
)

// DefaultCap is the number of turns kept after each write.
const DefaultCap = 50

// Policy evicts the oldest turns beyond Cap. A Cap of zero or less disables trimming.
type Policy struct {
	Cap int
}

// Default returns the policy with DefaultCap.
func Default() Policy {
	return Policy{Cap: DefaultCap}
}

// Enforce walks turns newest first and deletes everything past Cap. It
// returns how many turns were removed.
func (p Policy) Enforce(ctx context.Context, db *sql.DB) (int, error) {
	if p.Cap <= 0 {
		return 0, nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: begin: %v", turn.ErrTrimFailed, err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT id FROM turns ORDER BY timestamp DESC, id DESC`)
	if err != nil {
		return 0, fmt.Errorf("%w: scan: %v", turn.ErrTrimFailed, err)
	}

	var evict []int64
	seen := 0
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("%w: scan row: %v", turn.ErrTrimFailed, err)
		}
		seen++
		if seen > p.Cap {
			evict = append(evict, id)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, fmt.Errorf("%w: scan: %v", turn.ErrTrimFailed, err)
	}
	rows.Close()

	if len(evict) == 0 {
		return 0, nil
	}

	stmt, err := tx.PrepareContext(ctx, `DELETE FROM turns WHERE id = ?`)
	if err != nil {
		return 0, fmt.Errorf("%w: prepare delete: %v", turn.ErrTrimFailed, err)
	}
	defer stmt.Close()
	for _, id := range evict {
		if _, err := stmt.ExecContext(ctx, id); err != nil {
			return 0, fmt.Errorf("%w: delete turn %d: %v", turn.ErrTrimFailed, id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: commit: %v", turn.ErrTrimFailed, err)
	}
	return len(evict), nil
}
