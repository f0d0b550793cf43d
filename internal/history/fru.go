package history

import (
	"context"
	"database/sql"

	rberrors "github.com/mrz1836/rackbrain/internal/errors"
)

// FRU is one outpost_fru row. Nullable columns are empty when NULL.
type FRU struct {
	ID           int64
	SN           string
	TestPassed   string
	TestFinished string
}

const outpostFRUQuery = `
SELECT id, sn_tag, hex(test_passed) AS test_passed, test_finished
FROM outpost_fru
WHERE sn_tag = ?`

// OutpostFRU returns the outpost_fru rows of sn. test_passed is returned
// hex-encoded, as the bit column prints unreadably otherwise.
func (c *Client) OutpostFRU(ctx context.Context, sn string) ([]FRU, error) {
	if !c.Enabled() || sn == "" {
		return nil, nil
	}

	rows, err := c.db.QueryContext(ctx, outpostFRUQuery, sn)
	if err != nil {
		return nil, rberrors.Wrapf(err, "outpost_fru query failed for %s", sn)
	}
	defer func() { _ = rows.Close() }()

	var out []FRU
	for rows.Next() {
		var (
			f        FRU
			passed   sql.NullString
			finished sql.NullTime
		)
		if err := rows.Scan(&f.ID, &f.SN, &passed, &finished); err != nil {
			return nil, rberrors.Wrap(err, "failed to scan outpost_fru row")
		}
		f.TestPassed = passed.String
		if finished.Valid {
			f.TestFinished = finished.Time.Format("2006-01-02 15:04:05")
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, rberrors.Wrap(err, "failed to read outpost_fru rows")
	}
	return out, nil
}
