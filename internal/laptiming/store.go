package laptiming

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // registers the "sqlite3" driver

	"github.com/SamSkjord/opentpt/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS laps (
	id          TEXT PRIMARY KEY,
	track_name  TEXT NOT NULL,
	number      INTEGER NOT NULL,
	start_ts    INTEGER NOT NULL,
	total_ns    INTEGER NOT NULL,
	positions   BLOB NOT NULL,
	sector_ns   BLOB NOT NULL,
	is_best     INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_laps_track_best ON laps(track_name, is_best);
`

// Store persists completed laps to lap_timing.db, one row per lap, with
// a single "current best" row maintained per track.
type Store struct {
	db *sql.DB
}

// OpenStore opens (creating if absent) the SQLite database at path.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening lap timing store: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating lap timing schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

type encodedLap struct {
	Positions []models.LapPosition `json:"positions"`
	SectorNs  []int64              `json:"sector_ns"`
}

// SaveLapIfBest persists lap unconditionally as history and promotes it
// to the track's best lap if it beats (strictly) the existing best, per
// the persisted-best-wins-ties decision: an existing best is never
// displaced by an equal time.
func (s *Store) SaveLapIfBest(trackName string, lap models.Lap) error {
	if lap.TotalTime == nil {
		return fmt.Errorf("cannot persist unsealed lap %s", lap.ID)
	}

	enc := encodedLap{Positions: lap.Positions}
	for _, d := range lap.SectorTimes {
		enc.SectorNs = append(enc.SectorNs, int64(d))
	}
	posJSON, err := json.Marshal(enc.Positions)
	if err != nil {
		return fmt.Errorf("encoding lap positions: %w", err)
	}
	sectorJSON, err := json.Marshal(enc.SectorNs)
	if err != nil {
		return fmt.Errorf("encoding lap sectors: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning lap save transaction: %w", err)
	}
	defer tx.Rollback()

	var bestNs sql.NullInt64
	err = tx.QueryRow(`SELECT total_ns FROM laps WHERE track_name = ? AND is_best = 1`, trackName).Scan(&bestNs)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("reading current best lap: %w", err)
	}

	isBest := !bestNs.Valid || int64(*lap.TotalTime) < bestNs.Int64
	if isBest {
		if _, err := tx.Exec(`UPDATE laps SET is_best = 0 WHERE track_name = ?`, trackName); err != nil {
			return fmt.Errorf("clearing previous best lap: %w", err)
		}
	}

	_, err = tx.Exec(
		`INSERT OR REPLACE INTO laps (id, track_name, number, start_ts, total_ns, positions, sector_ns, is_best)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		lap.ID, trackName, lap.Number, lap.StartTS.UnixNano(), int64(*lap.TotalTime), posJSON, sectorJSON, boolToInt(isBest),
	)
	if err != nil {
		return fmt.Errorf("inserting lap: %w", err)
	}

	return tx.Commit()
}

// BestLap returns the persisted best lap for trackName, or nil if none
// has been recorded yet.
func (s *Store) BestLap(trackName string) (*models.Lap, error) {
	row := s.db.QueryRow(
		`SELECT id, number, start_ts, total_ns, positions, sector_ns FROM laps WHERE track_name = ? AND is_best = 1`,
		trackName,
	)

	var (
		id               string
		number           uint32
		startNs, totalNs int64
		posJSON, secJSON []byte
	)
	if err := row.Scan(&id, &number, &startNs, &totalNs, &posJSON, &secJSON); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("reading best lap: %w", err)
	}

	var positions []models.LapPosition
	if err := json.Unmarshal(posJSON, &positions); err != nil {
		return nil, fmt.Errorf("decoding best lap positions: %w", err)
	}
	var sectorNs []int64
	if err := json.Unmarshal(secJSON, &sectorNs); err != nil {
		return nil, fmt.Errorf("decoding best lap sectors: %w", err)
	}

	sectors := make([]time.Duration, len(sectorNs))
	for i, n := range sectorNs {
		sectors[i] = time.Duration(n)
	}
	total := time.Duration(totalNs)
	start := time.Unix(0, startNs)
	end := start.Add(total)

	return &models.Lap{
		ID:          id,
		Number:      number,
		StartTS:     start,
		EndTS:       &end,
		Positions:   positions,
		SectorTimes: sectors,
		TotalTime:   &total,
	}, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
