package pit

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/SamSkjord/opentpt/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS pit_waypoints (
	track_name      TEXT PRIMARY KEY,
	entry_ax REAL, entry_ay REAL, entry_bx REAL, entry_by REAL,
	exit_ax  REAL, exit_ay  REAL, exit_bx  REAL, exit_by  REAL,
	mode            INTEGER NOT NULL,
	speed_limit_kmh REAL NOT NULL,
	min_stop_s      REAL NOT NULL
);
`

// Store persists per-track pit entry/exit waypoints.
type Store struct {
	db *sql.DB
}

// OpenStore opens (creating if absent) the SQLite database at path.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening pit waypoint store: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating pit waypoint schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// SaveWaypoint inserts or replaces the waypoint pair for wp.TrackName.
func (s *Store) SaveWaypoint(wp models.PitWaypoint) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO pit_waypoints
		 (track_name, entry_ax, entry_ay, entry_bx, entry_by, exit_ax, exit_ay, exit_bx, exit_by, mode, speed_limit_kmh, min_stop_s)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		wp.TrackName,
		wp.EntryLine.A.E, wp.EntryLine.A.N, wp.EntryLine.B.E, wp.EntryLine.B.N,
		wp.ExitLine.A.E, wp.ExitLine.A.N, wp.ExitLine.B.E, wp.ExitLine.B.N,
		int(wp.Mode), wp.SpeedLimitKMH, wp.MinStopS,
	)
	if err != nil {
		return fmt.Errorf("saving pit waypoint for %s: %w", wp.TrackName, err)
	}
	return nil
}

// LoadWaypoint returns the stored waypoint for trackName, or nil if none
// has been recorded yet.
func (s *Store) LoadWaypoint(trackName string) (*models.PitWaypoint, error) {
	row := s.db.QueryRow(
		`SELECT entry_ax, entry_ay, entry_bx, entry_by, exit_ax, exit_ay, exit_bx, exit_by, mode, speed_limit_kmh, min_stop_s
		 FROM pit_waypoints WHERE track_name = ?`,
		trackName,
	)

	var wp models.PitWaypoint
	wp.TrackName = trackName
	var mode int
	err := row.Scan(
		&wp.EntryLine.A.E, &wp.EntryLine.A.N, &wp.EntryLine.B.E, &wp.EntryLine.B.N,
		&wp.ExitLine.A.E, &wp.ExitLine.A.N, &wp.ExitLine.B.E, &wp.ExitLine.B.N,
		&mode, &wp.SpeedLimitKMH, &wp.MinStopS,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading pit waypoint for %s: %w", trackName, err)
	}
	wp.Mode = models.PitMode(mode)
	return &wp, nil
}
