package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Session is one run of the feeder against a device.
type Session struct {
	ID        uuid.UUID
	Target    string
	RefLatDeg float64
	RefLonDeg float64
	RefAltM   float64
	InitUTC   float64
	VelN      float64
	VelE      float64
	Delay     float64
	StartedAt time.Time
}

// Update is one landing-zone iteration. Err holds the failure text when the
// iteration did not complete.
type Update struct {
	SessionID  uuid.UUID
	Seq        int64
	LatDeg     float64
	LonDeg     float64
	AltM       float64
	VelN       float64
	VelE       float64
	VelD       float64
	DeviceUTC  float64
	Status     int32
	Attempts   int
	RTT        time.Duration
	Err        string
	RecordedAt time.Time
}

func (u *Update) String() string {
	if u.Err != "" {
		return fmt.Sprintf("update %s#%d failed: %s", u.SessionID, u.Seq, u.Err)
	}
	return fmt.Sprintf("update %s#%d: %.7f, %.7f, %.2f status=%d attempts=%d rtt=%v",
		u.SessionID, u.Seq, u.LatDeg, u.LonDeg, u.AltM, u.Status, u.Attempts, u.RTT)
}

// StartSession records the start of a feeder session.
func (db *DB) StartSession(s Session) error {
	_, err := db.Exec(`
		INSERT INTO sessions (
			session_id, target, ref_lat_deg, ref_lon_deg, ref_alt_m,
			init_utc, vel_n, vel_e, delay_s, started_unix_ns
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID.String(), s.Target, s.RefLatDeg, s.RefLonDeg, s.RefAltM,
		s.InitUTC, s.VelN, s.VelE, s.Delay, s.StartedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to record session %s: %w", s.ID, err)
	}
	return nil
}

// Sessions returns every recorded session, oldest first.
func (db *DB) Sessions() ([]Session, error) {
	rows, err := db.Query(`
		SELECT session_id, target, ref_lat_deg, ref_lon_deg, ref_alt_m,
			init_utc, vel_n, vel_e, delay_s, started_unix_ns
		FROM sessions ORDER BY started_unix_ns, session_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var s Session
		var id string
		var started int64
		if err := rows.Scan(&id, &s.Target, &s.RefLatDeg, &s.RefLonDeg, &s.RefAltM,
			&s.InitUTC, &s.VelN, &s.VelE, &s.Delay, &started); err != nil {
			return nil, err
		}
		if s.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("bad session id %q: %w", id, err)
		}
		s.StartedAt = time.Unix(0, started).UTC()
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// RecordUpdate appends one landing-zone iteration to the journal.
func (db *DB) RecordUpdate(u Update) error {
	var errText sql.NullString
	if u.Err != "" {
		errText = sql.NullString{String: u.Err, Valid: true}
	}
	_, err := db.Exec(`
		INSERT INTO landing_zone_updates (
			session_id, seq, lat_deg, lon_deg, alt_m, vel_n, vel_e, vel_d,
			device_utc, status, attempts, rtt_ns, error, recorded_unix_ns
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.SessionID.String(), u.Seq, u.LatDeg, u.LonDeg, u.AltM, u.VelN, u.VelE, u.VelD,
		u.DeviceUTC, u.Status, u.Attempts, u.RTT.Nanoseconds(), errText, u.RecordedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to record update %s#%d: %w", u.SessionID, u.Seq, err)
	}
	return nil
}

// Updates returns the updates of one session in send order.
func (db *DB) Updates(session uuid.UUID) ([]Update, error) {
	rows, err := db.Query(`
		SELECT session_id, seq, lat_deg, lon_deg, alt_m, vel_n, vel_e, vel_d,
			device_utc, status, attempts, rtt_ns, error, recorded_unix_ns
		FROM landing_zone_updates
		WHERE session_id = ?
		ORDER BY seq`, session.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var updates []Update
	for rows.Next() {
		var u Update
		var id string
		var rtt, recorded int64
		var errText sql.NullString
		if err := rows.Scan(&id, &u.Seq, &u.LatDeg, &u.LonDeg, &u.AltM, &u.VelN, &u.VelE, &u.VelD,
			&u.DeviceUTC, &u.Status, &u.Attempts, &rtt, &errText, &recorded); err != nil {
			return nil, err
		}
		if u.SessionID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("bad session id %q: %w", id, err)
		}
		u.RTT = time.Duration(rtt)
		u.Err = errText.String
		u.RecordedAt = time.Unix(0, recorded).UTC()
		updates = append(updates, u)
	}
	return updates, rows.Err()
}

// UpdateCounts returns how many updates of a session succeeded and failed.
func (db *DB) UpdateCounts(session uuid.UUID) (ok, failed int, err error) {
	err = db.QueryRow(`
		SELECT
			COALESCE(SUM(CASE WHEN error IS NULL AND status = 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN error IS NOT NULL OR status != 0 THEN 1 ELSE 0 END), 0)
		FROM landing_zone_updates WHERE session_id = ?`, session.String()).Scan(&ok, &failed)
	return ok, failed, err
}
