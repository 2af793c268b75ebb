package persist

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dkeye/Podium/internal/domain"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

// SQLiteStore keeps the latest response per viewer, frame and element.
type SQLiteStore struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=1&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	st := &SQLiteStore{db: db}
	if err := st.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	log.Info().Str("module", "persist").Str("path", path).Msg("sqlite store ready")
	return st, nil
}

func (s *SQLiteStore) createTables() error {
	createResponses := `
	CREATE TABLE IF NOT EXISTS responses (
		room_code TEXT NOT NULL,
		viewer_id TEXT NOT NULL,
		frame_id TEXT NOT NULL,
		element_id TEXT NOT NULL,
		display_name TEXT NOT NULL DEFAULT '',
		value TEXT NOT NULL,
		submitted_at DATETIME NOT NULL,
		PRIMARY KEY (room_code, viewer_id, frame_id, element_id)
	);`
	if _, err := s.db.Exec(createResponses); err != nil {
		return err
	}
	_, err := s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_responses_frame ON responses(room_code, frame_id);`)
	return err
}

func (s *SQLiteStore) SaveResponse(ctx context.Context, code domain.RoomCode, resp domain.Response) error {
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO responses (room_code, viewer_id, frame_id, element_id, display_name, value, submitted_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (room_code, viewer_id, frame_id, element_id) DO UPDATE SET
		display_name = excluded.display_name,
		value = excluded.value,
		submitted_at = excluded.submitted_at
	WHERE excluded.submitted_at >= responses.submitted_at`,
		string(code), string(resp.ViewerID), string(resp.FrameID), resp.ElementID,
		resp.DisplayName, string(resp.Value), resp.Timestamp.UTC())
	if err != nil {
		return fmt.Errorf("sqlite.SaveResponse: %w", err)
	}
	return nil
}

// ResponsesForFrame lists stored responses ordered by submission time.
func (s *SQLiteStore) ResponsesForFrame(ctx context.Context, code domain.RoomCode, frameID domain.FrameID) ([]domain.Response, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT viewer_id, element_id, display_name, value, submitted_at
	FROM responses
	WHERE room_code = ? AND frame_id = ?
	ORDER BY submitted_at, viewer_id, element_id`, string(code), string(frameID))
	if err != nil {
		return nil, fmt.Errorf("sqlite.ResponsesForFrame: %w", err)
	}
	defer rows.Close()

	var out []domain.Response
	for rows.Next() {
		var (
			viewer, value string
			at            time.Time
			r             = domain.Response{FrameID: frameID}
		)
		if err := rows.Scan(&viewer, &r.ElementID, &r.DisplayName, &value, &at); err != nil {
			return nil, fmt.Errorf("sqlite.ResponsesForFrame: %w", err)
		}
		r.ViewerID = domain.ViewerID(viewer)
		r.Value = json.RawMessage(value)
		r.Timestamp = at
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
