// Package postgres is the Postgres-backed EventStore.
//
// Expected schema:
//
//	events(id TEXT PRIMARY KEY, title TEXT, description TEXT,
//	       max_participants INT, creation_time TIMESTAMPTZ,
//	       latitude DOUBLE PRECISION, longitude DOUBLE PRECISION,
//	       chatroom_id BIGINT DEFAULT nextval('chatroom_id_seq'),
//	       is_public BOOLEAN, host_user_id BIGINT, host_name TEXT,
//	       host_img_url TEXT, categories TEXT[], grid_id TEXT)
//	event_participants(event_id TEXT REFERENCES events(id) ON DELETE CASCADE,
//	       user_id BIGINT, PRIMARY KEY (event_id, user_id))
//
// grid_id is indexed; it is the only spatial access path the cache core
// needs.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/spotmeet/spotmeet/internal/geo"
	"github.com/spotmeet/spotmeet/internal/model"
	"github.com/spotmeet/spotmeet/internal/store"
)

type Store struct {
	db *sql.DB
}

func New(dsn string) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const eventColumns = `e.id, e.title, e.description, e.max_participants, e.creation_time,
	e.latitude, e.longitude, e.chatroom_id, e.is_public,
	e.host_user_id, e.host_name, e.host_img_url, e.categories, e.grid_id,
	(SELECT COUNT(*) FROM event_participants p WHERE p.event_id = e.id) AS participants`

func (s *Store) FindByGridIDIn(ctx context.Context, gridIDs []string) ([]model.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events e WHERE e.grid_id = ANY($1)`
	rows, err := s.db.QueryContext(ctx, query, pq.Array(gridIDs))
	if err != nil {
		return nil, fmt.Errorf("select events by grid: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}

func (s *Store) GetEvent(ctx context.Context, id string) (model.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events e WHERE e.id = $1`
	ev, err := scanEvent(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Event{}, store.ErrNotFound
	}
	if err != nil {
		return model.Event{}, err
	}
	return ev, nil
}

func (s *Store) CreateEvent(ctx context.Context, ev model.Event) (model.Event, error) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.CreationTime.IsZero() {
		ev.CreationTime = time.Now().UTC()
	}
	ev.GridID = geo.CellID(ev.Latitude, ev.Longitude)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Event{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO events (id, title, description, max_participants, creation_time,
			latitude, longitude, is_public, host_user_id, host_name, host_img_url,
			categories, grid_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		RETURNING chatroom_id`,
		ev.ID, ev.Title, ev.Description, ev.MaxParticipants, ev.CreationTime,
		ev.Latitude, ev.Longitude, ev.IsPublic, ev.Host.UserID, ev.Host.Name,
		ev.Host.ImgURL, pq.Array(ev.Categories), ev.GridID,
	).Scan(&ev.ChatroomID)
	if err != nil {
		return model.Event{}, fmt.Errorf("insert event: %w", err)
	}

	// the host joins their own event
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO event_participants (event_id, user_id) VALUES ($1, $2)`,
		ev.ID, ev.Host.UserID); err != nil {
		return model.Event{}, fmt.Errorf("insert host membership: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return model.Event{}, fmt.Errorf("commit: %w", err)
	}
	ev.Participants = 1
	return ev, nil
}

func (s *Store) UpdateEvent(ctx context.Context, ev model.Event) (model.Event, string, error) {
	ev.GridID = geo.CellID(ev.Latitude, ev.Longitude)
	// the CTE reads the row's snapshot from before the update, so the
	// previous cell comes back atomically with the write
	var prevGrid string
	err := s.db.QueryRowContext(ctx, `
		WITH prev AS (SELECT grid_id FROM events WHERE id = $1)
		UPDATE events SET title=$2, description=$3, max_participants=$4,
			latitude=$5, longitude=$6, is_public=$7, categories=$8, grid_id=$9
		WHERE id=$1
		RETURNING (SELECT grid_id FROM prev)`,
		ev.ID, ev.Title, ev.Description, ev.MaxParticipants,
		ev.Latitude, ev.Longitude, ev.IsPublic, pq.Array(ev.Categories), ev.GridID).
		Scan(&prevGrid)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Event{}, "", store.ErrNotFound
	}
	if err != nil {
		return model.Event{}, "", fmt.Errorf("update event: %w", err)
	}

	updated, err := s.GetEvent(ctx, ev.ID)
	if err != nil {
		return model.Event{}, "", err
	}
	return updated, prevGrid, nil
}

func (s *Store) DeleteEvent(ctx context.Context, id string) (model.Event, error) {
	ev, err := s.GetEvent(ctx, id)
	if err != nil {
		return model.Event{}, err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE id=$1`, id); err != nil {
		return model.Event{}, fmt.Errorf("delete event: %w", err)
	}
	return ev, nil
}

func (s *Store) Join(ctx context.Context, id string, userID int64) (model.Event, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Event{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var maxParticipants, current int
	err = tx.QueryRowContext(ctx, `
		SELECT e.max_participants,
			(SELECT COUNT(*) FROM event_participants p WHERE p.event_id = e.id)
		FROM events e WHERE e.id = $1 FOR UPDATE`, id).
		Scan(&maxParticipants, &current)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Event{}, store.ErrNotFound
	}
	if err != nil {
		return model.Event{}, fmt.Errorf("lock event: %w", err)
	}
	if maxParticipants > 0 && current >= maxParticipants {
		return model.Event{}, store.ErrEventFull
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO event_participants (event_id, user_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING`, id, userID); err != nil {
		return model.Event{}, fmt.Errorf("insert membership: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return model.Event{}, fmt.Errorf("commit: %w", err)
	}
	return s.GetEvent(ctx, id)
}

func (s *Store) Leave(ctx context.Context, id string, userID int64) (model.Event, error) {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM event_participants WHERE event_id=$1 AND user_id=$2`, id, userID); err != nil {
		return model.Event{}, fmt.Errorf("delete membership: %w", err)
	}
	return s.GetEvent(ctx, id)
}

func (s *Store) ChatroomMembers(ctx context.Context, chatroomID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.user_id FROM event_participants p
		JOIN events e ON e.id = p.event_id
		WHERE e.chatroom_id = $1`, chatroomID)
	if err != nil {
		return nil, fmt.Errorf("select chatroom members: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []int64
	for rows.Next() {
		var uid int64
		if err := rows.Scan(&uid); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		out = append(out, uid)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate members: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(r rowScanner) (model.Event, error) {
	var ev model.Event
	var categories pq.StringArray
	err := r.Scan(&ev.ID, &ev.Title, &ev.Description, &ev.MaxParticipants,
		&ev.CreationTime, &ev.Latitude, &ev.Longitude, &ev.ChatroomID,
		&ev.IsPublic, &ev.Host.UserID, &ev.Host.Name, &ev.Host.ImgURL,
		&categories, &ev.GridID, &ev.Participants)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Event{}, err
		}
		return model.Event{}, fmt.Errorf("scan event: %w", err)
	}
	ev.Categories = []string(categories)
	return ev, nil
}
