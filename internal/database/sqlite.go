package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"shelf-go/internal/database/migrations"
	"shelf-go/internal/events"
	"shelf-go/internal/model"
	"shelf-go/internal/shelf"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Publisher receives change notifications after each committed write.
type Publisher interface {
	Publish(ev events.Event)
}

// SQLiteDatabase implements the shelf.Database interface using SQLite.
type SQLiteDatabase struct {
	db        *sql.DB
	path      string
	publisher Publisher
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// NewSQLiteDatabase opens the database at path, applying any pending
// migrations. path can be a file path or ":memory:". publisher may be nil.
func NewSQLiteDatabase(path string, publisher Publisher) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}

	return &SQLiteDatabase{
		db:        db,
		path:      path,
		publisher: publisher,
	}, nil
}

// NewSQLiteDatabaseFromDB wraps an existing database connection.
// The caller is responsible for ensuring the connection is properly configured
// and migrated.
func NewSQLiteDatabaseFromDB(db *sql.DB, publisher Publisher) *SQLiteDatabase {
	return &SQLiteDatabase{
		db:        db,
		publisher: publisher,
	}
}

// OpenConnection opens and configures a SQLite database connection.
// path can be a file path or ":memory:" for an in-memory database.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection serializes writers, and keeps an in-memory
	// database from being split across pooled connections.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

func (s *SQLiteDatabase) withTx(fn func(ctx context.Context, q querier) error) error {
	ctx := context.Background()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) publish(topic, typ string, ids ...string) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(events.Event{Topic: topic, Type: typ, IDs: ids})
}

// Course operations

const courseColumns = "id, title, description, cover_blob_key, created_at, updated_at"

func (s *SQLiteDatabase) CreateCourseTree(course *model.Course, modules []*model.Module, videos []*model.Video) error {
	err := s.withTx(func(ctx context.Context, q querier) error {
		_, err := q.ExecContext(ctx,
			"INSERT INTO courses ("+courseColumns+") VALUES (?, ?, ?, ?, ?, ?)",
			course.ID, course.Title, course.Description, course.CoverBlobKey, course.CreatedAt, course.UpdatedAt)
		if err != nil {
			return fmt.Errorf("inserting course: %w", err)
		}

		for _, m := range modules {
			_, err := q.ExecContext(ctx,
				"INSERT INTO modules (id, course_id, title, position) VALUES (?, ?, ?, ?)",
				m.ID, m.CourseID, m.Title, m.Order)
			if err != nil {
				return fmt.Errorf("inserting module %s: %w", m.Title, err)
			}
		}

		for _, v := range videos {
			_, err := q.ExecContext(ctx,
				"INSERT INTO videos ("+videoColumns("")+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
				videoArgs(v)...)
			if err != nil {
				return fmt.Errorf("inserting video %s: %w", v.Title, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.publish(events.TopicCourses, "created", course.ID)
	return nil
}

func (s *SQLiteDatabase) FindCourse(id string) (*model.Course, error) {
	row := s.db.QueryRowContext(context.Background(),
		"SELECT "+courseColumns+" FROM courses WHERE id = ?", id)
	c, err := scanCourse(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding course: %w", err)
	}
	return c, nil
}

func (s *SQLiteDatabase) ListCourses() ([]*model.Course, error) {
	rows, err := s.db.QueryContext(context.Background(),
		"SELECT "+courseColumns+" FROM courses ORDER BY updated_at DESC, created_at DESC, id")
	if err != nil {
		return nil, fmt.Errorf("listing courses: %w", err)
	}
	defer rows.Close()

	var result []*model.Course
	for rows.Next() {
		c, err := scanCourse(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning course: %w", err)
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func (s *SQLiteDatabase) UpdateCourse(course *model.Course) error {
	res, err := s.db.ExecContext(context.Background(),
		"UPDATE courses SET title = ?, description = ?, cover_blob_key = ?, updated_at = ? WHERE id = ?",
		course.Title, course.Description, course.CoverBlobKey, course.UpdatedAt, course.ID)
	if err != nil {
		return fmt.Errorf("updating course: %w", err)
	}
	if err := expectRow(res, shelf.ErrCourseNotFound, course.ID); err != nil {
		return err
	}
	s.publish(events.TopicCourses, "updated", course.ID)
	return nil
}

func (s *SQLiteDatabase) DeleteCourse(id string) ([]string, error) {
	var orphaned []string
	var videoIDs []string

	err := s.withTx(func(ctx context.Context, q querier) error {
		keys, err := courseBlobKeys(ctx, q, id)
		if err != nil {
			return err
		}
		videoIDs, err = queryStrings(ctx, q, "SELECT id FROM videos WHERE course_id = ?", id)
		if err != nil {
			return fmt.Errorf("finding videos: %w", err)
		}

		statements := []string{
			"DELETE FROM notes WHERE video_id IN (SELECT id FROM videos WHERE course_id = ?)",
			"DELETE FROM progress WHERE video_id IN (SELECT id FROM videos WHERE course_id = ?)",
			"DELETE FROM videos WHERE course_id = ?",
			"DELETE FROM modules WHERE course_id = ?",
			"DELETE FROM courses WHERE id = ?",
		}
		for _, stmt := range statements {
			if _, err := q.ExecContext(ctx, stmt, id); err != nil {
				return fmt.Errorf("deleting course: %w", err)
			}
		}

		for _, key := range keys {
			referenced, err := blobKeyReferenced(ctx, q, key)
			if err != nil {
				return err
			}
			if !referenced {
				orphaned = append(orphaned, key)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(events.TopicCourses, "deleted", id)
	if len(videoIDs) > 0 {
		s.publish(events.TopicVideos, "deleted", videoIDs...)
	}
	return orphaned, nil
}

// courseBlobKeys returns the distinct non-empty blob keys a course uses.
func courseBlobKeys(ctx context.Context, q querier, courseID string) ([]string, error) {
	keys, err := queryStrings(ctx, q, `
		SELECT cover_blob_key FROM courses WHERE id = ? AND cover_blob_key != ''
		UNION
		SELECT poster_blob_key FROM videos WHERE course_id = ? AND poster_blob_key != ''
		ORDER BY 1`, courseID, courseID)
	if err != nil {
		return nil, fmt.Errorf("finding blob keys: %w", err)
	}
	return keys, nil
}

func (s *SQLiteDatabase) BlobKeyReferenced(key string) (bool, error) {
	return blobKeyReferenced(context.Background(), s.db, key)
}

func blobKeyReferenced(ctx context.Context, q querier, key string) (bool, error) {
	var exists bool
	err := q.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM courses WHERE cover_blob_key = ?)
		    OR EXISTS (SELECT 1 FROM videos WHERE poster_blob_key = ?)`, key, key).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking blob references: %w", err)
	}
	return exists, nil
}

// Module operations

func (s *SQLiteDatabase) FindModulesByCourse(courseID string) ([]*model.Module, error) {
	rows, err := s.db.QueryContext(context.Background(),
		"SELECT id, course_id, title, position FROM modules WHERE course_id = ? ORDER BY position", courseID)
	if err != nil {
		return nil, fmt.Errorf("finding modules: %w", err)
	}
	defer rows.Close()

	var result []*model.Module
	for rows.Next() {
		var m model.Module
		if err := rows.Scan(&m.ID, &m.CourseID, &m.Title, &m.Order); err != nil {
			return nil, fmt.Errorf("scanning module: %w", err)
		}
		result = append(result, &m)
	}
	return result, rows.Err()
}

// Video operations

var videoColumnNames = []string{
	"id", "course_id", "module_id", "title", "position",
	"fp_name", "fp_size", "fp_last_modified", "fp_hash",
	"handle", "relative_path", "missing", "duration_sec", "poster_blob_key",
	"created_at", "updated_at",
}

func videoColumns(prefix string) string {
	cols := make([]string, len(videoColumnNames))
	for i, c := range videoColumnNames {
		cols[i] = prefix + c
	}
	return strings.Join(cols, ", ")
}

func videoArgs(v *model.Video) []any {
	return []any{
		v.ID, v.CourseID, nullString(v.ModuleID), v.Title, v.Order,
		v.Fingerprint.Name, v.Fingerprint.Size, v.Fingerprint.LastModified, v.Fingerprint.Hash,
		v.Handle, v.RelativePath, v.Missing, v.DurationSec, v.PosterBlobKey,
		v.CreatedAt, v.UpdatedAt,
	}
}

func (s *SQLiteDatabase) FindVideo(id string) (*model.Video, error) {
	row := s.db.QueryRowContext(context.Background(),
		"SELECT "+videoColumns("")+" FROM videos WHERE id = ?", id)
	v, err := scanVideo(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding video: %w", err)
	}
	return v, nil
}

func (s *SQLiteDatabase) FindVideosByCourse(courseID string) ([]*model.Video, error) {
	rows, err := s.db.QueryContext(context.Background(), `
		SELECT `+videoColumns("v.")+`
		FROM videos v
		LEFT JOIN modules m ON m.id = v.module_id
		WHERE v.course_id = ?
		ORDER BY v.module_id IS NULL, m.position, v.position, v.id`, courseID)
	if err != nil {
		return nil, fmt.Errorf("finding videos: %w", err)
	}
	defer rows.Close()

	var result []*model.Video
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning video: %w", err)
		}
		result = append(result, v)
	}
	return result, rows.Err()
}

const updateVideoSQL = `
	UPDATE videos SET
		module_id = ?, title = ?, position = ?,
		fp_name = ?, fp_size = ?, fp_last_modified = ?, fp_hash = ?,
		handle = ?, relative_path = ?, missing = ?, duration_sec = ?, poster_blob_key = ?,
		updated_at = ?
	WHERE id = ?`

func updateVideo(ctx context.Context, q querier, v *model.Video) error {
	res, err := q.ExecContext(ctx, updateVideoSQL,
		nullString(v.ModuleID), v.Title, v.Order,
		v.Fingerprint.Name, v.Fingerprint.Size, v.Fingerprint.LastModified, v.Fingerprint.Hash,
		v.Handle, v.RelativePath, v.Missing, v.DurationSec, v.PosterBlobKey,
		v.UpdatedAt, v.ID)
	if err != nil {
		return fmt.Errorf("updating video: %w", err)
	}
	return expectRow(res, shelf.ErrVideoNotFound, v.ID)
}

func (s *SQLiteDatabase) UpdateVideo(video *model.Video) error {
	if err := updateVideo(context.Background(), s.db, video); err != nil {
		return err
	}
	s.publish(events.TopicVideos, "updated", video.ID)
	return nil
}

func (s *SQLiteDatabase) UpdateVideos(videos []*model.Video) error {
	ids := make([]string, len(videos))
	err := s.withTx(func(ctx context.Context, q querier) error {
		for i, v := range videos {
			if err := updateVideo(ctx, q, v); err != nil {
				return err
			}
			ids[i] = v.ID
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.publish(events.TopicVideos, "updated", ids...)
	return nil
}

// Progress operations

const progressColumns = "video_id, last_position_sec, completed, completed_at, first_started_at, last_played_at, play_count"

func (s *SQLiteDatabase) FindProgress(videoID string) (*model.Progress, error) {
	row := s.db.QueryRowContext(context.Background(),
		"SELECT "+progressColumns+" FROM progress WHERE video_id = ?", videoID)
	p, err := scanProgress(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding progress: %w", err)
	}
	return p, nil
}

func (s *SQLiteDatabase) FindProgressByCourse(courseID string) ([]*model.Progress, error) {
	rows, err := s.db.QueryContext(context.Background(), `
		SELECT `+progressColumns+` FROM progress
		WHERE video_id IN (SELECT id FROM videos WHERE course_id = ?)
		ORDER BY video_id`, courseID)
	if err != nil {
		return nil, fmt.Errorf("finding progress: %w", err)
	}
	defer rows.Close()

	var result []*model.Progress
	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning progress: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func (s *SQLiteDatabase) PutProgress(p *model.Progress) error {
	_, err := s.db.ExecContext(context.Background(), `
		INSERT INTO progress (`+progressColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (video_id) DO UPDATE SET
			last_position_sec = excluded.last_position_sec,
			completed = excluded.completed,
			completed_at = excluded.completed_at,
			first_started_at = excluded.first_started_at,
			last_played_at = excluded.last_played_at,
			play_count = excluded.play_count`,
		p.VideoID, p.LastPositionSec, p.Completed,
		nullTime(p.CompletedAt), nullTime(p.FirstStartedAt), nullTime(p.LastPlayedAt),
		p.PlayCount)
	if err != nil {
		return fmt.Errorf("storing progress: %w", err)
	}
	s.publish(events.TopicProgress, "updated", p.VideoID)
	return nil
}

func (s *SQLiteDatabase) DeleteProgress(videoID string) error {
	if _, err := s.db.ExecContext(context.Background(), "DELETE FROM progress WHERE video_id = ?", videoID); err != nil {
		return fmt.Errorf("deleting progress: %w", err)
	}
	s.publish(events.TopicProgress, "deleted", videoID)
	return nil
}

// Note operations

func (s *SQLiteDatabase) FindNote(videoID string) (*model.Note, error) {
	var n model.Note
	err := s.db.QueryRowContext(context.Background(),
		"SELECT video_id, markdown, updated_at FROM notes WHERE video_id = ?", videoID).
		Scan(&n.VideoID, &n.Markdown, &n.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding note: %w", err)
	}
	return &n, nil
}

func (s *SQLiteDatabase) PutNote(note *model.Note) error {
	_, err := s.db.ExecContext(context.Background(), `
		INSERT INTO notes (video_id, markdown, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (video_id) DO UPDATE SET
			markdown = excluded.markdown,
			updated_at = excluded.updated_at`,
		note.VideoID, note.Markdown, note.UpdatedAt)
	if err != nil {
		return fmt.Errorf("storing note: %w", err)
	}
	s.publish(events.TopicNotes, "updated", note.VideoID)
	return nil
}

// Settings operations

func (s *SQLiteDatabase) GetSettings() (*model.Settings, error) {
	var st model.Settings
	err := s.db.QueryRowContext(context.Background(),
		"SELECT completion_threshold, allow_last_seconds_complete, last_seconds_window FROM settings WHERE id = 1").
		Scan(&st.CompletionThreshold, &st.AllowLastSecondsComplete, &st.LastSecondsWindow)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Never saved
		}
		return nil, fmt.Errorf("loading settings: %w", err)
	}
	return &st, nil
}

func (s *SQLiteDatabase) PutSettings(st *model.Settings) error {
	_, err := s.db.ExecContext(context.Background(), `
		INSERT INTO settings (id, completion_threshold, allow_last_seconds_complete, last_seconds_window)
		VALUES (1, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			completion_threshold = excluded.completion_threshold,
			allow_last_seconds_complete = excluded.allow_last_seconds_complete,
			last_seconds_window = excluded.last_seconds_window`,
		st.CompletionThreshold, st.AllowLastSecondsComplete, st.LastSecondsWindow)
	if err != nil {
		return fmt.Errorf("storing settings: %w", err)
	}
	s.publish(events.TopicSettings, "updated")
	return nil
}

// Operation tracking

func (s *SQLiteDatabase) CreateOperation(operation string, parameters string) (*model.Operation, error) {
	op := &model.Operation{
		Operation:  operation,
		Parameters: parameters,
		Status:     "running",
		StartedAt:  time.Now().UTC(),
	}
	res, err := s.db.ExecContext(context.Background(),
		"INSERT INTO operations (operation, parameters, status, started_at) VALUES (?, ?, ?, ?)",
		op.Operation, op.Parameters, op.Status, op.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("creating operation: %w", err)
	}
	op.ID, err = res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading operation id: %w", err)
	}
	return op, nil
}

func (s *SQLiteDatabase) FinishOperation(id int64, status string) error {
	_, err := s.db.ExecContext(context.Background(),
		"UPDATE operations SET status = ?, finished_at = ? WHERE id = ?",
		status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("finishing operation: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) ListOperations(limit int) ([]*model.Operation, error) {
	rows, err := s.db.QueryContext(context.Background(),
		"SELECT id, operation, parameters, status, started_at, finished_at FROM operations ORDER BY id DESC LIMIT ?",
		limit)
	if err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	defer rows.Close()

	var result []*model.Operation
	for rows.Next() {
		var op model.Operation
		var finished sql.NullTime
		if err := rows.Scan(&op.ID, &op.Operation, &op.Parameters, &op.Status, &op.StartedAt, &finished); err != nil {
			return nil, fmt.Errorf("scanning operation: %w", err)
		}
		op.FinishedAt = timeFromNull(finished)
		result = append(result, &op)
	}
	return result, rows.Err()
}

// Path returns the database file path (or ":memory:" for in-memory databases).
func (s *SQLiteDatabase) Path() string {
	return s.path
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// Close closes the database connection.
func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Scanning helpers

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCourse(row rowScanner) (*model.Course, error) {
	var c model.Course
	if err := row.Scan(&c.ID, &c.Title, &c.Description, &c.CoverBlobKey, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func scanVideo(row rowScanner) (*model.Video, error) {
	var v model.Video
	var moduleID sql.NullString
	err := row.Scan(
		&v.ID, &v.CourseID, &moduleID, &v.Title, &v.Order,
		&v.Fingerprint.Name, &v.Fingerprint.Size, &v.Fingerprint.LastModified, &v.Fingerprint.Hash,
		&v.Handle, &v.RelativePath, &v.Missing, &v.DurationSec, &v.PosterBlobKey,
		&v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return nil, err
	}
	v.ModuleID = moduleID.String
	return &v, nil
}

func scanProgress(row rowScanner) (*model.Progress, error) {
	var p model.Progress
	var completedAt, firstStartedAt, lastPlayedAt sql.NullTime
	err := row.Scan(&p.VideoID, &p.LastPositionSec, &p.Completed,
		&completedAt, &firstStartedAt, &lastPlayedAt, &p.PlayCount)
	if err != nil {
		return nil, err
	}
	p.CompletedAt = timeFromNull(completedAt)
	p.FirstStartedAt = timeFromNull(firstStartedAt)
	p.LastPlayedAt = timeFromNull(lastPlayedAt)
	return &p, nil
}

func queryStrings(ctx context.Context, q querier, query string, args ...any) ([]string, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func expectRow(res sql.Result, notFound error, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", notFound, id)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timeFromNull(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

// Compile-time check that SQLiteDatabase implements shelf.Database interface
var _ shelf.Database = (*SQLiteDatabase)(nil)
