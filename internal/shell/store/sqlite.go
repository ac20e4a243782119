package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/calfort/skiff/internal/core/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// =============================================================================
// Executor Interface - Shared by DB and Transaction
// =============================================================================

// executor abstracts database operations that can be performed on both
// a database connection and a transaction.
type executor interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	NamedExecContext(ctx context.Context, query string, arg any) (sql.Result, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// =============================================================================
// SQLiteStore
// =============================================================================

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore creates a new SQLite store and runs migrations.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	// Open database connection
	db, err := sqlx.Open("sqlite3", dsn+"?_foreign_keys=on")
	if err != nil {
		return nil, NewStoreError("NewSQLiteStore", "", "", "failed to open database", ErrConnectionFailed)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "", "failed to ping database", ErrConnectionFailed)
	}

	// Run migrations
	if err := runMigrations(db.DB); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "", err.Error(), ErrMigrationFailed)
	}

	return &SQLiteStore{db: db}, nil
}

// runMigrations runs database migrations using embedded SQL files.
func runMigrations(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// =============================================================================
// Build Operations
// =============================================================================

// buildRow represents a build row in the database.
type buildRow struct {
	ID             string  `db:"id"`
	ProjectName    string  `db:"project_name"`
	Slug           string  `db:"slug"`
	ContextDir     string  `db:"context_dir"`
	Tag            string  `db:"tag"`
	Dockerfile     string  `db:"dockerfile"`
	Status         string  `db:"status"`
	ManifestDigest string  `db:"manifest_digest"`
	ImageID        string  `db:"image_id"`
	ErrorMessage   string  `db:"error_message"`
	CreatedAt      string  `db:"created_at"`
	UpdatedAt      string  `db:"updated_at"`
	StartedAt      *string `db:"started_at"`
	FinishedAt     *string `db:"finished_at"`
}

func (s *SQLiteStore) CreateBuild(ctx context.Context, build *domain.Build) error {
	return createBuild(ctx, s.db, build)
}

func (s *SQLiteStore) GetBuild(ctx context.Context, id string) (*domain.Build, error) {
	return getBuild(ctx, s.db, id)
}

func (s *SQLiteStore) UpdateBuild(ctx context.Context, build *domain.Build) error {
	return updateBuild(ctx, s.db, build)
}

func (s *SQLiteStore) DeleteBuild(ctx context.Context, id string) error {
	return deleteBuild(ctx, s.db, id)
}

func (s *SQLiteStore) ListBuilds(ctx context.Context, opts ListOptions) ([]domain.Build, error) {
	return listBuilds(ctx, s.db, opts)
}

func (s *SQLiteStore) ListBuildsByStatus(ctx context.Context, status domain.BuildStatus, opts ListOptions) ([]domain.Build, error) {
	return listBuildsByStatus(ctx, s.db, status, opts)
}

func (s *SQLiteStore) GetLatestSucceededBuild(ctx context.Context, slug string) (*domain.Build, error) {
	return getLatestSucceededBuild(ctx, s.db, slug)
}

func (s *SQLiteStore) ListFinishedBuildsBefore(ctx context.Context, cutoff time.Time, opts ListOptions) ([]domain.Build, error) {
	return listFinishedBuildsBefore(ctx, s.db, cutoff, opts)
}

// =============================================================================
// Step Event Operations
// =============================================================================

// stepEventRow represents a build step row in the database.
type stepEventRow struct {
	ID         int64  `db:"id"`
	BuildID    string `db:"build_id"`
	Step       string `db:"step"`
	Success    bool   `db:"success"`
	Message    string `db:"message"`
	RecordedAt string `db:"recorded_at"`
}

func (s *SQLiteStore) CreateStepEvent(ctx context.Context, event *domain.StepEvent) error {
	return createStepEvent(ctx, s.db, event)
}

func (s *SQLiteStore) ListStepEvents(ctx context.Context, buildID string) ([]domain.StepEvent, error) {
	return listStepEvents(ctx, s.db, buildID)
}

// =============================================================================
// Build Log Operations
// =============================================================================

func (s *SQLiteStore) AppendBuildLog(ctx context.Context, buildID string, lines []string) error {
	return appendBuildLog(ctx, s.db, buildID, lines)
}

func (s *SQLiteStore) GetBuildLog(ctx context.Context, buildID string) ([]string, error) {
	return getBuildLog(ctx, s.db, buildID)
}

// =============================================================================
// API Token Operations
// =============================================================================

// tokenRow represents an API token row in the database.
type tokenRow struct {
	ID        string `db:"id"`
	Name      string `db:"name"`
	Hash      string `db:"hash"`
	CreatedAt string `db:"created_at"`
}

func (s *SQLiteStore) CreateAPIToken(ctx context.Context, token *domain.APIToken) error {
	return createAPIToken(ctx, s.db, token)
}

func (s *SQLiteStore) GetAPIToken(ctx context.Context, id string) (*domain.APIToken, error) {
	return getAPIToken(ctx, s.db, id)
}

func (s *SQLiteStore) ListAPITokens(ctx context.Context) ([]domain.APIToken, error) {
	return listAPITokens(ctx, s.db)
}

func (s *SQLiteStore) DeleteAPIToken(ctx context.Context, id string) error {
	return deleteAPIToken(ctx, s.db, id)
}

// =============================================================================
// Transaction Support
// =============================================================================

func (s *SQLiteStore) WithTx(ctx context.Context, fn func(Store) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return NewStoreError("WithTx", "", "", "failed to begin transaction", ErrTxFailed)
	}

	txS := &txSQLiteStore{tx: tx}

	if err := fn(txS); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return NewStoreError("WithTx", "", "", fmt.Sprintf("rollback failed after error: %v", err), ErrTxFailed)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return NewStoreError("WithTx", "", "", "failed to commit transaction", ErrTxFailed)
	}

	return nil
}

// =============================================================================
// Transaction Store
// =============================================================================

// txSQLiteStore implements Store within a transaction.
type txSQLiteStore struct {
	tx *sqlx.Tx
}

func (s *txSQLiteStore) CreateBuild(ctx context.Context, build *domain.Build) error {
	return createBuild(ctx, s.tx, build)
}

func (s *txSQLiteStore) GetBuild(ctx context.Context, id string) (*domain.Build, error) {
	return getBuild(ctx, s.tx, id)
}

func (s *txSQLiteStore) UpdateBuild(ctx context.Context, build *domain.Build) error {
	return updateBuild(ctx, s.tx, build)
}

func (s *txSQLiteStore) DeleteBuild(ctx context.Context, id string) error {
	return deleteBuild(ctx, s.tx, id)
}

func (s *txSQLiteStore) ListBuilds(ctx context.Context, opts ListOptions) ([]domain.Build, error) {
	return listBuilds(ctx, s.tx, opts)
}

func (s *txSQLiteStore) ListBuildsByStatus(ctx context.Context, status domain.BuildStatus, opts ListOptions) ([]domain.Build, error) {
	return listBuildsByStatus(ctx, s.tx, status, opts)
}

func (s *txSQLiteStore) GetLatestSucceededBuild(ctx context.Context, slug string) (*domain.Build, error) {
	return getLatestSucceededBuild(ctx, s.tx, slug)
}

func (s *txSQLiteStore) ListFinishedBuildsBefore(ctx context.Context, cutoff time.Time, opts ListOptions) ([]domain.Build, error) {
	return listFinishedBuildsBefore(ctx, s.tx, cutoff, opts)
}

func (s *txSQLiteStore) CreateStepEvent(ctx context.Context, event *domain.StepEvent) error {
	return createStepEvent(ctx, s.tx, event)
}

func (s *txSQLiteStore) ListStepEvents(ctx context.Context, buildID string) ([]domain.StepEvent, error) {
	return listStepEvents(ctx, s.tx, buildID)
}

func (s *txSQLiteStore) AppendBuildLog(ctx context.Context, buildID string, lines []string) error {
	return appendBuildLog(ctx, s.tx, buildID, lines)
}

func (s *txSQLiteStore) GetBuildLog(ctx context.Context, buildID string) ([]string, error) {
	return getBuildLog(ctx, s.tx, buildID)
}

func (s *txSQLiteStore) CreateAPIToken(ctx context.Context, token *domain.APIToken) error {
	return createAPIToken(ctx, s.tx, token)
}

func (s *txSQLiteStore) GetAPIToken(ctx context.Context, id string) (*domain.APIToken, error) {
	return getAPIToken(ctx, s.tx, id)
}

func (s *txSQLiteStore) ListAPITokens(ctx context.Context) ([]domain.APIToken, error) {
	return listAPITokens(ctx, s.tx)
}

func (s *txSQLiteStore) DeleteAPIToken(ctx context.Context, id string) error {
	return deleteAPIToken(ctx, s.tx, id)
}

func (s *txSQLiteStore) WithTx(ctx context.Context, fn func(Store) error) error {
	// Nested transactions are not supported; run in the current one.
	return fn(s)
}

func (s *txSQLiteStore) Close() error {
	return nil
}

// =============================================================================
// Build Query Helpers
// =============================================================================

func createBuild(ctx context.Context, exec executor, build *domain.Build) error {
	var startedAt, finishedAt *string
	if build.StartedAt != nil {
		t := build.StartedAt.Format(time.RFC3339)
		startedAt = &t
	}
	if build.FinishedAt != nil {
		t := build.FinishedAt.Format(time.RFC3339)
		finishedAt = &t
	}

	query := `
		INSERT INTO builds (
			id, project_name, slug, context_dir, tag, dockerfile, status,
			manifest_digest, image_id, error_message,
			created_at, updated_at, started_at, finished_at
		) VALUES (
			:id, :project_name, :slug, :context_dir, :tag, :dockerfile, :status,
			:manifest_digest, :image_id, :error_message,
			:created_at, :updated_at, :started_at, :finished_at
		)`

	row := map[string]any{
		"id":              build.ID,
		"project_name":    build.ProjectName,
		"slug":            build.Slug,
		"context_dir":     build.ContextDir,
		"tag":             build.Tag,
		"dockerfile":      build.Dockerfile,
		"status":          string(build.Status),
		"manifest_digest": build.ManifestDigest,
		"image_id":        build.ImageID,
		"error_message":   build.ErrorMessage,
		"created_at":      build.CreatedAt.Format(time.RFC3339),
		"updated_at":      build.UpdatedAt.Format(time.RFC3339),
		"started_at":      startedAt,
		"finished_at":     finishedAt,
	}

	_, err := exec.NamedExecContext(ctx, query, row)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: builds.id") {
			return NewStoreError("CreateBuild", "build", build.ID, "build with this ID already exists", ErrDuplicateID)
		}
		return NewStoreError("CreateBuild", "build", build.ID, err.Error(), err)
	}

	return nil
}

func getBuild(ctx context.Context, exec executor, id string) (*domain.Build, error) {
	query := `SELECT * FROM builds WHERE id = ?`

	var row buildRow
	err := exec.GetContext(ctx, &row, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetBuild", "build", id, "build not found", ErrNotFound)
		}
		return nil, NewStoreError("GetBuild", "build", id, err.Error(), err)
	}

	return rowToBuild(&row), nil
}

func updateBuild(ctx context.Context, exec executor, build *domain.Build) error {
	// Guard against stale writes: the caller's copy may predate a concurrent
	// status change (a cancel racing a running build). The persisted status
	// decides whether the write is a legal transition, and the UPDATE itself
	// is compare-and-swapped on it.
	current, err := getBuild(ctx, exec, build.ID)
	if err != nil {
		return err
	}
	if current.Status != build.Status {
		if terr := domain.ValidateTransition(current.Status, build.Status); terr != nil {
			return NewStoreError("UpdateBuild", "build", build.ID,
				fmt.Sprintf("status is %s, cannot overwrite with %s", current.Status, build.Status),
				ErrConflict)
		}
	}

	var startedAt, finishedAt *string
	if build.StartedAt != nil {
		t := build.StartedAt.Format(time.RFC3339)
		startedAt = &t
	}
	if build.FinishedAt != nil {
		t := build.FinishedAt.Format(time.RFC3339)
		finishedAt = &t
	}

	query := `
		UPDATE builds SET
			project_name = :project_name,
			slug = :slug,
			context_dir = :context_dir,
			tag = :tag,
			dockerfile = :dockerfile,
			status = :status,
			manifest_digest = :manifest_digest,
			image_id = :image_id,
			error_message = :error_message,
			updated_at = :updated_at,
			started_at = :started_at,
			finished_at = :finished_at
		WHERE id = :id AND status = :expected_status`

	row := map[string]any{
		"id":              build.ID,
		"expected_status": string(current.Status),
		"project_name":    build.ProjectName,
		"slug":            build.Slug,
		"context_dir":     build.ContextDir,
		"tag":             build.Tag,
		"dockerfile":      build.Dockerfile,
		"status":          string(build.Status),
		"manifest_digest": build.ManifestDigest,
		"image_id":        build.ImageID,
		"error_message":   build.ErrorMessage,
		"updated_at":      build.UpdatedAt.Format(time.RFC3339),
		"started_at":      startedAt,
		"finished_at":     finishedAt,
	}

	result, err := exec.NamedExecContext(ctx, query, row)
	if err != nil {
		return NewStoreError("UpdateBuild", "build", build.ID, err.Error(), err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		// The row existed moments ago; losing the swap means the status
		// moved underneath us.
		return NewStoreError("UpdateBuild", "build", build.ID,
			"status changed concurrently", ErrConflict)
	}

	return nil
}

func deleteBuild(ctx context.Context, exec executor, id string) error {
	query := `DELETE FROM builds WHERE id = ?`

	result, err := exec.ExecContext(ctx, query, id)
	if err != nil {
		return NewStoreError("DeleteBuild", "build", id, err.Error(), err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return NewStoreError("DeleteBuild", "build", id, "build not found", ErrNotFound)
	}

	return nil
}

func listBuilds(ctx context.Context, exec executor, opts ListOptions) ([]domain.Build, error) {
	opts = opts.Normalize()
	query := `SELECT * FROM builds ORDER BY created_at DESC LIMIT ? OFFSET ?`

	var rows []buildRow
	err := exec.SelectContext(ctx, &rows, query, opts.Limit, opts.Offset)
	if err != nil {
		return nil, NewStoreError("ListBuilds", "build", "", err.Error(), err)
	}

	builds := make([]domain.Build, 0, len(rows))
	for _, row := range rows {
		builds = append(builds, *rowToBuild(&row))
	}

	return builds, nil
}

func listBuildsByStatus(ctx context.Context, exec executor, status domain.BuildStatus, opts ListOptions) ([]domain.Build, error) {
	opts = opts.Normalize()
	// Oldest first so the builder drains the queue in submission order.
	query := `SELECT * FROM builds WHERE status = ? ORDER BY created_at ASC LIMIT ? OFFSET ?`

	var rows []buildRow
	err := exec.SelectContext(ctx, &rows, query, string(status), opts.Limit, opts.Offset)
	if err != nil {
		return nil, NewStoreError("ListBuildsByStatus", "build", "", err.Error(), err)
	}

	builds := make([]domain.Build, 0, len(rows))
	for _, row := range rows {
		builds = append(builds, *rowToBuild(&row))
	}

	return builds, nil
}

func getLatestSucceededBuild(ctx context.Context, exec executor, slug string) (*domain.Build, error) {
	query := `SELECT * FROM builds WHERE slug = ? AND status = 'succeeded' ORDER BY finished_at DESC LIMIT 1`

	var row buildRow
	err := exec.GetContext(ctx, &row, query, slug)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetLatestSucceededBuild", "build", slug, "no succeeded build for project", ErrNotFound)
		}
		return nil, NewStoreError("GetLatestSucceededBuild", "build", slug, err.Error(), err)
	}

	return rowToBuild(&row), nil
}

func listFinishedBuildsBefore(ctx context.Context, exec executor, cutoff time.Time, opts ListOptions) ([]domain.Build, error) {
	opts = opts.Normalize()
	query := `
		SELECT * FROM builds
		WHERE status IN ('succeeded', 'failed', 'canceled') AND finished_at < ?
		ORDER BY finished_at ASC LIMIT ? OFFSET ?`

	var rows []buildRow
	err := exec.SelectContext(ctx, &rows, query, cutoff.UTC().Format(time.RFC3339), opts.Limit, opts.Offset)
	if err != nil {
		return nil, NewStoreError("ListFinishedBuildsBefore", "build", "", err.Error(), err)
	}

	builds := make([]domain.Build, 0, len(rows))
	for _, row := range rows {
		builds = append(builds, *rowToBuild(&row))
	}

	return builds, nil
}

// =============================================================================
// Step Event Query Helpers
// =============================================================================

func createStepEvent(ctx context.Context, exec executor, event *domain.StepEvent) error {
	query := `
		INSERT INTO build_steps (build_id, step, success, message, recorded_at)
		VALUES (:build_id, :step, :success, :message, :recorded_at)`

	row := map[string]any{
		"build_id":    event.BuildID,
		"step":        string(event.Step),
		"success":     event.Success,
		"message":     event.Message,
		"recorded_at": event.RecordedAt.Format(time.RFC3339),
	}

	_, err := exec.NamedExecContext(ctx, query, row)
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
			return NewStoreError("CreateStepEvent", "step", event.BuildID, "build not found", ErrForeignKey)
		}
		return NewStoreError("CreateStepEvent", "step", event.BuildID, err.Error(), err)
	}

	return nil
}

func listStepEvents(ctx context.Context, exec executor, buildID string) ([]domain.StepEvent, error) {
	query := `SELECT * FROM build_steps WHERE build_id = ? ORDER BY id ASC`

	var rows []stepEventRow
	err := exec.SelectContext(ctx, &rows, query, buildID)
	if err != nil {
		return nil, NewStoreError("ListStepEvents", "step", buildID, err.Error(), err)
	}

	events := make([]domain.StepEvent, 0, len(rows))
	for _, row := range rows {
		recordedAt, _ := time.Parse(time.RFC3339, row.RecordedAt)
		events = append(events, domain.StepEvent{
			BuildID:    row.BuildID,
			Step:       domain.StepName(row.Step),
			Success:    row.Success,
			Message:    row.Message,
			RecordedAt: recordedAt,
		})
	}

	return events, nil
}

// =============================================================================
// Build Log Query Helpers
// =============================================================================

func appendBuildLog(ctx context.Context, exec executor, buildID string, lines []string) error {
	if len(lines) == 0 {
		return nil
	}

	var next int
	err := exec.GetContext(ctx, &next, `SELECT COALESCE(MAX(seq), -1) + 1 FROM build_logs WHERE build_id = ?`, buildID)
	if err != nil {
		return NewStoreError("AppendBuildLog", "log", buildID, err.Error(), err)
	}

	query := `INSERT INTO build_logs (build_id, seq, line) VALUES (?, ?, ?)`
	for i, line := range lines {
		if _, err := exec.ExecContext(ctx, query, buildID, next+i, line); err != nil {
			if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
				return NewStoreError("AppendBuildLog", "log", buildID, "build not found", ErrForeignKey)
			}
			return NewStoreError("AppendBuildLog", "log", buildID, err.Error(), err)
		}
	}

	return nil
}

func getBuildLog(ctx context.Context, exec executor, buildID string) ([]string, error) {
	query := `SELECT line FROM build_logs WHERE build_id = ? ORDER BY seq ASC`

	var lines []string
	err := exec.SelectContext(ctx, &lines, query, buildID)
	if err != nil {
		return nil, NewStoreError("GetBuildLog", "log", buildID, err.Error(), err)
	}

	return lines, nil
}

// =============================================================================
// API Token Query Helpers
// =============================================================================

func createAPIToken(ctx context.Context, exec executor, token *domain.APIToken) error {
	query := `
		INSERT INTO api_tokens (id, name, hash, created_at)
		VALUES (:id, :name, :hash, :created_at)`

	row := map[string]any{
		"id":         token.ID,
		"name":       token.Name,
		"hash":       token.Hash,
		"created_at": token.CreatedAt.Format(time.RFC3339),
	}

	_, err := exec.NamedExecContext(ctx, query, row)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: api_tokens.name") {
			return NewStoreError("CreateAPIToken", "token", token.ID, "token with this name already exists", ErrDuplicateToken)
		}
		if strings.Contains(err.Error(), "UNIQUE constraint failed: api_tokens.id") {
			return NewStoreError("CreateAPIToken", "token", token.ID, "token with this ID already exists", ErrDuplicateID)
		}
		return NewStoreError("CreateAPIToken", "token", token.ID, err.Error(), err)
	}

	return nil
}

func getAPIToken(ctx context.Context, exec executor, id string) (*domain.APIToken, error) {
	query := `SELECT * FROM api_tokens WHERE id = ?`

	var row tokenRow
	err := exec.GetContext(ctx, &row, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetAPIToken", "token", id, "token not found", ErrNotFound)
		}
		return nil, NewStoreError("GetAPIToken", "token", id, err.Error(), err)
	}

	return rowToToken(&row), nil
}

func listAPITokens(ctx context.Context, exec executor) ([]domain.APIToken, error) {
	query := `SELECT * FROM api_tokens ORDER BY created_at ASC`

	var rows []tokenRow
	err := exec.SelectContext(ctx, &rows, query)
	if err != nil {
		return nil, NewStoreError("ListAPITokens", "token", "", err.Error(), err)
	}

	tokens := make([]domain.APIToken, 0, len(rows))
	for _, row := range rows {
		tokens = append(tokens, *rowToToken(&row))
	}

	return tokens, nil
}

func deleteAPIToken(ctx context.Context, exec executor, id string) error {
	query := `DELETE FROM api_tokens WHERE id = ?`

	result, err := exec.ExecContext(ctx, query, id)
	if err != nil {
		return NewStoreError("DeleteAPIToken", "token", id, err.Error(), err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return NewStoreError("DeleteAPIToken", "token", id, "token not found", ErrNotFound)
	}

	return nil
}

// =============================================================================
// Row Conversion Functions
// =============================================================================

// rowToBuild converts a database row to a domain.Build.
func rowToBuild(row *buildRow) *domain.Build {
	createdAt, _ := time.Parse(time.RFC3339, row.CreatedAt)
	updatedAt, _ := time.Parse(time.RFC3339, row.UpdatedAt)

	var startedAt, finishedAt *time.Time
	if row.StartedAt != nil && *row.StartedAt != "" {
		t, _ := time.Parse(time.RFC3339, *row.StartedAt)
		startedAt = &t
	}
	if row.FinishedAt != nil && *row.FinishedAt != "" {
		t, _ := time.Parse(time.RFC3339, *row.FinishedAt)
		finishedAt = &t
	}

	return &domain.Build{
		ID:             row.ID,
		ProjectName:    row.ProjectName,
		Slug:           row.Slug,
		ContextDir:     row.ContextDir,
		Tag:            row.Tag,
		Dockerfile:     row.Dockerfile,
		Status:         domain.BuildStatus(row.Status),
		ManifestDigest: row.ManifestDigest,
		ImageID:        row.ImageID,
		ErrorMessage:   row.ErrorMessage,
		CreatedAt:      createdAt,
		UpdatedAt:      updatedAt,
		StartedAt:      startedAt,
		FinishedAt:     finishedAt,
	}
}

// rowToToken converts a database row to a domain.APIToken.
func rowToToken(row *tokenRow) *domain.APIToken {
	createdAt, _ := time.Parse(time.RFC3339, row.CreatedAt)

	return &domain.APIToken{
		ID:        row.ID,
		Name:      row.Name,
		Hash:      row.Hash,
		CreatedAt: createdAt,
	}
}
