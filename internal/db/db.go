package db

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/rwidmer/nasync/pkg/models"
)

// DB represents a database connection
type DB struct {
	*sql.DB
}

// New opens (and if needed creates) the database at the given path.
// foreign_keys, journal_mode and synchronous are per-connection pragmas, so
// they go in the DSN where the driver applies them to every pooled connection.
func New(path string) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL&_synchronous=NORMAL", path)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}

	db := &DB{sqlDB}
	if err := db.initialize(); err != nil {
		sqlDB.Close()
		return nil, err
	}

	return db, nil
}

// initialize creates the necessary tables if they don't exist
func (db *DB) initialize() error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS nas_config (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			hostname TEXT NOT NULL,
			ssh_user TEXT NOT NULL,
			ssh_key_path TEXT NOT NULL DEFAULT '/config/id_rsa',
			ssh_port INTEGER NOT NULL DEFAULT 22,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS folder_mappings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			source_path TEXT NOT NULL,
			destination_path TEXT NOT NULL,
			enabled INTEGER NOT NULL DEFAULT 1,
			delete_source INTEGER NOT NULL DEFAULT 0,
			last_sync_at TIMESTAMP,
			last_sync_status TEXT,
			last_sync_message TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS sync_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			mapping_id INTEGER,
			status TEXT NOT NULL,
			message TEXT,
			files_transferred INTEGER NOT NULL DEFAULT 0,
			bytes_transferred INTEGER NOT NULL DEFAULT 0,
			duration_seconds REAL NOT NULL DEFAULT 0,
			started_at TIMESTAMP,
			completed_at TIMESTAMP,
			FOREIGN KEY (mapping_id) REFERENCES folder_mappings(id) ON DELETE CASCADE
		);
		CREATE INDEX IF NOT EXISTS idx_sync_logs_mapping ON sync_logs(mapping_id, id);
		CREATE TABLE IF NOT EXISTS scheduler_config (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			enabled INTEGER NOT NULL DEFAULT 1,
			interval_minutes INTEGER NOT NULL DEFAULT 15,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS post_sync_actions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			action_type TEXT NOT NULL,
			config TEXT NOT NULL,
			enabled INTEGER NOT NULL DEFAULT 1,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		INSERT OR IGNORE INTO scheduler_config (id, enabled, interval_minutes) VALUES (1, 1, 15);
	`)
	return err
}

// NasConfig returns the NAS connection settings, or nil if none are saved.
func (db *DB) NasConfig() (*models.NasConfig, error) {
	var cfg models.NasConfig
	err := db.QueryRow(`
		SELECT hostname, ssh_user, ssh_key_path, ssh_port
		FROM nas_config WHERE id = 1
	`).Scan(&cfg.Hostname, &cfg.SSHUser, &cfg.SSHKeyPath, &cfg.SSHPort)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SaveNasConfig inserts or replaces the single NAS configuration row.
func (db *DB) SaveNasConfig(cfg *models.NasConfig) error {
	_, err := db.Exec(`
		INSERT INTO nas_config (id, hostname, ssh_user, ssh_key_path, ssh_port, updated_at)
		VALUES (1, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			hostname = excluded.hostname,
			ssh_user = excluded.ssh_user,
			ssh_key_path = excluded.ssh_key_path,
			ssh_port = excluded.ssh_port,
			updated_at = CURRENT_TIMESTAMP
	`, cfg.Hostname, cfg.SSHUser, cfg.SSHKeyPath, cfg.SSHPort)
	return err
}

func scanMapping(row interface{ Scan(...any) error }) (*models.FolderMapping, error) {
	var m models.FolderMapping
	var lastAt sql.NullTime
	var lastStatus, lastMessage sql.NullString
	err := row.Scan(
		&m.ID,
		&m.Name,
		&m.SourcePath,
		&m.DestinationPath,
		&m.Enabled,
		&m.DeleteSource,
		&lastAt,
		&lastStatus,
		&lastMessage,
		&m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lastAt.Valid {
		t := lastAt.Time
		m.LastSyncAt = &t
	}
	m.LastSyncStatus = lastStatus.String
	m.LastSyncMessage = lastMessage.String
	return &m, nil
}

const mappingColumns = `id, name, source_path, destination_path, enabled, delete_source,
		last_sync_at, last_sync_status, last_sync_message, created_at`

// Mappings returns all folder mappings in creation (id) order. Id order is
// the documented sync order of a session.
func (db *DB) Mappings() ([]models.FolderMapping, error) {
	rows, err := db.Query(`SELECT ` + mappingColumns + ` FROM folder_mappings ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var mappings []models.FolderMapping
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, err
		}
		mappings = append(mappings, *m)
	}
	return mappings, rows.Err()
}

// Mapping returns one mapping by id, or nil if it does not exist.
func (db *DB) Mapping(id int64) (*models.FolderMapping, error) {
	m, err := scanMapping(db.QueryRow(`SELECT `+mappingColumns+` FROM folder_mappings WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return m, err
}

// CreateMapping inserts a mapping and returns its assigned id.
func (db *DB) CreateMapping(m *models.FolderMapping) (int64, error) {
	if m.SourcePath == "" || m.DestinationPath == "" {
		return 0, fmt.Errorf("source and destination paths are required")
	}
	res, err := db.Exec(`
		INSERT INTO folder_mappings (name, source_path, destination_path, enabled, delete_source)
		VALUES (?, ?, ?, ?, ?)
	`, m.Name, m.SourcePath, m.DestinationPath, m.Enabled, m.DeleteSource)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// UpdateMapping rewrites the editable fields of a mapping.
func (db *DB) UpdateMapping(m *models.FolderMapping) error {
	if m.SourcePath == "" || m.DestinationPath == "" {
		return fmt.Errorf("source and destination paths are required")
	}
	_, err := db.Exec(`
		UPDATE folder_mappings
		SET name = ?, source_path = ?, destination_path = ?, enabled = ?, delete_source = ?
		WHERE id = ?
	`, m.Name, m.SourcePath, m.DestinationPath, m.Enabled, m.DeleteSource, m.ID)
	return err
}

// DeleteMapping removes a mapping and, via the cascade, its history.
func (db *DB) DeleteMapping(id int64) error {
	_, err := db.Exec(`DELETE FROM folder_mappings WHERE id = ?`, id)
	return err
}

// UpdateMappingSyncStatus stamps the mapping's last-run outcome.
func (db *DB) UpdateMappingSyncStatus(id int64, status, message string) error {
	_, err := db.Exec(`
		UPDATE folder_mappings
		SET last_sync_at = CURRENT_TIMESTAMP, last_sync_status = ?, last_sync_message = ?
		WHERE id = ?
	`, status, message, id)
	return err
}

// CreateSyncRun appends one run record to the history and sets run.ID.
// Records are never updated afterwards.
func (db *DB) CreateSyncRun(run *models.SyncRun) error {
	res, err := db.Exec(`
		INSERT INTO sync_logs (mapping_id, status, message, files_transferred,
			bytes_transferred, duration_seconds, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.MappingID,
		run.Status,
		run.Message,
		run.FilesTransferred,
		run.BytesTransferred,
		run.DurationSeconds,
		run.StartedAt,
		run.CompletedAt,
	)
	if err != nil {
		return err
	}
	run.ID, err = res.LastInsertId()
	return err
}

func scanRuns(rows *sql.Rows, withName bool) ([]models.SyncRun, error) {
	var runs []models.SyncRun
	for rows.Next() {
		var run models.SyncRun
		var mappingID sql.NullInt64
		var message, name sql.NullString
		var started, completed sql.NullTime
		dest := []any{
			&run.ID, &mappingID, &run.Status, &message,
			&run.FilesTransferred, &run.BytesTransferred, &run.DurationSeconds,
			&started, &completed,
		}
		if withName {
			dest = append(dest, &name)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		run.MappingID = mappingID.Int64
		run.Message = message.String
		run.MappingName = name.String
		if started.Valid {
			run.StartedAt = started.Time
		}
		if completed.Valid {
			run.CompletedAt = completed.Time
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// RecentSyncRuns returns the newest run records first, joined with the
// mapping name for display.
func (db *DB) RecentSyncRuns(limit int) ([]models.SyncRun, error) {
	rows, err := db.Query(`
		SELECT sl.id, sl.mapping_id, sl.status, sl.message,
			sl.files_transferred, sl.bytes_transferred, sl.duration_seconds,
			sl.started_at, sl.completed_at, fm.name
		FROM sync_logs sl
		LEFT JOIN folder_mappings fm ON sl.mapping_id = fm.id
		ORDER BY sl.id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRuns(rows, true)
}

// MappingSyncRuns returns the newest run records for one mapping.
func (db *DB) MappingSyncRuns(mappingID int64, limit int) ([]models.SyncRun, error) {
	rows, err := db.Query(`
		SELECT id, mapping_id, status, message,
			files_transferred, bytes_transferred, duration_seconds,
			started_at, completed_at
		FROM sync_logs
		WHERE mapping_id = ?
		ORDER BY id DESC
		LIMIT ?
	`, mappingID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRuns(rows, false)
}

// SchedulerConfig returns the scheduler settings. A default row is seeded at
// initialization, so this always yields a value.
func (db *DB) SchedulerConfig() (*models.SchedulerConfig, error) {
	var cfg models.SchedulerConfig
	err := db.QueryRow(`
		SELECT enabled, interval_minutes FROM scheduler_config WHERE id = 1
	`).Scan(&cfg.Enabled, &cfg.IntervalMinutes)
	if err == sql.ErrNoRows {
		return &models.SchedulerConfig{Enabled: true, IntervalMinutes: 15}, nil
	}
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SaveSchedulerConfig inserts or replaces the single scheduler row.
func (db *DB) SaveSchedulerConfig(cfg *models.SchedulerConfig) error {
	if cfg.IntervalMinutes <= 0 {
		return fmt.Errorf("interval must be at least one minute")
	}
	_, err := db.Exec(`
		INSERT INTO scheduler_config (id, enabled, interval_minutes, updated_at)
		VALUES (1, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			enabled = excluded.enabled,
			interval_minutes = excluded.interval_minutes,
			updated_at = CURRENT_TIMESTAMP
	`, cfg.Enabled, cfg.IntervalMinutes)
	return err
}

// Actions returns all post-sync actions in creation (id) order, which is the
// dispatch order.
func (db *DB) Actions() ([]models.PostSyncAction, error) {
	rows, err := db.Query(`
		SELECT id, name, action_type, config, enabled, created_at
		FROM post_sync_actions ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var actions []models.PostSyncAction
	for rows.Next() {
		var a models.PostSyncAction
		var cfg []byte
		if err := rows.Scan(&a.ID, &a.Name, &a.Type, &cfg, &a.Enabled, &a.CreatedAt); err != nil {
			return nil, err
		}
		if err := a.DecodeConfig(cfg); err != nil {
			return nil, fmt.Errorf("action %d has invalid config: %w", a.ID, err)
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

// CreateAction validates and inserts an action, returning its assigned id.
func (db *DB) CreateAction(a *models.PostSyncAction) (int64, error) {
	if err := a.Validate(); err != nil {
		return 0, err
	}
	cfg, err := a.EncodeConfig()
	if err != nil {
		return 0, err
	}
	res, err := db.Exec(`
		INSERT INTO post_sync_actions (name, action_type, config, enabled)
		VALUES (?, ?, ?, ?)
	`, a.Name, a.Type, string(cfg), a.Enabled)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// UpdateAction validates and rewrites an action.
func (db *DB) UpdateAction(a *models.PostSyncAction) error {
	if err := a.Validate(); err != nil {
		return err
	}
	cfg, err := a.EncodeConfig()
	if err != nil {
		return err
	}
	_, err = db.Exec(`
		UPDATE post_sync_actions
		SET name = ?, action_type = ?, config = ?, enabled = ?
		WHERE id = ?
	`, a.Name, a.Type, string(cfg), a.Enabled, a.ID)
	return err
}

// DeleteAction removes an action.
func (db *DB) DeleteAction(id int64) error {
	_, err := db.Exec(`DELETE FROM post_sync_actions WHERE id = ?`, id)
	return err
}
