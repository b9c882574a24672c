// internal/storage/sqlite_store.go
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/Corphon/odissey/internal/models"
)

// 固定宽度的时间格式，保证按文本排序即按时间排序
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore 基于 SQLite 的 Store 实现
type SQLiteStore struct {
	db *sql.DB

	idMutex sync.Mutex
	entropy *ulid.MonotonicEntropy
	now     func() time.Time
}

// NewSQLiteStore 打开或创建数据库文件并执行迁移
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("创建数据库目录失败: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}

	s := &SQLiteStore{
		db:      db,
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
		now:     func() time.Time { return time.Now().UTC() },
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("数据库迁移失败: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) newID(at time.Time) string {
	s.idMutex.Lock()
	defer s.idMutex.Unlock()
	return ulid.MustNew(ulid.Timestamp(at), s.entropy).String()
}

func (s *SQLiteStore) migrate() error {
	// sessions.world_id 与 chat_logs.session_id 故意不加外键：
	// 世界不存在时仍要写入会话，会话不存在时仍要写入用户发言
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		age        INTEGER,
		gender     TEXT,
		auth_type  TEXT NOT NULL DEFAULT 'guest',
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS personality_assessments (
		id                TEXT PRIMARY KEY,
		user_id           TEXT NOT NULL REFERENCES users(id),
		trait_scores      TEXT NOT NULL,
		assessment_method TEXT NOT NULL,
		created_at        TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_assessments_user ON personality_assessments(user_id);

	CREATE TABLE IF NOT EXISTS worlds (
		id              TEXT PRIMARY KEY,
		creator_id      TEXT,
		title           TEXT NOT NULL,
		description     TEXT NOT NULL DEFAULT '',
		genre           TEXT NOT NULL DEFAULT 'adventure',
		artifacts       TEXT NOT NULL,
		privacy_flag    TEXT NOT NULL DEFAULT 'public',
		thumbnail_url   TEXT,
		preview_content TEXT,
		created_at      TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_worlds_privacy_created ON worlds(privacy_flag, created_at DESC);

	CREATE TABLE IF NOT EXISTS demo_worlds (
		id                 TEXT PRIMARY KEY,
		world_id           TEXT NOT NULL REFERENCES worlds(id),
		preview_content    TEXT NOT NULL DEFAULT '',
		target_personality TEXT,
		access_level       TEXT NOT NULL DEFAULT 'public',
		created_at         TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_demo_worlds_access ON demo_worlds(access_level);

	CREATE TABLE IF NOT EXISTS sessions (
		id                   TEXT PRIMARY KEY,
		user_id              TEXT,
		world_id             TEXT,
		personality_snapshot TEXT,
		created_at           TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS chat_logs (
		id                 TEXT PRIMARY KEY,
		session_id         TEXT NOT NULL,
		speaker            TEXT NOT NULL CHECK (speaker IN ('user', 'narrator')),
		content            TEXT NOT NULL,
		system_prompt_used TEXT,
		created_at         TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chat_logs_session ON chat_logs(session_id, created_at, id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// InsertUser 写入用户
func (s *SQLiteStore) InsertUser(ctx context.Context, user *models.User) error {
	user.CreatedAt = s.now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, name, age, gender, auth_type, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		user.ID, user.Name, user.Age, user.Gender, user.AuthType, user.CreatedAt.Format(timeLayout))
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// InsertPersonalityAssessment 写入人格测评
func (s *SQLiteStore) InsertPersonalityAssessment(ctx context.Context, record *models.PersonalityAssessment) error {
	scores, err := marshalJSON(record.TraitScores)
	if err != nil {
		return fmt.Errorf("encode trait scores: %w", err)
	}
	record.CreatedAt = s.now()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO personality_assessments (id, user_id, trait_scores, assessment_method, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		record.ID, record.UserID, scores, record.AssessmentMethod, record.CreatedAt.Format(timeLayout))
	if err != nil {
		return fmt.Errorf("insert personality assessment: %w", err)
	}
	return nil
}

// InsertWorld 写入世界
func (s *SQLiteStore) InsertWorld(ctx context.Context, world *models.World) error {
	artifacts, err := marshalJSON(world.Artifacts)
	if err != nil {
		return fmt.Errorf("encode artifacts: %w", err)
	}
	world.CreatedAt = s.now()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO worlds (id, creator_id, title, description, genre, artifacts, privacy_flag, thumbnail_url, preview_content, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		world.ID, world.CreatorID, world.Title, world.Description, world.Genre, artifacts,
		world.PrivacyFlag, world.ThumbnailURL, world.PreviewContent, world.CreatedAt.Format(timeLayout))
	if err != nil {
		return fmt.Errorf("insert world: %w", err)
	}
	return nil
}

// InsertDemoWorld 写入演示世界
func (s *SQLiteStore) InsertDemoWorld(ctx context.Context, demo *models.DemoWorld) error {
	target, err := marshalJSON(demo.TargetPersonality)
	if err != nil {
		return fmt.Errorf("encode target personality: %w", err)
	}
	demo.CreatedAt = s.now()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO demo_worlds (id, world_id, preview_content, target_personality, access_level, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		demo.ID, demo.WorldID, demo.PreviewContent, target, demo.AccessLevel, demo.CreatedAt.Format(timeLayout))
	if err != nil {
		return fmt.Errorf("insert demo world: %w", err)
	}
	return nil
}

// SelectWorldByID 按ID读取世界
func (s *SQLiteStore) SelectWorldByID(ctx context.Context, id string) (*models.World, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, creator_id, title, description, genre, artifacts, privacy_flag, thumbnail_url, preview_content, created_at
		 FROM worlds WHERE id = ?`, id)

	var (
		w                                   models.World
		creatorID, thumbnail, preview, arts sql.NullString
		createdAt                           string
	)
	err := row.Scan(&w.ID, &creatorID, &w.Title, &w.Description, &w.Genre, &arts,
		&w.PrivacyFlag, &thumbnail, &preview, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select world: %w", err)
	}

	w.CreatorID = nullablePtr(creatorID)
	w.ThumbnailURL = nullablePtr(thumbnail)
	w.PreviewContent = nullablePtr(preview)
	w.Artifacts = models.ParseArtifacts([]byte(arts.String))
	w.CreatedAt = parseTime(createdAt)
	return &w, nil
}

// InsertSession 写入会话，快照按写入时刻序列化
func (s *SQLiteStore) InsertSession(ctx context.Context, session *models.Session) error {
	snapshot, err := marshalJSON(session.PersonalitySnapshot)
	if err != nil {
		return fmt.Errorf("encode personality snapshot: %w", err)
	}
	session.CreatedAt = s.now()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, world_id, personality_snapshot, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		session.ID, nullIfEmpty(session.UserID), nullIfEmpty(session.WorldID), snapshot,
		session.CreatedAt.Format(timeLayout))
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// SelectSessionWithWorld 读取会话的叙事上下文
func (s *SQLiteStore) SelectSessionWithWorld(ctx context.Context, sessionID string) (*models.SessionContext, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT s.id, s.personality_snapshot, w.title, w.artifacts
		 FROM sessions s
		 JOIN worlds w ON s.world_id = w.id
		 WHERE s.id = ?`, sessionID)

	var (
		sc             models.SessionContext
		snapshot, arts sql.NullString
	)
	err := row.Scan(&sc.SessionID, &snapshot, &sc.WorldTitle, &arts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select session: %w", err)
	}

	sc.PersonalitySnapshot = parsePersonality(snapshot)
	sc.Artifacts = models.ParseArtifacts([]byte(arts.String))
	return &sc, nil
}

// InsertChatLog 追加一条会话记录
func (s *SQLiteStore) InsertChatLog(ctx context.Context, entry *models.ChatLog) error {
	entry.CreatedAt = s.now()
	if entry.ID == "" {
		entry.ID = s.newID(entry.CreatedAt)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_logs (id, session_id, speaker, content, system_prompt_used, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.SessionID, string(entry.Speaker), entry.Content, entry.SystemPromptUsed,
		entry.CreatedAt.Format(timeLayout))
	if err != nil {
		return fmt.Errorf("insert chat log: %w", err)
	}
	return nil
}

// SelectChatLogs 读取会话记录（时间升序，同一时刻按ID）
func (s *SQLiteStore) SelectChatLogs(ctx context.Context, sessionID string) ([]models.ChatLog, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, speaker, content, system_prompt_used, created_at
		 FROM chat_logs WHERE session_id = ?
		 ORDER BY created_at ASC, id ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("select chat logs: %w", err)
	}
	defer rows.Close()

	logs := []models.ChatLog{}
	for rows.Next() {
		var (
			entry     models.ChatLog
			speaker   string
			prompt    sql.NullString
			createdAt string
		)
		if err := rows.Scan(&entry.ID, &entry.SessionID, &speaker, &entry.Content, &prompt, &createdAt); err != nil {
			return nil, fmt.Errorf("scan chat log: %w", err)
		}
		entry.Speaker = models.Speaker(speaker)
		entry.SystemPromptUsed = nullablePtr(prompt)
		entry.CreatedAt = parseTime(createdAt)
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

// SelectPublicDemoWorlds 公开演示世界，按世界创建时间倒序
func (s *SQLiteStore) SelectPublicDemoWorlds(ctx context.Context, limit int) ([]models.DemoWorldSummary, error) {
	if limit <= 0 {
		limit = DemoWorldListLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT dw.id, w.id, w.title, w.description, w.genre, w.thumbnail_url,
		        dw.preview_content, dw.target_personality
		 FROM demo_worlds dw
		 JOIN worlds w ON dw.world_id = w.id
		 WHERE dw.access_level = ?
		 ORDER BY w.created_at DESC
		 LIMIT ?`, models.AccessLevelPublic, limit)
	if err != nil {
		return nil, fmt.Errorf("select demo worlds: %w", err)
	}
	defer rows.Close()

	demos := []models.DemoWorldSummary{}
	for rows.Next() {
		var (
			d                 models.DemoWorldSummary
			thumbnail, target sql.NullString
		)
		if err := rows.Scan(&d.DemoID, &d.WorldID, &d.Title, &d.Description, &d.Genre,
			&thumbnail, &d.PreviewContent, &target); err != nil {
			return nil, fmt.Errorf("scan demo world: %w", err)
		}
		d.ThumbnailURL = nullablePtr(thumbnail)
		d.TargetPersonality = parsePersonality(target)
		demos = append(demos, d)
	}
	return demos, rows.Err()
}

// SelectPublicWorlds 公开世界，按创建时间倒序
func (s *SQLiteStore) SelectPublicWorlds(ctx context.Context, limit int) ([]models.WorldSummary, error) {
	if limit <= 0 {
		limit = PublicWorldListLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, description, genre, thumbnail_url, preview_content, created_at
		 FROM worlds
		 WHERE privacy_flag = ?
		 ORDER BY created_at DESC
		 LIMIT ?`, models.PrivacyPublic, limit)
	if err != nil {
		return nil, fmt.Errorf("select worlds: %w", err)
	}
	defer rows.Close()

	worlds := []models.WorldSummary{}
	for rows.Next() {
		var (
			w                  models.WorldSummary
			thumbnail, preview sql.NullString
			createdAt          string
		)
		if err := rows.Scan(&w.WorldID, &w.Title, &w.Description, &w.Genre,
			&thumbnail, &preview, &createdAt); err != nil {
			return nil, fmt.Errorf("scan world: %w", err)
		}
		w.ThumbnailURL = nullablePtr(thumbnail)
		w.PreviewContent = nullablePtr(preview)
		w.CreatedAt = parseTime(createdAt)
		worlds = append(worlds, w)
	}
	return worlds, rows.Err()
}

// Close 关闭数据库
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func marshalJSON(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func parsePersonality(raw sql.NullString) models.Personality {
	if !raw.Valid || raw.String == "" {
		return models.Personality{}
	}
	var p models.Personality
	if err := json.Unmarshal([]byte(raw.String), &p); err != nil || p == nil {
		return models.Personality{}
	}
	return p
}

func parseTime(value string) time.Time {
	t, err := time.Parse(timeLayout, value)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, value)
	}
	return t
}

func nullablePtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func nullIfEmpty(v string) interface{} {
	if v == "" {
		return nil
	}
	return v
}
