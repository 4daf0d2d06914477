package database

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/yleoer/tunebook/pkg/catalog"
)

// sqliteStore 是 TuneStore 接口的 SQLite 实现
type sqliteStore struct {
	db     *sql.DB
	logger *log.Logger
}

const createTablesSQL = `
	CREATE TABLE IF NOT EXISTS collections (
		id TEXT PRIMARY KEY,
		path TEXT NOT NULL UNIQUE,
		hash TEXT NOT NULL,
		directives TEXT NOT NULL DEFAULT '',
		scanned_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE TABLE IF NOT EXISTS tunes (
		collection_id TEXT NOT NULL,
		idx INTEGER NOT NULL,
		number INTEGER NOT NULL,
		title TEXT NOT NULL,
		titles TEXT NOT NULL,
		titles_folded TEXT NOT NULL,
		composer TEXT NOT NULL,
		origin TEXT NOT NULL,
		rhythm TEXT NOT NULL,
		meter TEXT NOT NULL,
		tune_key TEXT NOT NULL,
		start_offset INTEGER NOT NULL,
		body TEXT NOT NULL,
		hash TEXT NOT NULL,
		PRIMARY KEY (collection_id, idx)
	);
	CREATE INDEX IF NOT EXISTS idx_tunes_title ON tunes(title);
	`

// NewSQLiteStore 初始化 SQLite 数据库并返回 TuneStore 接口实例
func NewSQLiteStore(dataSourceName string, logger *log.Logger) (TuneStore, error) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	if _, err := db.Exec(createTablesSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tune index tables: %w", err)
	}
	logger.Printf("SQLite database initialized at: %s", dataSourceName)
	return &sqliteStore{db: db, logger: logger}, nil
}

// Close 关闭数据库连接
func (s *sqliteStore) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.logger.Println("SQLite database connection closed.")
		return err
	}
	return nil
}

// SaveCollection 在一个事务中替换该路径下的全部曲目
func (s *sqliteStore) SaveCollection(coll *catalog.Collection) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction for %s: %w", coll.Path, err)
	}
	defer tx.Rollback()

	if err := deleteCollection(tx, coll.Path); err != nil {
		return err
	}
	coll.ID = uuid.New().String()
	scannedAt := coll.ScannedAt
	if scannedAt.IsZero() {
		scannedAt = time.Now()
	}
	if _, err := tx.Exec("INSERT INTO collections (id, path, hash, directives, scanned_at) VALUES (?, ?, ?, ?, ?)",
		coll.ID, coll.Path, coll.Hash, coll.Directives, scannedAt); err != nil {
		return fmt.Errorf("failed to insert collection %s: %w", coll.Path, err)
	}
	stmt, err := tx.Prepare(`INSERT INTO tunes (collection_id, idx, number, title, titles, titles_folded, composer, origin, rhythm, meter, tune_key, start_offset, body, hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare tune insert: %w", err)
	}
	defer stmt.Close()
	for _, e := range coll.Tunes {
		titles := strings.Join(e.Titles, "\n")
		if _, err := stmt.Exec(coll.ID, e.Index, e.Number, e.Title, titles, foldTitle(titles), e.Composer, e.Origin,
			e.Rhythm, e.Meter, e.Key, e.StartOffset, e.Text, e.Hash); err != nil {
			return fmt.Errorf("failed to insert tune %d of %s: %w", e.Index, coll.Path, err)
		}
	}
	if err := tx.Commit(); err != nil {
		s.logger.Printf("ERROR: Failed to commit collection %s: %v", coll.Path, err)
		return fmt.Errorf("failed to commit collection %s: %w", coll.Path, err)
	}
	s.logger.Printf("Collection %s indexed with %d tunes.", coll.Path, len(coll.Tunes))
	return nil
}

// IsCollectionCurrent 检查文件是否已按相同内容哈希入库
func (s *sqliteStore) IsCollectionCurrent(path, hash string) (bool, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM collections WHERE path = ? AND hash = ?", path, hash).Scan(&count)
	if err != nil {
		s.logger.Printf("ERROR: Failed to check if collection %s is indexed: %v", path, err)
		return false, fmt.Errorf("failed to check index status for %s: %w", path, err)
	}
	return count > 0, nil
}

// ListTunes 按文件内顺序返回曲目
func (s *sqliteStore) ListTunes(path string) ([]*catalog.Entry, error) {
	var id string
	err := s.db.QueryRow("SELECT id FROM collections WHERE path = ?", path).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up collection %s: %w", path, err)
	}
	rows, err := s.db.Query(`SELECT idx, number, title, titles, composer, origin, rhythm, meter, tune_key, start_offset, body, hash
		FROM tunes WHERE collection_id = ? ORDER BY idx`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list tunes of %s: %w", path, err)
	}
	defer rows.Close()

	var entries []*catalog.Entry
	for rows.Next() {
		e := &catalog.Entry{}
		var titles string
		if err := rows.Scan(&e.Index, &e.Number, &e.Title, &titles, &e.Composer, &e.Origin, &e.Rhythm,
			&e.Meter, &e.Key, &e.StartOffset, &e.Text, &e.Hash); err != nil {
			return nil, fmt.Errorf("failed to read tune row of %s: %w", path, err)
		}
		if titles != "" {
			e.Titles = strings.Split(titles, "\n")
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// SearchTitles 按标题做大小写不敏感的子串匹配。
// SQLite 的 lower() 只处理 ASCII，所以大小写折叠在 Go 中完成并单独存一列
func (s *sqliteStore) SearchTitles(query string) ([]TuneMatch, error) {
	pattern := "%" + likeEscaper.Replace(foldTitle(strings.TrimSpace(query))) + "%"
	rows, err := s.db.Query(`SELECT c.path, t.idx, t.number, t.title, t.tune_key, t.start_offset
		FROM tunes t JOIN collections c ON c.id = t.collection_id
		WHERE t.titles_folded LIKE ? ESCAPE '\'
		ORDER BY c.path, t.idx`, pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to search titles for %q: %w", query, err)
	}
	defer rows.Close()

	var matches []TuneMatch
	for rows.Next() {
		var m TuneMatch
		if err := rows.Scan(&m.Path, &m.Index, &m.Number, &m.Title, &m.Key, &m.StartOffset); err != nil {
			return nil, fmt.Errorf("failed to read search row: %w", err)
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// likeEscaper 转义 LIKE 通配符，查询按字面匹配
var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

func foldTitle(s string) string {
	return strings.ToLower(s)
}

// RemoveCollection 删除文件及其曲目；不存在时不报错
func (s *sqliteStore) RemoveCollection(path string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction for %s: %w", path, err)
	}
	defer tx.Rollback()
	if err := deleteCollection(tx, path); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to remove collection %s: %w", path, err)
	}
	s.logger.Printf("Collection %s removed from index.", path)
	return nil
}

// ListCollectionPaths 按路径排序返回所有已入库文件
func (s *sqliteStore) ListCollectionPaths() ([]string, error) {
	rows, err := s.db.Query("SELECT path FROM collections ORDER BY path")
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, fmt.Errorf("failed to read collection row: %w", err)
		}
		paths = append(paths, path)
	}
	return paths, rows.Err()
}

func deleteCollection(tx *sql.Tx, path string) error {
	if _, err := tx.Exec("DELETE FROM tunes WHERE collection_id IN (SELECT id FROM collections WHERE path = ?)", path); err != nil {
		return fmt.Errorf("failed to delete tunes of %s: %w", path, err)
	}
	if _, err := tx.Exec("DELETE FROM collections WHERE path = ?", path); err != nil {
		return fmt.Errorf("failed to delete collection %s: %w", path, err)
	}
	return nil
}
