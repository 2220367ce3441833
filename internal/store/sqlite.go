package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"streamwatch/internal/watch"
	logx "streamwatch/pkg/logx"
)

//go:embed migrations_sqlite.sql
var sqliteMigrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("storage.path is required for sqlite driver")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := sqliteMigrationsFS.ReadFile("migrations_sqlite.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const sqliteTargetCols = `id, tenant_id, platform, name, identity, resolved_feed_id, webhook_url,
	notify_video, notify_short, notify_live, notify_premiere, notify_stream,
	template, last_seen_marker, created_at`

func (s *sqliteStore) ListEligibleTargets(ctx context.Context, platform watch.Platform) ([]watch.Target, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteTargetCols+` FROM targets
		 WHERE platform = ?
		   AND (notify_video OR notify_short OR notify_live OR notify_premiere OR notify_stream)
		 ORDER BY created_at`, string(platform))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []watch.Target
	for rows.Next() {
		t, err := scanSQLiteTarget(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (s *sqliteStore) GetTarget(ctx context.Context, id string) (*watch.Target, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteTargetCols+` FROM targets WHERE id = ?`, id)
	t, err := scanSQLiteTarget(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

func (s *sqliteStore) CreateTarget(ctx context.Context, t *watch.Target) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO targets(`+sqliteTargetCols+`)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.TenantID, string(t.Platform), t.Name, t.Identity, t.ResolvedFeedID, t.WebhookURL,
		t.Filters.NotifyVideo, t.Filters.NotifyShort, t.Filters.NotifyLive, t.Filters.NotifyPremiere, t.Filters.NotifyStream,
		t.Template, t.LastSeenMarker, t.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}

func (s *sqliteStore) UpdateTarget(ctx context.Context, t *watch.Target) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE targets SET name=?, identity=?, webhook_url=?,
		   notify_video=?, notify_short=?, notify_live=?, notify_premiere=?, notify_stream=?,
		   template=?
		 WHERE id=?`,
		t.Name, t.Identity, t.WebhookURL,
		t.Filters.NotifyVideo, t.Filters.NotifyShort, t.Filters.NotifyLive, t.Filters.NotifyPremiere, t.Filters.NotifyStream,
		t.Template, t.ID,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *sqliteStore) DeleteTarget(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM targets WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *sqliteStore) CountTargets(ctx context.Context, tenantID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM targets WHERE tenant_id = ?`, tenantID).Scan(&n)
	return n, err
}

func (s *sqliteStore) UpdateMarker(ctx context.Context, targetID, marker string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE targets SET last_seen_marker = ? WHERE id = ?`, marker, targetID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *sqliteStore) UpdateResolvedFeedID(ctx context.Context, targetID, feedID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE targets SET resolved_feed_id = ? WHERE id = ?`, feedID, targetID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *sqliteStore) AppendDeliveryOutcome(ctx context.Context, o watch.DeliveryOutcome) error {
	if o.SentAt.IsZero() {
		o.SentAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO outcomes(id, target_id, platform, type, content_id, message, sent_at, status, err)
		 VALUES(?,?,?,?,?,?,?,?,?)`,
		o.ID, o.TargetID, string(o.Platform), string(o.Type), o.ContentID, o.Message,
		o.SentAt.UTC().Format(time.RFC3339Nano), string(o.Status), nullStr(o.Error),
	)
	return err
}

func (s *sqliteStore) RecentOutcomes(ctx context.Context, targetID string, limit int) ([]watch.DeliveryOutcome, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, target_id, platform, type, content_id, message, sent_at, status, err
		 FROM outcomes WHERE target_id = ? ORDER BY sent_at DESC LIMIT ?`, targetID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []watch.DeliveryOutcome
	for rows.Next() {
		var o watch.DeliveryOutcome
		var platform, typ, sentAt, status string
		var errStr sql.NullString
		if err := rows.Scan(&o.ID, &o.TargetID, &platform, &typ, &o.ContentID, &o.Message, &sentAt, &status, &errStr); err != nil {
			return nil, err
		}
		o.Platform = watch.Platform(platform)
		o.Type = watch.ContentType(typ)
		o.Status = watch.Status(status)
		o.Error = errStr.String
		o.SentAt, _ = time.Parse(time.RFC3339Nano, sentAt)
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *sqliteStore) PruneOutcomes(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM outcomes WHERE sent_at < ?`, olderThan.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type sqlScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteTarget(row sqlScanner) (*watch.Target, error) {
	var t watch.Target
	var platform, createdAt string
	if err := row.Scan(
		&t.ID, &t.TenantID, &platform, &t.Name, &t.Identity, &t.ResolvedFeedID, &t.WebhookURL,
		&t.Filters.NotifyVideo, &t.Filters.NotifyShort, &t.Filters.NotifyLive, &t.Filters.NotifyPremiere, &t.Filters.NotifyStream,
		&t.Template, &t.LastSeenMarker, &createdAt,
	); err != nil {
		return nil, err
	}
	t.Platform = watch.Platform(platform)
	t.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &t, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
