package store

import (
	"context"
	"embed"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"streamwatch/internal/watch"
	logx "streamwatch/pkg/logx"
)

//go:embed schema_postgres.sql
var pgSchemaFS embed.FS

type pgStore struct {
	pool *pgxpool.Pool
	log  logx.Logger
}

func openPostgres(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, errors.New("storage.dsn is required for postgres driver")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	st := &pgStore{pool: pool, log: log}
	if err := st.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return st, nil
}

func (s *pgStore) migrate(ctx context.Context) error {
	b, err := pgSchemaFS.ReadFile("schema_postgres.sql")
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, string(b))
	return err
}

func (s *pgStore) Close() error {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
	return nil
}

const pgTargetCols = `id, tenant_id, platform, name, identity, resolved_feed_id, webhook_url,
	notify_video, notify_short, notify_live, notify_premiere, notify_stream,
	template, last_seen_marker, created_at`

func (s *pgStore) ListEligibleTargets(ctx context.Context, platform watch.Platform) ([]watch.Target, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgTargetCols+` FROM targets
		 WHERE platform = $1
		   AND (notify_video OR notify_short OR notify_live OR notify_premiere OR notify_stream)
		 ORDER BY created_at`, string(platform))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []watch.Target
	for rows.Next() {
		t, err := scanPGTarget(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (s *pgStore) GetTarget(ctx context.Context, id string) (*watch.Target, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+pgTargetCols+` FROM targets WHERE id = $1`, id)
	t, err := scanPGTarget(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

func (s *pgStore) CreateTarget(ctx context.Context, t *watch.Target) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO targets(`+pgTargetCols+`)
		 VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		t.ID, t.TenantID, string(t.Platform), t.Name, t.Identity, t.ResolvedFeedID, t.WebhookURL,
		t.Filters.NotifyVideo, t.Filters.NotifyShort, t.Filters.NotifyLive, t.Filters.NotifyPremiere, t.Filters.NotifyStream,
		t.Template, t.LastSeenMarker, t.CreatedAt.UTC(),
	)
	return err
}

func (s *pgStore) UpdateTarget(ctx context.Context, t *watch.Target) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE targets SET name=$1, identity=$2, webhook_url=$3,
		   notify_video=$4, notify_short=$5, notify_live=$6, notify_premiere=$7, notify_stream=$8,
		   template=$9
		 WHERE id=$10`,
		t.Name, t.Identity, t.WebhookURL,
		t.Filters.NotifyVideo, t.Filters.NotifyShort, t.Filters.NotifyLive, t.Filters.NotifyPremiere, t.Filters.NotifyStream,
		t.Template, t.ID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *pgStore) DeleteTarget(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM targets WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *pgStore) CountTargets(ctx context.Context, tenantID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM targets WHERE tenant_id = $1`, tenantID).Scan(&n)
	return n, err
}

func (s *pgStore) UpdateMarker(ctx context.Context, targetID, marker string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE targets SET last_seen_marker = $1 WHERE id = $2`, marker, targetID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *pgStore) UpdateResolvedFeedID(ctx context.Context, targetID, feedID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE targets SET resolved_feed_id = $1 WHERE id = $2`, feedID, targetID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *pgStore) AppendDeliveryOutcome(ctx context.Context, o watch.DeliveryOutcome) error {
	if o.SentAt.IsZero() {
		o.SentAt = time.Now()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO outcomes(id, target_id, platform, type, content_id, message, sent_at, status, err)
		 VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		o.ID, o.TargetID, string(o.Platform), string(o.Type), o.ContentID, o.Message,
		o.SentAt.UTC(), string(o.Status), nullStr(o.Error),
	)
	return err
}

func (s *pgStore) RecentOutcomes(ctx context.Context, targetID string, limit int) ([]watch.DeliveryOutcome, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, target_id, platform, type, content_id, message, sent_at, status, COALESCE(err, '')
		 FROM outcomes WHERE target_id = $1 ORDER BY sent_at DESC LIMIT $2`, targetID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []watch.DeliveryOutcome
	for rows.Next() {
		var o watch.DeliveryOutcome
		var platform, typ, status string
		if err := rows.Scan(&o.ID, &o.TargetID, &platform, &typ, &o.ContentID, &o.Message, &o.SentAt, &status, &o.Error); err != nil {
			return nil, err
		}
		o.Platform = watch.Platform(platform)
		o.Type = watch.ContentType(typ)
		o.Status = watch.Status(status)
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *pgStore) PruneOutcomes(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM outcomes WHERE sent_at < $1`, olderThan.UTC())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanPGTarget(row pgx.Row) (*watch.Target, error) {
	var t watch.Target
	var platform string
	if err := row.Scan(
		&t.ID, &t.TenantID, &platform, &t.Name, &t.Identity, &t.ResolvedFeedID, &t.WebhookURL,
		&t.Filters.NotifyVideo, &t.Filters.NotifyShort, &t.Filters.NotifyLive, &t.Filters.NotifyPremiere, &t.Filters.NotifyStream,
		&t.Template, &t.LastSeenMarker, &t.CreatedAt,
	); err != nil {
		return nil, err
	}
	t.Platform = watch.Platform(platform)
	return &t, nil
}
