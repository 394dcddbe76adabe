package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/asset-registry/pkg/assetregistry"
)

// slugConstraint is the unique index created by the first migration.
const slugConstraint = "assets_slug_key"

const assetColumns = `id, label, slug, filename, disk, path, repo, branch, mime, size, sha256,
	verify_hash, disposition, visibility, github_url, cdn_url, created_at, updated_at, deleted_at`

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository implements assetregistry.Repository using PostgreSQL
type Repository struct {
	db   DBTX
	pool *pgxpool.Pool
	now  func() time.Time
}

var _ assetregistry.Repository = (*Repository)(nil)

// New creates a new PostgreSQL repository. Close is a no-op.
func New(db DBTX) *Repository {
	return &Repository{db: db, now: time.Now}
}

// NewWithPool creates a repository that owns pool and closes it on Close.
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool, pool: pool, now: time.Now}
}

// Error handling helper
func (r *Repository) handlePostgresError(operation string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return assetregistry.ErrAssetNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			if pgErr.ConstraintName == slugConstraint {
				return assetregistry.ErrSlugConflict
			}
			return fmt.Errorf("duplicate entry in %s: %s", operation, pgErr.ConstraintName)
		case "23514": // check_violation
			return fmt.Errorf("%w: constraint %s", assetregistry.ErrValidation, pgErr.ConstraintName)
		case "23502": // not_null_violation
			return fmt.Errorf("required field %s is missing", pgErr.ColumnName)
		case "42P01": // undefined_table
			return fmt.Errorf("table does not exist - database migration required")
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}
	return fmt.Errorf("database error in %s: %w", operation, err)
}

func scanAsset(row pgx.Row) (*assetregistry.Asset, error) {
	var a assetregistry.Asset
	var disk, disposition string
	err := row.Scan(
		&a.ID, &a.Label, &a.Slug, &a.Filename, &disk, &a.Path, &a.Repo, &a.Branch,
		&a.Mime, &a.Size, &a.SHA256, &a.VerifyHash, &disposition, &a.Visibility,
		&a.GitHubURL, &a.CDNURL, &a.CreatedAt, &a.UpdatedAt, &a.DeletedAt)
	if err != nil {
		return nil, err
	}
	a.Disk = assetregistry.Disk(disk)
	a.Disposition = assetregistry.Disposition(disposition)
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = utcPtr(a.UpdatedAt)
	a.DeletedAt = utcPtr(a.DeletedAt)
	return &a, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func (r *Repository) Insert(ctx context.Context, asset *assetregistry.Asset) error {
	query := `
		INSERT INTO assets (
			id, label, slug, filename, disk, path, repo, branch, mime, size, sha256,
			verify_hash, disposition, visibility, github_url, cdn_url, created_at, updated_at, deleted_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`

	_, err := r.db.Exec(ctx, query,
		asset.ID, asset.Label, asset.Slug, asset.Filename, string(asset.Disk), asset.Path,
		asset.Repo, asset.Branch, asset.Mime, asset.Size, asset.SHA256, asset.VerifyHash,
		string(asset.Disposition), asset.Visibility, asset.GitHubURL, asset.CDNURL,
		asset.CreatedAt, asset.UpdatedAt, asset.DeletedAt)
	if err != nil {
		return r.handlePostgresError("insert asset", err)
	}
	return nil
}

func (r *Repository) FindBySlug(ctx context.Context, slug string) (*assetregistry.Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM assets WHERE slug = $1 AND deleted_at IS NULL`
	a, err := scanAsset(r.db.QueryRow(ctx, query, slug))
	if err != nil {
		return nil, r.handlePostgresError("find asset by slug", err)
	}
	return a, nil
}

func (r *Repository) SlugTaken(ctx context.Context, slug string) (bool, error) {
	var taken bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM assets WHERE slug = $1)`, slug).Scan(&taken); err != nil {
		return false, r.handlePostgresError("check slug", err)
	}
	return taken, nil
}

func (r *Repository) GetByID(ctx context.Context, id string) (*assetregistry.Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM assets WHERE id = $1`
	a, err := scanAsset(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, r.handlePostgresError("get asset", err)
	}
	return a, nil
}

func (r *Repository) Update(ctx context.Context, id string, patch assetregistry.Patch) (*assetregistry.Asset, error) {
	query, args := buildUpdate(id, patch, r.now().UTC())
	a, err := scanAsset(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, r.handlePostgresError("update asset", err)
	}
	return a, nil
}

func (r *Repository) SoftDelete(ctx context.Context, id string) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE assets SET deleted_at = $2, updated_at = $2 WHERE id = $1 AND deleted_at IS NULL`,
		id, r.now().UTC())
	if err != nil {
		return false, r.handlePostgresError("soft delete asset", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *Repository) Restore(ctx context.Context, id string) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE assets SET deleted_at = NULL, updated_at = $2 WHERE id = $1 AND deleted_at IS NOT NULL`,
		id, r.now().UTC())
	if err != nil {
		return false, r.handlePostgresError("restore asset", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *Repository) List(ctx context.Context, query assetregistry.ListQuery) ([]*assetregistry.Asset, int, error) {
	query = assetregistry.NormalizeListQuery(query)

	total, err := r.Count(ctx, query.Filter)
	if err != nil {
		return nil, 0, err
	}

	sqlQuery, args := buildListQuery(query)
	rows, err := r.db.Query(ctx, sqlQuery, args...)
	if err != nil {
		return nil, 0, r.handlePostgresError("list assets", err)
	}
	defer rows.Close()

	items := []*assetregistry.Asset{}
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, 0, r.handlePostgresError("scan asset", err)
		}
		items = append(items, a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, r.handlePostgresError("list assets", err)
	}
	return items, total, nil
}

func (r *Repository) Count(ctx context.Context, filter assetregistry.Filter) (int, error) {
	where, args := buildWhere(filter)
	var n int
	if err := r.db.QueryRow(ctx, "SELECT count(*) FROM assets WHERE "+where, args...).Scan(&n); err != nil {
		return 0, r.handlePostgresError("count assets", err)
	}
	return n, nil
}

func (r *Repository) Close() error {
	if r.pool != nil {
		r.pool.Close()
	}
	return nil
}

// buildWhere builds the WHERE clause shared by List and Count
func buildWhere(filter assetregistry.Filter) (string, []interface{}) {
	where := "1=1"
	args := []interface{}{}
	argIndex := 1

	if !filter.IncludeDeleted {
		where += " AND deleted_at IS NULL"
	}
	if filter.Disk != "" {
		where += fmt.Sprintf(" AND disk = $%d", argIndex)
		args = append(args, string(filter.Disk))
		argIndex++
	}
	if filter.Visibility != "" {
		where += fmt.Sprintf(" AND visibility = $%d", argIndex)
		args = append(args, filter.Visibility)
		argIndex++
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		where += fmt.Sprintf(" AND (label ILIKE $%[1]d OR slug ILIKE $%[1]d OR filename ILIKE $%[1]d)", argIndex)
		args = append(args, "%"+escapeLike(q)+"%")
	}
	return where, args
}

// sortExpressions maps allow-listed sort keys to SQL. Text columns compare
// case-insensitively in byte order so that every store agrees.
var sortExpressions = map[string]string{
	assetregistry.SortFieldCreatedAt: "created_at",
	assetregistry.SortFieldUpdatedAt: "updated_at",
	assetregistry.SortFieldLabel:     `lower(label) COLLATE "C"`,
	assetregistry.SortFieldSlug:      `slug COLLATE "C"`,
	assetregistry.SortFieldFilename:  `lower(filename) COLLATE "C"`,
	assetregistry.SortFieldSize:      "size",
}

// buildListQuery expects a normalised query.
func buildListQuery(query assetregistry.ListQuery) (string, []interface{}) {
	where, args := buildWhere(query.Filter)

	expr, ok := sortExpressions[query.SortBy]
	if !ok {
		expr = sortExpressions[assetregistry.DefaultSortField]
	}
	dir, nulls := "DESC", "NULLS LAST"
	if query.SortDir == assetregistry.SortAsc {
		dir, nulls = "ASC", "NULLS FIRST"
	}

	sql := fmt.Sprintf("SELECT %s FROM assets WHERE %s ORDER BY %s %s %s, id COLLATE \"C\" %s LIMIT $%d OFFSET $%d",
		assetColumns, where, expr, dir, nulls, dir, len(args)+1, len(args)+2)
	args = append(args, query.Limit, query.Offset)
	return sql, args
}

// buildUpdate turns the non-nil patch fields into an UPDATE ... RETURNING.
func buildUpdate(id string, patch assetregistry.Patch, now time.Time) (string, []interface{}) {
	sets := []string{}
	args := []interface{}{id}
	set := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.Label != nil {
		set("label", *patch.Label)
	}
	if patch.Slug != nil {
		set("slug", *patch.Slug)
	}
	if patch.Filename != nil {
		set("filename", *patch.Filename)
	}
	if patch.Mime != nil {
		set("mime", assetregistry.StringPtr(*patch.Mime))
	}
	if patch.Size != nil {
		set("size", *patch.Size)
	}
	if patch.SHA256 != nil {
		set("sha256", assetregistry.StringPtr(strings.ToLower(*patch.SHA256)))
	}
	if patch.VerifyHash != nil {
		set("verify_hash", *patch.VerifyHash)
	}
	if patch.Disposition != nil {
		set("disposition", string(*patch.Disposition))
	}
	if patch.Visibility != nil {
		set("visibility", *patch.Visibility)
	}
	if patch.GitHubURL != nil {
		set("github_url", assetregistry.StringPtr(*patch.GitHubURL))
	}
	if patch.CDNURL != nil {
		set("cdn_url", assetregistry.StringPtr(*patch.CDNURL))
	}
	set("updated_at", now)

	return fmt.Sprintf("UPDATE assets SET %s WHERE id = $1 RETURNING %s",
		strings.Join(sets, ", "), assetColumns), args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
