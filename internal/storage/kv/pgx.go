package kv

import (
	"context"
	"errors"
	"log/slog"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgxSchema = `
CREATE TABLE IF NOT EXISTS kv (
	scope text NOT NULL,
	key text NOT NULL,
	value text NOT NULL,
	updated_at timestamptz NOT NULL DEFAULT now(),
	PRIMARY KEY (scope, key)
)`

func NewPGXRepository(pg *pgxpool.Pool, l *slog.Logger) *PGXRepository {
	return &PGXRepository{pg: pg, g: goqu.Dialect("postgres"), l: l}
}

type PGXRepository struct {
	pg *pgxpool.Pool
	g  goqu.DialectWrapper
	l  *slog.Logger
}

type pgxEntry struct {
	Scope string `db:"scope"`
	Key   string `db:"key"`
	Value string `db:"value"`
}

// Migrate creates the kv table if it does not exist yet
func (p *PGXRepository) Migrate(ctx context.Context) error {
	_, err := p.pg.Exec(ctx, pgxSchema)
	return err
}

func (p *PGXRepository) Get(ctx context.Context, scope, key string) ([]byte, error) {
	sql, params, err := p.g.From("kv").
		Select("scope", "key", "value").
		Where(goqu.C("scope").Eq(scope), goqu.C("key").Eq(key)).
		ToSQL()
	if err != nil {
		return nil, err
	}

	var row pgxEntry

	err = pgxscan.Get(ctx, p.pg, &row, sql, params...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = nil
		}
		return nil, err
	}

	return []byte(row.Value), nil
}

func (p *PGXRepository) Set(ctx context.Context, scope, key string, value []byte) error {
	sql, params, err := p.g.Insert("kv").
		Rows(pgxEntry{
			Scope: scope,
			Key:   key,
			Value: string(value),
		}).
		OnConflict(goqu.DoUpdate("scope, key", map[string]any{
			"value":      goqu.L("excluded.value"),
			"updated_at": goqu.L("now()"),
		})).
		ToSQL()
	if err != nil {
		return err
	}

	_, err = p.pg.Exec(ctx, sql, params...)
	return err
}
