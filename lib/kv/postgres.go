// Copyright (C) The faabric-go Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package kv

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// PostgresStore persists cluster-wide metadata in Postgres so that
// every host in the cluster observes the same host registry, rank
// maps, and RMA windows. Schema:
//
//	create table faabric_kv (
//	  key        text primary key,
//	  value      bytea not null,
//	  expires_at timestamptz
//	);
//	create table faabric_list (
//	  key   text not null,
//	  seq   bigserial,
//	  value bytea not null
//	);
type PostgresStore struct {
	db *sqlx.DB
}

// OpenPostgresStore connects to dsn and returns a PostgresStore. The
// caller is responsible for running the schema above before first use.
func OpenPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

// Close releases the underlying connection pool.
func (p *PostgresStore) Close() error {
	return p.db.Close()
}

func (p *PostgresStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	var expiresAt sql.NullTime
	err := p.db.QueryRowxContext(ctx,
		`select value, expires_at from faabric_kv where key = $1`, key,
	).Scan(&value, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if expiresAt.Valid && time.Now().After(expiresAt.Time) {
		return nil, ErrNotFound
	}
	return value, nil
}

func (p *PostgresStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var expiresAt sql.NullTime
	if ttl > 0 {
		expiresAt = sql.NullTime{Time: time.Now().Add(ttl), Valid: true}
	}
	_, err := p.db.ExecContext(ctx, `
		insert into faabric_kv (key, value, expires_at) values ($1, $2, $3)
		on conflict (key) do update set value = excluded.value, expires_at = excluded.expires_at
	`, key, value, expiresAt)
	return err
}

func (p *PostgresStore) Append(ctx context.Context, key string, value []byte) error {
	_, err := p.db.ExecContext(ctx, `
		insert into faabric_kv (key, value) values ($1, $2)
		on conflict (key) do update set value = faabric_kv.value || excluded.value
	`, key, value)
	return err
}

func (p *PostgresStore) Delete(ctx context.Context, user, key string) error {
	_, err := p.db.ExecContext(ctx, `delete from faabric_kv where key = $1`, key)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `delete from faabric_list where key = $1`, key)
	return err
}

func (p *PostgresStore) GetTTL(ctx context.Context, key string) (time.Duration, error) {
	var expiresAt sql.NullTime
	err := p.db.QueryRowxContext(ctx, `select expires_at from faabric_kv where key = $1`, key).Scan(&expiresAt)
	if errors.Is(err, sql.ErrNoRows) || !expiresAt.Valid {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if remaining := time.Until(expiresAt.Time); remaining > 0 {
		return remaining, nil
	}
	return 0, nil
}

func (p *PostgresStore) ListLength(ctx context.Context, key string) (int, error) {
	var n int
	err := p.db.GetContext(ctx, &n, `select count(*) from faabric_list where key = $1`, key)
	return n, err
}

func (p *PostgresStore) PushList(ctx context.Context, key string, entry []byte, ttl time.Duration) error {
	_, err := p.db.ExecContext(ctx, `insert into faabric_list (key, value) values ($1, $2)`, key, entry)
	return err
}

// PullList blocking-pops the oldest entry at key. Postgres has no
// native blocking-pop primitive usable from a read-only connection
// pool, so this polls at a fixed interval until timeout elapses,
// mirroring the teacher's probe-interval pattern in
// lib/dispatchcloud/worker/pool.go rather than holding a dedicated
// LISTEN/NOTIFY connection per caller.
func (p *PostgresStore) PullList(ctx context.Context, key string, timeout time.Duration) ([]byte, error) {
	const pollInterval = 50 * time.Millisecond
	deadline := time.Now().Add(timeout)
	for {
		var seq int64
		var value []byte
		err := p.db.QueryRowxContext(ctx, `
			delete from faabric_list where seq = (
				select seq from faabric_list where key = $1 order by seq limit 1
			) returning seq, value
		`, key).Scan(&seq, &value)
		if err == nil {
			return value, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		if timeout <= 0 || time.Now().After(deadline) {
			return nil, ErrNotFound
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}
