package repository

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/therapycenter/phoneauth/internal/models"
)

type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.values) {
		return errors.New("scan: column count mismatch")
	}
	for i, d := range dest {
		dv := reflect.ValueOf(d).Elem()
		dv.Set(reflect.ValueOf(r.values[i]).Convert(dv.Type()))
	}
	return nil
}

type fakePgx struct {
	exec     func(sql string, args []any) (pgconn.CommandTag, error)
	queryRow func(sql string, args []any) pgx.Row
}

func (f *fakePgx) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return f.exec(sql, args)
}

func (f *fakePgx) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	return f.queryRow(sql, args)
}

func newPostgres(db PgxQuerier) *PostgresRepository {
	return NewPostgresRepository(db, newFakeClock(), discardLogger())
}

func TestPostgresGetByPhoneNumberNotFound(t *testing.T) {
	repo := newPostgres(&fakePgx{
		queryRow: func(string, []any) pgx.Row { return fakeRow{err: pgx.ErrNoRows} },
	})

	if _, err := repo.GetByPhoneNumber(context.Background(), "09121234567"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPostgresGetOrCreate(t *testing.T) {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.FixedZone("IRST", 12600))
	var inserted []any

	repo := newPostgres(&fakePgx{
		exec: func(sql string, args []any) (pgconn.CommandTag, error) {
			if !strings.Contains(sql, "ON CONFLICT (phone_number) DO NOTHING") {
				t.Fatalf("expected idempotent insert, got %s", sql)
			}
			inserted = args
			return pgconn.NewCommandTag("INSERT 0 1"), nil
		},
		queryRow: func(string, []any) pgx.Row {
			return fakeRow{values: []any{"09121234567", "client", created}}
		},
	})

	user, err := repo.GetOrCreate(context.Background(), "09121234567")
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}
	if inserted[0] != "09121234567" || inserted[1] != "client" {
		t.Fatalf("unexpected insert args %v", inserted)
	}
	if user.Role != models.RoleClient {
		t.Fatalf("expected client role, got %q", user.Role)
	}
	if user.CreatedAt.Location() != time.UTC || !user.CreatedAt.Equal(created) {
		t.Fatalf("expected created_at in UTC, got %s", user.CreatedAt)
	}
}

func TestPostgresUpsert(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown user", func(t *testing.T) {
		repo := newPostgres(&fakePgx{
			queryRow: func(string, []any) pgx.Row { return fakeRow{err: pgx.ErrNoRows} },
		})
		if _, err := repo.Upsert(ctx, "09121234567", "sealed", 2*time.Minute); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("replaces in place", func(t *testing.T) {
		clk := newFakeClock()
		firstCreated := clk.Now().Add(-time.Hour)

		repo := newPostgres(&fakePgx{
			queryRow: func(sql string, args []any) pgx.Row {
				if !strings.Contains(sql, "ON CONFLICT (user_id) DO UPDATE") {
					t.Fatalf("expected upsert on user_id, got %s", sql)
				}
				if strings.Contains(sql, "created_at = EXCLUDED.created_at") {
					t.Fatalf("upsert must keep the original created_at")
				}
				if args[0] != "09121234567" || args[1] != "sealed" {
					t.Fatalf("unexpected args %v", args)
				}
				expire := args[2].(time.Time)
				now := args[3].(time.Time)
				if !expire.Equal(now.Add(2 * time.Minute)) {
					t.Fatalf("expected expiry now+2m, got %s (now %s)", expire, now)
				}
				return fakeRow{values: []any{"sealed", expire, firstCreated, now}}
			},
		})

		record, err := repo.Upsert(ctx, "09121234567", "sealed", 2*time.Minute)
		if err != nil {
			t.Fatalf("upsert: %v", err)
		}
		if record.Value != "sealed" || record.PhoneNumber != "09121234567" {
			t.Fatalf("unexpected record %+v", record)
		}
		if !record.CreatedAt.Equal(firstCreated) {
			t.Fatalf("expected created_at from the existing row, got %s", record.CreatedAt)
		}
		if !record.ExpireTime.Equal(clk.Now().Add(2 * time.Minute)) {
			t.Fatalf("unexpected expiry %s", record.ExpireTime)
		}
	})
}

func TestPostgresGetOTP(t *testing.T) {
	ctx := context.Background()
	now := newFakeClock().Now()

	missing := newPostgres(&fakePgx{
		queryRow: func(string, []any) pgx.Row { return fakeRow{err: pgx.ErrNoRows} },
	})
	if _, err := missing.Get(ctx, "09121234567"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	repo := newPostgres(&fakePgx{
		queryRow: func(string, []any) pgx.Row {
			return fakeRow{values: []any{"sealed", now.Add(2 * time.Minute), now, now}}
		},
	})
	record, err := repo.Get(ctx, "09121234567")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if record.IsExpired(now) || !record.IsExpired(now.Add(3*time.Minute)) {
		t.Fatalf("unexpected expiry %s", record.ExpireTime)
	}
}

func TestPostgresConditionalDelete(t *testing.T) {
	ctx := context.Background()
	rows := map[string]bool{"sealed": true}

	repo := newPostgres(&fakePgx{
		exec: func(sql string, args []any) (pgconn.CommandTag, error) {
			if !strings.Contains(sql, "o.value = $2") {
				t.Fatalf("expected delete conditioned on value, got %s", sql)
			}
			value := args[1].(string)
			if !rows[value] {
				return pgconn.NewCommandTag("DELETE 0"), nil
			}
			delete(rows, value)
			return pgconn.NewCommandTag("DELETE 1"), nil
		},
	})

	if err := repo.Delete(ctx, "09121234567", "stale"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for a different value, got %v", err)
	}
	if err := repo.Delete(ctx, "09121234567", "sealed"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := repo.Delete(ctx, "09121234567", "sealed"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected second delete to lose, got %v", err)
	}
}

func TestPostgresErrorsAreWrapped(t *testing.T) {
	boom := errors.New("connection reset")
	repo := newPostgres(&fakePgx{
		exec:     func(string, []any) (pgconn.CommandTag, error) { return pgconn.CommandTag{}, boom },
		queryRow: func(string, []any) pgx.Row { return fakeRow{err: boom} },
	})
	ctx := context.Background()

	if _, err := repo.Get(ctx, "09121234567"); !errors.Is(err, boom) || errors.Is(err, ErrNotFound) {
		t.Fatalf("expected wrapped driver error, got %v", err)
	}
	if err := repo.Delete(ctx, "09121234567", "sealed"); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped driver error, got %v", err)
	}
}
