package configstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"abrplink/backend/services/abrp-agent/internal/host"
)

// DefaultTable stores one row per (namespace, param).
const DefaultTable = "config_values"

// PostgresStore persists settings in a relational table:
//
//	CREATE TABLE config_values (
//	    namespace TEXT NOT NULL,
//	    param     TEXT NOT NULL,
//	    value     TEXT NOT NULL,
//	    updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
//	    PRIMARY KEY (namespace, param)
//	);
type PostgresStore struct {
	db    *sql.DB
	table string
}

// NewPostgresStore returns store over table (DefaultTable when empty).
func NewPostgresStore(db *sql.DB, table string) *PostgresStore {
	if table == "" {
		table = DefaultTable
	}
	return &PostgresStore{db: db, table: table}
}

// GetValues implements host.ConfigStore.
func (s *PostgresStore) GetValues(ctx context.Context, namespace, prefix string) (map[string]string, error) {
	query := fmt.Sprintf(`
		SELECT param, value
		FROM %s
		WHERE namespace = $1 AND param LIKE $2
	`, s.table)
	rows, err := s.db.QueryContext(ctx, query, namespace, likePrefix(prefix))
	if err != nil {
		return nil, fmt.Errorf("configstore: query %s: %w", namespace, err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var param, value string
		if err := rows.Scan(&param, &value); err != nil {
			return nil, fmt.Errorf("configstore: scan %s: %w", namespace, err)
		}
		out[strings.TrimPrefix(param, prefix)] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("configstore: rows %s: %w", namespace, err)
	}
	return out, nil
}

// SetValues implements host.ConfigStore. All keys are written in one transaction.
func (s *PostgresStore) SetValues(ctx context.Context, namespace, prefix string, values map[string]string) error {
	upsert := fmt.Sprintf(`
		INSERT INTO %s (namespace, param, value, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (namespace, param) DO UPDATE SET value = EXCLUDED.value, updated_at = now()
	`, s.table)
	remove := fmt.Sprintf(`DELETE FROM %s WHERE namespace = $1 AND param = $2`, s.table)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("configstore: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for k, v := range values {
		if v == "" {
			_, err = tx.ExecContext(ctx, remove, namespace, prefix+k)
		} else {
			_, err = tx.ExecContext(ctx, upsert, namespace, prefix+k, v)
		}
		if err != nil {
			return fmt.Errorf("configstore: write %s%s: %w", prefix, k, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("configstore: commit: %w", err)
	}
	return nil
}

func likePrefix(prefix string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(prefix) + "%"
}

var _ host.ConfigStore = (*PostgresStore)(nil)
