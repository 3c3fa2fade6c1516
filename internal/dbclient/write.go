package dbclient

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"etlpipe/internal/domain"
)

// WriteTable loads f into table inside a single transaction.
func (c *sqlConnector) WriteTable(ctx context.Context, table string, f *domain.Frame, mode domain.WriteMode) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeCursorLocked()

	if f.Width() == 0 {
		return 0, fmt.Errorf("%w: table %s: frame has no columns", domain.ErrSchemaMismatch, table)
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: begin tx: %w", domain.ErrSinkWrite, err)
	}
	defer tx.Rollback()

	existing, err := c.dialect.tableColumns(ctx, tx, table)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", domain.ErrSinkWrite, err)
	}

	switch mode {
	case domain.WriteReplace:
		if existing != nil {
			if _, err := tx.ExecContext(ctx, "DROP TABLE "+c.dialect.quoteIdent(table)); err != nil {
				return 0, fmt.Errorf("%w: drop %s: %w", domain.ErrSinkWrite, table, err)
			}
		}
		if _, err := tx.ExecContext(ctx, c.dialect.createTable(table, f)); err != nil {
			return 0, fmt.Errorf("%w: create %s: %w", domain.ErrSinkWrite, table, err)
		}
	case domain.WriteAppend:
		if existing == nil {
			slog.DebugContext(ctx, "dbclient: append creates missing table", "table", table)
			if _, err := tx.ExecContext(ctx, c.dialect.createTable(table, f)); err != nil {
				return 0, fmt.Errorf("%w: create %s: %w", domain.ErrSinkWrite, table, err)
			}
		} else if !slices.Equal(existing, f.Columns()) {
			return 0, fmt.Errorf("%w: table %s has columns %v, frame has %v",
				domain.ErrSchemaMismatch, table, existing, f.Columns())
		}
	default:
		return 0, fmt.Errorf("unknown write mode %q", mode)
	}

	stmt, err := tx.PrepareContext(ctx, c.dialect.insert(table, f.Columns()))
	if err != nil {
		return 0, fmt.Errorf("%w: prepare insert into %s: %w", domain.ErrSinkWrite, table, err)
	}
	defer stmt.Close()

	for i := 0; i < f.Len(); i++ {
		if _, err := stmt.ExecContext(ctx, f.Row(i)...); err != nil {
			return 0, fmt.Errorf("%w: insert row %d into %s: %w", domain.ErrSinkWrite, i, table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: commit %s: %w", domain.ErrSinkWrite, table, err)
	}
	return f.Len(), nil
}
