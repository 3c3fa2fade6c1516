package dbclient

import (
	"context"
	"fmt"
	"strconv"

	"etlpipe/internal/domain"
)

const queryPageSize = 500

// QueryFrame runs a literal query and collects every page into a frame.
// Write statements produce an empty frame.
func QueryFrame(ctx context.Context, conn Connector, query string) (*domain.Frame, error) {
	page, err := conn.Execute(ctx, query, queryPageSize)
	if err != nil {
		return nil, err
	}
	if page.IsWrite {
		return domain.EmptyFrame()
	}

	b, err := domain.NewBuilder(uniqueNames(page.Columns)...)
	if err != nil {
		return nil, err
	}
	for {
		for _, row := range page.Rows {
			if err := b.Append(row...); err != nil {
				return nil, fmt.Errorf("query row: %w", err)
			}
		}
		if !page.HasMore {
			break
		}
		page, err = conn.FetchMore(ctx, queryPageSize)
		if err != nil {
			return nil, err
		}
	}
	return b.Frame(), nil
}

// uniqueNames suffixes repeated result column names (SELECT a, a).
func uniqueNames(names []string) []string {
	seen := make(map[string]int, len(names))
	out := make([]string, len(names))
	for i, n := range names {
		seen[n]++
		if seen[n] == 1 {
			out[i] = n
			continue
		}
		candidate := n + "_" + strconv.Itoa(seen[n])
		for seen[candidate] > 0 {
			seen[n]++
			candidate = n + "_" + strconv.Itoa(seen[n])
		}
		seen[candidate] = 1
		out[i] = candidate
	}
	return out
}
