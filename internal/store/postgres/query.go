package postgres

import (
	"fmt"

	"github.com/alanyoungcy/yieldagg/internal/domain"
)

// buildListQuery appends time filtering, newest-first ordering and
// pagination to base, which must already contain a WHERE clause. args holds
// any placeholders base already uses.
func buildListQuery(base, timeCol string, args []any, opts domain.ListOpts, defaultLimit int) (string, []any) {
	query := base
	next := len(args) + 1

	if opts.Since != nil {
		query += fmt.Sprintf(" AND %s >= $%d", timeCol, next)
		args = append(args, *opts.Since)
		next++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND %s <= $%d", timeCol, next)
		args = append(args, *opts.Until)
		next++
	}

	query += fmt.Sprintf(" ORDER BY %s DESC", timeCol)

	limit := opts.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	query += fmt.Sprintf(" LIMIT $%d", next)
	args = append(args, limit)
	next++

	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", next)
		args = append(args, opts.Offset)
	}
	return query, args
}
