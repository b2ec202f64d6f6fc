package sheets

import (
	"context"

	"treasury/internal/export"
)

// TablePublisher writes an export table to a named tab and returns a
// reference to the written range.
type TablePublisher interface {
	PublishTable(ctx context.Context, title string, t export.Table) (ref string, err error)
}
