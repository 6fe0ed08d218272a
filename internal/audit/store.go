package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/medbook/medbook/internal/platform/database"
)

// Store handles audit event persistence.
type Store struct{}

// NewStore creates an audit Store.
func NewStore() *Store {
	return &Store{}
}

// InsertBatch writes a batch of events in a single statement.
func (s *Store) InsertBatch(ctx context.Context, db database.Querier, events []Event) error {
	if len(events) == 0 {
		return nil
	}
	sql, args, err := buildBatchInsert(events)
	if err != nil {
		return fmt.Errorf("building batch insert: %w", err)
	}
	if _, err := db.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("inserting audit events: %w", err)
	}
	return nil
}

func buildBatchInsert(events []Event) (string, []any, error) {
	const cols = "(action, resource_type, resource_id, metadata, source)"
	const perRow = 5

	placeholders := make([]string, 0, len(events))
	args := make([]any, 0, len(events)*perRow)
	for i, e := range events {
		base := i * perRow
		placeholders = append(placeholders, fmt.Sprintf(
			"($%d, $%d, NULLIF($%d, ''), $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5,
		))

		var metaJSON []byte
		if e.Metadata != nil {
			var err error
			metaJSON, err = json.Marshal(e.Metadata)
			if err != nil {
				return "", nil, fmt.Errorf("marshaling metadata: %w", err)
			}
		}
		args = append(args, e.Action, e.ResourceType, e.ResourceID, metaJSON, e.Source)
	}

	sql := fmt.Sprintf("INSERT INTO audit_events %s VALUES %s", cols, strings.Join(placeholders, ", "))
	return sql, args, nil
}
