package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel/trace"

	"planit/internal/domain"
	"planit/internal/infra/tracer"
)

// ReadTurns returns ownerID's conversation, oldest first. A user with no
// history gets an empty slice.
func (s *SQLiteStore) ReadTurns(ctx context.Context, ownerID string) ([]domain.Turn, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT role, parts, created_at FROM chat_turns WHERE owner_id = ? ORDER BY ord", ownerID)
	if err != nil {
		return nil, fmt.Errorf("read turns: %w", err)
	}
	defer rows.Close()

	turns := []domain.Turn{}
	for rows.Next() {
		var role, parts, created string
		if err := rows.Scan(&role, &parts, &created); err != nil {
			return nil, err
		}
		t := domain.Turn{Role: role, CreatedAt: parseTime(created)}
		if err := json.Unmarshal([]byte(parts), &t.Parts); err != nil {
			return nil, fmt.Errorf("unmarshal turn parts: %w", err)
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// AppendTurns appends turns after ownerID's last turn in a single transaction,
// so a concurrent append never interleaves with this one.
func (s *SQLiteStore) AppendTurns(ctx context.Context, ownerID string, turns []domain.Turn) error {
	if len(turns) == 0 {
		return nil
	}
	ctx, span := tracer.StartSpan(ctx, "store.append",
		trace.WithAttributes(tracer.IntAttr("store.turns", len(turns))),
	)
	defer span.End()

	now := s.now()
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var next int64
		if err := tx.QueryRowContext(ctx,
			"SELECT COALESCE(MAX(ord), -1) + 1 FROM chat_turns WHERE owner_id = ?", ownerID,
		).Scan(&next); err != nil {
			return fmt.Errorf("next turn ord: %w", err)
		}
		stmt, err := tx.PrepareContext(ctx,
			"INSERT INTO chat_turns (owner_id, ord, role, parts, created_at) VALUES (?, ?, ?, ?, ?)")
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i, t := range turns {
			parts, err := json.Marshal(t.Parts)
			if err != nil {
				return fmt.Errorf("marshal turn parts: %w", err)
			}
			created := t.CreatedAt
			if created.IsZero() {
				created = now
			}
			if _, err := stmt.ExecContext(ctx, ownerID, next+int64(i), t.Role, string(parts), formatTime(created)); err != nil {
				return fmt.Errorf("insert turn: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		tracer.RecordError(span, err)
		return err
	}
	tracer.SetOK(span)
	return nil
}

// ClearTurns drops ownerID's whole conversation.
func (s *SQLiteStore) ClearTurns(ctx context.Context, ownerID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM chat_turns WHERE owner_id = ?", ownerID)
	return err
}
