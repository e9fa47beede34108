package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ktBigDeal/customs-clearance-sub000/internal/core/domain"
)

// RoutingStore persists the append-only routing history per session.
type RoutingStore struct {
	db *sql.DB
}

func NewRoutingStore(db *sql.DB) *RoutingStore {
	return &RoutingStore{db: db}
}

func (r *RoutingStore) AppendDecision(ctx context.Context, decision domain.RoutingDecision) error {
	if decision.CreatedAt.IsZero() {
		decision.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO routing_decisions (id, session_id, specialist, source, reasoning, complexity, requires_multiple, complex, step, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
`,
		decision.ID, decision.SessionID, string(decision.Specialist), string(decision.Source),
		decision.Reasoning, decision.Complexity, decision.RequiresMultiple, decision.Complex,
		decision.Step, decision.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append routing decision: %w", err)
	}
	return nil
}

func (r *RoutingStore) ListDecisions(ctx context.Context, sessionID string) ([]domain.RoutingDecision, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, session_id, specialist, source, reasoning, complexity, requires_multiple, complex, step, created_at
FROM routing_decisions
WHERE session_id = $1
ORDER BY step ASC, created_at ASC
`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list routing decisions: %w", err)
	}
	defer rows.Close()

	out := make([]domain.RoutingDecision, 0)
	for rows.Next() {
		decision, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, decision)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate routing decisions: %w", err)
	}
	return out, nil
}

func (r *RoutingStore) CountDecisions(ctx context.Context, sessionID string) (int, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM routing_decisions WHERE session_id = $1
`, sessionID)

	var count int
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count routing decisions: %w", err)
	}
	return count, nil
}

func scanDecision(rows *sql.Rows) (domain.RoutingDecision, error) {
	var decision domain.RoutingDecision
	var specialist, source string
	err := rows.Scan(
		&decision.ID,
		&decision.SessionID,
		&specialist,
		&source,
		&decision.Reasoning,
		&decision.Complexity,
		&decision.RequiresMultiple,
		&decision.Complex,
		&decision.Step,
		&decision.CreatedAt,
	)
	if err != nil {
		return domain.RoutingDecision{}, fmt.Errorf("scan routing decision: %w", err)
	}
	decision.Specialist = domain.Specialist(specialist)
	decision.Source = domain.DecisionSource(source)
	return decision, nil
}
