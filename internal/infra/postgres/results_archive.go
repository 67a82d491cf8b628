package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"quizroom/internal/domain"
)

// SessionResultRow is one archived session.
type SessionResultRow struct {
	bun.BaseModel `bun:"table:session_results"`

	ID          int64           `bun:"id,pk,autoincrement"`
	RoomCode    string          `bun:"room_code,notnull"`
	QuizID      string          `bun:"quiz_id"`
	Title       string          `bun:"title,notnull"`
	Players     int             `bun:"participants,notnull"`
	CompletedAt time.Time       `bun:"completed_at,notnull"`
	Data        json.RawMessage `bun:"data,type:jsonb,notnull"`
}

// ResultsArchive stores finished sessions in Postgres through bun.
type ResultsArchive struct {
	db *bun.DB
}

func NewResultsArchive(db *bun.DB) *ResultsArchive {
	return &ResultsArchive{db: db}
}

func (a *ResultsArchive) SaveResults(ctx context.Context, results domain.SessionResults) error {
	data, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	row := &SessionResultRow{
		RoomCode:    results.Session.RoomCode,
		QuizID:      results.Quiz.ID,
		Title:       results.Quiz.Title,
		Players:     len(results.Session.Participants),
		CompletedAt: results.Session.CompletedAt,
		Data:        data,
	}
	if _, err := a.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return fmt.Errorf("archive results %s: %w", results.Session.RoomCode, err)
	}
	return nil
}

// Recent returns the latest archived sessions, newest first.
func (a *ResultsArchive) Recent(ctx context.Context, limit int) ([]SessionResultRow, error) {
	var rows []SessionResultRow
	err := a.db.NewSelect().
		Model(&rows).
		Order("completed_at DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	return rows, nil
}

// Load decodes one archived session by room code, most recent first.
func (a *ResultsArchive) Load(ctx context.Context, roomCode string) (domain.SessionResults, error) {
	var row SessionResultRow
	err := a.db.NewSelect().
		Model(&row).
		Where("room_code = ?", roomCode).
		Order("completed_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		return domain.SessionResults{}, fmt.Errorf("load results %s: %w", roomCode, err)
	}
	var out domain.SessionResults
	if err := json.Unmarshal(row.Data, &out); err != nil {
		return domain.SessionResults{}, fmt.Errorf("decode results %s: %w", roomCode, err)
	}
	return out, nil
}
