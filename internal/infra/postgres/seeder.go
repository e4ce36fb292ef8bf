package postgres

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"gopkg.in/yaml.v3"

	"quiz-room-service/internal/domain"
)

type quizRow struct {
	bun.BaseModel `bun:"table:quizzes"`

	ID        string          `bun:"id,pk"`
	Title     string          `bun:"title"`
	Data      json.RawMessage `bun:"data,type:jsonb"`
	UpdatedAt time.Time       `bun:"updated_at"`
}

// QuizSeeder upserts quiz documents into the quizzes table.
type QuizSeeder struct {
	db *bun.DB
}

func NewQuizSeeder(db *bun.DB) *QuizSeeder {
	return &QuizSeeder{db: db}
}

// Seed validates and writes quizzes. Existing quizzes with the same id are replaced.
func (s *QuizSeeder) Seed(ctx context.Context, quizzes []domain.Quiz) error {
	if len(quizzes) == 0 {
		return nil
	}

	rows := make([]quizRow, 0, len(quizzes))
	now := time.Now().UTC()
	for _, quiz := range quizzes {
		if err := quiz.Validate(); err != nil {
			return err
		}
		data, err := json.Marshal(quiz)
		if err != nil {
			return fmt.Errorf("encode quiz %s: %w", quiz.ID, err)
		}
		rows = append(rows, quizRow{ID: quiz.ID, Title: quiz.Title, Data: data, UpdatedAt: now})
	}

	_, err := s.db.NewInsert().
		Model(&rows).
		On("CONFLICT (id) DO UPDATE").
		Set("title = EXCLUDED.title").
		Set("data = EXCLUDED.data").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert quizzes: %w", err)
	}
	return nil
}

// ParseQuizzes reads a list of quizzes from a .json, .yaml or .yml document.
func ParseQuizzes(name string, data []byte) ([]domain.Quiz, error) {
	var quizzes []domain.Quiz
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&quizzes); err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &quizzes); err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
	default:
		return nil, fmt.Errorf("unsupported quiz file %s", name)
	}
	return quizzes, nil
}
