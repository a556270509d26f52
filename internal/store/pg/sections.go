package pg

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Chitrarthrai/NeoCompliance/internal/apperr"
	"github.com/Chitrarthrai/NeoCompliance/internal/auth"
	"github.com/Chitrarthrai/NeoCompliance/internal/quiz"
)

func (s *Store) InsertSections(ctx context.Context, sections []quiz.Section) error {
	if s.db == nil {
		return errNoDB
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, sec := range sections {
		questions, err := marshalJSON(sec.Questions, "[]")
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			insert into sections (id, name, role, section_no, questions, created_at)
			values ($1, $2, $3, $4, $5, $6)
		`, sec.ID, sec.Name, string(sec.Role), sec.Number, questions, sec.CreatedAt); err != nil {
			if isPgCode(err, pgErrUniqueViolation) {
				return apperr.Conflict("section already exists")
			}
			return fmt.Errorf("insert section %q: %w", sec.Name, err)
		}
	}
	return tx.Commit()
}

func (s *Store) SectionsByRoleAndNumber(ctx context.Context, role auth.Role, number int) ([]quiz.Section, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, name, role, section_no, questions, created_at
		from sections
		where role = $1 and section_no = $2
		order by id
	`, string(role), number)
	if err != nil {
		return nil, fmt.Errorf("select sections: %w", err)
	}
	defer rows.Close()

	out := []quiz.Section{}
	for rows.Next() {
		var (
			sec       quiz.Section
			secRole   string
			questions []byte
		)
		if err := rows.Scan(&sec.ID, &sec.Name, &secRole, &sec.Number, &questions, &sec.CreatedAt); err != nil {
			return nil, err
		}
		sec.Role = auth.Role(secRole)
		sec.Questions = []quiz.Question{}
		if len(questions) > 0 {
			if err := json.Unmarshal(questions, &sec.Questions); err != nil {
				return nil, fmt.Errorf("decode questions: %w", err)
			}
		}
		out = append(out, sec)
	}
	return out, rows.Err()
}

func (s *Store) SectionSummaries(ctx context.Context, role auth.Role) ([]quiz.SectionSummary, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, name, section_no from sections
		where role = $1
		order by section_no, id
	`, string(role))
	if err != nil {
		return nil, fmt.Errorf("select section summaries: %w", err)
	}
	defer rows.Close()

	out := []quiz.SectionSummary{}
	for rows.Next() {
		var sum quiz.SectionSummary
		if err := rows.Scan(&sum.ID, &sum.Name, &sum.Number); err != nil {
			return nil, err
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}
