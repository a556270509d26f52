package pg

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Chitrarthrai/NeoCompliance/internal/apperr"
	"github.com/Chitrarthrai/NeoCompliance/internal/auth"
	"github.com/Chitrarthrai/NeoCompliance/internal/scoring"
)

func (s *Store) UpsertScore(ctx context.Context, rec scoring.Record) error {
	if s.db == nil {
		return errNoDB
	}
	wrong, err := marshalJSON(rec.WrongQuestions, "[]")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		insert into scores (user_id, section_id, total_correct, total_wrong, wrong_questions, updated_at)
		values ($1, $2, $3, $4, $5, $6)
		on conflict (user_id, section_id) do update set
			total_correct = excluded.total_correct,
			total_wrong = excluded.total_wrong,
			wrong_questions = excluded.wrong_questions,
			updated_at = excluded.updated_at
	`, rec.UserID, rec.SectionID, rec.TotalCorrect, rec.TotalWrong, wrong, rec.UpdatedAt)
	if err != nil {
		if isPgCode(err, pgErrForeignKeyViolation) {
			return apperr.NotFound("Section not found")
		}
		return fmt.Errorf("upsert score: %w", err)
	}
	return nil
}

// SectionScores passes the user ids as one JSON array parameter.
func (s *Store) SectionScores(ctx context.Context, userIDs []string) ([]scoring.SectionScore, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	out := []scoring.SectionScore{}
	if len(userIDs) == 0 {
		return out, nil
	}
	idsJSON, err := marshalJSON(userIDs, "[]")
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		select sc.user_id, sc.section_id, se.name, se.section_no, se.role,
		       sc.total_correct, sc.total_wrong, sc.wrong_questions
		from scores sc
		join sections se on se.id = sc.section_id
		where sc.user_id in (select jsonb_array_elements_text($1::jsonb))
		order by se.section_no, sc.section_id, sc.user_id
	`, idsJSON)
	if err != nil {
		return nil, fmt.Errorf("select scores: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			sc    scoring.SectionScore
			role  string
			wrong []byte
		)
		if err := rows.Scan(&sc.UserID, &sc.SectionID, &sc.Section, &sc.SectionNo, &role,
			&sc.TotalCorrect, &sc.TotalWrong, &wrong); err != nil {
			return nil, err
		}
		sc.Role = auth.Role(role)
		sc.WrongQuestions = []int{}
		if len(wrong) > 0 {
			if err := json.Unmarshal(wrong, &sc.WrongQuestions); err != nil {
				return nil, fmt.Errorf("decode wrong_questions: %w", err)
			}
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}
