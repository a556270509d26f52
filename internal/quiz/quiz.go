// Package quiz stores role-scoped question sections and serves them to users.
package quiz

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Chitrarthrai/NeoCompliance/internal/apperr"
	"github.com/Chitrarthrai/NeoCompliance/internal/auth"
	"github.com/Chitrarthrai/NeoCompliance/internal/ids"
)

type Answer struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	IsCorrect bool   `json:"is_correct"`
}

type Question struct {
	ID          int      `json:"id"`
	Question    string   `json:"question"`
	Explanation string   `json:"explanation,omitempty"`
	Answers     []Answer `json:"answers"`
}

// Section is a named, numbered group of questions for one role.
type Section struct {
	ID        string     `json:"id"`
	Name      string     `json:"section"`
	Role      auth.Role  `json:"role"`
	Number    int        `json:"section_no"`
	Questions []Question `json:"questions"`
	CreatedAt time.Time  `json:"created_at"`
}

type SectionSummary struct {
	ID     string `json:"id"`
	Name   string `json:"section"`
	Number int    `json:"section_no"`
}

// Repository persists sections. InsertSections stores all or none.
type Repository interface {
	InsertSections(ctx context.Context, sections []Section) error
	SectionsByRoleAndNumber(ctx context.Context, role auth.Role, number int) ([]Section, error)
	SectionSummaries(ctx context.Context, role auth.Role) ([]SectionSummary, error)
}

type Service struct {
	repo Repository
	dir  *auth.Directory
	now  func() time.Time
}

func NewService(repo Repository, dir *auth.Directory) *Service {
	return &Service{repo: repo, dir: dir, now: time.Now}
}

var errIncompleteSection = apperr.BadRequest("Each section must have section, role, section_no, and questions (array)")

// UploadSections validates and stores a batch of sections, returning them with ids.
func (s *Service) UploadSections(ctx context.Context, sections []Section) ([]Section, error) {
	if len(sections) == 0 {
		return nil, apperr.BadRequest("At least one section is required.")
	}
	now := s.now().UTC()
	out := make([]Section, 0, len(sections))
	for _, sec := range sections {
		sec.Name = strings.TrimSpace(sec.Name)
		if sec.Name == "" || sec.Role == "" || sec.Number == 0 || sec.Questions == nil {
			return nil, errIncompleteSection
		}
		role, ok := auth.ParseRole(string(sec.Role))
		if !ok || role == auth.RoleInspector {
			return nil, apperr.BadRequest("Section role must be manager or associate.")
		}
		if sec.Number < 1 {
			return nil, apperr.BadRequest("section_no must be a positive number.")
		}
		for _, q := range sec.Questions {
			if strings.TrimSpace(q.Question) == "" {
				return nil, apperr.BadRequest(fmt.Sprintf("Question %d in section %q has no text.", q.ID, sec.Name))
			}
		}
		sec.Role = role
		sec.ID = ids.NewAt(now)
		sec.CreatedAt = now
		out = append(out, sec)
	}
	if err := s.repo.InsertSections(ctx, out); err != nil {
		return nil, fmt.Errorf("upload sections: %w", err)
	}
	return out, nil
}

// Questions returns the sections for role numbered number.
func (s *Service) Questions(ctx context.Context, role string, number int) ([]Section, error) {
	if strings.TrimSpace(role) == "" || number == 0 {
		return nil, apperr.BadRequest("Role and section_no are required.")
	}
	r, ok := auth.ParseRole(role)
	if !ok {
		return nil, apperr.BadRequest("Unknown role.")
	}
	sections, err := s.repo.SectionsByRoleAndNumber(ctx, r, number)
	if err != nil {
		return nil, fmt.Errorf("questions: %w", err)
	}
	return sections, nil
}

// SectionsForUser lists the sections available to the user's role.
func (s *Service) SectionsForUser(ctx context.Context, userID string) ([]SectionSummary, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, apperr.BadRequest("User id is required.")
	}
	user, err := s.dir.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	summaries, err := s.repo.SectionSummaries(ctx, user.Role)
	if err != nil {
		return nil, fmt.Errorf("sections for user: %w", err)
	}
	return summaries, nil
}
