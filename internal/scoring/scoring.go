// Package scoring records section scores and rolls them up along the store hierarchy.
package scoring

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Chitrarthrai/NeoCompliance/internal/apperr"
	"github.com/Chitrarthrai/NeoCompliance/internal/auth"
	"github.com/Chitrarthrai/NeoCompliance/internal/org"
)

var (
	ErrNoStores     = apperr.NotFound("No stores found for this manager")
	ErrNoAssociates = apperr.NotFound("No associates found for this manager")
)

// AnswerOutcome is the graded result of one question.
type AnswerOutcome struct {
	QuestionID int  `json:"questionId"`
	IsCorrect  bool `json:"isCorrect"`
}

// Record is the single score kept per (user, section).
type Record struct {
	UserID         string    `json:"user_id"`
	SectionID      string    `json:"section_id"`
	TotalCorrect   int       `json:"total_correct"`
	TotalWrong     int       `json:"total_wrong"`
	WrongQuestions []int     `json:"wrong_questions"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// SectionScore is a Record joined with its section's metadata.
type SectionScore struct {
	UserID         string    `json:"user_id"`
	SectionID      string    `json:"section_id"`
	Section        string    `json:"section"`
	SectionNo      int       `json:"section_no"`
	Role           auth.Role `json:"role"`
	TotalCorrect   int       `json:"total_correct"`
	TotalWrong     int       `json:"total_wrong"`
	WrongQuestions []int     `json:"wrong_questions"`
}

type AssociateScore struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Score  int    `json:"score"`
}

type SectionResult struct {
	SectionID string `json:"section_id"`
	Section   string `json:"section"`
	SectionNo int    `json:"section_no"`
	Score     int    `json:"score"`
}

// MemberScores groups one store member's section results.
type MemberScores struct {
	UserID   string          `json:"userId"`
	Name     string          `json:"name"`
	Role     auth.Role       `json:"role"`
	Sections []SectionResult `json:"sections"`
}

// Repository persists score records. UpsertScore fails with an error matching
// apperr.ErrNotFound when the section does not exist. SectionScores returns
// records of the given users ordered by section number.
type Repository interface {
	UpsertScore(ctx context.Context, rec Record) error
	SectionScores(ctx context.Context, userIDs []string) ([]SectionScore, error)
}

// Hierarchy is the read side of the store hierarchy.
type Hierarchy interface {
	GetStore(ctx context.Context, id string) (org.Store, error)
	StoresWithMember(ctx context.Context, userID string, role auth.Role) ([]org.Store, error)
}

type Service struct {
	repo   Repository
	stores Hierarchy
	dir    *auth.Directory
	now    func() time.Time
}

func NewService(repo Repository, stores Hierarchy, dir *auth.Directory) *Service {
	return &Service{repo: repo, stores: stores, dir: dir, now: time.Now}
}

// Submission is one graded attempt at a section.
type Submission struct {
	UserID    string
	SectionID string
	Answers   []AnswerOutcome
}

// Submit tallies answers and overwrites the user's record for the section.
func (s *Service) Submit(ctx context.Context, sub Submission) (Record, error) {
	if strings.TrimSpace(sub.UserID) == "" || strings.TrimSpace(sub.SectionID) == "" || sub.Answers == nil {
		return Record{}, apperr.BadRequest("userId, sectionId and answers (array) are required.")
	}
	rec := Record{
		UserID:         sub.UserID,
		SectionID:      sub.SectionID,
		WrongQuestions: []int{},
		UpdatedAt:      s.now().UTC(),
	}
	for _, a := range sub.Answers {
		if a.IsCorrect {
			rec.TotalCorrect++
			continue
		}
		rec.WrongQuestions = append(rec.WrongQuestions, a.QuestionID)
	}
	rec.TotalWrong = len(sub.Answers) - rec.TotalCorrect
	if err := s.repo.UpsertScore(ctx, rec); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return Record{}, err
		}
		return Record{}, fmt.Errorf("submit score: %w", err)
	}
	return rec, nil
}

// UserSectionScores returns the user's records enriched with section metadata.
func (s *Service) UserSectionScores(ctx context.Context, userID string) ([]SectionScore, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, apperr.BadRequest("User id is required.")
	}
	scores, err := s.repo.SectionScores(ctx, []string{userID})
	if err != nil {
		return nil, fmt.Errorf("user section scores: %w", err)
	}
	if scores == nil {
		scores = []SectionScore{}
	}
	return scores, nil
}

// AuthorizeView decides whether caller may read target's scores: everyone may
// read their own, managers also those of associates in any of their stores.
func (s *Service) AuthorizeView(ctx context.Context, caller auth.Principal, targetID string) error {
	if targetID == caller.ID {
		return nil
	}
	if caller.Role != auth.RoleManager {
		return apperr.Forbidden("You can only view your own scores.")
	}
	stores, err := s.stores.StoresWithMember(ctx, caller.ID, auth.RoleManager)
	if err != nil {
		return err
	}
	for _, st := range stores {
		if st.HasMember(targetID, auth.RoleAssociate) {
			return nil
		}
	}
	return apperr.Forbidden("This user is not an associate in your stores.")
}

// ManagerRollup returns the total correct answers of every associate in the
// manager's stores, each associate once, in store membership order.
func (s *Service) ManagerRollup(ctx context.Context, managerID string) ([]AssociateScore, error) {
	if strings.TrimSpace(managerID) == "" {
		return nil, apperr.BadRequest("Manager id is required.")
	}
	stores, err := s.stores.StoresWithMember(ctx, managerID, auth.RoleManager)
	if err != nil {
		return nil, fmt.Errorf("manager rollup: %w", err)
	}
	if len(stores) == 0 {
		return nil, ErrNoStores
	}
	var associates []string
	seen := make(map[string]struct{})
	for _, st := range stores {
		for _, id := range st.Associates {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			associates = append(associates, id)
		}
	}
	if len(associates) == 0 {
		return nil, ErrNoAssociates
	}
	scores, err := s.repo.SectionScores(ctx, associates)
	if err != nil {
		return nil, fmt.Errorf("manager rollup: %w", err)
	}
	totals := make(map[string]int, len(associates))
	for _, sc := range scores {
		totals[sc.UserID] += sc.TotalCorrect
	}
	out := make([]AssociateScore, 0, len(associates))
	for _, id := range associates {
		name, err := s.nameOf(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("manager rollup: %w", err)
		}
		out = append(out, AssociateScore{UserID: id, Name: name, Score: totals[id]})
	}
	return out, nil
}

// StoreDetail returns one entry per store member, managers first, each with
// that member's section results.
func (s *Service) StoreDetail(ctx context.Context, storeID string) ([]MemberScores, error) {
	if strings.TrimSpace(storeID) == "" {
		return nil, apperr.BadRequest("Store id is required.")
	}
	store, err := s.stores.GetStore(ctx, storeID)
	if err != nil {
		return nil, err
	}
	var members []auth.Identity
	seen := make(map[string]struct{})
	for _, id := range append(append([]string{}, store.Managers...), store.Associates...) {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		identity, err := s.dir.FindByID(ctx, id)
		if err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("store detail: %w", err)
		}
		members = append(members, identity)
	}
	out := make([]MemberScores, 0, len(members))
	if len(members) == 0 {
		return out, nil
	}
	userIDs := make([]string, 0, len(members))
	for _, m := range members {
		userIDs = append(userIDs, m.ID)
	}
	scores, err := s.repo.SectionScores(ctx, userIDs)
	if err != nil {
		return nil, fmt.Errorf("store detail: %w", err)
	}
	byUser := make(map[string][]SectionResult, len(members))
	for _, sc := range scores {
		byUser[sc.UserID] = append(byUser[sc.UserID], SectionResult{
			SectionID: sc.SectionID,
			Section:   sc.Section,
			SectionNo: sc.SectionNo,
			Score:     sc.TotalCorrect,
		})
	}
	for _, m := range members {
		sections := byUser[m.ID]
		if sections == nil {
			sections = []SectionResult{}
		}
		out = append(out, MemberScores{UserID: m.ID, Name: m.Name, Role: m.Role, Sections: sections})
	}
	return out, nil
}

// nameOf resolves a member's display name. A member whose identity is gone
// has no name; any other lookup failure is returned.
func (s *Service) nameOf(ctx context.Context, id string) (string, error) {
	identity, err := s.dir.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	return identity.Name, nil
}
