package httpapi

import (
	"net/http"
	"strings"

	"github.com/Chitrarthrai/NeoCompliance/internal/apperr"
	"github.com/Chitrarthrai/NeoCompliance/internal/audit"
	"github.com/Chitrarthrai/NeoCompliance/internal/auth"
	"github.com/Chitrarthrai/NeoCompliance/internal/scoring"
)

type questionsRequest struct {
	Role      string `json:"role"`
	SectionNo int    `json:"section_no"`
}

type userRequest struct {
	UserID string `json:"user_id"`
}

type scoresRequest struct {
	UserID string `json:"userId"`
}

type submitRequest struct {
	UserID    string                  `json:"userId"`
	SectionID string                  `json:"section_id"`
	Answers   []scoring.AnswerOutcome `json:"answers"`
}

type managerRequest struct {
	ManagerID string `json:"managerId"`
}

// target resolves an optional user id against the caller. Empty means self.
func target(p auth.Principal, id string) string {
	if id = strings.TrimSpace(id); id != "" {
		return id
	}
	return p.ID
}

func (a *API) questions(w http.ResponseWriter, r *http.Request) {
	var req questionsRequest
	if !bind(w, r, &req) {
		return
	}
	sections, err := a.deps.Quiz.Questions(r.Context(), req.Role, req.SectionNo)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Questions fetched successfully", map[string]any{"questions": sections})
}

func (a *API) sectionsByUser(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if !bindOptional(w, r, &req) {
		return
	}
	p, _ := auth.PrincipalFromContext(r.Context())
	userID := target(p, req.UserID)
	if err := a.deps.Scores.AuthorizeView(r.Context(), p, userID); err != nil {
		writeDomainError(w, r, err)
		return
	}
	sections, err := a.deps.Quiz.SectionsForUser(r.Context(), userID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Sections fetched successfully", map[string]any{"sections": sections})
}

func (a *API) scoresBySection(w http.ResponseWriter, r *http.Request) {
	var req scoresRequest
	if !bindOptional(w, r, &req) {
		return
	}
	p, _ := auth.PrincipalFromContext(r.Context())
	userID := target(p, req.UserID)
	if err := a.deps.Scores.AuthorizeView(r.Context(), p, userID); err != nil {
		writeDomainError(w, r, err)
		return
	}
	scores, err := a.deps.Scores.UserSectionScores(r.Context(), userID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Section scores fetched successfully", map[string]any{"sectionScores": scores})
}

func (a *API) submitScore(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if !bind(w, r, &req) {
		return
	}
	p, _ := auth.PrincipalFromContext(r.Context())
	userID := target(p, req.UserID)
	if userID != p.ID {
		writeDomainError(w, r, apperr.Forbidden("You can only submit your own scores."))
		return
	}
	rec, err := a.deps.Scores.Submit(r.Context(), scoring.Submission{
		UserID:    userID,
		SectionID: req.SectionID,
		Answers:   req.Answers,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "score.submitted", map[string]any{
		"section_id":    rec.SectionID,
		"total_correct": rec.TotalCorrect,
		"total_wrong":   rec.TotalWrong,
	})
	writeSuccess(w, http.StatusOK, "Score saved successfully", map[string]any{"score": rec})
}

func (a *API) associateScores(w http.ResponseWriter, r *http.Request) {
	var req managerRequest
	if !bindOptional(w, r, &req) {
		return
	}
	p, _ := auth.PrincipalFromContext(r.Context())
	managerID := target(p, req.ManagerID)
	if managerID != p.ID {
		writeDomainError(w, r, apperr.Forbidden("You can only view scores for your own stores."))
		return
	}
	scores, err := a.deps.Scores.ManagerRollup(r.Context(), managerID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Scores fetched successfully", map[string]any{"scores": scores})
}

func (a *API) createAssociate(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !bind(w, r, &req) {
		return
	}
	p, _ := auth.PrincipalFromContext(r.Context())
	identity, err := a.deps.Auth.CreateAssociate(r.Context(), p, auth.NewAssociate{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	a.identityCreated(w, r, identity, "Associate created successfully")
}
