package httpapi

import (
	"net/http"

	"github.com/Chitrarthrai/NeoCompliance/internal/audit"
	"github.com/Chitrarthrai/NeoCompliance/internal/auth"
	"github.com/Chitrarthrai/NeoCompliance/internal/quiz"
)

type registerRequest struct {
	Name           string   `json:"name"`
	Email          string   `json:"email"`
	Password       string   `json:"password"`
	Role           string   `json:"role"`
	AssignedStores []string `json:"assigned_stores"`
}

type credentialsRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type uploadRequest struct {
	Sections []quiz.Section `json:"sections"`
}

type storeRequest struct {
	StoreID string `json:"storeId"`
}

type assignStoresRequest struct {
	UserID         string   `json:"userId"`
	AssignedStores []string `json:"assigned_stores"`
}

type unassignStoreRequest struct {
	UserID  string `json:"userId"`
	StoreID string `json:"storeId"`
}

type createStoreRequest struct {
	Name string `json:"name"`
}

func (a *API) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !bind(w, r, &req) {
		return
	}
	identity, err := a.deps.Auth.CreateUser(r.Context(), auth.NewUser{
		Name:           req.Name,
		Email:          req.Email,
		Password:       req.Password,
		Role:           req.Role,
		AssignedStores: req.AssignedStores,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	a.identityCreated(w, r, identity, "User created successfully")
}

func (a *API) createInspector(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !bind(w, r, &req) {
		return
	}
	identity, err := a.deps.Auth.CreateInspector(r.Context(), auth.NewInspector{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	a.identityCreated(w, r, identity, "Inspector created successfully")
}

func (a *API) identityCreated(w http.ResponseWriter, r *http.Request, identity auth.Identity, msg string) {
	_ = audit.LogEvent(r.Context(), "identity.created", map[string]any{
		"identity_id": identity.ID,
		"role":        string(identity.Role),
		"variant":     string(identity.Variant),
		"stores":      identity.AssignedStores,
	})
	writeSuccess(w, http.StatusCreated, msg, map[string]any{"user": identity.Profile()})
}

func (a *API) uploadQuestions(w http.ResponseWriter, r *http.Request) {
	var req uploadRequest
	if !bind(w, r, &req) {
		return
	}
	sections, err := a.deps.Quiz.UploadSections(r.Context(), req.Sections)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "sections.uploaded", map[string]any{"count": len(sections)})
	writeSuccess(w, http.StatusCreated, "Questions uploaded successfully", map[string]any{"sections": sections})
}

func (a *API) scoreDetails(w http.ResponseWriter, r *http.Request) {
	var req storeRequest
	if !bind(w, r, &req) {
		return
	}
	users, err := a.deps.Scores.StoreDetail(r.Context(), req.StoreID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Score details fetched successfully", map[string]any{"users": users})
}

func (a *API) assignStores(w http.ResponseWriter, r *http.Request) {
	var req assignStoresRequest
	if !bind(w, r, &req) {
		return
	}
	identity, err := a.deps.Stores.AssignStores(r.Context(), req.UserID, req.AssignedStores)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "stores.assigned", map[string]any{
		"identity_id": identity.ID,
		"stores":      identity.AssignedStores,
	})
	writeSuccess(w, http.StatusOK, "Stores assigned successfully", map[string]any{"user": identity.Profile()})
}

func (a *API) unassignStore(w http.ResponseWriter, r *http.Request) {
	var req unassignStoreRequest
	if !bind(w, r, &req) {
		return
	}
	identity, err := a.deps.Stores.UnassignStore(r.Context(), req.UserID, req.StoreID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "stores.unassigned", map[string]any{
		"identity_id": identity.ID,
		"store_id":    req.StoreID,
	})
	writeSuccess(w, http.StatusOK, "Store unassigned successfully", map[string]any{"user": identity.Profile()})
}

func (a *API) createStore(w http.ResponseWriter, r *http.Request) {
	var req createStoreRequest
	if !bind(w, r, &req) {
		return
	}
	store, err := a.deps.Stores.CreateStore(r.Context(), req.Name)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "store.created", map[string]any{"store_id": store.ID, "name": store.Name})
	writeSuccess(w, http.StatusCreated, "Store created successfully", map[string]any{"store": store})
}

func (a *API) listStores(w http.ResponseWriter, r *http.Request) {
	stores, err := a.deps.Stores.ListStores(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Stores fetched successfully", map[string]any{"stores": stores})
}
