package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/Chitrarthrai/NeoCompliance/internal/auth"
	"github.com/Chitrarthrai/NeoCompliance/internal/obs"
	"github.com/Chitrarthrai/NeoCompliance/internal/org"
	"github.com/Chitrarthrai/NeoCompliance/internal/quiz"
	"github.com/Chitrarthrai/NeoCompliance/internal/scoring"
	"github.com/Chitrarthrai/NeoCompliance/internal/store/memory"
)

const testPassword = "rightpw12"

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type apiClient struct {
	baseURL string
	client  *http.Client
	t       *testing.T

	store  *memory.Store
	clock  *testClock
	auth   *auth.Service
	stores *org.Service
	quiz   *quiz.Service
}

func newTestAPI(t *testing.T) *apiClient {
	t.Helper()

	st := memory.New()
	clock := &testClock{t: time.Now().UTC().Truncate(time.Second)}
	tokens, err := auth.NewTokenService("access-secret", "refresh-secret", st,
		auth.WithIssuer("neocompliance-test"),
		auth.WithClock(clock.Now),
	)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	dir := auth.NewDirectory(st.Users(), st.Inspectors())
	stores := org.NewService(st, dir)
	authSvc := auth.NewService(dir, tokens,
		auth.WithHasher(auth.Bcrypt{Cost: bcrypt.MinCost}),
		auth.WithMemberships(stores),
		auth.WithTimeSource(clock.Now),
	)
	quizSvc := quiz.NewService(st, dir)

	api := New(Deps{
		Auth:    authSvc,
		Stores:  stores,
		Quiz:    quizSvc,
		Scores:  scoring.NewService(st, stores, dir),
		Ready:   ReadyProbe{Deps: []Pinger{st}},
		Version: "test",
	}, Options{
		RateLimitPerSec: 1000,
		RateLimitBurst:  1000,
		MaxBodyBytes:    1 << 20,
	})

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &apiClient{
		baseURL: srv.URL,
		client:  srv.Client(),
		t:       t,
		store:   st,
		clock:   clock,
		auth:    authSvc,
		stores:  stores,
		quiz:    quizSvc,
	}
}

type session struct {
	access  string
	refresh string
	userID  string
}

func (s session) cookies() []*http.Cookie {
	return []*http.Cookie{{Name: refreshCookie, Value: s.refresh}}
}

type response struct {
	status  int
	header  http.Header
	cookies map[string]*http.Cookie
	raw     []byte
	body    struct {
		Success bool            `json:"success"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	}
}

func (c *apiClient) do(method, path string, body any, access string, cookies ...*http.Cookie) response {
	c.t.Helper()
	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
		payload = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, c.baseURL+path, payload)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if access != "" {
		req.Header.Set("Authorization", "Bearer "+access)
	}
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	out := response{status: resp.StatusCode, header: resp.Header, cookies: map[string]*http.Cookie{}}
	for _, ck := range resp.Cookies() {
		out.cookies[ck.Name] = ck
	}
	out.raw, err = io.ReadAll(resp.Body)
	if err != nil {
		c.t.Fatalf("read body: %v", err)
	}
	if err := json.Unmarshal(out.raw, &out.body); err != nil {
		c.t.Fatalf("decode envelope %q: %v", out.raw, err)
	}
	return out
}

func data[T any](t *testing.T, r response) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(r.body.Data, &out); err != nil {
		t.Fatalf("decode data %s: %v", r.body.Data, err)
	}
	return out
}

func (c *apiClient) login(email string) session {
	c.t.Helper()
	resp := c.do(http.MethodPost, "/auth/login", map[string]string{"email": email, "password": testPassword}, "")
	if resp.status != http.StatusOK {
		c.t.Fatalf("login %s: %d %s", email, resp.status, resp.raw)
	}
	payload := data[struct {
		User         auth.Profile `json:"user"`
		AccessToken  string       `json:"accessToken"`
		RefreshToken string       `json:"refreshToken"`
	}](c.t, resp)
	return session{access: payload.AccessToken, refresh: payload.RefreshToken, userID: payload.User.ID}
}

func (c *apiClient) createInspector(email string) auth.Identity {
	c.t.Helper()
	identity, err := c.auth.CreateInspector(context.Background(), auth.NewInspector{Name: "Inspector", Email: email, Password: testPassword})
	if err != nil {
		c.t.Fatalf("CreateInspector: %v", err)
	}
	return identity
}

func (c *apiClient) createUser(name, email string, role auth.Role, stores ...string) auth.Identity {
	c.t.Helper()
	identity, err := c.auth.CreateUser(context.Background(), auth.NewUser{
		Name: name, Email: email, Password: testPassword, Role: string(role), AssignedStores: stores,
	})
	if err != nil {
		c.t.Fatalf("CreateUser(%s): %v", email, err)
	}
	return identity
}

func (c *apiClient) createStore(name string) org.Store {
	c.t.Helper()
	st, err := c.stores.CreateStore(context.Background(), name)
	if err != nil {
		c.t.Fatalf("CreateStore: %v", err)
	}
	return st
}

func TestLoginMeLogout(t *testing.T) {
	c := newTestAPI(t)
	c.createInspector("inspector@example.com")

	resp := c.do(http.MethodPost, "/auth/login", map[string]string{"email": "inspector@example.com", "password": testPassword}, "")
	if resp.status != http.StatusOK || !resp.body.Success {
		t.Fatalf("login: %d %s", resp.status, resp.raw)
	}
	if bytes.Contains(resp.raw, []byte("$2a$")) || bytes.Contains(resp.raw, []byte("password")) {
		t.Fatalf("login response leaks secret material: %s", resp.raw)
	}
	access, refresh := resp.cookies[accessCookie], resp.cookies[refreshCookie]
	if access == nil || refresh == nil {
		t.Fatalf("expected both session cookies, got %v", resp.cookies)
	}
	if !access.HttpOnly || !refresh.HttpOnly {
		t.Fatal("session cookies must be HttpOnly")
	}
	if access.MaxAge != int((15 * time.Minute).Seconds()) || refresh.MaxAge != int((30 * 24 * time.Hour).Seconds()) {
		t.Fatalf("unexpected cookie lifetimes %d / %d", access.MaxAge, refresh.MaxAge)
	}

	me := c.do(http.MethodGet, "/auth/me", nil, access.Value)
	if me.status != http.StatusOK {
		t.Fatalf("me: %d %s", me.status, me.raw)
	}
	if user := data[map[string]auth.Profile](t, me)["user"]; user.Email != "inspector@example.com" || user.Role != auth.RoleInspector {
		t.Fatalf("unexpected profile %+v", user)
	}

	// The access cookie alone authenticates too.
	if viaCookie := c.do(http.MethodGet, "/auth/me", nil, "", access); viaCookie.status != http.StatusOK {
		t.Fatalf("me via cookie: %d", viaCookie.status)
	}

	out := c.do(http.MethodGet, "/auth/logout", nil, access.Value, refresh)
	if out.status != http.StatusOK {
		t.Fatalf("logout: %d %s", out.status, out.raw)
	}
	if ck := out.cookies[refreshCookie]; ck == nil || ck.MaxAge >= 0 {
		t.Fatalf("expected refresh cookie cleared, got %+v", ck)
	}

	again := c.do(http.MethodGet, "/auth/logout", nil, access.Value, refresh)
	if again.status != http.StatusUnauthorized {
		t.Fatalf("second logout: expected 401, got %d", again.status)
	}
	if again.cookies[accessCookie] == nil {
		t.Fatal("cookies must be cleared regardless of outcome")
	}
}

func TestLoginWrongPassword(t *testing.T) {
	c := newTestAPI(t)
	c.createInspector("a@b.com")

	for _, email := range []string{"a@b.com", "nobody@b.com"} {
		resp := c.do(http.MethodPost, "/auth/login", map[string]string{"email": email, "password": "wrongpw"}, "")
		if resp.status != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", email, resp.status)
		}
		if resp.body.Message != "Invalid Email or Password" || resp.body.Success {
			t.Fatalf("%s: unexpected envelope %s", email, resp.raw)
		}
		if len(resp.cookies) != 0 {
			t.Fatalf("%s: no cookies expected, got %v", email, resp.cookies)
		}
	}

	bad := c.do(http.MethodPost, "/auth/login", map[string]string{"email": "not-an-email", "password": "x"}, "")
	if bad.status != http.StatusBadRequest || bad.body.Message != "Invalid Email Address" {
		t.Fatalf("malformed email: %d %s", bad.status, bad.raw)
	}
}

func TestTamperedAndMissingToken(t *testing.T) {
	c := newTestAPI(t)
	c.createInspector("inspector@example.com")
	s := c.login("inspector@example.com")

	parts := strings.Split(s.access, ".")
	parts[1] = parts[1] + "x"
	if resp := c.do(http.MethodGet, "/auth/me", nil, strings.Join(parts, ".")); resp.status != http.StatusUnauthorized {
		t.Fatalf("tampered token: expected 401, got %d", resp.status)
	}
	if resp := c.do(http.MethodGet, "/auth/me", nil, ""); resp.status != http.StatusUnauthorized {
		t.Fatalf("missing token: expected 401, got %d", resp.status)
	}
	// A refresh token is never accepted as an access token.
	if resp := c.do(http.MethodGet, "/auth/me", nil, s.refresh); resp.status != http.StatusUnauthorized {
		t.Fatalf("refresh as access: expected 401, got %d", resp.status)
	}
}

func TestGateRotatesExpiredAccessToken(t *testing.T) {
	c := newTestAPI(t)
	c.createInspector("inspector@example.com")
	s := c.login("inspector@example.com")

	c.clock.Advance(16 * time.Minute)

	if resp := c.do(http.MethodGet, "/auth/me", nil, s.access); resp.status != http.StatusUnauthorized {
		t.Fatalf("expired access without refresh cookie: expected 401, got %d", resp.status)
	}

	resp := c.do(http.MethodGet, "/auth/me", nil, s.access, s.cookies()...)
	if resp.status != http.StatusOK {
		t.Fatalf("expected transparent rotation, got %d %s", resp.status, resp.raw)
	}
	newAccess, newRefresh := resp.cookies[accessCookie], resp.cookies[refreshCookie]
	if newAccess == nil || newRefresh == nil {
		t.Fatal("rotation must hand back both cookies")
	}
	if newRefresh.Value == s.refresh {
		t.Fatal("refresh token was not rotated")
	}

	replay := c.do(http.MethodGet, "/auth/me", nil, s.access, s.cookies()...)
	if replay.status != http.StatusUnauthorized {
		t.Fatalf("replayed refresh token: expected 401, got %d", replay.status)
	}

	if ok := c.do(http.MethodGet, "/auth/me", nil, newAccess.Value); ok.status != http.StatusOK {
		t.Fatalf("rotated access token: %d", ok.status)
	}
}

func TestLogoutAfterGateRotation(t *testing.T) {
	c := newTestAPI(t)
	c.createInspector("inspector@example.com")
	s := c.login("inspector@example.com")

	c.clock.Advance(16 * time.Minute)

	resp := c.do(http.MethodGet, "/auth/logout", nil, s.access, s.cookies()...)
	if resp.status != http.StatusOK {
		t.Fatalf("logout with expired access token: %d %s", resp.status, resp.raw)
	}

	var rotated string
	for _, ck := range (&http.Response{Header: resp.header}).Cookies() {
		if ck.Name == refreshCookie && ck.Value != "" {
			rotated = ck.Value
		}
	}
	if rotated == "" {
		t.Fatal("expected the gate to hand back a rotated refresh token")
	}
	ctx := context.Background()
	for _, token := range []string{s.refresh, rotated} {
		if live, _ := c.auth.Tokens().FindRefreshToken(ctx, s.userID, token); live {
			t.Fatal("no refresh token may survive logout")
		}
	}
	if again := c.do(http.MethodGet, "/auth/refresh", nil, "", &http.Cookie{Name: refreshCookie, Value: rotated}); again.status != http.StatusUnauthorized {
		t.Fatalf("refresh after logout: expected 401, got %d", again.status)
	}
}

func TestConcurrentSessionsAreIndependent(t *testing.T) {
	c := newTestAPI(t)
	c.createInspector("inspector@example.com")
	phone := c.login("inspector@example.com")
	laptop := c.login("inspector@example.com")
	if phone.refresh == laptop.refresh {
		t.Fatal("logins at the same instant must get distinct refresh tokens")
	}

	if out := c.do(http.MethodGet, "/auth/logout", nil, phone.access, phone.cookies()...); out.status != http.StatusOK {
		t.Fatalf("logout: %d %s", out.status, out.raw)
	}
	if resp := c.do(http.MethodGet, "/auth/refresh", nil, "", laptop.cookies()...); resp.status != http.StatusOK {
		t.Fatalf("other session must survive logout: %d %s", resp.status, resp.raw)
	}
}

func TestExplicitRefresh(t *testing.T) {
	c := newTestAPI(t)
	manager := c.createUser("Manager One", "m@example.com", auth.RoleManager)
	s := c.login("m@example.com")

	resp := c.do(http.MethodGet, "/auth/refresh", nil, "", s.cookies()...)
	if resp.status != http.StatusOK {
		t.Fatalf("refresh: %d %s", resp.status, resp.raw)
	}
	payload := data[struct {
		User         auth.Profile `json:"user"`
		RefreshToken string       `json:"refreshToken"`
	}](t, resp)
	if payload.User.ID != manager.ID || payload.RefreshToken == "" || payload.RefreshToken == s.refresh {
		t.Fatalf("unexpected refresh payload %+v", payload)
	}
	if resp.cookies[refreshCookie] == nil || resp.cookies[refreshCookie].Value != payload.RefreshToken {
		t.Fatal("cookie and body tokens must match")
	}

	stale := c.do(http.MethodGet, "/auth/refresh", nil, "", s.cookies()...)
	if stale.status != http.StatusUnauthorized || stale.body.Message != "Unauthorized Access" {
		t.Fatalf("stale refresh: %d %s", stale.status, stale.raw)
	}
	if missing := c.do(http.MethodGet, "/auth/refresh", nil, ""); missing.status != http.StatusUnauthorized {
		t.Fatalf("missing refresh cookie: expected 401, got %d", missing.status)
	}
}

func TestRefreshRejectsDisabledAccount(t *testing.T) {
	c := newTestAPI(t)
	manager := c.createUser("Manager One", "m@example.com", auth.RoleManager)
	s := c.login("m@example.com")
	c.store.SetStatus(manager.ID, auth.StatusDisabled)

	resp := c.do(http.MethodGet, "/auth/refresh", nil, "", s.cookies()...)
	if resp.status != http.StatusForbidden {
		t.Fatalf("expected 403 for disabled account, got %d %s", resp.status, resp.raw)
	}
	if resp.body.Message != "There is a problem with your account, please contact the admin" {
		t.Fatalf("unexpected message %q", resp.body.Message)
	}

	login := c.do(http.MethodPost, "/auth/login", map[string]string{"email": "m@example.com", "password": testPassword}, "")
	if login.status != http.StatusForbidden {
		t.Fatalf("disabled login: expected 403, got %d", login.status)
	}
}

func TestRoleGate(t *testing.T) {
	c := newTestAPI(t)
	st := c.createStore("North")
	c.createUser("Associate One", "a1@example.com", auth.RoleAssociate, st.ID)
	s := c.login("a1@example.com")

	for _, body := range []any{nil, map[string]string{"managerId": "whatever"}, "not-even-an-object"} {
		resp := c.do(http.MethodPost, "/manager/associate-scores", body, s.access)
		if resp.status != http.StatusForbidden {
			t.Fatalf("associate on manager route: expected 403, got %d", resp.status)
		}
	}
	if resp := c.do(http.MethodPost, "/direct/create-store", map[string]string{"name": "x"}, s.access); resp.status != http.StatusForbidden {
		t.Fatalf("associate on privileged route: expected 403, got %d", resp.status)
	}
	if resp := c.do(http.MethodPost, "/nowhere", nil, s.access); resp.status != http.StatusNotFound {
		t.Fatalf("unknown route: expected 404, got %d", resp.status)
	}
}

func TestRegistrationFlows(t *testing.T) {
	c := newTestAPI(t)
	c.createInspector("inspector@example.com")
	admin := c.login("inspector@example.com")
	st := c.do(http.MethodPost, "/direct/create-store", map[string]string{"name": "North"}, admin.access)
	if st.status != http.StatusCreated {
		t.Fatalf("create store: %d %s", st.status, st.raw)
	}
	store := data[map[string]org.Store](t, st)["store"]

	short := c.do(http.MethodPost, "/direct/register", map[string]any{
		"name": "Manager One", "email": "m@example.com", "password": "12345",
	}, admin.access)
	if short.status != http.StatusBadRequest || !strings.Contains(short.body.Message, "8") {
		t.Fatalf("short password: %d %s", short.status, short.raw)
	}
	if _, err := c.auth.Directory().FindByEmail(context.Background(), "m@example.com"); err == nil {
		t.Fatal("no identity may be created on validation failure")
	}

	escalate := c.do(http.MethodPost, "/direct/register", map[string]any{
		"name": "Sneaky One", "email": "s@example.com", "password": testPassword, "role": "inspector",
	}, admin.access)
	if escalate.status != http.StatusForbidden {
		t.Fatalf("inspector via generic route: expected 403, got %d", escalate.status)
	}

	created := c.do(http.MethodPost, "/direct/register", map[string]any{
		"name": "Manager One", "email": "m@example.com", "password": testPassword,
		"role": "manager", "assigned_stores": []string{store.ID},
	}, admin.access)
	if created.status != http.StatusCreated {
		t.Fatalf("register manager: %d %s", created.status, created.raw)
	}

	dup := c.do(http.MethodPost, "/direct/create-inspector", map[string]any{
		"name": "Manager Two", "email": "m@example.com", "password": testPassword,
	}, admin.access)
	if dup.status != http.StatusBadRequest || dup.body.Message != "Email already exists." {
		t.Fatalf("cross-variant duplicate: %d %s", dup.status, dup.raw)
	}

	manager := c.login("m@example.com")
	assoc := c.do(http.MethodPost, "/manager/create-associate", map[string]any{
		"name": "Associate One", "email": "a1@example.com", "password": testPassword,
	}, manager.access)
	if assoc.status != http.StatusCreated {
		t.Fatalf("create associate: %d %s", assoc.status, assoc.raw)
	}
	profile := data[map[string]auth.Profile](t, assoc)["user"]
	if profile.Role != auth.RoleAssociate || len(profile.AssignedStores) != 1 || profile.AssignedStores[0] != store.ID {
		t.Fatalf("associate must inherit manager stores: %+v", profile)
	}
	got, err := c.stores.GetStore(context.Background(), store.ID)
	if err != nil {
		t.Fatalf("GetStore: %v", err)
	}
	if !got.HasMember(profile.ID, auth.RoleAssociate) {
		t.Fatalf("associate not added to store membership: %+v", got)
	}
}

func TestAssignStoresKeepsStoreMembership(t *testing.T) {
	c := newTestAPI(t)
	c.createInspector("inspector@example.com")
	admin := c.login("inspector@example.com")
	a, b := c.createStore("Store A"), c.createStore("Store B")
	user := c.createUser("Associate One", "a1@example.com", auth.RoleAssociate)

	first := c.do(http.MethodPost, "/direct/assign-stores", map[string]any{"userId": user.ID, "assigned_stores": []string{a.ID, b.ID}}, admin.access)
	if first.status != http.StatusOK {
		t.Fatalf("assign: %d %s", first.status, first.raw)
	}
	second := c.do(http.MethodPost, "/direct/assign-stores", map[string]any{"userId": user.ID, "assigned_stores": []string{a.ID}}, admin.access)
	if second.status != http.StatusOK {
		t.Fatalf("reassign: %d %s", second.status, second.raw)
	}
	profile := data[map[string]auth.Profile](t, second)["user"]
	if len(profile.AssignedStores) != 1 || profile.AssignedStores[0] != a.ID {
		t.Fatalf("assigned stores must be replaced, got %v", profile.AssignedStores)
	}
	storeB, _ := c.stores.GetStore(context.Background(), b.ID)
	if !storeB.HasMember(user.ID, auth.RoleAssociate) {
		t.Fatal("store-side membership is additive and must be kept")
	}

	un := c.do(http.MethodPost, "/direct/unassign-store", map[string]any{"userId": user.ID, "storeId": b.ID}, admin.access)
	if un.status != http.StatusOK {
		t.Fatalf("unassign: %d %s", un.status, un.raw)
	}
	storeB, _ = c.stores.GetStore(context.Background(), b.ID)
	if storeB.HasMember(user.ID, auth.RoleAssociate) {
		t.Fatal("explicit unassign must remove membership")
	}
	if again := c.do(http.MethodPost, "/direct/unassign-store", map[string]any{"userId": user.ID, "storeId": b.ID}, admin.access); again.status != http.StatusNotFound {
		t.Fatalf("repeat unassign: expected 404, got %d", again.status)
	}

	unknown := c.do(http.MethodPost, "/direct/assign-stores", map[string]any{"userId": "missing", "assigned_stores": []string{a.ID}}, admin.access)
	if unknown.status != http.StatusNotFound || unknown.body.Message != "User not found" {
		t.Fatalf("unknown user: %d %s", unknown.status, unknown.raw)
	}
}

func uploadSection(t *testing.T, c *apiClient, access string, role auth.Role) quiz.Section {
	t.Helper()
	resp := c.do(http.MethodPost, "/direct/upload-question", map[string]any{
		"sections": []map[string]any{{
			"section":    "Food Safety",
			"role":       string(role),
			"section_no": 1,
			"questions": []map[string]any{
				{"id": 1, "question": "Wash hands?", "answers": []map[string]any{{"id": 1, "name": "Yes", "is_correct": true}}},
				{"id": 2, "question": "Fridge temp?", "answers": []map[string]any{{"id": 1, "name": "4C", "is_correct": true}}},
				{"id": 3, "question": "Gloves?", "answers": []map[string]any{{"id": 1, "name": "Always", "is_correct": true}}},
			},
		}},
	}, access)
	if resp.status != http.StatusCreated {
		t.Fatalf("upload: %d %s", resp.status, resp.raw)
	}
	return data[map[string][]quiz.Section](t, resp)["sections"][0]
}

func TestSubmitScoreIsIdempotent(t *testing.T) {
	c := newTestAPI(t)
	c.createInspector("inspector@example.com")
	admin := c.login("inspector@example.com")
	section := uploadSection(t, c, admin.access, auth.RoleAssociate)
	assoc := c.createUser("Associate One", "a1@example.com", auth.RoleAssociate)
	s := c.login("a1@example.com")

	sections := c.do(http.MethodPost, "/associate/sections-by-user", nil, s.access)
	if sections.status != http.StatusOK {
		t.Fatalf("sections-by-user: %d %s", sections.status, sections.raw)
	}
	if list := data[map[string][]quiz.SectionSummary](t, sections)["sections"]; len(list) != 1 || list[0].Number != 1 {
		t.Fatalf("unexpected sections %+v", list)
	}

	questions := c.do(http.MethodPost, "/associate/questions", map[string]any{"role": "associate", "section_no": 1}, s.access)
	if questions.status != http.StatusOK {
		t.Fatalf("questions: %d %s", questions.status, questions.raw)
	}

	submit := func(answers []map[string]any) {
		t.Helper()
		resp := c.do(http.MethodPost, "/associate/submit-section-score", map[string]any{
			"section_id": section.ID, "answers": answers,
		}, s.access)
		if resp.status != http.StatusOK {
			t.Fatalf("submit: %d %s", resp.status, resp.raw)
		}
	}
	submit([]map[string]any{{"questionId": 1, "isCorrect": true}, {"questionId": 2, "isCorrect": false}, {"questionId": 3, "isCorrect": false}})
	submit([]map[string]any{{"questionId": 1, "isCorrect": true}, {"questionId": 2, "isCorrect": true}, {"questionId": 3, "isCorrect": false}})

	if n := c.store.ScoreCount(); n != 1 {
		t.Fatalf("expected exactly one score record, got %d", n)
	}
	scores := c.do(http.MethodPost, "/associate/scores-by-section", map[string]string{"userId": assoc.ID}, s.access)
	if scores.status != http.StatusOK {
		t.Fatalf("scores-by-section: %d %s", scores.status, scores.raw)
	}
	list := data[map[string][]scoring.SectionScore](t, scores)["sectionScores"]
	if len(list) != 1 || list[0].TotalCorrect != 2 || list[0].TotalWrong != 1 || len(list[0].WrongQuestions) != 1 || list[0].WrongQuestions[0] != 3 {
		t.Fatalf("expected last submission to win, got %+v", list)
	}

	forged := c.do(http.MethodPost, "/associate/submit-section-score", map[string]any{
		"userId": "someone-else", "section_id": section.ID, "answers": []map[string]any{},
	}, s.access)
	if forged.status != http.StatusForbidden {
		t.Fatalf("submitting for another user: expected 403, got %d", forged.status)
	}
}

func TestManagerRollupAndOwnership(t *testing.T) {
	c := newTestAPI(t)
	c.createInspector("inspector@example.com")
	admin := c.login("inspector@example.com")
	section := uploadSection(t, c, admin.access, auth.RoleAssociate)

	s1, s2, s3 := c.createStore("Store 1"), c.createStore("Store 2"), c.createStore("Store 3")
	c.createUser("Manager One", "m@example.com", auth.RoleManager, s1.ID, s2.ID)
	a1 := c.createUser("Associate One", "a1@example.com", auth.RoleAssociate, s1.ID)
	a2 := c.createUser("Associate Two", "a2@example.com", auth.RoleAssociate, s2.ID)
	both := c.createUser("Associate Both", "ab@example.com", auth.RoleAssociate, s1.ID, s2.ID)
	outsider := c.createUser("Associate Far", "af@example.com", auth.RoleAssociate, s3.ID)

	a1s := c.login("a1@example.com")
	c.do(http.MethodPost, "/associate/submit-section-score", map[string]any{
		"section_id": section.ID, "answers": []map[string]any{{"questionId": 1, "isCorrect": true}, {"questionId": 2, "isCorrect": true}},
	}, a1s.access)

	m := c.login("m@example.com")
	resp := c.do(http.MethodPost, "/manager/associate-scores", nil, m.access)
	if resp.status != http.StatusOK {
		t.Fatalf("associate-scores: %d %s", resp.status, resp.raw)
	}
	scores := data[map[string][]scoring.AssociateScore](t, resp)["scores"]
	want := map[string]int{a1.ID: 2, a2.ID: 0, both.ID: 0}
	if len(scores) != len(want) {
		t.Fatalf("expected %d associates, got %+v", len(want), scores)
	}
	for _, sc := range scores {
		score, ok := want[sc.UserID]
		if !ok || score != sc.Score {
			t.Fatalf("unexpected entry %+v", sc)
		}
		delete(want, sc.UserID)
	}

	other := c.do(http.MethodPost, "/manager/associate-scores", map[string]string{"managerId": a1.ID}, m.access)
	if other.status != http.StatusForbidden {
		t.Fatalf("roll-up for another manager: expected 403, got %d", other.status)
	}

	if ok := c.do(http.MethodPost, "/manager/scores-by-section", map[string]string{"userId": a1.ID}, m.access); ok.status != http.StatusOK {
		t.Fatalf("manager reading own associate: %d", ok.status)
	}
	if no := c.do(http.MethodPost, "/manager/scores-by-section", map[string]string{"userId": outsider.ID}, m.access); no.status != http.StatusForbidden {
		t.Fatalf("manager reading foreign associate: expected 403, got %d", no.status)
	}
	if no := c.do(http.MethodPost, "/associate/scores-by-section", map[string]string{"userId": a2.ID}, a1s.access); no.status != http.StatusForbidden {
		t.Fatalf("associate reading peer: expected 403, got %d", no.status)
	}

	detail := c.do(http.MethodPost, "/inspector/score-details", map[string]string{"storeId": s1.ID}, admin.access)
	if detail.status != http.StatusOK {
		t.Fatalf("score-details: %d %s", detail.status, detail.raw)
	}
	users := data[map[string][]scoring.MemberScores](t, detail)["users"]
	if len(users) != 3 || users[0].Role != auth.RoleManager {
		t.Fatalf("expected manager first then associates, got %+v", users)
	}

	c.createUser("Manager Two", "m2@example.com", auth.RoleManager)
	m2 := c.login("m2@example.com")
	if none := c.do(http.MethodPost, "/manager/associate-scores", nil, m2.access); none.status != http.StatusNotFound {
		t.Fatalf("manager without stores: expected 404, got %d", none.status)
	}
}

func TestHealthAndReady(t *testing.T) {
	c := newTestAPI(t)
	resp := c.do(http.MethodGet, "/health", nil, "")
	if resp.status != http.StatusOK || !resp.body.Success {
		t.Fatalf("health: %d %s", resp.status, resp.raw)
	}
	if info := data[map[string]string](t, resp); info["version"] != "test" || info["commit"] != obs.CurrentBuild().Commit {
		t.Fatalf("health must report the running build, got %v", info)
	}
	if resp := c.do(http.MethodGet, "/readyz", nil, ""); resp.status != http.StatusOK {
		t.Fatalf("readyz: %d %s", resp.status, resp.raw)
	}
	if resp := c.do(http.MethodGet, "/inspector/stores", nil, ""); resp.status != http.StatusUnauthorized {
		t.Fatalf("stores without auth: expected 401, got %d", resp.status)
	}
}
