package scoring_test

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/Chitrarthrai/NeoCompliance/internal/apperr"
	"github.com/Chitrarthrai/NeoCompliance/internal/auth"
	"github.com/Chitrarthrai/NeoCompliance/internal/ids"
	"github.com/Chitrarthrai/NeoCompliance/internal/org"
	"github.com/Chitrarthrai/NeoCompliance/internal/quiz"
	"github.com/Chitrarthrai/NeoCompliance/internal/scoring"
	"github.com/Chitrarthrai/NeoCompliance/internal/store/memory"
)

type world struct {
	store   *memory.Store
	org     *org.Service
	quiz    *quiz.Service
	scoring *scoring.Service
}

func newWorld() *world {
	st := memory.New()
	dir := auth.NewDirectory(st.Users(), st.Inspectors())
	orgSvc := org.NewService(st, dir)
	return &world{
		store:   st,
		org:     orgSvc,
		quiz:    quiz.NewService(st, dir),
		scoring: scoring.NewService(st, orgSvc, dir),
	}
}

func (w *world) user(t *testing.T, name string, role auth.Role, stores ...string) auth.Identity {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	identity := auth.Identity{ID: ids.New(), Name: name, Email: ids.New() + "@example.com", Role: role, Status: auth.StatusActive, CreatedAt: now, UpdatedAt: now}
	if err := w.store.Users().Create(ctx, &identity); err != nil {
		t.Fatalf("create %s: %v", name, err)
	}
	if len(stores) > 0 {
		if _, err := w.org.AssignStores(ctx, identity.ID, stores); err != nil {
			t.Fatalf("assign %s: %v", name, err)
		}
	}
	return identity
}

func (w *world) section(t *testing.T, name string, number int) quiz.Section {
	t.Helper()
	out, err := w.quiz.UploadSections(context.Background(), []quiz.Section{{
		Name: name, Role: auth.RoleAssociate, Number: number,
		Questions: []quiz.Question{{ID: 1, Question: "q1"}, {ID: 2, Question: "q2"}, {ID: 3, Question: "q3"}},
	}})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	return out[0]
}

func TestSubmitOverwrites(t *testing.T) {
	w := newWorld()
	ctx := context.Background()
	sec := w.section(t, "Safety", 1)
	user := w.user(t, "Associate", auth.RoleAssociate)

	first := []scoring.AnswerOutcome{{QuestionID: 1, IsCorrect: true}, {QuestionID: 2}, {QuestionID: 3}}
	if _, err := w.scoring.Submit(ctx, scoring.Submission{UserID: user.ID, SectionID: sec.ID, Answers: first}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	second := []scoring.AnswerOutcome{{QuestionID: 1, IsCorrect: true}, {QuestionID: 2, IsCorrect: true}, {QuestionID: 3}}
	for i := 0; i < 2; i++ {
		rec, err := w.scoring.Submit(ctx, scoring.Submission{UserID: user.ID, SectionID: sec.ID, Answers: second})
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
		if rec.TotalCorrect != 2 || rec.TotalWrong != 1 || !reflect.DeepEqual(rec.WrongQuestions, []int{3}) {
			t.Fatalf("unexpected record %+v", rec)
		}
	}
	if w.store.ScoreCount() != 1 {
		t.Fatalf("expected exactly one record, got %d", w.store.ScoreCount())
	}
	scores, err := w.scoring.UserSectionScores(ctx, user.ID)
	if err != nil || len(scores) != 1 {
		t.Fatalf("UserSectionScores: %+v %v", scores, err)
	}
	if scores[0].Section != "Safety" || scores[0].SectionNo != 1 || scores[0].TotalCorrect != 2 {
		t.Fatalf("score must carry the last submission and section metadata: %+v", scores[0])
	}
}

func TestSubmitErrors(t *testing.T) {
	w := newWorld()
	ctx := context.Background()
	user := w.user(t, "Associate", auth.RoleAssociate)
	if _, err := w.scoring.Submit(ctx, scoring.Submission{UserID: user.ID, SectionID: ids.New(), Answers: []scoring.AnswerOutcome{}}); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("unknown section: expected not found, got %v", err)
	}
	if _, err := w.scoring.Submit(ctx, scoring.Submission{UserID: user.ID, SectionID: "x"}); !errors.Is(err, apperr.ErrBadRequest) {
		t.Fatalf("missing answers: expected bad request, got %v", err)
	}
}

func TestManagerRollupDeduplicates(t *testing.T) {
	w := newWorld()
	ctx := context.Background()
	s1, _ := w.org.CreateStore(ctx, "S1")
	s2, _ := w.org.CreateStore(ctx, "S2")
	sec := w.section(t, "Safety", 1)
	other := w.section(t, "Hygiene", 2)

	manager := w.user(t, "Manager", auth.RoleManager, s1.ID, s2.ID)
	a1 := w.user(t, "Associate One", auth.RoleAssociate, s1.ID)
	a2 := w.user(t, "Associate Two", auth.RoleAssociate, s2.ID, s1.ID)

	submit := func(userID, sectionID string, correct int) {
		answers := make([]scoring.AnswerOutcome, 3)
		for i := range answers {
			answers[i] = scoring.AnswerOutcome{QuestionID: i + 1, IsCorrect: i < correct}
		}
		if _, err := w.scoring.Submit(ctx, scoring.Submission{UserID: userID, SectionID: sectionID, Answers: answers}); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}
	submit(a1.ID, sec.ID, 3)
	submit(a2.ID, sec.ID, 1)
	submit(a2.ID, other.ID, 2)

	rollup, err := w.scoring.ManagerRollup(ctx, manager.ID)
	if err != nil {
		t.Fatalf("ManagerRollup: %v", err)
	}
	want := []scoring.AssociateScore{
		{UserID: a1.ID, Name: "Associate One", Score: 3},
		{UserID: a2.ID, Name: "Associate Two", Score: 3},
	}
	if !reflect.DeepEqual(rollup, want) {
		t.Fatalf("rollup %+v, want %+v", rollup, want)
	}

	lonely := w.user(t, "Lonely Manager", auth.RoleManager)
	if _, err := w.scoring.ManagerRollup(ctx, lonely.ID); !errors.Is(err, scoring.ErrNoStores) {
		t.Fatalf("manager without stores: got %v", err)
	}
	empty, _ := w.org.CreateStore(ctx, "Empty")
	idle := w.user(t, "Idle Manager", auth.RoleManager, empty.ID)
	if _, err := w.scoring.ManagerRollup(ctx, idle.ID); !errors.Is(err, scoring.ErrNoAssociates) {
		t.Fatalf("manager without associates: got %v", err)
	}
}

type failingUsers struct {
	auth.IdentityStore
	err error
}

func (f failingUsers) FindByID(context.Context, string) (auth.Identity, error) {
	return auth.Identity{}, f.err
}

func TestManagerRollupSurfacesDirectoryFailure(t *testing.T) {
	w := newWorld()
	ctx := context.Background()
	st, _ := w.org.CreateStore(ctx, "S1")
	manager := w.user(t, "Manager", auth.RoleManager, st.ID)
	w.user(t, "Associate One", auth.RoleAssociate, st.ID)

	outage := errors.New("connection reset")
	dir := auth.NewDirectory(failingUsers{IdentityStore: w.store.Users(), err: outage}, w.store.Inspectors())
	svc := scoring.NewService(w.store, w.org, dir)

	_, err := svc.ManagerRollup(ctx, manager.ID)
	if !errors.Is(err, outage) {
		t.Fatalf("expected storage failure to surface, got %v", err)
	}
	if _, classified := apperr.Message(err); classified {
		t.Fatalf("storage failure must stay unclassified, got %v", err)
	}
}

func TestStoreDetailGroupsByMember(t *testing.T) {
	w := newWorld()
	ctx := context.Background()
	store, _ := w.org.CreateStore(ctx, "S1")
	sec := w.section(t, "Safety", 1)
	a1 := w.user(t, "Associate One", auth.RoleAssociate, store.ID)
	manager := w.user(t, "Manager", auth.RoleManager, store.ID)
	a2 := w.user(t, "Associate Two", auth.RoleAssociate, store.ID)

	if _, err := w.scoring.Submit(ctx, scoring.Submission{UserID: a2.ID, SectionID: sec.ID, Answers: []scoring.AnswerOutcome{{QuestionID: 1, IsCorrect: true}}}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	detail, err := w.scoring.StoreDetail(ctx, store.ID)
	if err != nil {
		t.Fatalf("StoreDetail: %v", err)
	}
	if len(detail) != 3 {
		t.Fatalf("expected three members, got %+v", detail)
	}
	order := []string{detail[0].UserID, detail[1].UserID, detail[2].UserID}
	if !reflect.DeepEqual(order, []string{manager.ID, a1.ID, a2.ID}) {
		t.Fatalf("members must be managers first then associates in membership order: %v", order)
	}
	if len(detail[0].Sections) != 0 || detail[0].Sections == nil {
		t.Fatalf("members without scores get an empty list: %+v", detail[0])
	}
	if len(detail[2].Sections) != 1 || detail[2].Sections[0].Score != 1 || detail[2].Sections[0].Section != "Safety" {
		t.Fatalf("unexpected sections %+v", detail[2].Sections)
	}
	if _, err := w.scoring.StoreDetail(ctx, ids.New()); !errors.Is(err, org.ErrStoreNotFound) {
		t.Fatalf("unknown store: got %v", err)
	}
}

func TestAuthorizeView(t *testing.T) {
	w := newWorld()
	ctx := context.Background()
	store, _ := w.org.CreateStore(ctx, "S1")
	manager := w.user(t, "Manager", auth.RoleManager, store.ID)
	inStore := w.user(t, "Associate One", auth.RoleAssociate, store.ID)
	outside := w.user(t, "Associate Two", auth.RoleAssociate)

	if err := w.scoring.AuthorizeView(ctx, inStore.Principal(), inStore.ID); err != nil {
		t.Fatalf("own scores: %v", err)
	}
	if err := w.scoring.AuthorizeView(ctx, inStore.Principal(), outside.ID); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("associate reading another: %v", err)
	}
	if err := w.scoring.AuthorizeView(ctx, manager.Principal(), inStore.ID); err != nil {
		t.Fatalf("manager reading own associate: %v", err)
	}
	if err := w.scoring.AuthorizeView(ctx, manager.Principal(), outside.ID); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("manager reading foreign associate: %v", err)
	}
}
