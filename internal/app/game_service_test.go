package app_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"quizbee/internal/app"
	"quizbee/internal/domain"
	"quizbee/internal/infra/sqlite"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recorder captures broadcast events for assertions.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) record(kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, kind)
}

func (r *recorder) BroadcastState(domain.StatePayload)      { r.record("state_update") }
func (r *recorder) BroadcastRankings([]domain.RankingEntry) { r.record("rankings_update") }
func (r *recorder) BroadcastSubmission(domain.Submission)   { r.record("submission_received") }
func (r *recorder) BroadcastQuestionReset(int64)            { r.record("question_reset") }

func (r *recorder) count(kind string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e == kind {
			n++
		}
	}
	return n
}

func newTestService(t *testing.T) (*app.GameService, *sqlite.Store, *fakeClock, *recorder) {
	t.Helper()
	store, err := sqlite.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	clk := &fakeClock{now: time.UnixMilli(1_000_000)}
	rec := &recorder{}
	return app.NewGameServiceWithClock(store, rec, clk.Now), store, clk, rec
}

func mustCreateMCQuestion(t *testing.T, svc *app.GameService, correct string, points int) int64 {
	t.Helper()
	id, err := svc.CreateQuestion(context.Background(), domain.Question{
		Type:          domain.QuestionMultipleChoice,
		Prompt:        "Pick one",
		Choices:       []string{"A", "B", "C", "D"},
		CorrectAnswer: correct,
		Points:        points,
	})
	if err != nil {
		t.Fatalf("create question: %v", err)
	}
	return id
}

func mustCreateTeam(t *testing.T, svc *app.GameService, name string) domain.Team {
	t.Helper()
	team, err := svc.CreateTeam(context.Background(), name)
	if err != nil {
		t.Fatalf("create team %s: %v", name, err)
	}
	return team
}

func mustJoin(t *testing.T, svc *app.GameService, token, device string) {
	t.Helper()
	if _, _, err := svc.Join(context.Background(), token, device); err != nil {
		t.Fatalf("join: %v", err)
	}
}

func teamByID(t *testing.T, svc *app.GameService, id int64) domain.Team {
	t.Helper()
	teams, err := svc.ListTeams(context.Background())
	if err != nil {
		t.Fatalf("list teams: %v", err)
	}
	for _, team := range teams {
		if team.ID == id {
			return team
		}
	}
	t.Fatalf("team %d not found", id)
	return domain.Team{}
}

func TestMultipleChoiceScenario(t *testing.T) {
	ctx := context.Background()
	svc, _, clk, _ := newTestService(t)

	q1 := mustCreateMCQuestion(t, svc, "B", 10)
	alpha := mustCreateTeam(t, svc, "Alpha")
	bravo := mustCreateTeam(t, svc, "Bravo")

	if err := svc.SetCurrent(ctx, q1); err != nil {
		t.Fatalf("set current: %v", err)
	}
	if err := svc.Open(ctx); err != nil {
		t.Fatalf("open: %v", err)
	}

	clk.Advance(300 * time.Millisecond)
	if _, err := svc.Submit(ctx, alpha.Token, "dev-a", "B"); err != nil {
		t.Fatalf("alpha submit: %v", err)
	}
	clk.Advance(200 * time.Millisecond)
	if _, err := svc.Submit(ctx, bravo.Token, "dev-b", "A"); err != nil {
		t.Fatalf("bravo submit: %v", err)
	}

	if err := svc.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}

	if got := teamByID(t, svc, alpha.ID); got.Points != 10 {
		t.Fatalf("expected Alpha to have 10 points, got %d", got.Points)
	}
	if got := teamByID(t, svc, bravo.ID); got.Points != 0 {
		t.Fatalf("expected Bravo to have 0 points, got %d", got.Points)
	}

	rankings, err := svc.Rankings(ctx)
	if err != nil {
		t.Fatalf("rankings: %v", err)
	}
	if rankings[0].TeamID != alpha.ID || rankings[0].Points != 10 {
		t.Fatalf("expected Alpha on top with 10 points, got %+v", rankings[0])
	}
	if rankings[1].TeamID != bravo.ID || rankings[1].Points != 0 {
		t.Fatalf("expected Bravo second with 0 points, got %+v", rankings[1])
	}

	subs, err := svc.SubmissionsForQuestion(ctx, q1)
	if err != nil {
		t.Fatalf("submissions: %v", err)
	}
	if len(subs) != 2 {
		t.Fatalf("expected 2 submissions, got %d", len(subs))
	}
	for _, sub := range subs {
		if sub.Result == domain.GradePending {
			t.Fatalf("submission %d left ungraded after close", sub.ID)
		}
	}
	if subs[0].MsSinceOpen != 300 {
		t.Fatalf("expected Alpha 300ms since open, got %d", subs[0].MsSinceOpen)
	}
}

func TestDuplicateSubmissionRejected(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newTestService(t)

	q1 := mustCreateMCQuestion(t, svc, "B", 10)
	team := mustCreateTeam(t, svc, "Alpha")
	if err := svc.SetCurrent(ctx, q1); err != nil {
		t.Fatalf("set current: %v", err)
	}
	if err := svc.Open(ctx); err != nil {
		t.Fatalf("open: %v", err)
	}

	if _, err := svc.Submit(ctx, team.Token, "dev", "B"); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if _, err := svc.Submit(ctx, team.Token, "dev", "A"); err != domain.ErrAlreadySubmitted {
		t.Fatalf("expected ErrAlreadySubmitted, got %v", err)
	}

	subs, err := svc.SubmissionsForQuestion(ctx, q1)
	if err != nil {
		t.Fatalf("submissions: %v", err)
	}
	if len(subs) != 1 {
		t.Fatalf("expected exactly one stored submission, got %d", len(subs))
	}
	if subs[0].Answer != "B" {
		t.Fatalf("first answer must survive, got %q", subs[0].Answer)
	}
}

func TestGradeIdempotent(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newTestService(t)

	q1 := mustCreateMCQuestion(t, svc, "B", 10)
	team := mustCreateTeam(t, svc, "Alpha")
	if err := svc.SetCurrent(ctx, q1); err != nil {
		t.Fatalf("set current: %v", err)
	}
	if err := svc.Open(ctx); err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := svc.Submit(ctx, team.Token, "dev", "B"); err != nil {
		t.Fatalf("submit: %v", err)
	}

	if err := svc.Close(ctx); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := svc.Close(ctx); err != nil {
		t.Fatalf("second close: %v", err)
	}

	if got := teamByID(t, svc, team.ID); got.Points != 10 {
		t.Fatalf("double close must not double-award, got %d points", got.Points)
	}
}

func TestManualMarkNeverDoubleCounts(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newTestService(t)

	q1 := mustCreateMCQuestion(t, svc, "B", 10)
	team := mustCreateTeam(t, svc, "Alpha")
	if err := svc.SetCurrent(ctx, q1); err != nil {
		t.Fatalf("set current: %v", err)
	}
	if err := svc.Open(ctx); err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := svc.Submit(ctx, team.Token, "dev", "A"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := svc.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got := teamByID(t, svc, team.ID); got.Points != 0 {
		t.Fatalf("wrong answer scored %d points", got.Points)
	}

	subs, _ := svc.SubmissionsForQuestion(ctx, q1)
	subID := subs[0].ID

	if err := svc.ManualMark(ctx, subID, true); err != nil {
		t.Fatalf("mark correct: %v", err)
	}
	if got := teamByID(t, svc, team.ID); got.Points != 10 {
		t.Fatalf("expected 10 after override, got %d", got.Points)
	}

	// Same verdict again: delta is zero.
	if err := svc.ManualMark(ctx, subID, true); err != nil {
		t.Fatalf("re-mark correct: %v", err)
	}
	if got := teamByID(t, svc, team.ID); got.Points != 10 {
		t.Fatalf("re-marking moved points to %d", got.Points)
	}

	// Flip back: only the previously awarded points are removed.
	if err := svc.ManualMark(ctx, subID, false); err != nil {
		t.Fatalf("mark incorrect: %v", err)
	}
	if got := teamByID(t, svc, team.ID); got.Points != 0 {
		t.Fatalf("expected 0 after flipping back, got %d", got.Points)
	}
}

func TestManualMarkMissingSubmission(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	if err := svc.ManualMark(context.Background(), 42, true); err != domain.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRankingsOrdering(t *testing.T) {
	ctx := context.Background()
	svc, _, clk, _ := newTestService(t)

	// A zero-point question drives the time aggregates; points come from
	// admin adjustments.
	q1 := mustCreateMCQuestion(t, svc, "B", 0)
	teamA := mustCreateTeam(t, svc, "A")
	teamB := mustCreateTeam(t, svc, "B")
	teamC := mustCreateTeam(t, svc, "C")
	if err := svc.SetCurrent(ctx, q1); err != nil {
		t.Fatalf("set current: %v", err)
	}
	if err := svc.Open(ctx); err != nil {
		t.Fatalf("open: %v", err)
	}

	clk.Advance(300 * time.Millisecond)
	if _, err := svc.Submit(ctx, teamB.Token, "dev-b", "B"); err != nil {
		t.Fatalf("B submit: %v", err)
	}
	clk.Advance(200 * time.Millisecond) // A at +500ms
	if _, err := svc.Submit(ctx, teamA.Token, "dev-a", "B"); err != nil {
		t.Fatalf("A submit: %v", err)
	}
	clk.Advance(9499 * time.Millisecond) // C at +9999ms
	if _, err := svc.Submit(ctx, teamC.Token, "dev-c", "B"); err != nil {
		t.Fatalf("C submit: %v", err)
	}
	if err := svc.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}

	for _, adj := range []struct {
		teamID int64
		delta  int
	}{{teamA.ID, 10}, {teamB.ID, 10}, {teamC.ID, 15}} {
		if err := svc.AdjustPoints(ctx, adj.teamID, adj.delta); err != nil {
			t.Fatalf("adjust: %v", err)
		}
	}

	rankings, err := svc.Rankings(ctx)
	if err != nil {
		t.Fatalf("rankings: %v", err)
	}
	want := []int64{teamC.ID, teamB.ID, teamA.ID}
	for i, id := range want {
		if rankings[i].TeamID != id {
			t.Fatalf("rank %d: expected team %d, got %+v", i, id, rankings[i])
		}
	}
	if rankings[0].Points != 15 || rankings[1].TotalTimeMs != 300 || rankings[2].TotalTimeMs != 500 {
		t.Fatalf("unexpected aggregates: %+v", rankings)
	}
}

func TestSetCurrentAutoClosesAndGradesOnce(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newTestService(t)

	q1 := mustCreateMCQuestion(t, svc, "B", 10)
	q2 := mustCreateMCQuestion(t, svc, "C", 5)
	team := mustCreateTeam(t, svc, "Alpha")

	if err := svc.SetCurrent(ctx, q1); err != nil {
		t.Fatalf("set current q1: %v", err)
	}
	if err := svc.Open(ctx); err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := svc.Submit(ctx, team.Token, "dev", "B"); err != nil {
		t.Fatalf("submit: %v", err)
	}

	// Switching away from an open question closes and grades it first.
	if err := svc.SetCurrent(ctx, q2); err != nil {
		t.Fatalf("set current q2: %v", err)
	}

	state, err := svc.State(ctx)
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if state.IsOpen || state.OpenedAt != nil {
		t.Fatalf("expected closed state after switch, got %+v", state)
	}
	if state.CurrentQuestionID == nil || *state.CurrentQuestionID != q2 {
		t.Fatalf("expected current question %d, got %+v", q2, state.CurrentQuestionID)
	}

	subs, _ := svc.SubmissionsForQuestion(ctx, q1)
	if len(subs) != 1 || subs[0].Result != domain.GradeCorrect || subs[0].PointsAwarded != 10 {
		t.Fatalf("expected q1 submission graded correct for 10, got %+v", subs)
	}
	if got := teamByID(t, svc, team.ID); got.Points != 10 {
		t.Fatalf("expected 10 points exactly once, got %d", got.Points)
	}

	// An explicit close of the new question must not regrade q1.
	if err := svc.Close(ctx); err != nil {
		t.Fatalf("close q2: %v", err)
	}
	if got := teamByID(t, svc, team.ID); got.Points != 10 {
		t.Fatalf("q1 regraded on q2 close: %d points", got.Points)
	}
}

func TestResetSubmissionsRecomputesAggregates(t *testing.T) {
	ctx := context.Background()
	svc, _, clk, _ := newTestService(t)

	q1 := mustCreateMCQuestion(t, svc, "B", 10)
	team := mustCreateTeam(t, svc, "Alpha")
	if err := svc.SetCurrent(ctx, q1); err != nil {
		t.Fatalf("set current: %v", err)
	}
	if err := svc.Open(ctx); err != nil {
		t.Fatalf("open: %v", err)
	}
	clk.Advance(time.Second)
	if _, err := svc.Submit(ctx, team.Token, "dev", "B"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := svc.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}

	got := teamByID(t, svc, team.ID)
	if got.Points != 10 || got.TotalTimeMs != 1000 || got.LastSubmissionAt == nil {
		t.Fatalf("unexpected aggregates before reset: %+v", got)
	}

	if err := svc.ResetSubmissions(ctx, q1); err != nil {
		t.Fatalf("reset: %v", err)
	}

	got = teamByID(t, svc, team.ID)
	if got.Points != 0 || got.TotalTimeMs != 0 || got.LastSubmissionAt != nil {
		t.Fatalf("expected zeroed aggregates after reset, got %+v", got)
	}
	subs, _ := svc.SubmissionsForQuestion(ctx, q1)
	if len(subs) != 0 {
		t.Fatalf("expected no submissions after reset, got %d", len(subs))
	}
}

func TestResetSubmissionsRejectsZeroQuestion(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	if err := svc.ResetSubmissions(context.Background(), 0); err != domain.ErrInvalidQuestion {
		t.Fatalf("expected ErrInvalidQuestion, got %v", err)
	}
}

func TestAggregatesMatchSubmissionHistory(t *testing.T) {
	ctx := context.Background()
	svc, _, clk, _ := newTestService(t)

	q1 := mustCreateMCQuestion(t, svc, "B", 10)
	q2 := mustCreateMCQuestion(t, svc, "C", 5)
	team := mustCreateTeam(t, svc, "Alpha")

	for _, round := range []struct {
		question int64
		answer   string
		wait     time.Duration
	}{
		{q1, "B", 400 * time.Millisecond},
		{q2, "D", 700 * time.Millisecond},
	} {
		if err := svc.SetCurrent(ctx, round.question); err != nil {
			t.Fatalf("set current: %v", err)
		}
		if err := svc.Open(ctx); err != nil {
			t.Fatalf("open: %v", err)
		}
		clk.Advance(round.wait)
		if _, err := svc.Submit(ctx, team.Token, "dev", round.answer); err != nil {
			t.Fatalf("submit: %v", err)
		}
		if err := svc.Close(ctx); err != nil {
			t.Fatalf("close: %v", err)
		}
	}

	subs1, _ := svc.SubmissionsForQuestion(ctx, q1)
	subs2, _ := svc.SubmissionsForQuestion(ctx, q2)
	sumPoints, sumTime := 0, int64(0)
	for _, sub := range append(subs1, subs2...) {
		sumPoints += sub.PointsAwarded
		sumTime += sub.MsSinceOpen
	}

	got := teamByID(t, svc, team.ID)
	if got.Points != sumPoints {
		t.Fatalf("points drifted: team %d vs submissions %d", got.Points, sumPoints)
	}
	if got.TotalTimeMs != sumTime {
		t.Fatalf("time drifted: team %d vs submissions %d", got.TotalTimeMs, sumTime)
	}
}

func TestOpenRequiresCurrentQuestion(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	if err := svc.Open(context.Background()); err != domain.ErrNoCurrentQuestion {
		t.Fatalf("expected ErrNoCurrentQuestion, got %v", err)
	}
}

func TestSubmitRequiresOpenQuestion(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newTestService(t)

	q1 := mustCreateMCQuestion(t, svc, "B", 10)
	team := mustCreateTeam(t, svc, "Alpha")

	// Selected but never opened.
	if err := svc.SetCurrent(ctx, q1); err != nil {
		t.Fatalf("set current: %v", err)
	}
	if _, err := svc.Submit(ctx, team.Token, "dev", "B"); err != domain.ErrQuestionNotOpen {
		t.Fatalf("expected ErrQuestionNotOpen, got %v", err)
	}

	// Opened then closed.
	if err := svc.Open(ctx); err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := svc.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := svc.Submit(ctx, team.Token, "dev", "B"); err != domain.ErrQuestionNotOpen {
		t.Fatalf("expected ErrQuestionNotOpen after close, got %v", err)
	}
}

func TestDeviceBindingFirstBindWins(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newTestService(t)

	team := mustCreateTeam(t, svc, "Alpha")
	mustJoin(t, svc, team.Token, "device-1")

	// Same device rejoins freely.
	mustJoin(t, svc, team.Token, "device-1")

	if _, _, err := svc.Join(ctx, team.Token, "device-2"); err != domain.ErrTeamInUse {
		t.Fatalf("expected ErrTeamInUse, got %v", err)
	}

	if err := svc.ReleaseDevice(ctx, team.ID); err != nil {
		t.Fatalf("release: %v", err)
	}
	mustJoin(t, svc, team.Token, "device-2")
}

func TestJoinInvalidToken(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	if _, _, err := svc.Join(context.Background(), "nope", "dev"); err != domain.ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestJoinReportsSubmittedForCurrent(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newTestService(t)

	q1 := mustCreateMCQuestion(t, svc, "B", 10)
	team := mustCreateTeam(t, svc, "Alpha")
	if err := svc.SetCurrent(ctx, q1); err != nil {
		t.Fatalf("set current: %v", err)
	}
	if err := svc.Open(ctx); err != nil {
		t.Fatalf("open: %v", err)
	}

	_, submitted, err := svc.Join(ctx, team.Token, "dev")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if submitted {
		t.Fatal("no submission yet")
	}
	if _, err := svc.Submit(ctx, team.Token, "dev", "B"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	_, submitted, err = svc.Join(ctx, team.Token, "dev")
	if err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if !submitted {
		t.Fatal("expected submitted_for_current after submit")
	}
}

func TestRevealIndependentOfOpenState(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newTestService(t)

	q1 := mustCreateMCQuestion(t, svc, "B", 10)
	if err := svc.SetCurrent(ctx, q1); err != nil {
		t.Fatalf("set current: %v", err)
	}
	if err := svc.Open(ctx); err != nil {
		t.Fatalf("open: %v", err)
	}

	// Reveal while still open.
	if err := svc.Reveal(ctx); err != nil {
		t.Fatalf("reveal: %v", err)
	}
	state, _ := svc.State(ctx)
	if !state.RevealAnswer || !state.IsOpen {
		t.Fatalf("expected open+revealed, got %+v", state)
	}

	// Reopening clears the reveal flag.
	if err := svc.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := svc.Open(ctx); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	state, _ = svc.State(ctx)
	if state.RevealAnswer {
		t.Fatal("open must clear reveal")
	}
}

func TestFreeTextGrading(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newTestService(t)

	q1, err := svc.CreateQuestion(ctx, domain.Question{
		Type:          domain.QuestionFreeText,
		Prompt:        "Capital of France?",
		CorrectAnswer: "Paris",
		Points:        5,
	})
	if err != nil {
		t.Fatalf("create question: %v", err)
	}
	team := mustCreateTeam(t, svc, "Alpha")
	if err := svc.SetCurrent(ctx, q1); err != nil {
		t.Fatalf("set current: %v", err)
	}
	if err := svc.Open(ctx); err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := svc.Submit(ctx, team.Token, "dev", "  paris "); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := svc.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got := teamByID(t, svc, team.ID); got.Points != 5 {
		t.Fatalf("free text should grade case-insensitively, got %d points", got.Points)
	}
}

func TestMultipleChoiceGradingIsExact(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newTestService(t)

	q1 := mustCreateMCQuestion(t, svc, "B", 10)
	team := mustCreateTeam(t, svc, "Alpha")
	if err := svc.SetCurrent(ctx, q1); err != nil {
		t.Fatalf("set current: %v", err)
	}
	if err := svc.Open(ctx); err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := svc.Submit(ctx, team.Token, "dev", "b"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := svc.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got := teamByID(t, svc, team.ID); got.Points != 0 {
		t.Fatalf("multiple choice must match exactly, got %d points", got.Points)
	}
}

func TestSetCurrentZeroClearsSelection(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newTestService(t)

	q1 := mustCreateMCQuestion(t, svc, "B", 10)
	if err := svc.SetCurrent(ctx, q1); err != nil {
		t.Fatalf("set current: %v", err)
	}
	if err := svc.SetCurrent(ctx, 0); err != nil {
		t.Fatalf("clear current: %v", err)
	}
	state, _ := svc.State(ctx)
	if state.CurrentQuestionID != nil || state.Question != nil {
		t.Fatalf("expected empty selection, got %+v", state)
	}
}

func TestQuestionValidation(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newTestService(t)

	_, err := svc.CreateQuestion(ctx, domain.Question{
		Type:          domain.QuestionMultipleChoice,
		Prompt:        "Pick",
		Choices:       []string{"A", "B"},
		CorrectAnswer: "A",
		Points:        5,
	})
	if err != domain.ErrChoicesRequired {
		t.Fatalf("expected ErrChoicesRequired, got %v", err)
	}

	_, err = svc.CreateQuestion(ctx, domain.Question{Type: domain.QuestionFreeText, Points: 5})
	if err != domain.ErrInvalidPayload {
		t.Fatalf("expected ErrInvalidPayload, got %v", err)
	}
}

func TestBroadcastsOnLifecycle(t *testing.T) {
	ctx := context.Background()
	svc, _, _, rec := newTestService(t)

	q1 := mustCreateMCQuestion(t, svc, "B", 10)
	team := mustCreateTeam(t, svc, "Alpha")
	if err := svc.SetCurrent(ctx, q1); err != nil {
		t.Fatalf("set current: %v", err)
	}
	if err := svc.Open(ctx); err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := svc.Submit(ctx, team.Token, "dev", "B"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := svc.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := svc.ResetSubmissions(ctx, q1); err != nil {
		t.Fatalf("reset: %v", err)
	}

	if rec.count("submission_received") != 1 {
		t.Fatalf("expected one submission event, got %d", rec.count("submission_received"))
	}
	if rec.count("question_reset") != 1 {
		t.Fatalf("expected one reset event, got %d", rec.count("question_reset"))
	}
	// create question + set_current + open + close each push state.
	if rec.count("state_update") < 4 {
		t.Fatalf("expected state updates for every transition, got %d", rec.count("state_update"))
	}
	if rec.count("rankings_update") < 4 {
		t.Fatalf("expected ranking updates, got %d", rec.count("rankings_update"))
	}
}
