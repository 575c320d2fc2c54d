package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"sort"
	"sync"
	"time"

	"quizbee/internal/domain"
)

// Store is the serialized write path for all durable game records. Both the
// sqlite and postgres backends implement it. Implementations must enforce the
// (team, question) uniqueness on InsertSubmission as an atomic constraint and
// surface violations as domain.ErrAlreadySubmitted.
type Store interface {
	CreateTeam(ctx context.Context, name, token string) (domain.Team, error)
	ListTeams(ctx context.Context) ([]domain.Team, error)
	TeamByToken(ctx context.Context, token string) (domain.Team, error)
	BindDevice(ctx context.Context, teamID int64, deviceID string) error
	ReleaseDevice(ctx context.Context, teamID int64) error
	AddPoints(ctx context.Context, teamID int64, delta int) error
	RecordSubmissionStats(ctx context.Context, teamID, msSinceOpen, submittedAt int64) error
	RecomputeTeamStats(ctx context.Context) error

	CreateQuestion(ctx context.Context, q domain.Question) (int64, error)
	UpdateQuestion(ctx context.Context, q domain.Question) error
	DeleteQuestion(ctx context.Context, id int64) error
	QuestionByID(ctx context.Context, id int64) (domain.Question, error)
	ListQuestions(ctx context.Context) ([]domain.Question, error)

	GameState(ctx context.Context) (domain.GameState, error)
	SetCurrentQuestion(ctx context.Context, id int64) error
	OpenQuestion(ctx context.Context, openedAt int64) error
	CloseQuestion(ctx context.Context) error
	SetReveal(ctx context.Context) error

	InsertSubmission(ctx context.Context, sub domain.Submission) (domain.Submission, error)
	HasSubmission(ctx context.Context, teamID, questionID int64) (bool, error)
	SubmissionByID(ctx context.Context, id int64) (domain.Submission, error)
	UngradedSubmissions(ctx context.Context, questionID int64) ([]domain.Submission, error)
	GradeSubmission(ctx context.Context, id int64, result domain.GradeResult, points int) error
	SubmissionsForQuestion(ctx context.Context, questionID int64) ([]domain.SubmissionWithTeam, error)
	DeleteSubmissionsForQuestion(ctx context.Context, questionID int64) error
}

// Broadcaster fans committed mutations out to connected clients. Calls are
// fire-and-forget: they run after the mutation has been stored and their
// failure never propagates back.
type Broadcaster interface {
	BroadcastState(state domain.StatePayload)
	BroadcastRankings(rankings []domain.RankingEntry)
	BroadcastSubmission(sub domain.Submission)
	BroadcastQuestionReset(questionID int64)
}

// NopBroadcaster discards all events.
type NopBroadcaster struct{}

func (NopBroadcaster) BroadcastState(domain.StatePayload)        {}
func (NopBroadcaster) BroadcastRankings([]domain.RankingEntry)   {}
func (NopBroadcaster) BroadcastSubmission(domain.Submission)     {}
func (NopBroadcaster) BroadcastQuestionReset(int64)              {}

// GameService contains the quiz event use cases: the question lifecycle, the
// submission ledger, device binding, and the standings. A single mutex
// serializes every mutating operation so that read-modify-write sequences on
// team aggregates never interleave.
type GameService struct {
	mu    sync.Mutex
	store Store
	bus   Broadcaster
	now   func() time.Time
}

func NewGameService(store Store, bus Broadcaster) *GameService {
	return NewGameServiceWithClock(store, bus, time.Now)
}

// NewGameServiceWithClock allows deterministic timestamps in tests.
func NewGameServiceWithClock(store Store, bus Broadcaster, now func() time.Time) *GameService {
	return &GameService{store: store, bus: bus, now: now}
}

func (s *GameService) nowMs() int64 {
	return s.now().UnixMilli()
}

// State composes the canonical snapshot: the lifecycle record plus the full
// current question, or a nil question when nothing is selected.
func (s *GameService) State(ctx context.Context) (domain.StatePayload, error) {
	state, err := s.store.GameState(ctx)
	if err != nil {
		return domain.StatePayload{}, err
	}
	payload := domain.StatePayload{
		CurrentQuestionID: state.CurrentQuestionID,
		IsOpen:            state.IsOpen,
		OpenedAt:          state.OpenedAt,
		RevealAnswer:      state.RevealAnswer,
	}
	if state.CurrentQuestionID != nil {
		q, err := s.store.QuestionByID(ctx, *state.CurrentQuestionID)
		if err == nil {
			payload.Question = &q
		} else if !errors.Is(err, domain.ErrNotFound) {
			return domain.StatePayload{}, err
		}
	}
	return payload, nil
}

// Rankings orders teams by points desc, total time asc, last submission asc
// (a team that never submitted sorts first), then name for a deterministic
// final tie-break. Pure read; aggregates are maintained by the ledger.
func (s *GameService) Rankings(ctx context.Context) ([]domain.RankingEntry, error) {
	teams, err := s.store.ListTeams(ctx)
	if err != nil {
		return nil, err
	}
	entries := make([]domain.RankingEntry, 0, len(teams))
	for _, t := range teams {
		entries = append(entries, domain.RankingEntry{
			TeamID:           t.ID,
			Name:             t.Name,
			Points:           t.Points,
			TotalTimeMs:      t.TotalTimeMs,
			LastSubmissionAt: t.LastSubmissionAt,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Points != b.Points {
			return a.Points > b.Points
		}
		if a.TotalTimeMs != b.TotalTimeMs {
			return a.TotalTimeMs < b.TotalTimeMs
		}
		la, lb := lastMs(a.LastSubmissionAt), lastMs(b.LastSubmissionAt)
		if la != lb {
			return la < lb
		}
		return a.Name < b.Name
	})
	return entries, nil
}

func lastMs(at *int64) int64 {
	if at == nil {
		return 0
	}
	return *at
}

func (s *GameService) broadcastState(ctx context.Context) {
	if payload, err := s.State(ctx); err == nil {
		s.bus.BroadcastState(payload)
	}
}

func (s *GameService) broadcastRankings(ctx context.Context) {
	if rankings, err := s.Rankings(ctx); err == nil {
		s.bus.BroadcastRankings(rankings)
	}
}

func newHexToken(bytes int) string {
	buf := make([]byte, bytes)
	if _, err := rand.Read(buf); err != nil {
		panic(err) // crypto/rand never fails on supported platforms
	}
	return hex.EncodeToString(buf)
}

// NewJoinToken mints a team join token.
func NewJoinToken() string { return newHexToken(24) }

// NewDeviceID mints a device identifier for the participant cookie.
func NewDeviceID() string { return newHexToken(16) }
