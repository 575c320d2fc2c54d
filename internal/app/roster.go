package app

import (
	"context"
	"strings"

	"quizbee/internal/domain"
)

// CreateTeam registers a team and mints its join token.
func (s *GameService) CreateTeam(ctx context.Context, name string) (domain.Team, error) {
	if strings.TrimSpace(name) == "" {
		return domain.Team{}, domain.ErrInvalidPayload
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	team, err := s.store.CreateTeam(ctx, name, NewJoinToken())
	if err != nil {
		return domain.Team{}, err
	}
	s.broadcastRankings(ctx)
	return team, nil
}

func (s *GameService) ListTeams(ctx context.Context) ([]domain.Team, error) {
	return s.store.ListTeams(ctx)
}

// AdjustPoints applies an admin point correction directly to a team total.
func (s *GameService) AdjustPoints(ctx context.Context, teamID int64, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.AddPoints(ctx, teamID, delta); err != nil {
		return err
	}
	s.broadcastRankings(ctx)
	return nil
}

// ReleaseDevice clears a team's device binding so it can rejoin from a new
// device.
func (s *GameService) ReleaseDevice(ctx context.Context, teamID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.ReleaseDevice(ctx, teamID)
}

// CreateQuestion validates and stores a question, returning its id.
func (s *GameService) CreateQuestion(ctx context.Context, q domain.Question) (int64, error) {
	if err := validateQuestion(&q); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.store.CreateQuestion(ctx, q)
	if err != nil {
		return 0, err
	}
	s.broadcastState(ctx)
	return id, nil
}

// UpdateQuestion edits a question in place. Past submissions are not
// regraded; only an explicit reset changes history.
func (s *GameService) UpdateQuestion(ctx context.Context, q domain.Question) error {
	if q.ID <= 0 {
		return domain.ErrInvalidPayload
	}
	if err := validateQuestion(&q); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.UpdateQuestion(ctx, q); err != nil {
		return err
	}
	s.broadcastState(ctx)
	return nil
}

func (s *GameService) DeleteQuestion(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.DeleteQuestion(ctx, id); err != nil {
		return err
	}
	s.broadcastState(ctx)
	return nil
}

func (s *GameService) ListQuestions(ctx context.Context) ([]domain.Question, error) {
	return s.store.ListQuestions(ctx)
}

func validateQuestion(q *domain.Question) error {
	if q.Type == "" || q.Prompt == "" || q.CorrectAnswer == "" {
		return domain.ErrInvalidPayload
	}
	if q.Type == domain.QuestionMultipleChoice {
		if len(q.Choices) != 4 {
			return domain.ErrChoicesRequired
		}
	} else {
		q.Choices = nil
	}
	return nil
}
