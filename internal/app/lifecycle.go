package app

import (
	"context"
	"strings"

	"quizbee/internal/domain"
)

// SetCurrent switches the selected question. If a different question is
// currently open it is closed and graded first, so no submission is ever left
// ungraded by switching away. A zero id clears the selection. The reveal flag
// is always cleared.
func (s *GameService) SetCurrent(ctx context.Context, questionID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.store.GameState(ctx)
	if err != nil {
		return err
	}
	if state.IsOpen && state.CurrentQuestionID != nil && *state.CurrentQuestionID != questionID {
		if err := s.gradeQuestion(ctx, *state.CurrentQuestionID); err != nil {
			return err
		}
		if err := s.store.CloseQuestion(ctx); err != nil {
			return err
		}
	}
	if err := s.store.SetCurrentQuestion(ctx, questionID); err != nil {
		return err
	}
	s.broadcastState(ctx)
	s.broadcastRankings(ctx)
	return nil
}

// Open starts accepting submissions for the current question and stamps the
// open time used for elapsed-time scoring.
func (s *GameService) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.store.GameState(ctx)
	if err != nil {
		return err
	}
	if state.CurrentQuestionID == nil {
		return domain.ErrNoCurrentQuestion
	}
	if err := s.store.OpenQuestion(ctx, s.nowMs()); err != nil {
		return err
	}
	s.broadcastState(ctx)
	return nil
}

// Close grades every ungraded submission for the current question and stops
// accepting new ones. Idempotent: a second close finds nothing to grade.
func (s *GameService) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.store.GameState(ctx)
	if err != nil {
		return err
	}
	if state.CurrentQuestionID != nil {
		if err := s.gradeQuestion(ctx, *state.CurrentQuestionID); err != nil {
			return err
		}
	}
	if err := s.store.CloseQuestion(ctx); err != nil {
		return err
	}
	s.broadcastState(ctx)
	s.broadcastRankings(ctx)
	return nil
}

// Reveal exposes the correct answer to participants. Deliberately
// unconditional: the admin may reveal while the question is still open.
func (s *GameService) Reveal(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.SetReveal(ctx); err != nil {
		return err
	}
	s.broadcastState(ctx)
	return nil
}

// gradeQuestion awards points for every still-ungraded submission on the
// question. Already-graded submissions are untouched, which makes grading
// idempotent per submission. Caller holds the mutex.
func (s *GameService) gradeQuestion(ctx context.Context, questionID int64) error {
	question, err := s.store.QuestionByID(ctx, questionID)
	if err == domain.ErrNotFound {
		return nil // question deleted since selection; nothing to grade
	}
	if err != nil {
		return err
	}
	subs, err := s.store.UngradedSubmissions(ctx, questionID)
	if err != nil {
		return err
	}
	for _, sub := range subs {
		result := domain.GradeIncorrect
		if answerMatches(question, sub.Answer) {
			result = domain.GradeCorrect
		}
		points := 0
		if result == domain.GradeCorrect {
			points = question.Points
		}
		if err := s.store.GradeSubmission(ctx, sub.ID, result, points); err != nil {
			return err
		}
		if points != 0 {
			if err := s.store.AddPoints(ctx, sub.TeamID, points); err != nil {
				return err
			}
		}
	}
	return nil
}

// answerMatches applies the per-type comparison rule: multiple choice is an
// exact match, free text is trimmed and case-insensitive.
func answerMatches(q domain.Question, answer string) bool {
	if q.Type == domain.QuestionMultipleChoice {
		return answer == q.CorrectAnswer
	}
	return strings.EqualFold(strings.TrimSpace(answer), strings.TrimSpace(q.CorrectAnswer))
}
