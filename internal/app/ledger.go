package app

import (
	"context"

	"quizbee/internal/domain"
)

// bindTeam resolves a join token and enforces first-bind-wins device
// stickiness: an unbound team is bound to the caller's device, a team bound
// elsewhere rejects the caller. Caller holds the mutex.
func (s *GameService) bindTeam(ctx context.Context, token, deviceID string) (domain.Team, error) {
	team, err := s.store.TeamByToken(ctx, token)
	if err == domain.ErrNotFound {
		return domain.Team{}, domain.ErrInvalidToken
	}
	if err != nil {
		return domain.Team{}, err
	}
	if team.DeviceID != "" && team.DeviceID != deviceID {
		return domain.Team{}, domain.ErrTeamInUse
	}
	if team.DeviceID == "" {
		if err := s.store.BindDevice(ctx, team.ID, deviceID); err != nil {
			return domain.Team{}, err
		}
		team.DeviceID = deviceID
	}
	return team, nil
}

// Join binds the device to the team behind the token and reports whether the
// team has already submitted for the current question.
func (s *GameService) Join(ctx context.Context, token, deviceID string) (domain.Team, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	team, err := s.bindTeam(ctx, token, deviceID)
	if err != nil {
		return domain.Team{}, false, err
	}
	state, err := s.store.GameState(ctx)
	if err != nil {
		return domain.Team{}, false, err
	}
	submitted := false
	if state.CurrentQuestionID != nil {
		submitted, err = s.store.HasSubmission(ctx, team.ID, *state.CurrentQuestionID)
		if err != nil {
			return domain.Team{}, false, err
		}
	}
	return team, submitted, nil
}

// Submit records a team's answer for the currently open question. The stored
// row is ungraded with zero points; grading happens on close. Elapsed time
// since open is accumulated into the team's running total immediately.
func (s *GameService) Submit(ctx context.Context, token, deviceID, answer string) (domain.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	team, err := s.bindTeam(ctx, token, deviceID)
	if err != nil {
		return domain.Submission{}, err
	}
	state, err := s.store.GameState(ctx)
	if err != nil {
		return domain.Submission{}, err
	}
	if state.CurrentQuestionID == nil || !state.IsOpen || state.OpenedAt == nil {
		return domain.Submission{}, domain.ErrQuestionNotOpen
	}

	submittedAt := s.nowMs()
	elapsed := submittedAt - *state.OpenedAt
	if elapsed < 0 {
		elapsed = 0
	}
	sub, err := s.store.InsertSubmission(ctx, domain.Submission{
		TeamID:      team.ID,
		QuestionID:  *state.CurrentQuestionID,
		Answer:      answer,
		Result:      domain.GradePending,
		SubmittedAt: submittedAt,
		MsSinceOpen: elapsed,
	})
	if err != nil {
		return domain.Submission{}, err
	}
	if err := s.store.RecordSubmissionStats(ctx, team.ID, elapsed, submittedAt); err != nil {
		return domain.Submission{}, err
	}

	s.bus.BroadcastSubmission(sub)
	s.broadcastRankings(ctx)
	return sub, nil
}

// ManualMark is the admin grading override. Team points move by the delta
// against what the submission previously awarded, so re-marking the same
// verdict is a no-op and flipping a verdict never double-counts.
func (s *GameService) ManualMark(ctx context.Context, submissionID int64, isCorrect bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, err := s.store.SubmissionByID(ctx, submissionID)
	if err != nil {
		return err
	}
	question, err := s.store.QuestionByID(ctx, sub.QuestionID)
	if err != nil {
		return err
	}

	result := domain.GradeIncorrect
	points := 0
	if isCorrect {
		result = domain.GradeCorrect
		points = question.Points
	}
	delta := points - sub.PointsAwarded

	if err := s.store.GradeSubmission(ctx, sub.ID, result, points); err != nil {
		return err
	}
	if delta != 0 {
		if err := s.store.AddPoints(ctx, sub.TeamID, delta); err != nil {
			return err
		}
	}
	s.broadcastRankings(ctx)
	return nil
}

// ResetSubmissions deletes every submission for the question and rebuilds all
// team aggregates from the surviving submission history. A from-scratch
// recompute, not a reversal of deltas, so the aggregates end up consistent
// even if earlier incremental updates had drifted.
func (s *GameService) ResetSubmissions(ctx context.Context, questionID int64) error {
	if questionID <= 0 {
		return domain.ErrInvalidQuestion
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.DeleteSubmissionsForQuestion(ctx, questionID); err != nil {
		return err
	}
	if err := s.store.RecomputeTeamStats(ctx); err != nil {
		return err
	}
	s.bus.BroadcastQuestionReset(questionID)
	s.broadcastRankings(ctx)
	return nil
}

// SubmissionsForQuestion lists a question's submissions with team names, in
// submission order, for the admin review screen.
func (s *GameService) SubmissionsForQuestion(ctx context.Context, questionID int64) ([]domain.SubmissionWithTeam, error) {
	return s.store.SubmissionsForQuestion(ctx, questionID)
}
