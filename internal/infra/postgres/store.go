// Package postgres backs the store with a pgx connection pool. The logical
// schema matches the sqlite backend; migrations live in the migrations
// subpackage and are applied with bun's migrator.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"quizbee/internal/domain"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

const uniqueViolation = "23505"

// Store implements app.Store on Postgres.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func (s *Store) CreateTeam(ctx context.Context, name, token string) (domain.Team, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO teams (name, token) VALUES ($1, $2) RETURNING id`, name, token).Scan(&id)
	if err != nil {
		return domain.Team{}, fmt.Errorf("insert team: %w", err)
	}
	return domain.Team{ID: id, Name: name, Token: token}, nil
}

const teamColumns = `id, name, token, device_id, points, total_time_ms, last_submission_at`

func scanTeam(row pgx.Row) (domain.Team, error) {
	var t domain.Team
	var device *string
	if err := row.Scan(&t.ID, &t.Name, &t.Token, &device, &t.Points, &t.TotalTimeMs, &t.LastSubmissionAt); err != nil {
		return domain.Team{}, err
	}
	if device != nil {
		t.DeviceID = *device
	}
	return t, nil
}

func (s *Store) ListTeams(ctx context.Context) ([]domain.Team, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+teamColumns+` FROM teams ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	defer rows.Close()
	var teams []domain.Team
	for rows.Next() {
		t, err := scanTeam(rows)
		if err != nil {
			return nil, fmt.Errorf("scan team: %w", err)
		}
		teams = append(teams, t)
	}
	return teams, rows.Err()
}

func (s *Store) TeamByToken(ctx context.Context, token string) (domain.Team, error) {
	t, err := scanTeam(s.pool.QueryRow(ctx, `SELECT `+teamColumns+` FROM teams WHERE token = $1`, token))
	if err == pgx.ErrNoRows {
		return domain.Team{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Team{}, fmt.Errorf("team by token: %w", err)
	}
	return t, nil
}

func (s *Store) BindDevice(ctx context.Context, teamID int64, deviceID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE teams SET device_id = $1 WHERE id = $2 AND device_id IS NULL`, deviceID, teamID)
	if err != nil {
		return fmt.Errorf("bind device: %w", err)
	}
	return nil
}

func (s *Store) ReleaseDevice(ctx context.Context, teamID int64) error {
	if _, err := s.pool.Exec(ctx, `UPDATE teams SET device_id = NULL WHERE id = $1`, teamID); err != nil {
		return fmt.Errorf("release device: %w", err)
	}
	return nil
}

func (s *Store) AddPoints(ctx context.Context, teamID int64, delta int) error {
	if _, err := s.pool.Exec(ctx, `UPDATE teams SET points = points + $1 WHERE id = $2`, delta, teamID); err != nil {
		return fmt.Errorf("add points: %w", err)
	}
	return nil
}

func (s *Store) RecordSubmissionStats(ctx context.Context, teamID, msSinceOpen, submittedAt int64) error {
	if _, err := s.pool.Exec(ctx,
		`UPDATE teams SET total_time_ms = total_time_ms + $1, last_submission_at = $2 WHERE id = $3`,
		msSinceOpen, submittedAt, teamID); err != nil {
		return fmt.Errorf("record submission stats: %w", err)
	}
	return nil
}

func (s *Store) RecomputeTeamStats(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE teams SET
		    points = COALESCE((SELECT SUM(points_awarded) FROM submissions WHERE submissions.team_id = teams.id), 0),
		    total_time_ms = COALESCE((SELECT SUM(ms_since_open) FROM submissions WHERE submissions.team_id = teams.id), 0),
		    last_submission_at = (SELECT MAX(submitted_at) FROM submissions WHERE submissions.team_id = teams.id)`)
	if err != nil {
		return fmt.Errorf("recompute team stats: %w", err)
	}
	return nil
}

func encodeChoices(q domain.Question) ([]byte, error) {
	if q.Type != domain.QuestionMultipleChoice || q.Choices == nil {
		return nil, nil
	}
	raw, err := json.Marshal(q.Choices)
	if err != nil {
		return nil, fmt.Errorf("encode choices: %w", err)
	}
	return raw, nil
}

func (s *Store) CreateQuestion(ctx context.Context, q domain.Question) (int64, error) {
	choices, err := encodeChoices(q)
	if err != nil {
		return 0, err
	}
	var id int64
	err = s.pool.QueryRow(ctx,
		`INSERT INTO questions (type, prompt, choices_json, correct_answer, points, time_limit_seconds)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		string(q.Type), q.Prompt, choices, q.CorrectAnswer, q.Points, q.TimeLimitSeconds).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert question: %w", err)
	}
	return id, nil
}

func (s *Store) UpdateQuestion(ctx context.Context, q domain.Question) error {
	choices, err := encodeChoices(q)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE questions
		 SET type = $1, prompt = $2, choices_json = $3, correct_answer = $4, points = $5, time_limit_seconds = $6
		 WHERE id = $7`,
		string(q.Type), q.Prompt, choices, q.CorrectAnswer, q.Points, q.TimeLimitSeconds, q.ID)
	if err != nil {
		return fmt.Errorf("update question: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteQuestion(ctx context.Context, id int64) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM questions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete question: %w", err)
	}
	return nil
}

const questionColumns = `id, type, prompt, choices_json, correct_answer, points, time_limit_seconds`

func scanQuestion(row pgx.Row) (domain.Question, error) {
	var q domain.Question
	var qtype string
	var choices []byte
	if err := row.Scan(&q.ID, &qtype, &q.Prompt, &choices, &q.CorrectAnswer, &q.Points, &q.TimeLimitSeconds); err != nil {
		return domain.Question{}, err
	}
	q.Type = domain.QuestionType(qtype)
	if len(choices) > 0 {
		if err := json.Unmarshal(choices, &q.Choices); err != nil {
			return domain.Question{}, fmt.Errorf("decode choices: %w", err)
		}
	}
	return q, nil
}

func (s *Store) QuestionByID(ctx context.Context, id int64) (domain.Question, error) {
	q, err := scanQuestion(s.pool.QueryRow(ctx, `SELECT `+questionColumns+` FROM questions WHERE id = $1`, id))
	if err == pgx.ErrNoRows {
		return domain.Question{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Question{}, fmt.Errorf("question by id: %w", err)
	}
	return q, nil
}

func (s *Store) ListQuestions(ctx context.Context) ([]domain.Question, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+questionColumns+` FROM questions ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	defer rows.Close()
	var questions []domain.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

func (s *Store) GameState(ctx context.Context) (domain.GameState, error) {
	var state domain.GameState
	err := s.pool.QueryRow(ctx,
		`SELECT current_question_id, is_open, opened_at, reveal_answer FROM game_state WHERE id = 1`,
	).Scan(&state.CurrentQuestionID, &state.IsOpen, &state.OpenedAt, &state.RevealAnswer)
	if err != nil {
		return domain.GameState{}, fmt.Errorf("game state: %w", err)
	}
	return state, nil
}

func (s *Store) SetCurrentQuestion(ctx context.Context, id int64) error {
	var current *int64
	if id != 0 {
		current = &id
	}
	if _, err := s.pool.Exec(ctx,
		`UPDATE game_state SET current_question_id = $1, reveal_answer = FALSE WHERE id = 1`, current); err != nil {
		return fmt.Errorf("set current question: %w", err)
	}
	return nil
}

func (s *Store) OpenQuestion(ctx context.Context, openedAt int64) error {
	if _, err := s.pool.Exec(ctx,
		`UPDATE game_state SET is_open = TRUE, opened_at = $1, reveal_answer = FALSE WHERE id = 1`, openedAt); err != nil {
		return fmt.Errorf("open question: %w", err)
	}
	return nil
}

func (s *Store) CloseQuestion(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx,
		`UPDATE game_state SET is_open = FALSE, opened_at = NULL WHERE id = 1`); err != nil {
		return fmt.Errorf("close question: %w", err)
	}
	return nil
}

func (s *Store) SetReveal(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `UPDATE game_state SET reveal_answer = TRUE WHERE id = 1`); err != nil {
		return fmt.Errorf("set reveal: %w", err)
	}
	return nil
}

func (s *Store) InsertSubmission(ctx context.Context, sub domain.Submission) (domain.Submission, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO submissions (team_id, question_id, answer, is_correct, points_awarded, submitted_at, ms_since_open)
		 VALUES ($1, $2, $3, NULL, 0, $4, $5) RETURNING id`,
		sub.TeamID, sub.QuestionID, sub.Answer, sub.SubmittedAt, sub.MsSinceOpen).Scan(&id)
	if isUniqueViolation(err) {
		return domain.Submission{}, domain.ErrAlreadySubmitted
	}
	if err != nil {
		return domain.Submission{}, fmt.Errorf("insert submission: %w", err)
	}
	sub.ID = id
	sub.Result = domain.GradePending
	sub.PointsAwarded = 0
	return sub, nil
}

func (s *Store) HasSubmission(ctx context.Context, teamID, questionID int64) (bool, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`SELECT id FROM submissions WHERE team_id = $1 AND question_id = $2`, teamID, questionID).Scan(&id)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("has submission: %w", err)
	}
	return true, nil
}

const submissionColumns = `id, team_id, question_id, answer, is_correct, points_awarded, submitted_at, ms_since_open`

func scanSubmission(row pgx.Row) (domain.Submission, error) {
	var sub domain.Submission
	var correct *bool
	if err := row.Scan(&sub.ID, &sub.TeamID, &sub.QuestionID, &sub.Answer, &correct,
		&sub.PointsAwarded, &sub.SubmittedAt, &sub.MsSinceOpen); err != nil {
		return domain.Submission{}, err
	}
	sub.Result = resultFromColumn(correct)
	return sub, nil
}

func resultFromColumn(correct *bool) domain.GradeResult {
	switch {
	case correct == nil:
		return domain.GradePending
	case *correct:
		return domain.GradeCorrect
	default:
		return domain.GradeIncorrect
	}
}

func resultToColumn(result domain.GradeResult) *bool {
	switch result {
	case domain.GradeCorrect:
		v := true
		return &v
	case domain.GradeIncorrect:
		v := false
		return &v
	default:
		return nil
	}
}

func (s *Store) SubmissionByID(ctx context.Context, id int64) (domain.Submission, error) {
	sub, err := scanSubmission(s.pool.QueryRow(ctx,
		`SELECT `+submissionColumns+` FROM submissions WHERE id = $1`, id))
	if err == pgx.ErrNoRows {
		return domain.Submission{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Submission{}, fmt.Errorf("submission by id: %w", err)
	}
	return sub, nil
}

func (s *Store) UngradedSubmissions(ctx context.Context, questionID int64) ([]domain.Submission, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+submissionColumns+` FROM submissions WHERE question_id = $1 AND is_correct IS NULL`, questionID)
	if err != nil {
		return nil, fmt.Errorf("ungraded submissions: %w", err)
	}
	defer rows.Close()
	var subs []domain.Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

func (s *Store) GradeSubmission(ctx context.Context, id int64, result domain.GradeResult, points int) error {
	if _, err := s.pool.Exec(ctx,
		`UPDATE submissions SET is_correct = $1, points_awarded = $2 WHERE id = $3`,
		resultToColumn(result), points, id); err != nil {
		return fmt.Errorf("grade submission: %w", err)
	}
	return nil
}

func (s *Store) SubmissionsForQuestion(ctx context.Context, questionID int64) ([]domain.SubmissionWithTeam, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT s.id, s.team_id, s.question_id, s.answer, s.is_correct, s.points_awarded,
		        s.submitted_at, s.ms_since_open, t.name
		 FROM submissions s
		 JOIN teams t ON t.id = s.team_id
		 WHERE s.question_id = $1
		 ORDER BY s.submitted_at ASC`, questionID)
	if err != nil {
		return nil, fmt.Errorf("submissions for question: %w", err)
	}
	defer rows.Close()
	var subs []domain.SubmissionWithTeam
	for rows.Next() {
		var sub domain.SubmissionWithTeam
		var correct *bool
		if err := rows.Scan(&sub.ID, &sub.TeamID, &sub.QuestionID, &sub.Answer, &correct,
			&sub.PointsAwarded, &sub.SubmittedAt, &sub.MsSinceOpen, &sub.TeamName); err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		sub.Result = resultFromColumn(correct)
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

func (s *Store) DeleteSubmissionsForQuestion(ctx context.Context, questionID int64) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM submissions WHERE question_id = $1`, questionID); err != nil {
		return fmt.Errorf("delete submissions: %w", err)
	}
	return nil
}
