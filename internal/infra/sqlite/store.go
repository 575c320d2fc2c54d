// Package sqlite is the default store backend: teams, questions, a singleton
// game_state row, and submissions with a UNIQUE(team_id, question_id)
// constraint.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"quizbee/internal/domain"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const schema = `
CREATE TABLE IF NOT EXISTS teams (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    token TEXT NOT NULL UNIQUE,
    device_id TEXT,
    points INTEGER NOT NULL DEFAULT 0,
    total_time_ms INTEGER NOT NULL DEFAULT 0,
    last_submission_at INTEGER
);
CREATE TABLE IF NOT EXISTS questions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    type TEXT NOT NULL,
    prompt TEXT NOT NULL,
    choices_json TEXT,
    correct_answer TEXT NOT NULL,
    points INTEGER NOT NULL DEFAULT 0,
    time_limit_seconds INTEGER
);
CREATE TABLE IF NOT EXISTS game_state (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    current_question_id INTEGER,
    is_open INTEGER NOT NULL DEFAULT 0,
    opened_at INTEGER,
    reveal_answer INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS submissions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    team_id INTEGER NOT NULL,
    question_id INTEGER NOT NULL,
    answer TEXT NOT NULL,
    is_correct INTEGER,
    points_awarded INTEGER NOT NULL DEFAULT 0,
    submitted_at INTEGER NOT NULL,
    ms_since_open INTEGER NOT NULL,
    UNIQUE(team_id, question_id)
);
`

// Store implements app.Store on a sqlite database.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and ensures the schema and
// the singleton game_state row. Use ":memory:" for an ephemeral database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection keeps writes serialized and makes :memory: behave.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA journal_mode = WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	if _, err := db.Exec(
		`INSERT OR IGNORE INTO game_state (id, current_question_id, is_open, opened_at, reveal_answer)
		 VALUES (1, NULL, 0, NULL, 0)`,
	); err != nil {
		db.Close()
		return nil, fmt.Errorf("seed game state: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	return errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}

func (s *Store) CreateTeam(ctx context.Context, name, token string) (domain.Team, error) {
	res, err := s.db.ExecContext(ctx, `INSERT INTO teams (name, token) VALUES (?, ?)`, name, token)
	if err != nil {
		return domain.Team{}, fmt.Errorf("insert team: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Team{}, fmt.Errorf("team id: %w", err)
	}
	return domain.Team{ID: id, Name: name, Token: token}, nil
}

const teamColumns = `id, name, token, device_id, points, total_time_ms, last_submission_at`

func scanTeam(row interface{ Scan(...any) error }) (domain.Team, error) {
	var t domain.Team
	var device sql.NullString
	var last sql.NullInt64
	if err := row.Scan(&t.ID, &t.Name, &t.Token, &device, &t.Points, &t.TotalTimeMs, &last); err != nil {
		return domain.Team{}, err
	}
	t.DeviceID = device.String
	if last.Valid {
		t.LastSubmissionAt = &last.Int64
	}
	return t, nil
}

func (s *Store) ListTeams(ctx context.Context) ([]domain.Team, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+teamColumns+` FROM teams ORDER BY id ASC`)
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
	t, err := scanTeam(s.db.QueryRowContext(ctx, `SELECT `+teamColumns+` FROM teams WHERE token = ?`, token))
	if err == sql.ErrNoRows {
		return domain.Team{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Team{}, fmt.Errorf("team by token: %w", err)
	}
	return t, nil
}

func (s *Store) BindDevice(ctx context.Context, teamID int64, deviceID string) error {
	// First-bind-wins: only an unbound row is updated.
	_, err := s.db.ExecContext(ctx,
		`UPDATE teams SET device_id = ? WHERE id = ? AND device_id IS NULL`, deviceID, teamID)
	if err != nil {
		return fmt.Errorf("bind device: %w", err)
	}
	return nil
}

func (s *Store) ReleaseDevice(ctx context.Context, teamID int64) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE teams SET device_id = NULL WHERE id = ?`, teamID); err != nil {
		return fmt.Errorf("release device: %w", err)
	}
	return nil
}

func (s *Store) AddPoints(ctx context.Context, teamID int64, delta int) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE teams SET points = points + ? WHERE id = ?`, delta, teamID); err != nil {
		return fmt.Errorf("add points: %w", err)
	}
	return nil
}

func (s *Store) RecordSubmissionStats(ctx context.Context, teamID, msSinceOpen, submittedAt int64) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE teams SET total_time_ms = total_time_ms + ?, last_submission_at = ? WHERE id = ?`,
		msSinceOpen, submittedAt, teamID); err != nil {
		return fmt.Errorf("record submission stats: %w", err)
	}
	return nil
}

func (s *Store) RecomputeTeamStats(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE teams SET
		    points = COALESCE((SELECT SUM(points_awarded) FROM submissions WHERE submissions.team_id = teams.id), 0),
		    total_time_ms = COALESCE((SELECT SUM(ms_since_open) FROM submissions WHERE submissions.team_id = teams.id), 0),
		    last_submission_at = (SELECT MAX(submitted_at) FROM submissions WHERE submissions.team_id = teams.id)`)
	if err != nil {
		return fmt.Errorf("recompute team stats: %w", err)
	}
	return nil
}

func encodeChoices(q domain.Question) (sql.NullString, error) {
	if q.Type != domain.QuestionMultipleChoice || q.Choices == nil {
		return sql.NullString{}, nil
	}
	raw, err := json.Marshal(q.Choices)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode choices: %w", err)
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}

func (s *Store) CreateQuestion(ctx context.Context, q domain.Question) (int64, error) {
	choices, err := encodeChoices(q)
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO questions (type, prompt, choices_json, correct_answer, points, time_limit_seconds)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		string(q.Type), q.Prompt, choices, q.CorrectAnswer, q.Points, nullableInt(q.TimeLimitSeconds))
	if err != nil {
		return 0, fmt.Errorf("insert question: %w", err)
	}
	return res.LastInsertId()
}

func (s *Store) UpdateQuestion(ctx context.Context, q domain.Question) error {
	choices, err := encodeChoices(q)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE questions
		 SET type = ?, prompt = ?, choices_json = ?, correct_answer = ?, points = ?, time_limit_seconds = ?
		 WHERE id = ?`,
		string(q.Type), q.Prompt, choices, q.CorrectAnswer, q.Points, nullableInt(q.TimeLimitSeconds), q.ID)
	if err != nil {
		return fmt.Errorf("update question: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteQuestion(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM questions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete question: %w", err)
	}
	return nil
}

const questionColumns = `id, type, prompt, choices_json, correct_answer, points, time_limit_seconds`

func scanQuestion(row interface{ Scan(...any) error }) (domain.Question, error) {
	var q domain.Question
	var qtype string
	var choices sql.NullString
	var limit sql.NullInt64
	if err := row.Scan(&q.ID, &qtype, &q.Prompt, &choices, &q.CorrectAnswer, &q.Points, &limit); err != nil {
		return domain.Question{}, err
	}
	q.Type = domain.QuestionType(qtype)
	if choices.Valid {
		if err := json.Unmarshal([]byte(choices.String), &q.Choices); err != nil {
			return domain.Question{}, fmt.Errorf("decode choices: %w", err)
		}
	}
	if limit.Valid {
		v := int(limit.Int64)
		q.TimeLimitSeconds = &v
	}
	return q, nil
}

func (s *Store) QuestionByID(ctx context.Context, id int64) (domain.Question, error) {
	q, err := scanQuestion(s.db.QueryRowContext(ctx, `SELECT `+questionColumns+` FROM questions WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return domain.Question{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Question{}, fmt.Errorf("question by id: %w", err)
	}
	return q, nil
}

func (s *Store) ListQuestions(ctx context.Context) ([]domain.Question, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+questionColumns+` FROM questions ORDER BY id ASC`)
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
	var current, openedAt sql.NullInt64
	var isOpen, reveal int
	err := s.db.QueryRowContext(ctx,
		`SELECT current_question_id, is_open, opened_at, reveal_answer FROM game_state WHERE id = 1`,
	).Scan(&current, &isOpen, &openedAt, &reveal)
	if err != nil {
		return domain.GameState{}, fmt.Errorf("game state: %w", err)
	}
	if current.Valid {
		state.CurrentQuestionID = &current.Int64
	}
	state.IsOpen = isOpen != 0
	if openedAt.Valid {
		state.OpenedAt = &openedAt.Int64
	}
	state.RevealAnswer = reveal != 0
	return state, nil
}

func (s *Store) SetCurrentQuestion(ctx context.Context, id int64) error {
	var current sql.NullInt64
	if id != 0 {
		current = sql.NullInt64{Int64: id, Valid: true}
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE game_state SET current_question_id = ?, reveal_answer = 0 WHERE id = 1`, current); err != nil {
		return fmt.Errorf("set current question: %w", err)
	}
	return nil
}

func (s *Store) OpenQuestion(ctx context.Context, openedAt int64) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE game_state SET is_open = 1, opened_at = ?, reveal_answer = 0 WHERE id = 1`, openedAt); err != nil {
		return fmt.Errorf("open question: %w", err)
	}
	return nil
}

func (s *Store) CloseQuestion(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE game_state SET is_open = 0, opened_at = NULL WHERE id = 1`); err != nil {
		return fmt.Errorf("close question: %w", err)
	}
	return nil
}

func (s *Store) SetReveal(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE game_state SET reveal_answer = 1 WHERE id = 1`); err != nil {
		return fmt.Errorf("set reveal: %w", err)
	}
	return nil
}

func (s *Store) InsertSubmission(ctx context.Context, sub domain.Submission) (domain.Submission, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO submissions (team_id, question_id, answer, is_correct, points_awarded, submitted_at, ms_since_open)
		 VALUES (?, ?, ?, NULL, 0, ?, ?)`,
		sub.TeamID, sub.QuestionID, sub.Answer, sub.SubmittedAt, sub.MsSinceOpen)
	if isUniqueViolation(err) {
		return domain.Submission{}, domain.ErrAlreadySubmitted
	}
	if err != nil {
		return domain.Submission{}, fmt.Errorf("insert submission: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Submission{}, fmt.Errorf("submission id: %w", err)
	}
	sub.ID = id
	sub.Result = domain.GradePending
	sub.PointsAwarded = 0
	return sub, nil
}

func (s *Store) HasSubmission(ctx context.Context, teamID, questionID int64) (bool, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM submissions WHERE team_id = ? AND question_id = ?`, teamID, questionID).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("has submission: %w", err)
	}
	return true, nil
}

const submissionColumns = `id, team_id, question_id, answer, is_correct, points_awarded, submitted_at, ms_since_open`

func scanSubmission(row interface{ Scan(...any) error }) (domain.Submission, error) {
	var sub domain.Submission
	var correct sql.NullInt64
	if err := row.Scan(&sub.ID, &sub.TeamID, &sub.QuestionID, &sub.Answer, &correct,
		&sub.PointsAwarded, &sub.SubmittedAt, &sub.MsSinceOpen); err != nil {
		return domain.Submission{}, err
	}
	sub.Result = resultFromColumn(correct)
	return sub, nil
}

func resultFromColumn(correct sql.NullInt64) domain.GradeResult {
	switch {
	case !correct.Valid:
		return domain.GradePending
	case correct.Int64 != 0:
		return domain.GradeCorrect
	default:
		return domain.GradeIncorrect
	}
}

func resultToColumn(result domain.GradeResult) sql.NullInt64 {
	switch result {
	case domain.GradeCorrect:
		return sql.NullInt64{Int64: 1, Valid: true}
	case domain.GradeIncorrect:
		return sql.NullInt64{Int64: 0, Valid: true}
	default:
		return sql.NullInt64{}
	}
}

func (s *Store) SubmissionByID(ctx context.Context, id int64) (domain.Submission, error) {
	sub, err := scanSubmission(s.db.QueryRowContext(ctx,
		`SELECT `+submissionColumns+` FROM submissions WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return domain.Submission{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Submission{}, fmt.Errorf("submission by id: %w", err)
	}
	return sub, nil
}

func (s *Store) UngradedSubmissions(ctx context.Context, questionID int64) ([]domain.Submission, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+submissionColumns+` FROM submissions WHERE question_id = ? AND is_correct IS NULL`, questionID)
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
	if _, err := s.db.ExecContext(ctx,
		`UPDATE submissions SET is_correct = ?, points_awarded = ? WHERE id = ?`,
		resultToColumn(result), points, id); err != nil {
		return fmt.Errorf("grade submission: %w", err)
	}
	return nil
}

func (s *Store) SubmissionsForQuestion(ctx context.Context, questionID int64) ([]domain.SubmissionWithTeam, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT s.id, s.team_id, s.question_id, s.answer, s.is_correct, s.points_awarded,
		        s.submitted_at, s.ms_since_open, t.name
		 FROM submissions s
		 JOIN teams t ON t.id = s.team_id
		 WHERE s.question_id = ?
		 ORDER BY s.submitted_at ASC`, questionID)
	if err != nil {
		return nil, fmt.Errorf("submissions for question: %w", err)
	}
	defer rows.Close()
	var subs []domain.SubmissionWithTeam
	for rows.Next() {
		var sub domain.SubmissionWithTeam
		var correct sql.NullInt64
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
	if _, err := s.db.ExecContext(ctx, `DELETE FROM submissions WHERE question_id = ?`, questionID); err != nil {
		return fmt.Errorf("delete submissions: %w", err)
	}
	return nil
}

func nullableInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}
