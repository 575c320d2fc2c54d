package domain

// QuestionType distinguishes how an answer is graded.
type QuestionType string

const (
	// QuestionMultipleChoice questions carry exactly four choices and are
	// graded by exact match against the correct answer.
	QuestionMultipleChoice QuestionType = "multiple_choice"
	// QuestionFreeText answers are trimmed and compared case-insensitively.
	QuestionFreeText QuestionType = "free_text"
)

// GradeResult is the tri-state outcome of grading a submission. A submission
// starts ungraded; "incorrect" and "not yet graded" are distinct states.
type GradeResult string

const (
	GradePending   GradeResult = "ungraded"
	GradeCorrect   GradeResult = "correct"
	GradeIncorrect GradeResult = "incorrect"
)

// Team is a participant unit identified by its join token. The aggregate
// fields (points, total time, last submission) are kept consistent by the
// submission ledger.
type Team struct {
	ID               int64  `json:"id"`
	Name             string `json:"name"`
	Token            string `json:"token"`
	DeviceID         string `json:"device_id,omitempty"`
	Points           int    `json:"points"`
	TotalTimeMs      int64  `json:"total_time_ms"`
	LastSubmissionAt *int64 `json:"last_submission_at"`
}

// Question is a gradable prompt. Choices is non-nil iff the question is
// multiple choice, in which case it holds exactly four entries.
type Question struct {
	ID               int64        `json:"id"`
	Type             QuestionType `json:"type"`
	Prompt           string       `json:"prompt"`
	Choices          []string     `json:"choices"`
	CorrectAnswer    string       `json:"correct_answer"`
	Points           int          `json:"points"`
	TimeLimitSeconds *int         `json:"time_limit_seconds"`
}

// GameState is the singleton lifecycle record. OpenedAt is non-nil iff IsOpen.
type GameState struct {
	CurrentQuestionID *int64 `json:"current_question_id"`
	IsOpen            bool   `json:"is_open"`
	OpenedAt          *int64 `json:"opened_at"`
	RevealAnswer      bool   `json:"reveal_answer"`
}

// Submission records a team's answer to one question. At most one exists per
// (team, question) pair.
type Submission struct {
	ID            int64       `json:"id"`
	TeamID        int64       `json:"team_id"`
	QuestionID    int64       `json:"question_id"`
	Answer        string      `json:"answer"`
	Result        GradeResult `json:"result"`
	PointsAwarded int         `json:"points_awarded"`
	SubmittedAt   int64       `json:"submitted_at"`
	MsSinceOpen   int64       `json:"ms_since_open"`
}

// SubmissionWithTeam is the admin review view of a submission.
type SubmissionWithTeam struct {
	Submission
	TeamName string `json:"team_name"`
}

// StatePayload is the canonical snapshot broadcast to every client. It
// carries the full question, correct answer included; clients gate display
// on RevealAnswer.
type StatePayload struct {
	CurrentQuestionID *int64    `json:"current_question_id"`
	IsOpen            bool      `json:"is_open"`
	OpenedAt          *int64    `json:"opened_at"`
	RevealAnswer      bool      `json:"reveal_answer"`
	Question          *Question `json:"question"`
}

// RankingEntry is one row of the standings.
type RankingEntry struct {
	TeamID           int64  `json:"id"`
	Name             string `json:"name"`
	Points           int    `json:"points"`
	TotalTimeMs      int64  `json:"total_time_ms"`
	LastSubmissionAt *int64 `json:"last_submission_at"`
}
