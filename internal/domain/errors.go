package domain

import "errors"

var (
	// ErrInvalidToken is returned when a join token matches no team.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTeamInUse is returned when a team is already bound to another device.
	ErrTeamInUse = errors.New("team already bound to another device")
	// ErrQuestionNotOpen rejects submissions while no question is open.
	ErrQuestionNotOpen = errors.New("question not open")
	// ErrAlreadySubmitted rejects a second submission for the same (team, question).
	ErrAlreadySubmitted = errors.New("already submitted")
	// ErrNoCurrentQuestion rejects open() when nothing is selected.
	ErrNoCurrentQuestion = errors.New("no current question")
	// ErrNotFound is returned when a referenced entity no longer exists.
	ErrNotFound = errors.New("not found")
	// ErrInvalidQuestion rejects a reset with a zero question id.
	ErrInvalidQuestion = errors.New("invalid question")
	// ErrInvalidPayload covers malformed or missing request fields.
	ErrInvalidPayload = errors.New("invalid payload")
	// ErrChoicesRequired rejects a multiple choice question without exactly four choices.
	ErrChoicesRequired = errors.New("multiple choice requires exactly four choices")
)
