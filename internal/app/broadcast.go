package app

import "quizbee/internal/domain"

// MultiBroadcaster fans every event out to each member in order.
type MultiBroadcaster []Broadcaster

func (m MultiBroadcaster) BroadcastState(state domain.StatePayload) {
	for _, b := range m {
		b.BroadcastState(state)
	}
}

func (m MultiBroadcaster) BroadcastRankings(rankings []domain.RankingEntry) {
	for _, b := range m {
		b.BroadcastRankings(rankings)
	}
}

func (m MultiBroadcaster) BroadcastSubmission(sub domain.Submission) {
	for _, b := range m {
		b.BroadcastSubmission(sub)
	}
}

func (m MultiBroadcaster) BroadcastQuestionReset(questionID int64) {
	for _, b := range m {
		b.BroadcastQuestionReset(questionID)
	}
}
