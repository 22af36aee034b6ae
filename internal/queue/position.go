package queue

import (
	"sort"

	"simrig-booking-backend/internal/model"
)

// NextPosition is one past the highest position held by an entry still in
// line, or 1 for an empty line. It must run while the store holds the join
// lock so two joins never see the same line.
func NextPosition(inLine []model.QueueEntry) int {
	max := 0
	for _, e := range inLine {
		if e.Status.InLine() && e.Position > max {
			max = e.Position
		}
	}
	return max + 1
}

// Ahead is how many people precede an entry and how long they should take.
type Ahead struct {
	QueueAhead           int `json:"queue_ahead"`
	EstimatedWaitMinutes int `json:"estimated_wait_minutes"`
}

// ComputeQueueAhead counts the in-line entries of the same machine that come
// before entry. Each of them is assumed to take avgSessionMinutes.
func ComputeQueueAhead(entry *model.QueueEntry, sameMachine []model.QueueEntry, avgSessionMinutes int) Ahead {
	ahead := 0
	for i := range sameMachine {
		other := &sameMachine[i]
		if other.ID == entry.ID || !other.Status.InLine() {
			continue
		}
		if before(other, entry) {
			ahead++
		}
	}
	return Ahead{QueueAhead: ahead, EstimatedWaitMinutes: ahead * avgSessionMinutes}
}

func before(a, b *model.QueueEntry) bool {
	if a.Position != b.Position {
		return a.Position < b.Position
	}
	if !a.JoinedAt.Equal(b.JoinedAt) {
		return a.JoinedAt.Before(b.JoinedAt)
	}
	return a.QueueNumber < b.QueueNumber
}

// sortLine orders entries the way the line is served.
func sortLine(entries []model.QueueEntry) {
	sort.SliceStable(entries, func(i, j int) bool { return before(&entries[i], &entries[j]) })
}
