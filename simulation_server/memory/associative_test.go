package memory_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/fernglen/townsim/simulation_server/memory"
)

func TestRetrieveRelevantEventsReturnsEvents(t *testing.T) {
	store := memory.NewAssociative(map[string][]float64{}, map[string]int{}, map[string]int{})

	now := time.Now()
	expiry := now.Add(30 * 24 * time.Hour)

	eventNode := store.AddEvent(
		memory.SPO{Subject: "Alice", Predicate: "is", Object: "cooking"},
		"Alice is cooking",
		[]string{"cooking"},
		5, 0, nil, now, &expiry, "event-embed-1", []float64{1, 0},
	)
	thoughtNode := store.AddThought(
		memory.SPO{Subject: "Alice", Predicate: "is", Object: "cooking"},
		"Alice thinks about cooking",
		[]string{"cooking"},
		5, 0, nil, now, &expiry, "thought-embed-1", []float64{1, 0},
	)

	events := store.RetrieveRelevantEvents("Alice", "is", "cooking")
	assert.Contains(t, events, eventNode.Id, "expected event node in retrieved events")
	assert.NotContains(t, events, thoughtNode.Id, "expected thought node NOT to be in retrieved events")

	thoughts := store.RetrieveRelevantThoughts("Alice", "is", "cooking")
	assert.Contains(t, thoughts, thoughtNode.Id, "expected thought node in retrieved thoughts")
	assert.NotContains(t, thoughts, eventNode.Id, "expected event node NOT to be in retrieved thoughts")
}

// TestGetLatestEventIdsOrdersMostRecentFirst pins the newest-first order of
// GetLatestEventIds (AddEvent prepends each new node id).
func TestGetLatestEventIdsOrdersMostRecentFirst(t *testing.T) {
	store := memory.NewAssociative(map[string][]float64{}, map[string]int{}, map[string]int{})

	now := time.Now()
	var ids []memory.NodeId
	for i, action := range []string{"waking up", "eating breakfast", "leaving home"} {
		node := store.AddEvent(
			memory.SPO{Subject: "Alice", Predicate: "is", Object: action},
			"Alice is "+action,
			[]string{action},
			5, 0, nil, now.Add(time.Duration(i)*time.Minute), nil, action, []float64{1, 0},
		)
		ids = append(ids, node.Id)
	}

	latest := store.GetLatestEventIds()

	assert.Len(t, latest, 3)
	assert.Equal(t, []memory.NodeId{ids[2], ids[1], ids[0]}, latest, "expected most recently added event first")
}
