package routing

import (
	"context"
	"testing"

	"github.com/google/uuid"

	queuerepo "chatdesk_backend/internal/queues/repository"
)

func candidateList(loads ...int) []Candidate {
	out := make([]Candidate, 0, len(loads))
	for _, load := range loads {
		out = append(out, Candidate{AdvisorID: uuid.New(), Load: load})
	}
	return out
}

func TestRoundRobinRotatesFairly(t *testing.T) {
	queueID := uuid.New()
	candidates := candidateList(0, 0, 0)
	strategy := ForMode(queuerepo.ModeRoundRobin, NewMemoryCursor())

	counts := make(map[uuid.UUID]int)
	for i := 0; i < 9; i++ {
		advisorID, ok, err := strategy.Pick(context.Background(), queueID, candidates)
		if err != nil {
			t.Fatalf("pick %d: %v", i, err)
		}
		if !ok {
			t.Fatalf("pick %d: expected an assignment", i)
		}
		counts[advisorID]++
	}

	for _, c := range candidates {
		if counts[c.AdvisorID] != 3 {
			t.Fatalf("advisor %s picked %d times, want 3", c.AdvisorID, counts[c.AdvisorID])
		}
	}
}

func TestRoundRobinCursorSurvivesRosterShrink(t *testing.T) {
	queueID := uuid.New()
	cursor := NewMemoryCursor()
	strategy := ForMode(queuerepo.ModeRoundRobin, cursor)
	candidates := candidateList(0, 0, 0)

	for i := 0; i < 4; i++ {
		if _, _, err := strategy.Pick(context.Background(), queueID, candidates); err != nil {
			t.Fatalf("pick: %v", err)
		}
	}

	// Cursor is at 4; with two candidates left the pick wraps to index 0.
	shrunk := candidates[:2]
	advisorID, ok, err := strategy.Pick(context.Background(), queueID, shrunk)
	if err != nil || !ok {
		t.Fatalf("pick after shrink: ok=%v err=%v", ok, err)
	}
	if advisorID != shrunk[0].AdvisorID {
		t.Fatalf("got %s, want wrap to first candidate %s", advisorID, shrunk[0].AdvisorID)
	}
}

func TestRoundRobinEmptyCandidates(t *testing.T) {
	strategy := ForMode(queuerepo.ModeRoundRobin, NewMemoryCursor())
	_, ok, err := strategy.Pick(context.Background(), uuid.New(), nil)
	if err != nil {
		t.Fatalf("pick: %v", err)
	}
	if ok {
		t.Fatal("expected no assignment from an empty candidate list")
	}
}

func TestLeastBusyPicksLowestLoad(t *testing.T) {
	// Advisor A carries two conversations, advisor B none.
	candidates := candidateList(2, 0)
	strategy := ForMode(queuerepo.ModeLeastBusy, nil)

	advisorID, ok, err := strategy.Pick(context.Background(), uuid.New(), candidates)
	if err != nil || !ok {
		t.Fatalf("pick: ok=%v err=%v", ok, err)
	}
	if advisorID != candidates[1].AdvisorID {
		t.Fatalf("got %s, want the idle advisor %s", advisorID, candidates[1].AdvisorID)
	}
}

func TestLeastBusyTieGoesToRosterOrder(t *testing.T) {
	candidates := candidateList(1, 1, 1)
	strategy := ForMode(queuerepo.ModeLeastBusy, nil)

	advisorID, ok, err := strategy.Pick(context.Background(), uuid.New(), candidates)
	if err != nil || !ok {
		t.Fatalf("pick: ok=%v err=%v", ok, err)
	}
	if advisorID != candidates[0].AdvisorID {
		t.Fatalf("got %s, want first roster member %s", advisorID, candidates[0].AdvisorID)
	}
}

func TestManualNeverAssigns(t *testing.T) {
	strategy := ForMode(queuerepo.ModeManual, nil)
	_, ok, err := strategy.Pick(context.Background(), uuid.New(), candidateList(0))
	if err != nil {
		t.Fatalf("pick: %v", err)
	}
	if ok {
		t.Fatal("manual strategy must not auto-assign")
	}
}

func TestForModeUnknownFallsBackToRoundRobin(t *testing.T) {
	strategy := ForMode(queuerepo.DistributionMode("weighted"), NewMemoryCursor())
	if strategy.Name() != "round-robin" {
		t.Fatalf("got %s, want round-robin fallback", strategy.Name())
	}
}
