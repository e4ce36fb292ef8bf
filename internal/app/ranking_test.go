package app_test

import (
	"testing"

	"quiz-room-service/internal/app"
	"quiz-room-service/internal/domain"
)

func TestRankBreaksTiesByJoinOrder(t *testing.T) {
	participants := []domain.Participant{
		{UserID: "late", Score: 10, Seq: 4},
		{UserID: "host", Score: 0, Seq: 1},
		{UserID: "early", Score: 10, Seq: 2},
		{UserID: "top", Score: 30, Seq: 3},
	}

	for i := 0; i < 5; i++ {
		ranked := app.Rank(participants)
		order := []string{"top", "early", "late", "host"}
		for j, userID := range order {
			if ranked[j].UserID != userID || ranked[j].Rank != j+1 {
				t.Fatalf("run %d: expected %s at rank %d, got %+v", i, userID, j+1, ranked)
			}
		}
	}
	if participants[0].Rank != 0 {
		t.Fatalf("expected input untouched")
	}
}
