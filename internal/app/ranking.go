package app

import (
	"context"
	"sort"

	"quiz-room-service/internal/domain"
)

// Rank orders participants by score, highest first, and assigns ranks 1..N.
// Ties keep join order. The input is not modified.
func Rank(participants []domain.Participant) []domain.Participant {
	ranked := make([]domain.Participant, len(participants))
	copy(ranked, participants)

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Seq < ranked[j].Seq
	})
	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	return ranked
}

func (s *RoomService) rankRoom(ctx context.Context, code string) ([]domain.Participant, error) {
	roster, err := s.store.Participants(ctx, code)
	if err != nil {
		return nil, err
	}
	standings := Rank(roster)

	ranks := make(map[string]int, len(standings))
	for _, p := range standings {
		ranks[p.UserID] = p.Rank
	}
	if err := s.store.SaveRanks(ctx, code, ranks); err != nil {
		return nil, err
	}
	return standings, nil
}
