package bet

import (
	"testing"

	"github.com/radieske/dog-race-platform/internal/models"
)

func TestWinStrategy(t *testing.T) {
	s, ok := StrategyFor(models.BetTypeWin)
	if !ok {
		t.Fatal("win strategy not registered")
	}

	sel := models.Selection{Number: 3}
	if !s.IsWinner(sel, []int{3, 1, 4, 2, 6, 5}) {
		t.Fatal("first place must win")
	}
	if s.IsWinner(sel, []int{5, 1, 4, 2, 6, 3}) {
		t.Fatal("last place must lose")
	}
	if s.IsWinner(sel, nil) {
		t.Fatal("no placements must not win")
	}

	if got := s.PotentialPayout(d("20"), DefaultLimits()); !got.Equal(d("40")) {
		t.Fatalf("payout: %s", got)
	}

	r := &models.Race{ID: 1, Participants: []models.Participant{{Number: 1}, {Number: 2}}}
	if err := s.Validate(models.Selection{Number: 2}, r); err != nil {
		t.Fatalf("valid selection: %v", err)
	}
	if err := s.Validate(models.Selection{Number: 3}, r); err == nil {
		t.Fatal("expected unknown participant")
	}
}

func TestStrategyFor_Unknown(t *testing.T) {
	if _, ok := StrategyFor("place"); ok {
		t.Fatal("unexpected strategy for unregistered type")
	}
}
