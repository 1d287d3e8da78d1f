package engine

import (
	"errors"
	"testing"
	"time"
)

// TestReplayRatingsMatchesLiveCompletion plays two games live, then replays
// them from a scrambled state and expects the same ratings.
func TestReplayRatingsMatchesLiveCompletion(t *testing.T) {
	ids := []string{"a", "b", "c"}
	rules := DefaultRules()
	players := seatedPlayers(ids...)

	first := finishedGame(t, ids, 2)
	first.ID, first.Date = "g1", testDate
	done1, err := first.Complete(first.Date, players, rules)
	if err != nil {
		t.Fatal(err)
	}

	second := finishedGame(t, []string{"c", "a", "b"}, 3)
	second.ID, second.Date = "g2", testDate.Add(24*time.Hour)
	done2, err := second.Complete(second.Date, done1.Players, rules)
	if err != nil {
		t.Fatal(err)
	}
	live := map[string]Player{}
	for _, p := range done2.Players {
		live[p.ID] = p
	}

	scrambled := seatedPlayers(ids...)
	for i := range scrambled {
		scrambled[i].Rating = 1500
		scrambled[i].Stats.GamesPlayed = 99
	}
	active := newTestGame(t, ids, 2, 0)
	active.ID = "g3"

	gotPlayers, gotGames, err := ReplayRatings(scrambled, []Game{done2.Game, active, done1.Game}, rules)
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range gotPlayers {
		want := live[p.ID]
		if p.Rating != want.Rating || p.Stats != want.Stats || len(p.RatingHistory) != 2 {
			t.Errorf("%s: replay = %d %+v, live = %d %+v", p.ID, p.Rating, p.Stats, want.Rating, want.Stats)
		}
		if p.RatingHistory[0].GameID != "g1" {
			t.Errorf("%s: first history entry = %s, want g1", p.ID, p.RatingHistory[0].GameID)
		}
	}
	if gotGames[1].Status != GameActive {
		t.Error("active game should be untouched")
	}
	if gotGames[0].RatingChanges["a"] != done2.Game.RatingChanges["a"] {
		t.Errorf("g2 changes = %v, want %v", gotGames[0].RatingChanges, done2.Game.RatingChanges)
	}
}

func TestReplayRatingsUnknownPlayer(t *testing.T) {
	g := finishedGame(t, []string{"a", "b"}, 1)
	done, err := g.Complete(testDate, seatedPlayers("a", "b"), DefaultRules())
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := ReplayRatings(seatedPlayers("a"), []Game{done.Game}, DefaultRules()); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
