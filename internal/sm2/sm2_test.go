package sm2

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/conorfennell/kanadeck/internal/domain"
)

var t0 = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

func newCard() domain.Card {
	return domain.Card{
		ID:       "c1",
		Front:    "こんにちは",
		Back:     "Hello",
		Easiness: InitialEasiness,
		DueDate:  t0,
	}
}

func TestNextEasiness(t *testing.T) {
	testCases := []struct {
		quality  Quality
		expected float64
	}{
		{5, 2.6},
		{4, 2.5},
		{3, 2.36},
		{2, 2.18},
		{1, 1.96},
		{0, 1.7},
	}

	for _, tc := range testCases {
		got := NextEasiness(InitialEasiness, tc.quality)
		if math.Abs(got-tc.expected) > 1e-9 {
			t.Errorf("Expected easiness %.2f for quality %d, but got %.4f", tc.expected, tc.quality, got)
		}
	}
}

func TestEasinessFloor(t *testing.T) {
	for q := MinQuality; q <= MaxQuality; q++ {
		for _, prior := range []float64{1.3, 1.31, 1.5, 2.5, 4.0} {
			got := NextEasiness(prior, q)
			if got < MinEasiness {
				t.Errorf("Easiness dropped below floor: prior %.2f, quality %d, got %.4f", prior, q, got)
			}
		}
	}
}

func TestReviewFailureResets(t *testing.T) {
	for _, q := range []Quality{0, 1, 2} {
		card := newCard()
		card.Repetitions = 7
		card.Interval = 120
		card.Easiness = 2.9

		got, err := Review(card, q, t0)
		if err != nil {
			t.Fatalf("Review returned error: %v", err)
		}
		if got.Repetitions != 0 || got.Interval != 1 {
			t.Errorf("Expected repetitions=0 interval=1 after quality %d, but got %d/%d", q, got.Repetitions, got.Interval)
		}
	}
}

func TestReviewIntervalProgression(t *testing.T) {
	card := newCard()
	var err error

	card, err = Review(card, 4, t0)
	if err != nil {
		t.Fatal(err)
	}
	if card.Interval != 1 {
		t.Errorf("Expected first interval 1, but got %d", card.Interval)
	}

	card, err = Review(card, 3, t0)
	if err != nil {
		t.Fatal(err)
	}
	if card.Interval != 6 {
		t.Errorf("Expected second interval 6, but got %d", card.Interval)
	}

	want := int(math.Round(6 * card.Easiness))
	card, err = Review(card, 5, t0)
	if err != nil {
		t.Fatal(err)
	}
	if card.Interval != want {
		t.Errorf("Expected third interval %d, but got %d", want, card.Interval)
	}
}

func TestReviewScenario(t *testing.T) {
	card := newCard()

	t.Run("first perfect review", func(t *testing.T) {
		var err error
		card, err = Review(card, 5, t0)
		if err != nil {
			t.Fatal(err)
		}
		if card.Repetitions != 1 || card.Interval != 1 || math.Abs(card.Easiness-2.6) > 1e-9 {
			t.Errorf("Expected 1/1/2.6, but got %d/%d/%.4f", card.Repetitions, card.Interval, card.Easiness)
		}
	})

	t.Run("second perfect review", func(t *testing.T) {
		var err error
		card, err = Review(card, 5, t0)
		if err != nil {
			t.Fatal(err)
		}
		if card.Repetitions != 2 || card.Interval != 6 || math.Abs(card.Easiness-2.7) > 1e-9 {
			t.Errorf("Expected 2/6/2.7, but got %d/%d/%.4f", card.Repetitions, card.Interval, card.Easiness)
		}
	})

	t.Run("failed review", func(t *testing.T) {
		before := card.Easiness
		var err error
		card, err = Review(card, 2, t0)
		if err != nil {
			t.Fatal(err)
		}
		if card.Repetitions != 0 || card.Interval != 1 {
			t.Errorf("Expected 0/1, but got %d/%d", card.Repetitions, card.Interval)
		}
		if card.Easiness >= before || card.Easiness < MinEasiness {
			t.Errorf("Expected easiness to drop but stay >= %.1f, got %.4f (was %.4f)", MinEasiness, card.Easiness, before)
		}
	})
}

func TestReviewDueDate(t *testing.T) {
	card := newCard()
	card.Repetitions = 2
	card.Interval = 6

	got, err := Review(card, 4, t0)
	if err != nil {
		t.Fatal(err)
	}
	want := t0.Add(time.Duration(got.Interval) * 24 * time.Hour)
	if !got.DueDate.Equal(want) {
		t.Errorf("Expected due date %v, but got %v", want, got.DueDate)
	}
	if got.LastStudied == nil || !got.LastStudied.Equal(t0) {
		t.Errorf("Expected lastStudied %v, but got %v", t0, got.LastStudied)
	}
}

func TestReviewDoesNotMutateInput(t *testing.T) {
	card := newCard()
	card.Tags = []string{"basic"}
	if _, err := Review(card, 5, t0); err != nil {
		t.Fatal(err)
	}
	if card.Repetitions != 0 || card.LastStudied != nil {
		t.Error("Expected input card to be unchanged")
	}
}

func TestReviewInvalidQuality(t *testing.T) {
	for _, q := range []Quality{-1, 6, 10} {
		card := newCard()
		got, err := Review(card, q, t0)
		if !errors.Is(err, ErrInvalidQuality) {
			t.Errorf("Expected ErrInvalidQuality for %d, but got %v", q, err)
		}
		if got.Easiness != card.Easiness || got.Repetitions != 0 {
			t.Errorf("Expected card untouched for quality %d", q)
		}
	}
}

func TestReset(t *testing.T) {
	card := newCard()
	card.Category = "greetings"
	card.Tags = []string{"basic"}
	for i := 0; i < 5; i++ {
		card, _ = Review(card, 5, t0)
	}

	later := t0.Add(48 * time.Hour)
	got := Reset(card, later)
	if got.Easiness != InitialEasiness || got.Interval != 0 || got.Repetitions != 0 {
		t.Errorf("Expected fresh scheduling state, but got %.2f/%d/%d", got.Easiness, got.Interval, got.Repetitions)
	}
	if !got.DueDate.Equal(later) || got.LastStudied != nil {
		t.Errorf("Expected due=now and no lastStudied, but got %v/%v", got.DueDate, got.LastStudied)
	}
	if got.Front != card.Front || got.Back != card.Back || got.Category != "greetings" || len(got.Tags) != 1 {
		t.Error("Expected content fields to be untouched")
	}
}
