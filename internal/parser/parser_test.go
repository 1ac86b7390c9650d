package parser

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParse(t *testing.T) {
	testCases := []struct {
		name          string
		input         string
		expectedCards int
		expectedFront string
		expectedBack  string
		expectedCat   string
		expectedTags  []string
	}{
		{
			name:          "Simple Q&A",
			input:         "Q: こんにちは\nA: Hello",
			expectedCards: 1,
			expectedFront: "こんにちは",
			expectedBack:  "Hello",
		},
		{
			name:          "Q, A and C",
			input:         "Q: ありがとう\nA: Thank you\nC: greetings",
			expectedCards: 1,
			expectedFront: "ありがとう",
			expectedBack:  "Thank you",
			expectedCat:   "greetings",
		},
		{
			name: "Multiline Answer",
			input: `
Q: Which particles mark the topic and subject?
A: は
が

`,
			expectedCards: 1,
			expectedFront: "Which particles mark the topic and subject?",
			expectedBack:  "は\nが",
		},
		{
			name:          "Tags",
			input:         "Q: 食べる\nA: to eat\nT: verbs, ichidan ,, n5",
			expectedCards: 1,
			expectedFront: "食べる",
			expectedBack:  "to eat",
			expectedTags:  []string{"verbs", "ichidan", "n5"},
		},
		{
			name: "Two Cards",
			input: `
Q: 一
A: one

Q: 二
A: two
`,
			expectedCards: 2,
		},
		{
			name:          "Separator ends a card",
			input:         "Q: 三\nA: three\n---\nstray text\nQ: 四\nA: four",
			expectedCards: 2,
		},
		{
			name:          "No cards, just text",
			input:         "This is a file with no questions.\nA: an orphan answer",
			expectedCards: 0,
		},
		{
			name:          "Prefixes with no space",
			input:         "Q:Question\nA:Answer",
			expectedCards: 1,
			expectedFront: "Question",
			expectedBack:  "Answer",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cards, err := Parse(strings.NewReader(tc.input))
			if err != nil {
				t.Fatalf("Parse() returned an unexpected error: %v", err)
			}

			if len(cards) != tc.expectedCards {
				t.Fatalf("Expected %d cards, but got %d", tc.expectedCards, len(cards))
			}

			if tc.expectedCards == 1 {
				card := cards[0]
				if card.Front != tc.expectedFront {
					t.Errorf("Expected Front to be '%s', but got '%s'", tc.expectedFront, card.Front)
				}
				if card.Back != tc.expectedBack {
					t.Errorf("Expected Back to be '%s', but got '%s'", tc.expectedBack, card.Back)
				}
				if card.Category != tc.expectedCat {
					t.Errorf("Expected Category to be '%s', but got '%s'", tc.expectedCat, card.Category)
				}
				if strings.Join(card.Tags, "|") != strings.Join(tc.expectedTags, "|") {
					t.Errorf("Expected Tags %v, but got %v", tc.expectedTags, card.Tags)
				}
			}
		})
	}
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kana.md")
	if err := os.WriteFile(path, []byte("# Kana\n\nQ: あ\nA: a\n\nQ: い\nA: i\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cards, err := ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if len(cards) != 2 || cards[1].Front != "い" || cards[1].Back != "i" {
		t.Errorf("Expected two kana cards, got %+v", cards)
	}

	if _, err := ParseFile(filepath.Join(t.TempDir(), "missing.md")); err == nil {
		t.Error("Expected an error for a missing file")
	}
}
