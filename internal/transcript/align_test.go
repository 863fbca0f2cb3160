package transcript

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlign_EmptyInputs(t *testing.T) {
	turns := []SpeakerTurn{{Start: 0, End: 1, Speaker: "A"}}
	words := []Word{{Text: "Hi", Start: 0, End: 0.4}}

	got := Align(nil, turns)
	require.NotNil(t, got)
	assert.Empty(t, got)

	got = Align(words, nil)
	require.NotNil(t, got)
	assert.Empty(t, got)
}

func TestAlign_InclusiveBoundaries(t *testing.T) {
	turns := []SpeakerTurn{{Start: 1.0, End: 2.0, Speaker: "A"}}

	tests := []struct {
		name string
		word Word
		want string
	}{
		{"midpoint on start", Word{Text: "a", Start: 0.8, End: 1.2}, "A"},
		{"midpoint on end", Word{Text: "b", Start: 1.8, End: 2.2}, "A"},
		{"midpoint inside", Word{Text: "c", Start: 1.2, End: 1.6}, "A"},
		{"midpoint before", Word{Text: "d", Start: 0.2, End: 0.6}, Unknown},
		{"midpoint after", Word{Text: "e", Start: 2.2, End: 2.6}, Unknown},
		{"zero length word on boundary", Word{Text: "f", Start: 2.0, End: 2.0}, "A"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Align([]Word{tt.word}, turns)
			require.Len(t, got, 1)
			assert.Equal(t, tt.want, got[0].Speaker)
			assert.Equal(t, tt.word, got[0].Word)
		})
	}
}

func TestAlign_OverlapTieBreak(t *testing.T) {
	word := []Word{{Text: "x", Start: 1.4, End: 1.6}}

	tests := []struct {
		name  string
		turns []SpeakerTurn
		want  string
	}{
		{
			name: "earliest start wins",
			turns: []SpeakerTurn{
				{Start: 1.0, End: 3.0, Speaker: "B"},
				{Start: 0.5, End: 2.0, Speaker: "A"},
			},
			want: "A",
		},
		{
			name: "same start, earliest end wins",
			turns: []SpeakerTurn{
				{Start: 1.0, End: 3.0, Speaker: "A"},
				{Start: 1.0, End: 2.0, Speaker: "B"},
			},
			want: "B",
		},
		{
			name: "identical interval, smallest label wins",
			turns: []SpeakerTurn{
				{Start: 1.0, End: 2.0, Speaker: "SPEAKER_01"},
				{Start: 1.0, End: 2.0, Speaker: "SPEAKER_00"},
			},
			want: "SPEAKER_00",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Align(word, tt.turns)
			require.Len(t, got, 1)
			assert.Equal(t, tt.want, got[0].Speaker)

			reversed := make([]SpeakerTurn, len(tt.turns))
			for i, turn := range tt.turns {
				reversed[len(tt.turns)-1-i] = turn
			}
			got = Align(word, reversed)
			assert.Equal(t, tt.want, got[0].Speaker, "result must not depend on turn order")
		})
	}
}

func TestAlign_DoesNotMutateTurns(t *testing.T) {
	turns := []SpeakerTurn{
		{Start: 5, End: 6, Speaker: "B"},
		{Start: 0, End: 1, Speaker: "A"},
	}
	Align([]Word{{Text: "x", Start: 0.1, End: 0.2}}, turns)
	assert.Equal(t, "B", turns[0].Speaker)
}

func TestAlign_PreservesWordOrder(t *testing.T) {
	turns := []SpeakerTurn{
		{Start: 0, End: 1, Speaker: "A"},
		{Start: 1, End: 2, Speaker: "B"},
	}
	words := []Word{
		{Text: "one", Start: 1.2, End: 1.4},
		{Text: "two", Start: 0.1, End: 0.3},
	}
	got := Align(words, turns)
	require.Len(t, got, 2)
	assert.Equal(t, "one", got[0].Text)
	assert.Equal(t, "B", got[0].Speaker)
	assert.Equal(t, "two", got[1].Text)
	assert.Equal(t, "A", got[1].Speaker)
}

func TestDocumentSpeakers(t *testing.T) {
	d := Document{Chunks: []SpeakerChunk{
		{Speaker: "B"}, {Speaker: "A"}, {Speaker: "B"}, {Speaker: Unknown},
	}}
	assert.Equal(t, []string{"B", "A", Unknown}, d.Speakers())
	assert.Equal(t, 3, (&Document{Text: "one two  three"}).WordCount())
}
