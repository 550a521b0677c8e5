package knowledge

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChunkIDIsDeterministicPerGeneration(t *testing.T) {
	a := ChunkID("https://school.example.com/fees", 42, 0)
	b := ChunkID("https://school.example.com/fees", 42, 0)
	require.Equal(t, a, b)

	require.NotEqual(t, a, ChunkID("https://school.example.com/fees", 43, 0))
	require.NotEqual(t, a, ChunkID("https://school.example.com/fees", 42, 1))
	require.NotEqual(t, a, ChunkID("https://school.example.com/about", 42, 0))
}

func TestSourceKeySharedAcrossGenerations(t *testing.T) {
	key := SourceKey("https://school.example.com/fees")
	require.Contains(t, ChunkID("https://school.example.com/fees", 1, 0), key)
	require.Contains(t, ChunkID("https://school.example.com/fees", 2, 7), key)
}

func TestScoredChunkExposesChunkFields(t *testing.T) {
	sc := ScoredChunk{
		Chunk: Chunk{
			ID:        "c1",
			SourceURL: "https://school.example.com/fees",
			Title:     "Fees",
			Text:      "Tuition details",
		},
		Score: 0.91,
	}

	require.Equal(t, "c1", sc.ID)
	require.Equal(t, "https://school.example.com/fees", sc.SourceURL)
	require.Equal(t, "Fees", sc.Title)
	require.Equal(t, "Tuition details", sc.Text)

	data, err := json.Marshal(sc)
	require.NoError(t, err)
	require.JSONEq(t, `{"chunk":{"id":"c1","source_url":"https://school.example.com/fees","title":"Fees","text":"Tuition details","position":0,"namespace":"","generation":0,"created_at":"0001-01-01T00:00:00Z"},"score":0.91}`, string(data))
}
