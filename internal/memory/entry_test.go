package memory

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEntry_Payload(t *testing.T) {
	tests := []struct {
		name  string
		entry Entry
		want  map[string]any
	}{
		{
			name:  "content only",
			entry: Entry{Content: "hello"},
			want:  map[string]any{"content": "hello"},
		},
		{
			name: "metadata flattened",
			entry: Entry{
				Content:  "hello",
				Metadata: map[string]any{"status": "open", "nested": map[string]any{"a": 1}},
			},
			want: map[string]any{
				"content": "hello",
				"status":  "open",
				"nested":  map[string]any{"a": 1},
			},
		},
		{
			name: "content in metadata does not override",
			entry: Entry{
				Content:  "real",
				Metadata: map[string]any{"content": "fake"},
			},
			want: map[string]any{"content": "real"},
		},
		{
			name: "legacy keys rewritten",
			entry: Entry{
				Content: "doc",
				Metadata: map[string]any{
					"docAuthor":          "ana",
					"docSource":          "wiki",
					"wordCount":          120,
					"tokenCountEstimate": "30",
				},
			},
			want: map[string]any{
				"content":              "doc",
				"author":               "ana",
				"source":               "wiki",
				"word_count":           120,
				"token_count_estimate": "30",
			},
		},
		{
			name: "fields win over metadata",
			entry: Entry{
				Content:   "doc",
				Author:    "field author",
				WordCount: 7,
				Metadata:  map[string]any{"author": "meta author", "wordCount": 99},
			},
			want: map[string]any{
				"content":    "doc",
				"author":     "field author",
				"word_count": 7,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.entry.Payload())
		})
	}
}

func TestEntry_PayloadDoesNotMutateMetadata(t *testing.T) {
	meta := map[string]any{"docAuthor": "ana"}
	_ = Entry{Content: "x", Metadata: meta}.Payload()
	assert.Equal(t, map[string]any{"docAuthor": "ana"}, meta)
}

func TestEntryFromPayload(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]any
		want    Entry
	}{
		{
			name:    "empty",
			payload: map[string]any{},
			want:    Entry{Metadata: map[string]any{}},
		},
		{
			name: "canonical keys",
			payload: map[string]any{
				"content":              "hello",
				"source_id":            "s-1",
				"url":                  "https://example.com",
				"title":                "Example",
				"author":               "ana",
				"description":          "desc",
				"source":               "web",
				"published":            "2024-01-01",
				"word_count":           int64(12),
				"token_count_estimate": "3",
			},
			want: Entry{
				Content:            "hello",
				SourceID:           "s-1",
				URL:                "https://example.com",
				Title:              "Example",
				Author:             "ana",
				Description:        "desc",
				Source:             "web",
				Published:          "2024-01-01",
				WordCount:          12,
				TokenCountEstimate: "3",
				Metadata: map[string]any{
					"source_id":            "s-1",
					"url":                  "https://example.com",
					"title":                "Example",
					"author":               "ana",
					"description":          "desc",
					"source":               "web",
					"published":            "2024-01-01",
					"word_count":           int64(12),
					"token_count_estimate": "3",
				},
			},
		},
		{
			name: "legacy keys",
			payload: map[string]any{
				"text":               "old note",
				"docAuthor":          "bo",
				"docSource":          "mail",
				"wordCount":          float64(40),
				"tokenCountEstimate": 10,
			},
			want: Entry{
				Content:            "old note",
				Author:             "bo",
				Source:             "mail",
				WordCount:          40,
				TokenCountEstimate: "10",
				Metadata: map[string]any{
					"docAuthor":          "bo",
					"docSource":          "mail",
					"wordCount":          float64(40),
					"tokenCountEstimate": 10,
				},
			},
		},
		{
			name:    "document key",
			payload: map[string]any{"document": "from document", "tag": "x"},
			want:    Entry{Content: "from document", Metadata: map[string]any{"tag": "x"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EntryFromPayload(tt.payload))
		})
	}
}

func TestIntValue(t *testing.T) {
	tests := []struct {
		in   any
		want int
	}{
		{in: 3, want: 3},
		{in: int64(4), want: 4},
		{in: float64(5), want: 5},
		{in: 5.5, want: 0},
		{in: json.Number("6"), want: 6},
		{in: "7", want: 7},
		{in: "seven", want: 0},
		{in: nil, want: 0},
		{in: true, want: 0},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, intValue(tt.in), "%#v", tt.in)
	}
}

func TestEntry_JSON(t *testing.T) {
	data, err := json.Marshal(Entry{Content: "c", Title: "t", Metadata: map[string]any{"title": "t"}})
	assert.NoError(t, err)
	assert.JSONEq(t, `{"content":"c","title":"t","metadata":{"title":"t"}}`, string(data))
}
