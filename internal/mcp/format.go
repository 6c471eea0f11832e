package mcp

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/fyrsmithlabs/mcp-server-qdrant/internal/config"
	"github.com/fyrsmithlabs/mcp-server-qdrant/internal/memory"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func noResultsForQuery(query string) string {
	return fmt.Sprintf("No information found for the query '%s'", query)
}

func noResultsForMetadata(key, value string) string {
	return fmt.Sprintf("No information found for metadata %s='%s'", key, value)
}

func remembered(information, collection string) string {
	if collection != "" {
		return fmt.Sprintf("Remembered: %s in collection %s", information, collection)
	}
	return fmt.Sprintf("Remembered: %s", information)
}

// formatEntry renders an entry as
// <entry><content>...</content><metadata>{...}</metadata></entry>.
// Empty metadata renders as an empty element.
func formatEntry(e memory.Entry) (string, error) {
	metadata := ""
	if len(e.Metadata) > 0 {
		data, err := marshalJSON(e.Metadata)
		if err != nil {
			return "", fmt.Errorf("encoding metadata: %w", err)
		}
		metadata = data
	}
	return fmt.Sprintf("<entry><content>%s</content><metadata>%s</metadata></entry>", e.Content, metadata), nil
}

// entryContents renders each entry as its own text content.
func entryContents(entries []memory.Entry, format string) ([]mcp.Content, error) {
	contents := make([]mcp.Content, 0, len(entries))
	for _, e := range entries {
		var text string
		switch format {
		case config.OutputJSON:
			data, err := marshalJSON(e)
			if err != nil {
				return nil, fmt.Errorf("encoding entry: %w", err)
			}
			text = data
		default:
			var err error
			if text, err = formatEntry(e); err != nil {
				return nil, err
			}
		}
		contents = append(contents, &mcp.TextContent{Text: text})
	}
	return contents, nil
}

// marshalJSON encodes v without escaping <, > and &, which are common in
// stored notes.
func marshalJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}
}
