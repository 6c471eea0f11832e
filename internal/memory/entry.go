package memory

import (
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"strconv"
)

// Payload keys.
const (
	keyContent            = "content"
	keySourceID           = "source_id"
	keyURL                = "url"
	keyTitle              = "title"
	keyAuthor             = "author"
	keyDescription        = "description"
	keySource             = "source"
	keyPublished          = "published"
	keyWordCount          = "word_count"
	keyTokenCountEstimate = "token_count_estimate"
)

// contentKeys lists the payload keys content is read from, in order.
var contentKeys = []string{keyContent, "text", "document"}

// legacyKeys maps each promoted field to the older keys it may be stored under.
var legacyKeys = map[string][]string{
	keyAuthor:             {"docAuthor"},
	keySource:             {"docSource"},
	keyWordCount:          {"wordCount"},
	keyTokenCountEstimate: {"tokenCountEstimate"},
}

// Entry is a single stored note.
type Entry struct {
	Content string `json:"content"`

	SourceID           string `json:"source_id,omitempty"`
	URL                string `json:"url,omitempty"`
	Title              string `json:"title,omitempty"`
	Author             string `json:"author,omitempty"`
	Description        string `json:"description,omitempty"`
	Source             string `json:"source,omitempty"`
	Published          string `json:"published,omitempty"`
	WordCount          int    `json:"word_count,omitempty"`
	TokenCountEstimate string `json:"token_count_estimate,omitempty"`

	// Metadata holds every payload field except the content, including the
	// promoted ones above.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Payload flattens the entry into a point payload. Promoted fields set on
// the entry win over metadata; legacy keys in metadata are rewritten under
// their canonical names.
func (e Entry) Payload() map[string]any {
	payload := make(map[string]any, len(e.Metadata)+1)
	maps.Copy(payload, e.Metadata)

	for canonical, aliases := range legacyKeys {
		for _, alias := range aliases {
			v, ok := payload[alias]
			if !ok {
				continue
			}
			delete(payload, alias)
			if _, set := payload[canonical]; !set {
				payload[canonical] = v
			}
		}
	}

	setString(payload, keySourceID, e.SourceID)
	setString(payload, keyURL, e.URL)
	setString(payload, keyTitle, e.Title)
	setString(payload, keyAuthor, e.Author)
	setString(payload, keyDescription, e.Description)
	setString(payload, keySource, e.Source)
	setString(payload, keyPublished, e.Published)
	setString(payload, keyTokenCountEstimate, e.TokenCountEstimate)
	if e.WordCount != 0 {
		payload[keyWordCount] = e.WordCount
	}

	payload[keyContent] = e.Content
	return payload
}

func setString(payload map[string]any, key, value string) {
	if value != "" {
		payload[key] = value
	}
}

// EntryFromPayload maps a stored payload back to an Entry. Fields missing
// from the payload are left empty.
func EntryFromPayload(payload map[string]any) Entry {
	var e Entry
	contentKey := ""
	for _, key := range contentKeys {
		if v, ok := payload[key]; ok {
			e.Content = stringValue(v)
			contentKey = key
			break
		}
	}

	e.Metadata = make(map[string]any, len(payload))
	for k, v := range payload {
		if k != contentKey {
			e.Metadata[k] = v
		}
	}

	e.SourceID = stringValue(lookup(e.Metadata, keySourceID))
	e.URL = stringValue(lookup(e.Metadata, keyURL))
	e.Title = stringValue(lookup(e.Metadata, keyTitle))
	e.Author = stringValue(lookup(e.Metadata, keyAuthor))
	e.Description = stringValue(lookup(e.Metadata, keyDescription))
	e.Source = stringValue(lookup(e.Metadata, keySource))
	e.Published = stringValue(lookup(e.Metadata, keyPublished))
	e.WordCount = intValue(lookup(e.Metadata, keyWordCount))
	e.TokenCountEstimate = stringValue(lookup(e.Metadata, keyTokenCountEstimate))
	return e
}

// lookup reads a promoted field under its canonical key, then its legacy keys.
func lookup(m map[string]any, canonical string) any {
	if v, ok := m[canonical]; ok {
		return v
	}
	for _, alias := range legacyKeys[canonical] {
		if v, ok := m[alias]; ok {
			return v
		}
	}
	return nil
}

func stringValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	default:
		return fmt.Sprint(val)
	}
}

func intValue(v any) int {
	switch val := v.(type) {
	case int:
		return val
	case int32:
		return int(val)
	case int64:
		return int(val)
	case float64:
		if val == math.Trunc(val) {
			return int(val)
		}
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return int(i)
		}
	case string:
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return 0
}
