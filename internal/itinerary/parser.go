package itinerary

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"itinerary-planner/internal/models"
)

type document struct {
	Itinerary *models.Itinerary `json:"itinerary"`
}

// Parse decodes provider output into an itinerary. Day entries are not interpreted; they are kept
// byte for byte so fields beyond day/theme/activities survive into the stored record.
// Every failure is a *models.ParseError holding rawText.
func Parse(rawText string) (models.Itinerary, error) {
	text := strings.TrimSpace(rawText)
	if text == "" {
		return nil, &models.ParseError{Raw: rawText, Err: errors.New("empty content")}
	}
	if strings.HasPrefix(text, "```") {
		text = stripCodeFence(text)
	}

	var doc document
	dec := json.NewDecoder(bytes.NewReader([]byte(text)))
	if err := dec.Decode(&doc); err != nil {
		return nil, &models.ParseError{Raw: rawText, Err: fmt.Errorf("decode json: %w", err)}
	}
	if dec.More() {
		return nil, &models.ParseError{Raw: rawText, Err: errors.New("trailing data after json document")}
	}
	if doc.Itinerary == nil {
		return nil, &models.ParseError{Raw: rawText, Err: errors.New("missing itinerary field")}
	}
	if len(*doc.Itinerary) == 0 {
		return nil, &models.ParseError{Raw: rawText, Err: errors.New("itinerary is empty")}
	}
	return *doc.Itinerary, nil
}

func stripCodeFence(text string) string {
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimPrefix(text, "json")
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}
