package scanning

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

var dateFormats = []string{
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"02-01-2006",
	"Jan 2, 2006",
}

// stripCodeFence removes a surrounding markdown code block if the model added one
func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

// parseReceiptJSON parses the model response. Dates that cannot be read or
// lie after now are cleared so the user fills them in when confirming.
func parseReceiptJSON(text string, now time.Time) (*ReceiptData, error) {
	text = stripCodeFence(text)

	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return nil, fmt.Errorf("no JSON object found in response")
	}
	endIdx := strings.LastIndex(text, "}")
	if endIdx < startIdx {
		return nil, fmt.Errorf("invalid JSON object in response")
	}
	text = text[startIdx : endIdx+1]

	var data ReceiptData
	if err := json.Unmarshal([]byte(text), &data); err != nil {
		return nil, fmt.Errorf("unmarshaling json: %w", err)
	}

	data.Date = normalizeDate(data.Date, now)
	data.LocationName = strings.TrimSpace(data.LocationName)
	data.Address = strings.TrimSpace(data.Address)
	data.Items = strings.TrimSpace(data.Items)
	if data.Amount < 0 {
		data.Amount = 0
	}

	return &data, nil
}

func normalizeDate(raw string, now time.Time) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	for _, format := range dateFormats {
		d, err := time.Parse(format, raw)
		if err != nil {
			continue
		}
		if d.After(now) {
			return ""
		}
		return d.Format("2006-01-02")
	}
	return ""
}
