package alerts

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ParseState decodes the alert-state file content. Formats are tried in
// order (a JSON integer array, a JSON object with an "alerts" array
// field, then a comma-separated integer list) and the first successful
// parse wins.
func ParseState(data []byte) ([]int, error) {
	text := strings.TrimSpace(string(data))
	if text == "" {
		return nil, fmt.Errorf("empty alert state")
	}

	var arr []int
	if err := json.Unmarshal([]byte(text), &arr); err == nil {
		return arr, nil
	}

	var obj struct {
		Alerts []int `json:"alerts"`
	}
	if err := json.Unmarshal([]byte(text), &obj); err == nil && obj.Alerts != nil {
		return obj.Alerts, nil
	}

	parts := strings.Split(text, ",")
	vals := make([]int, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("unparsable alert state %q", text)
		}
		vals = append(vals, v)
	}
	return vals, nil
}
