package formr

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
)

// timeLayout is formr's local timestamp format.
const timeLayout = "2006-01-02 15:04:05"

// ResultRow is one survey result: the platform's bookkeeping timestamps plus
// the item answers keyed by item name. Created is when the survey instance
// was generated for the session; Ended when it was submitted; Expired when
// the platform closed it unanswered.
type ResultRow struct {
	Session string
	Created *time.Time
	Ended   *time.Time
	Expired *time.Time
	Answers map[string]string
}

// Answer returns the named item answer, empty when absent or unanswered.
func (r ResultRow) Answer(item string) string {
	return r.Answers[item]
}

// reserved lists the bookkeeping columns formr prepends to every export;
// everything else is an item answer.
var reserved = map[string]bool{
	"session":  true,
	"created":  true,
	"ended":    true,
	"expired":  true,
	"modified": true,
}

// parseResults decodes a formr results payload. Timestamps are parsed in
// the given location; null or empty values stay nil. Non-string answer
// values are stringified, since formr exports mix numeric and string items.
func parseResults(body []byte, loc *time.Location) ([]ResultRow, error) {
	var raw []map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, eris.Wrap(err, "decode results array")
	}

	rows := make([]ResultRow, 0, len(raw))
	for i, m := range raw {
		row := ResultRow{Answers: make(map[string]string)}

		if s, ok := m["session"].(string); ok {
			row.Session = s
		}

		var err error
		if row.Created, err = parseTime(m["created"], loc); err != nil {
			return nil, eris.Wrapf(err, "row %d: created", i)
		}
		if row.Ended, err = parseTime(m["ended"], loc); err != nil {
			return nil, eris.Wrapf(err, "row %d: ended", i)
		}
		if row.Expired, err = parseTime(m["expired"], loc); err != nil {
			return nil, eris.Wrapf(err, "row %d: expired", i)
		}

		for key, value := range m {
			if reserved[key] || value == nil {
				continue
			}
			row.Answers[key] = stringify(value)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func parseTime(v any, loc *time.Location) (*time.Time, error) {
	s, ok := v.(string)
	if !ok || s == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation(timeLayout, s, loc)
	if err != nil {
		return nil, eris.Wrapf(err, "parse timestamp %q", s)
	}
	return &t, nil
}

func stringify(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		// JSON numbers: keep integers clean.
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%g", val)
	case bool:
		if val {
			return "1"
		}
		return "0"
	default:
		return fmt.Sprintf("%v", val)
	}
}
