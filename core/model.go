package core

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventTimeLayout is the only accepted start_time / end_time format.
const EventTimeLayout = "2006-01-02 15:04:05"

// Event is stored and served as-is; every field is a string.
type Event struct {
	Id          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
}

// EventRequest is the create payload. Pointers tell absent fields from empty ones;
// Id keeps the raw JSON so both 7 and "7" are accepted.
type EventRequest struct {
	Id          json.RawMessage `json:"id,omitempty"`
	Title       *string         `json:"title" validate:"required"`
	Description *string         `json:"description"`
	StartTime   *string         `json:"start_time" validate:"required"`
	EndTime     *string         `json:"end_time" validate:"required"`
}

// EventPatch is the update payload; nil fields are left untouched.
type EventPatch struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	StartTime   *string `json:"start_time"`
	EndTime     *string `json:"end_time"`
}

// ParseEventTime rejects values longer or shorter than EventTimeLayout,
// fractional seconds included.
func ParseEventTime(value string) (time.Time, error) {
	if len(value) != len(EventTimeLayout) {
		return time.Time{}, fmt.Errorf("parsing time %q: expected layout %q", value, EventTimeLayout)
	}

	return time.Parse(EventTimeLayout, value)
}
