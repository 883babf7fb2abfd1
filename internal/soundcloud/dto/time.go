package dto

import (
	"encoding/json"
	"fmt"
	"time"
)

// SoundCloudTime handles both timestamp formats the API has used.
type SoundCloudTime struct {
	time.Time
}

// UnmarshalJSON parses "2013/03/22 21:42:19 +0000" and RFC 3339 timestamps.
// null and "" leave the zero time.
func (st *SoundCloudTime) UnmarshalJSON(data []byte) error {
	var s *string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	if s == nil || *s == "" {
		st.Time = time.Time{}
		return nil
	}

	formats := []string{
		"2006/01/02 15:04:05 -0700", // "2013/03/22 21:42:19 +0000"
		time.RFC3339,                // "2023-01-01T00:00:00Z"
		"2006-01-02 15:04:05",
	}

	for _, format := range formats {
		if t, err := time.Parse(format, *s); err == nil {
			st.Time = t.UTC()
			return nil
		}
	}

	return fmt.Errorf("unable to parse date: %s", *s)
}

// MarshalJSON writes RFC 3339.
func (st SoundCloudTime) MarshalJSON() ([]byte, error) {
	if st.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(st.Format(time.RFC3339))
}
