package handlers

import "time"

type parsedTime struct{ t time.Time }

func parseTimestamp(s string) (*parsedTime, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, err
	}
	return &parsedTime{t: t}, nil
}
