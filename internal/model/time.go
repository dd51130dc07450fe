package model

import (
	"fmt"
	"time"
)

// LocalTime 以 ISO-8601 格式 "YYYY-MM-DDTHH:MM:SS" 序列化时间。
type LocalTime time.Time

const timeFormat = "2006-01-02T15:04:05"

// MarshalJSON implements the json.Marshaler interface.
func (t LocalTime) MarshalJSON() ([]byte, error) {
	formatted := fmt.Sprintf("\"%s\"", time.Time(t).Format(timeFormat))
	return []byte(formatted), nil
}

// UnmarshalJSON implements the json.Unmarshaler interface.
func (t *LocalTime) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	parsed, err := time.Parse(`"`+timeFormat+`"`, string(data))
	if err != nil {
		return err
	}
	*t = LocalTime(parsed)
	return nil
}
