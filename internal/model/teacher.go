package model

import (
    "encoding/json"
    "fmt"
    "strings"
    "time"
)

// Teacher is a member of staff whose weekly timeslots can be booked.
// Teachers are created by administrators and cannot be deleted while any of
// their timeslots carries a confirmed reservation.
//
// Fields:
//  ID        – primary key identifier.
//  Name      – display name shown in the slot catalog.
//  CreatedAt – creation timestamp.
//  UpdatedAt – last update timestamp.
type Teacher struct {
    ID        uint64    `json:"id"`         // teachers.id
    Name      string    `json:"name"`       // teachers.name
    CreatedAt time.Time `json:"created_at"` // teachers.created_at
    UpdatedAt time.Time `json:"updated_at"` // teachers.updated_at
}

// Weekday is the day of the week a timeslot recurs on.  It is stored as a
// TINYINT with Sunday = 0 and serialised to JSON by name.
type Weekday uint8

const (
    Sunday Weekday = iota
    Monday
    Tuesday
    Wednesday
    Thursday
    Friday
    Saturday
)

var weekdayNames = [...]string{"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday"}

// Valid reports whether w is one of the seven known days.
func (w Weekday) Valid() bool { return int(w) < len(weekdayNames) }

func (w Weekday) String() string {
    if !w.Valid() {
        return fmt.Sprintf("weekday(%d)", uint8(w))
    }
    return weekdayNames[w]
}

// ParseWeekday accepts a day name ("monday", "Mon") in any case.
func ParseWeekday(s string) (Weekday, error) {
    v := strings.ToLower(strings.TrimSpace(s))
    for i, name := range weekdayNames {
        if v == name || (len(v) == 3 && strings.HasPrefix(name, v)) {
            return Weekday(i), nil
        }
    }
    return 0, fmt.Errorf("unknown weekday %q", s)
}

func (w Weekday) MarshalJSON() ([]byte, error) {
    if !w.Valid() {
        return nil, fmt.Errorf("invalid weekday %d", uint8(w))
    }
    return json.Marshal(w.String())
}

func (w *Weekday) UnmarshalJSON(b []byte) error {
    var s string
    if err := json.Unmarshal(b, &s); err != nil {
        return fmt.Errorf("weekday must be a string: %w", err)
    }
    d, err := ParseWeekday(s)
    if err != nil {
        return err
    }
    *w = d
    return nil
}

// Timeslot is the bookable unit: one teacher on one weekday at one time of
// day.  It has no capacity column; capacity is one and is derived from the
// reservation ledger.
//
// Fields:
//  ID        – primary key identifier.
//  TeacherID – owning teacher.
//  Weekday   – day of the week the slot recurs on.
//  StartTime – time of day formatted HH:MM.
type Timeslot struct {
    ID        uint64    `json:"id"`         // timeslots.id
    TeacherID uint64    `json:"teacher_id"` // timeslots.teacher_id
    Weekday   Weekday   `json:"weekday"`    // timeslots.weekday
    StartTime string    `json:"time"`       // timeslots.start_time
    CreatedAt time.Time `json:"created_at"` // timeslots.created_at
    UpdatedAt time.Time `json:"updated_at"` // timeslots.updated_at
}

// ParseClock normalises a time of day to HH:MM.  Both "9:30" and the
// "09:30:00" form returned by MySQL TIME columns are accepted.
func ParseClock(s string) (string, error) {
    s = strings.TrimSpace(s)
    for _, layout := range []string{"15:04:05", "15:04"} {
        if t, err := time.Parse(layout, s); err == nil {
            return t.Format("15:04"), nil
        }
    }
    return "", fmt.Errorf("invalid time of day %q", s)
}

// Describe renders a slot for humans, e.g. "Ana, monday 09:30".
func Describe(teacherName string, w Weekday, clock string) string {
    return fmt.Sprintf("%s, %s %s", teacherName, w, clock)
}
