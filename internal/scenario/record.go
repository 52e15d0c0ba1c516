package scenario

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/attendance/attendload/internal/feeder"
)

// Status is the attendance state recorded for an employee on a day.
type Status string

const (
	StatusPresent Status = "PRESENT"
	StatusAbsent  Status = "ABSENT"
	StatusWFH     Status = "WFH"
)

// Valid reports whether s is one of the statuses the service accepts.
func (s Status) Valid() bool {
	switch s {
	case StatusPresent, StatusAbsent, StatusWFH:
		return true
	}
	return false
}

const dateLayout = "2006-01-02"

// AttendanceRecord is the payload of POST /api/attendance.
type AttendanceRecord struct {
	EmployeeID int64  `json:"employeeId"`
	Date       string `json:"date"`
	Status     Status `json:"status"`
}

// DefaultRecord is posted by every iteration unless a feeder is configured.
var DefaultRecord = AttendanceRecord{EmployeeID: 1, Date: "2024-03-30", Status: StatusPresent}

func (r AttendanceRecord) Validate() error {
	if r.EmployeeID <= 0 {
		return fmt.Errorf("employeeId must be > 0, got %d", r.EmployeeID)
	}
	if _, err := time.Parse(dateLayout, r.Date); err != nil {
		return fmt.Errorf("date %q is not YYYY-MM-DD", r.Date)
	}
	if !r.Status.Valid() {
		return fmt.Errorf("status %q is not one of PRESENT, ABSENT, WFH", r.Status)
	}
	return nil
}

// RecordFromFeeder converts a feeder row with employeeId, date and status
// columns into a validated record. Status is matched case-insensitively.
func RecordFromFeeder(rec feeder.Record) (AttendanceRecord, error) {
	rawID, ok := rec["employeeId"]
	if !ok {
		return AttendanceRecord{}, errors.New("missing employeeId column")
	}
	id, err := strconv.ParseInt(strings.TrimSpace(rawID), 10, 64)
	if err != nil {
		return AttendanceRecord{}, fmt.Errorf("employeeId %q: %w", rawID, err)
	}
	out := AttendanceRecord{
		EmployeeID: id,
		Date:       strings.TrimSpace(rec["date"]),
		Status:     Status(strings.ToUpper(strings.TrimSpace(rec["status"]))),
	}
	if err := out.Validate(); err != nil {
		return AttendanceRecord{}, err
	}
	return out, nil
}

// RecordSource yields the record each iteration posts.
type RecordSource interface {
	Next(ctx context.Context) (AttendanceRecord, error)
}

type fixedSource struct {
	rec AttendanceRecord
}

// Fixed returns a source that always yields rec.
func Fixed(rec AttendanceRecord) RecordSource {
	return fixedSource{rec: rec}
}

func (s fixedSource) Next(ctx context.Context) (AttendanceRecord, error) {
	return s.rec, nil
}

type feederSource struct {
	f feeder.Feeder
}

// FromFeeder returns a source reading records from f. Every row is validated
// up front by cycling once through the dataset, so f must rewind.
func FromFeeder(ctx context.Context, f feeder.Feeder) (RecordSource, error) {
	for i := 0; i < f.Len(); i++ {
		row, err := f.Next(ctx)
		if err != nil {
			return nil, fmt.Errorf("feeder row %d: %w", i+1, err)
		}
		if _, err := RecordFromFeeder(row); err != nil {
			return nil, fmt.Errorf("feeder row %d: %w", i+1, err)
		}
	}
	return &feederSource{f: f}, nil
}

func (s *feederSource) Next(ctx context.Context) (AttendanceRecord, error) {
	row, err := s.f.Next(ctx)
	if err != nil {
		return AttendanceRecord{}, err
	}
	return RecordFromFeeder(row)
}
