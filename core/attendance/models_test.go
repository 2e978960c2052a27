package attendance

import (
	"testing"
	"time"

	"github.com/trezcool/mahudhurio/core"
)

func validSubmission() NewSubmission {
	return NewSubmission{
		TeacherID: "t1",
		SectionID: "s1",
		SubjectID: "sub1",
		Date:      time.Date(2026, time.March, 9, 14, 30, 0, 0, time.UTC),
		Entries: []SubmissionEntry{
			{StudentID: "st1", StatusID: "present"},
		},
	}
}

func TestNewSubmission_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(ns *NewSubmission)
		wantErr bool
	}{
		{name: "valid", mutate: func(ns *NewSubmission) {}},
		{name: "valid without entries", mutate: func(ns *NewSubmission) { ns.Entries = nil }},
		{name: "valid type", mutate: func(ns *NewSubmission) { ns.Type = SessionTypeMakeup }},
		{name: "type is lowered", mutate: func(ns *NewSubmission) { ns.Type = "  REMOTE " }},
		{name: "valid method", mutate: func(ns *NewSubmission) { ns.Entries[0].Method = MethodQRScan }},
		{name: "missing teacher", mutate: func(ns *NewSubmission) { ns.TeacherID = " " }, wantErr: true},
		{name: "missing section", mutate: func(ns *NewSubmission) { ns.SectionID = "" }, wantErr: true},
		{name: "missing subject", mutate: func(ns *NewSubmission) { ns.SubjectID = "" }, wantErr: true},
		{name: "missing date", mutate: func(ns *NewSubmission) { ns.Date = time.Time{} }, wantErr: true},
		{name: "unknown type", mutate: func(ns *NewSubmission) { ns.Type = "siesta" }, wantErr: true},
		{name: "unknown method", mutate: func(ns *NewSubmission) { ns.Entries[0].Method = "telepathy" }, wantErr: true},
		{name: "entry missing student", mutate: func(ns *NewSubmission) { ns.Entries[0].StudentID = "" }, wantErr: true},
		{name: "entry missing status", mutate: func(ns *NewSubmission) { ns.Entries[0].StatusID = "" }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ns := validSubmission()
			tt.mutate(&ns)
			err := ns.Validate()
			if tt.wantErr {
				if _, ok := err.(*core.ValidationError); !ok {
					t.Errorf("Validate() error = %v, want *core.ValidationError", err)
				}
				return
			}
			if err != nil {
				t.Errorf("Validate() unexpected error = %v", err)
			}
		})
	}
}

func TestNewSubmission_Validate_normalization(t *testing.T) {
	ns := validSubmission()
	ns.TeacherID = "  t1  "
	ns.Type = " REGULAR "
	ns.Entries[0].StudentID = " st1 "

	if err := ns.Validate(); err != nil {
		t.Fatalf("Validate() failed, %v", err)
	}
	if ns.TeacherID != "t1" {
		t.Errorf("TeacherID = %q, want trimmed", ns.TeacherID)
	}
	if ns.Type != SessionTypeRegular {
		t.Errorf("Type = %q, want %q", ns.Type, SessionTypeRegular)
	}
	if ns.Entries[0].StudentID != "st1" {
		t.Errorf("Entries[0].StudentID = %q, want trimmed", ns.Entries[0].StudentID)
	}

	// the scope is keyed by calendar date, not instant
	want := time.Date(2026, time.March, 9, 0, 0, 0, 0, time.UTC)
	if !ns.Date.Equal(want) {
		t.Errorf("Date = %v, want truncated to %v", ns.Date, want)
	}
}

func TestNewSubmission_Validate_duplicateStudent(t *testing.T) {
	ns := validSubmission()
	ns.Entries = append(ns.Entries, SubmissionEntry{StudentID: "st1", StatusID: "absent"})

	if err := ns.Validate(); err != ErrDuplicateEntry {
		t.Errorf("Validate() error = %v, want %v", err, ErrDuplicateEntry)
	}
}
