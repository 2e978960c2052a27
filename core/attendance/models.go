package attendance

import (
	"time"

	"github.com/trezcool/mahudhurio/core"
)

// Session types
const (
	SessionTypeRegular = "regular"
	SessionTypeMakeup  = "makeup"
	SessionTypeRemote  = "remote"
)

// Session statuses
const (
	SessionDraft     = "draft"
	SessionCompleted = "completed"
	SessionCancelled = "cancelled"
)

// Marking methods
const (
	MethodManual = "manual"
	MethodQRScan = "qr_scan"
	MethodImport = "import"
)

// Well-known attendance status codes. The enumeration itself is reference
// data seeded by migration; these constants name the seeded codes.
const (
	StatusPresent = "present"
	StatusAbsent  = "absent"
	StatusLate    = "late"
	StatusExcused = "excused"
)

var (
	SessionTypes   = []string{SessionTypeRegular, SessionTypeMakeup, SessionTypeRemote}
	MarkingMethods = []string{MethodManual, MethodQRScan, MethodImport}
)

// Status is one entry of the closed attendance status enumeration.
type Status struct {
	ID   string `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
}

// ScopeKey identifies one attendance-taking unit: a teacher marking a
// section for a subject on a given date. All versions of a session share it.
type ScopeKey struct {
	TeacherID string    `json:"teacher_id"`
	SectionID string    `json:"section_id"`
	SubjectID string    `json:"subject_id"`
	Date      time.Time `json:"date"` // date component only, UTC
}

// Session is one version of a session header. Corrections supersede a
// session by flipping IsCurrent and inserting a higher-version row;
// superseded rows are never mutated.
type Session struct {
	ID          string            `json:"id"`
	TeacherID   string            `json:"teacher_id"`
	SectionID   string            `json:"section_id"`
	SubjectID   string            `json:"subject_id"`
	Date        time.Time         `json:"date"` // UTC
	StartTime   *time.Time        `json:"start_time,omitempty"`
	EndTime     *time.Time        `json:"end_time,omitempty"`
	Type        string            `json:"type"`
	Status      string            `json:"status"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Version     int               `json:"version"`
	IsCurrent   bool              `json:"is_current"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"` // UTC
	CreatedAt   time.Time         `json:"created_at"`             // UTC
}

func (s Session) Scope() ScopeKey {
	return ScopeKey{TeacherID: s.TeacherID, SectionID: s.SectionID, SubjectID: s.SubjectID, Date: s.Date}
}

// Record is one student's status within one session version. A record row is
// exclusively owned by its session row and shares its version.
type Record struct {
	ID          string     `json:"id"`
	SessionID   string     `json:"session_id"`
	StudentID   string     `json:"student_id"`
	StatusID    string     `json:"status_id"`
	Method      string     `json:"method"`
	MarkedBy    string     `json:"marked_by"` // teacher id
	MarkedAt    time.Time  `json:"marked_at"` // UTC
	ArrivalTime *time.Time `json:"arrival_time,omitempty"`
	Verified    bool       `json:"verified"`
	Version     int        `json:"version"`
	IsCurrent   bool       `json:"is_current"`
	Source      string     `json:"source"`
	Remarks     string     `json:"remarks,omitempty"`
}

// RecordDetail is a Record joined with its student's display name, guardian
// email and resolved status for presentation and notifications.
type RecordDetail struct {
	Record
	StudentName   string `json:"student_name"`
	GuardianEmail string `json:"-"`
	StatusCode    string `json:"status_code"`
	StatusName    string `json:"status_name"`
}

// CurrentAttendance is the current session (if any) and its current records.
type CurrentAttendance struct {
	Session Session        `json:"session"`
	Records []RecordDetail `json:"records"`
}

// IsEmpty reports whether no attendance has been taken for the queried scope.
// "No attendance taken" is a valid state, distinct from an error.
func (ca CurrentAttendance) IsEmpty() bool { return ca.Session.ID == "" }

// SessionVersion is one historical version of a session with its record set.
type SessionVersion struct {
	Session Session        `json:"session"`
	Records []RecordDetail `json:"records"`
}

// SubmissionEntry is one student's status in a batch submission.
type SubmissionEntry struct {
	StudentID   string     `json:"student_id" validate:"required"`
	StatusID    string     `json:"status_id" validate:"required"`
	Method      string     `json:"method" validate:"omitempty,markingmethod"`
	ArrivalTime *time.Time `json:"arrival_time"`
	Remarks     string     `json:"remarks"`
}

// NewSubmission contains a full batch attendance submission for one scope.
type NewSubmission struct {
	TeacherID string            `json:"teacher_id" validate:"required"`
	SectionID string            `json:"section_id" validate:"required"`
	SubjectID string            `json:"subject_id" validate:"required"`
	Date      time.Time         `json:"date" validate:"required"`
	Type      string            `json:"type" validate:"omitempty,sessiontype"`
	StartTime *time.Time        `json:"start_time"`
	EndTime   *time.Time        `json:"end_time"`
	Metadata  map[string]string `json:"metadata"`
	Source    string            `json:"source"`
	Entries   []SubmissionEntry `json:"entries" validate:"omitempty,dive"`
}

func (ns *NewSubmission) Scope() ScopeKey {
	return ScopeKey{TeacherID: ns.TeacherID, SectionID: ns.SectionID, SubjectID: ns.SubjectID, Date: ns.Date}
}

func (ns *NewSubmission) Validate() error {
	ns.TeacherID = core.CleanString(ns.TeacherID)
	ns.SectionID = core.CleanString(ns.SectionID)
	ns.SubjectID = core.CleanString(ns.SubjectID)
	ns.Type = core.CleanString(ns.Type, true /* lower */)
	ns.Source = core.CleanString(ns.Source, true /* lower */)
	ns.Date = truncateToDate(ns.Date)
	for i := range ns.Entries {
		ns.Entries[i].StudentID = core.CleanString(ns.Entries[i].StudentID)
		ns.Entries[i].StatusID = core.CleanString(ns.Entries[i].StatusID)
		ns.Entries[i].Method = core.CleanString(ns.Entries[i].Method, true /* lower */)
		ns.Entries[i].Remarks = core.CleanString(ns.Entries[i].Remarks)
	}

	if err := core.Validate.Struct(ns); err != nil {
		return core.TranslateValidatorErrors(err)
	}

	// the same student may not appear twice in one submission
	seen := make(map[string]struct{}, len(ns.Entries))
	for _, e := range ns.Entries {
		if _, ok := seen[e.StudentID]; ok {
			return ErrDuplicateEntry
		}
		seen[e.StudentID] = struct{}{}
	}
	return nil
}

// truncateToDate normalizes a timestamp to its UTC date component; a session
// scope is keyed by calendar date, not by instant.
func truncateToDate(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
