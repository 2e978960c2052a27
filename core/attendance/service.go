package attendance

import (
	"context"
	"database/sql"
	"fmt"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/mahudhurio/core"
)

var (
	// errors
	ErrNotFound            = errors.New("attendance session not found")
	ErrUnknownStatus       = errors.New("unknown attendance status")
	ErrDuplicateEntry      = errors.New("a student appears more than once in the submission")
	ErrStudentNotEnrolled  = errors.New("student is not actively enrolled in the section")
	ErrConcurrencyConflict = errors.New("a concurrent submission superseded this one")

	nowFunc = time.Now // mockable
)

// submitMaxAttempts bounds transparent retries on ErrConcurrencyConflict.
// Validation errors are never retried; they indicate a caller bug.
const submitMaxAttempts = 3

type (
	// Repository persists sessions, records and the status enumeration.
	// Methods accept an optional exec override so the service can run a whole
	// submission inside one transaction.
	Repository interface {
		// GetCurrentSession locks the scope's current session row for update;
		// it must only be called inside a submission transaction.
		GetCurrentSession(ctx context.Context, scope ScopeKey, exec ...core.DBExecutor) (Session, error)
		// FindCurrentSession is the read-only lookup; subjectID may be empty,
		// in which case the most recently created current session for
		// (section, date) is returned.
		FindCurrentSession(ctx context.Context, sectionID string, date time.Time, subjectID string, exec ...core.DBExecutor) (Session, error)
		QuerySessionVersions(ctx context.Context, scope ScopeKey, exec ...core.DBExecutor) ([]Session, error)
		QueryRecordDetails(ctx context.Context, sessionID string, exec ...core.DBExecutor) ([]RecordDetail, error)
		QueryStatuses(ctx context.Context, exec ...core.DBExecutor) ([]Status, error)
		CreateSession(ctx context.Context, sess Session, exec ...core.DBExecutor) (Session, error)
		SupersedeSession(ctx context.Context, sessionID string, exec ...core.DBExecutor) error
		CreateRecord(ctx context.Context, rec Record, exec ...core.DBExecutor) (Record, error)
		SupersedeSessionRecords(ctx context.Context, sessionID string, exec ...core.DBExecutor) error
	}

	// EnrollmentLookup is the roster collaborator. The check runs inside the
	// submission transaction so a concurrent withdrawal cannot slip past it.
	EnrollmentLookup interface {
		IsActivelyEnrolled(ctx context.Context, studentID, sectionID string, date time.Time, exec ...core.DBExecutor) (bool, error)
	}

	Service interface {
		SubmitAttendance(ctx context.Context, ns NewSubmission) (CurrentAttendance, error)
		GetCurrentAttendance(ctx context.Context, sectionID string, date time.Time, subjectID string) (CurrentAttendance, error)
		GetHistory(ctx context.Context, scope ScopeKey) (*History, error)
		Statuses(ctx context.Context) ([]Status, error)
	}

	service struct {
		db         core.DB
		repo       Repository
		enrollment EnrollmentLookup
		mailSvc    core.EmailService
		logger     core.Logger
	}
)

func NewService(db core.DB, repo Repository, enrollment EnrollmentLookup, mailSvc core.EmailService, logger core.Logger) Service {
	return &service{
		db:         db,
		repo:       repo,
		enrollment: enrollment,
		mailSvc:    mailSvc,
		logger:     logger,
	}
}

// SubmitAttendance records a batch submission for one scope as a new session
// version: the previous current session row and its records are demoted
// (never mutated) and a complete set of higher-version rows is inserted, all
// inside one serializable transaction. Conflicting concurrent submissions
// are retried a bounded number of times.
func (svc *service) SubmitAttendance(ctx context.Context, ns NewSubmission) (CurrentAttendance, error) {
	cur, err := svc.submitWithRetry(ctx, ns)
	if err != nil {
		return CurrentAttendance{}, err
	}
	go svc.sendAbsenceNotices(cur)
	return cur, nil
}

func (svc *service) submitWithRetry(ctx context.Context, ns NewSubmission) (CurrentAttendance, error) {
	if err := ns.Validate(); err != nil {
		return CurrentAttendance{}, err
	}

	var cur CurrentAttendance
	var err error
	for attempt := 1; ; attempt++ {
		cur, err = svc.submit(ctx, ns)
		if errors.Cause(err) != ErrConcurrencyConflict || attempt >= submitMaxAttempts {
			break
		}
		svc.logger.Warn(fmt.Sprintf("attendance: conflicting submission for scope %v, retrying (attempt %d)", ns.Scope(), attempt))
	}
	if err != nil {
		return CurrentAttendance{}, err
	}
	return cur, nil
}

func (svc *service) submit(ctx context.Context, ns NewSubmission) (CurrentAttendance, error) {
	tx, err := svc.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return CurrentAttendance{}, errors.Wrap(err, "beginning submission transaction")
	}

	cur, err := svc.submitTx(ctx, ns, tx)
	if err != nil {
		_ = tx.Rollback()
		return CurrentAttendance{}, err
	}
	if err := tx.Commit(); err != nil {
		return CurrentAttendance{}, err
	}
	return cur, nil
}

func (svc *service) submitTx(ctx context.Context, ns NewSubmission, tx core.DBTransactor) (CurrentAttendance, error) {
	prev, err := svc.repo.GetCurrentSession(ctx, ns.Scope(), tx)
	if err != nil && errors.Cause(err) != ErrNotFound {
		return CurrentAttendance{}, err
	}

	// every status id must be in the closed enumeration
	statuses, err := svc.repo.QueryStatuses(ctx, tx)
	if err != nil {
		return CurrentAttendance{}, err
	}
	statusIDs := make(map[string]struct{}, len(statuses))
	for _, st := range statuses {
		statusIDs[st.ID] = struct{}{}
	}
	for _, e := range ns.Entries {
		if _, ok := statusIDs[e.StatusID]; !ok {
			return CurrentAttendance{}, ErrUnknownStatus
		}
	}

	// every student must be actively enrolled in the section as of the date
	for _, e := range ns.Entries {
		enrolled, err := svc.enrollment.IsActivelyEnrolled(ctx, e.StudentID, ns.SectionID, ns.Date, tx)
		if err != nil {
			return CurrentAttendance{}, err
		}
		if !enrolled {
			return CurrentAttendance{}, core.NewValidationError(ErrStudentNotEnrolled, core.FieldError{
				Field: "student_id",
				Error: fmt.Sprintf("student %s is not actively enrolled in section %s on %s", e.StudentID, ns.SectionID, ns.Date.Format("2006-01-02")),
			})
		}
	}

	// previous record set, for carry-over of students omitted from this batch
	var prevRecords []RecordDetail
	if prev.ID != "" {
		if prevRecords, err = svc.repo.QueryRecordDetails(ctx, prev.ID, tx); err != nil {
			return CurrentAttendance{}, err
		}
		if err = svc.repo.SupersedeSessionRecords(ctx, prev.ID, tx); err != nil {
			return CurrentAttendance{}, err
		}
		if err = svc.repo.SupersedeSession(ctx, prev.ID, tx); err != nil {
			return CurrentAttendance{}, err
		}
	}

	now := nowFunc().UTC()
	sess, err := svc.repo.CreateSession(ctx, svc.nextSession(ns, prev, now), tx)
	if err != nil {
		return CurrentAttendance{}, err
	}

	submitted := make(map[string]struct{}, len(ns.Entries))
	for _, e := range ns.Entries {
		submitted[e.StudentID] = struct{}{}
		method := e.Method
		if method == "" {
			method = MethodManual
		}
		rec := Record{
			SessionID:   sess.ID,
			StudentID:   e.StudentID,
			StatusID:    e.StatusID,
			Method:      method,
			MarkedBy:    ns.TeacherID,
			MarkedAt:    now,
			ArrivalTime: e.ArrivalTime,
			Version:     sess.Version,
			IsCurrent:   true,
			Source:      sourceOrDefault(ns.Source),
			Remarks:     e.Remarks,
		}
		if _, err = svc.repo.CreateRecord(ctx, rec, tx); err != nil {
			return CurrentAttendance{}, err
		}
	}
	// students omitted from a correction keep their previous marks; every
	// version is a complete snapshot of the session.
	for _, pr := range prevRecords {
		if _, ok := submitted[pr.StudentID]; ok {
			continue
		}
		rec := pr.Record
		rec.ID = ""
		rec.SessionID = sess.ID
		rec.Version = sess.Version
		rec.IsCurrent = true
		if _, err = svc.repo.CreateRecord(ctx, rec, tx); err != nil {
			return CurrentAttendance{}, err
		}
	}

	details, err := svc.repo.QueryRecordDetails(ctx, sess.ID, tx)
	if err != nil {
		return CurrentAttendance{}, err
	}
	return CurrentAttendance{Session: sess, Records: details}, nil
}

// nextSession builds the session row superseding prev (zero Session for a
// first version), carrying prev's values forward for fields the submission
// leaves unspecified.
func (svc *service) nextSession(ns NewSubmission, prev Session, now time.Time) Session {
	sess := Session{
		TeacherID: ns.TeacherID,
		SectionID: ns.SectionID,
		SubjectID: ns.SubjectID,
		Date:      ns.Date,
		StartTime: ns.StartTime,
		EndTime:   ns.EndTime,
		Type:      ns.Type,
		Metadata:  ns.Metadata,
		Version:   1,
		IsCurrent: true,
		Status:    SessionDraft,
		CreatedAt: now,
	}
	if prev.ID != "" {
		sess.Version = prev.Version + 1
		if sess.Type == "" {
			sess.Type = prev.Type
		}
		if sess.StartTime == nil {
			sess.StartTime = prev.StartTime
		}
		if sess.EndTime == nil {
			sess.EndTime = prev.EndTime
		}
		if sess.Metadata == nil {
			sess.Metadata = prev.Metadata
		}
	}
	if sess.Type == "" {
		sess.Type = SessionTypeRegular
	}
	// a zero-entry submission is a valid "no one to mark" state but never a
	// completed one
	if len(ns.Entries) > 0 {
		sess.Status = SessionCompleted
		sess.CompletedAt = &now
	}
	return sess
}

func sourceOrDefault(source string) string {
	if source != "" {
		return source
	}
	return "batch"
}

// GetCurrentAttendance returns the current session and records for a
// section+date (optionally narrowed to a subject). An empty result means no
// attendance has been taken yet; that is not an error.
func (svc *service) GetCurrentAttendance(ctx context.Context, sectionID string, date time.Time, subjectID string) (CurrentAttendance, error) {
	sess, err := svc.repo.FindCurrentSession(ctx, sectionID, truncateToDate(date), subjectID)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return CurrentAttendance{}, nil
		}
		return CurrentAttendance{}, err
	}
	records, err := svc.repo.QueryRecordDetails(ctx, sess.ID)
	if err != nil {
		return CurrentAttendance{}, err
	}
	return CurrentAttendance{Session: sess, Records: records}, nil
}

// GetHistory returns a restartable iterator over all versions of a scope's
// session, oldest first. ErrNotFound if the scope was never written.
func (svc *service) GetHistory(ctx context.Context, scope ScopeKey) (*History, error) {
	scope.Date = truncateToDate(scope.Date)
	sessions, err := svc.repo.QuerySessionVersions(ctx, scope)
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, ErrNotFound
	}
	return &History{repo: svc.repo, sessions: sessions}, nil
}

func (svc *service) Statuses(ctx context.Context) ([]Status, error) {
	return svc.repo.QueryStatuses(ctx)
}

// sendAbsenceNotices emails guardians of students marked absent. Delivery is
// asynchronous and best-effort; a failed notice never fails the submission.
func (svc *service) sendAbsenceNotices(cur CurrentAttendance) {
	if svc.mailSvc == nil || cur.Session.Status != SessionCompleted {
		return
	}
	messages := make([]*core.EmailMessage, 0, len(cur.Records))
	for _, rec := range cur.Records {
		if rec.StatusCode != StatusAbsent || rec.GuardianEmail == "" {
			continue
		}
		messages = append(messages, &core.EmailMessage{
			To:           []mail.Address{{Name: rec.StudentName, Address: rec.GuardianEmail}},
			Subject:      fmt.Sprintf("Absence notice for %s", rec.StudentName),
			TemplateName: "absence-notice",
			TemplateData: map[string]interface{}{
				"StudentName": rec.StudentName,
				"Date":        cur.Session.Date.Format("2006-01-02"),
				"Remarks":     rec.Remarks,
			},
		})
	}
	if len(messages) > 0 {
		svc.mailSvc.SendMessages(messages...)
	}
}
