package attendance_test

import (
	"context"
	"testing"
	"time"

	"github.com/trezcool/mahudhurio/core"
	"github.com/trezcool/mahudhurio/core/attendance"
	"github.com/trezcool/mahudhurio/core/school"
	dummymail "github.com/trezcool/mahudhurio/services/email/dummy"
	dummydb "github.com/trezcool/mahudhurio/storage/database/dummy"
	testutil "github.com/trezcool/mahudhurio/tests"
)

var conf = core.NewConfig("test")

type testEnv struct {
	db      *dummydb.DB
	repo    attendance.Repository
	schRepo school.Repository
	mailSvc *dummymail.Service
	svc     attendance.Service

	teacher school.Teacher
	section school.Section
	subject school.Subject
	date    time.Time
}

func setup(t *testing.T) *testEnv {
	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("dummydb.Open() failed, %v", err)
	}
	repo := dummydb.NewAttendanceRepository(db)
	schRepo := dummydb.NewSchoolRepository(db)
	mailSvc := dummymail.NewService(conf)

	env := &testEnv{
		db:      db,
		repo:    repo,
		schRepo: schRepo,
		mailSvc: mailSvc,
		svc:     attendance.NewServiceMock(db, repo, schRepo, mailSvc, testutil.NewLogger()),
		date:    time.Date(2026, time.March, 9, 0, 0, 0, 0, time.UTC),
	}
	env.teacher = testutil.CreateTeacher(t, schRepo, "Mr. Phiri", "phiri@test.cd")
	env.section = testutil.CreateSection(t, schRepo, "Grade 5A", "2025-2026")
	env.subject = testutil.CreateSubject(t, schRepo, "math", "Mathematics")
	return env
}

func (env *testEnv) enrollStudent(t *testing.T, name, guardianEmail string) school.Student {
	st := testutil.CreateStudent(t, env.schRepo, name, guardianEmail, true)
	testutil.Enroll(t, env.schRepo, st.ID, env.section.ID, "2025-2026", env.date.AddDate(0, -1, 0))
	return st
}

func (env *testEnv) submission(entries ...attendance.SubmissionEntry) attendance.NewSubmission {
	return attendance.NewSubmission{
		TeacherID: env.teacher.ID,
		SectionID: env.section.ID,
		SubjectID: env.subject.ID,
		Date:      env.date,
		Entries:   entries,
	}
}

func statusOf(t *testing.T, cur attendance.CurrentAttendance, studentID string) string {
	t.Helper()
	for _, rec := range cur.Records {
		if rec.StudentID == studentID {
			return rec.StatusID
		}
	}
	t.Fatalf("no record for student %s", studentID)
	return ""
}

func Test_service_SubmitAttendance(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	amani := env.enrollStudent(t, "Amani", "")
	bahati := env.enrollStudent(t, "Bahati", "")

	cur, err := env.svc.SubmitAttendance(ctx, env.submission(
		attendance.SubmissionEntry{StudentID: amani.ID, StatusID: attendance.StatusPresent},
		attendance.SubmissionEntry{StudentID: bahati.ID, StatusID: attendance.StatusAbsent, Remarks: "no show"},
	))
	if err != nil {
		t.Fatalf("SubmitAttendance() failed, %v", err)
	}

	if cur.Session.Version != 1 {
		t.Errorf("Session.Version = %d, want 1", cur.Session.Version)
	}
	if !cur.Session.IsCurrent {
		t.Error("Session.IsCurrent = false, want true")
	}
	if cur.Session.Status != attendance.SessionCompleted {
		t.Errorf("Session.Status = %s, want %s", cur.Session.Status, attendance.SessionCompleted)
	}
	if cur.Session.CompletedAt == nil {
		t.Error("Session.CompletedAt = nil, want set")
	}
	if cur.Session.Type != attendance.SessionTypeRegular {
		t.Errorf("Session.Type = %s, want %s (default)", cur.Session.Type, attendance.SessionTypeRegular)
	}
	if len(cur.Records) != 2 {
		t.Fatalf("len(Records) = %d, want 2", len(cur.Records))
	}
	for _, rec := range cur.Records {
		if rec.Version != 1 || !rec.IsCurrent {
			t.Errorf("record %s: Version = %d, IsCurrent = %t; want 1, true", rec.StudentID, rec.Version, rec.IsCurrent)
		}
		if rec.Method != attendance.MethodManual {
			t.Errorf("record %s: Method = %s, want %s (default)", rec.StudentID, rec.Method, attendance.MethodManual)
		}
		if rec.MarkedBy != env.teacher.ID {
			t.Errorf("record %s: MarkedBy = %s, want %s", rec.StudentID, rec.MarkedBy, env.teacher.ID)
		}
	}

	// a correction only mentioning Bahati must supersede v1 with a complete
	// v2 snapshot: Bahati flipped, Amani carried forward
	cur2, err := env.svc.SubmitAttendance(ctx, env.submission(
		attendance.SubmissionEntry{StudentID: bahati.ID, StatusID: attendance.StatusLate},
	))
	if err != nil {
		t.Fatalf("SubmitAttendance() correction failed, %v", err)
	}
	if cur2.Session.Version != 2 {
		t.Errorf("corrected Session.Version = %d, want 2", cur2.Session.Version)
	}
	if len(cur2.Records) != 2 {
		t.Fatalf("len(corrected Records) = %d, want 2 (complete snapshot)", len(cur2.Records))
	}
	if got := statusOf(t, cur2, bahati.ID); got != attendance.StatusLate {
		t.Errorf("Bahati status = %s, want %s", got, attendance.StatusLate)
	}
	if got := statusOf(t, cur2, amani.ID); got != attendance.StatusPresent {
		t.Errorf("Amani status = %s, want %s (carried forward)", got, attendance.StatusPresent)
	}

	// resubmitting identical content is not a no-op: the version still bumps,
	// the resolved statuses stay the same
	cur3, err := env.svc.SubmitAttendance(ctx, env.submission(
		attendance.SubmissionEntry{StudentID: bahati.ID, StatusID: attendance.StatusLate},
	))
	if err != nil {
		t.Fatalf("SubmitAttendance() identical resubmission failed, %v", err)
	}
	if cur3.Session.Version != 3 {
		t.Errorf("resubmitted Session.Version = %d, want 3", cur3.Session.Version)
	}
	if got := statusOf(t, cur3, bahati.ID); got != attendance.StatusLate {
		t.Errorf("Bahati status = %s, want unchanged %s", got, attendance.StatusLate)
	}
	if got := statusOf(t, cur3, amani.ID); got != attendance.StatusPresent {
		t.Errorf("Amani status = %s, want unchanged %s", got, attendance.StatusPresent)
	}

	// the read model must agree, and v1 must no longer be current
	latest, err := env.svc.GetCurrentAttendance(ctx, env.section.ID, env.date, env.subject.ID)
	if err != nil {
		t.Fatalf("GetCurrentAttendance() failed, %v", err)
	}
	if latest.Session.ID != cur3.Session.ID {
		t.Errorf("current session = %s, want %s", latest.Session.ID, cur3.Session.ID)
	}
	versions, err := env.repo.QuerySessionVersions(ctx, cur3.Session.Scope())
	if err != nil {
		t.Fatalf("QuerySessionVersions() failed, %v", err)
	}
	if len(versions) != 3 {
		t.Fatalf("len(versions) = %d, want 3", len(versions))
	}
	for i, v := range versions {
		if wantCurrent := i == len(versions)-1; v.IsCurrent != wantCurrent {
			t.Errorf("versions[%d].IsCurrent = %t, want %t", i, v.IsCurrent, wantCurrent)
		}
	}
}

func Test_service_SubmitAttendance_validation(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	amani := env.enrollStudent(t, "Amani", "")
	outsider := testutil.CreateStudent(t, env.schRepo, "Zuri", "", true) // not enrolled

	t.Run("missing required fields", func(t *testing.T) {
		ns := env.submission()
		ns.TeacherID = ""
		_, err := env.svc.SubmitAttendance(ctx, ns)
		var vErr *core.ValidationError
		if !asValidationError(err, &vErr) {
			t.Fatalf("SubmitAttendance() error = %v, want *core.ValidationError", err)
		}
	})

	t.Run("duplicate student", func(t *testing.T) {
		_, err := env.svc.SubmitAttendance(ctx, env.submission(
			attendance.SubmissionEntry{StudentID: amani.ID, StatusID: attendance.StatusPresent},
			attendance.SubmissionEntry{StudentID: amani.ID, StatusID: attendance.StatusAbsent},
		))
		if err != attendance.ErrDuplicateEntry {
			t.Errorf("SubmitAttendance() error = %v, want %v", err, attendance.ErrDuplicateEntry)
		}
	})

	t.Run("unknown status", func(t *testing.T) {
		_, err := env.svc.SubmitAttendance(ctx, env.submission(
			attendance.SubmissionEntry{StudentID: amani.ID, StatusID: "asleep"},
		))
		if err != attendance.ErrUnknownStatus {
			t.Errorf("SubmitAttendance() error = %v, want %v", err, attendance.ErrUnknownStatus)
		}
	})

	t.Run("invalid session type", func(t *testing.T) {
		ns := env.submission(attendance.SubmissionEntry{StudentID: amani.ID, StatusID: attendance.StatusPresent})
		ns.Type = "siesta"
		_, err := env.svc.SubmitAttendance(ctx, ns)
		var vErr *core.ValidationError
		if !asValidationError(err, &vErr) {
			t.Fatalf("SubmitAttendance() error = %v, want *core.ValidationError", err)
		}
	})

	t.Run("student not enrolled rejects whole batch", func(t *testing.T) {
		_, err := env.svc.SubmitAttendance(ctx, env.submission(
			attendance.SubmissionEntry{StudentID: amani.ID, StatusID: attendance.StatusPresent},
			attendance.SubmissionEntry{StudentID: outsider.ID, StatusID: attendance.StatusPresent},
		))
		var vErr *core.ValidationError
		if !asValidationError(err, &vErr) {
			t.Fatalf("SubmitAttendance() error = %v, want *core.ValidationError", err)
		}
		if len(vErr.Fields) == 0 || vErr.Fields[0].Field != "student_id" {
			t.Errorf("ValidationError.Fields = %+v, want student_id field error", vErr.Fields)
		}

		// nothing may have been written
		cur, err := env.svc.GetCurrentAttendance(ctx, env.section.ID, env.date, env.subject.ID)
		if err != nil {
			t.Fatalf("GetCurrentAttendance() failed, %v", err)
		}
		if !cur.IsEmpty() {
			t.Error("expected no attendance written after rejected batch")
		}
	})
}

func asValidationError(err error, target **core.ValidationError) bool {
	vErr, ok := err.(*core.ValidationError)
	if ok {
		*target = vErr
	}
	return ok
}

func Test_service_SubmitAttendance_zeroEntries(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	cur, err := env.svc.SubmitAttendance(ctx, env.submission())
	if err != nil {
		t.Fatalf("SubmitAttendance() failed, %v", err)
	}
	if cur.Session.Status != attendance.SessionDraft {
		t.Errorf("Session.Status = %s, want %s", cur.Session.Status, attendance.SessionDraft)
	}
	if cur.Session.CompletedAt != nil {
		t.Error("Session.CompletedAt set on a draft session")
	}
	if len(cur.Records) != 0 {
		t.Errorf("len(Records) = %d, want 0", len(cur.Records))
	}
	if len(env.mailSvc.Sent()) != 0 {
		t.Error("draft session must not trigger absence notices")
	}
}

func Test_service_GetCurrentAttendance(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	// no attendance taken yet: empty result, not an error
	cur, err := env.svc.GetCurrentAttendance(ctx, env.section.ID, env.date, env.subject.ID)
	if err != nil {
		t.Fatalf("GetCurrentAttendance() failed, %v", err)
	}
	if !cur.IsEmpty() {
		t.Error("expected empty CurrentAttendance for an unwritten scope")
	}

	amani := env.enrollStudent(t, "Amani", "")
	if _, err = env.svc.SubmitAttendance(ctx, env.submission(
		attendance.SubmissionEntry{StudentID: amani.ID, StatusID: attendance.StatusPresent},
	)); err != nil {
		t.Fatalf("SubmitAttendance() failed, %v", err)
	}

	// an omitted subject falls back to the section's most recent session
	cur, err = env.svc.GetCurrentAttendance(ctx, env.section.ID, env.date, "")
	if err != nil {
		t.Fatalf("GetCurrentAttendance() failed, %v", err)
	}
	if cur.IsEmpty() {
		t.Fatal("expected attendance for section+date without subject")
	}
	if cur.Session.SubjectID != env.subject.ID {
		t.Errorf("Session.SubjectID = %s, want %s", cur.Session.SubjectID, env.subject.ID)
	}

	// timestamps normalize to their date; mid-day queries hit the same scope
	midday := env.date.Add(10 * time.Hour)
	cur, err = env.svc.GetCurrentAttendance(ctx, env.section.ID, midday, env.subject.ID)
	if err != nil {
		t.Fatalf("GetCurrentAttendance() failed, %v", err)
	}
	if cur.IsEmpty() {
		t.Error("expected mid-day timestamp to resolve to the session's date")
	}
}

func Test_service_GetHistory(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	amani := env.enrollStudent(t, "Amani", "")
	ns := env.submission()
	scope := ns.Scope()

	if _, err := env.svc.GetHistory(ctx, scope); err != attendance.ErrNotFound {
		t.Errorf("GetHistory() error = %v, want %v", err, attendance.ErrNotFound)
	}

	wantStatuses := []string{attendance.StatusPresent, attendance.StatusAbsent, attendance.StatusExcused}
	for _, statusID := range wantStatuses {
		if _, err := env.svc.SubmitAttendance(ctx, env.submission(
			attendance.SubmissionEntry{StudentID: amani.ID, StatusID: statusID},
		)); err != nil {
			t.Fatalf("SubmitAttendance() failed, %v", err)
		}
	}

	hist, err := env.svc.GetHistory(ctx, scope)
	if err != nil {
		t.Fatalf("GetHistory() failed, %v", err)
	}
	if hist.Len() != 3 {
		t.Fatalf("History.Len() = %d, want 3", hist.Len())
	}

	for pass := 0; pass < 2; pass++ { // Reset must allow a second full pass
		for i, wantStatus := range wantStatuses {
			v, err := hist.Next(ctx)
			if err != nil {
				t.Fatalf("History.Next() failed, %v", err)
			}
			if v == nil {
				t.Fatalf("History.Next() = nil at version %d", i+1)
			}
			if v.Session.Version != i+1 {
				t.Errorf("version = %d, want %d (ascending)", v.Session.Version, i+1)
			}
			if v.Session.IsCurrent != (i == len(wantStatuses)-1) {
				t.Errorf("version %d: IsCurrent = %t", i+1, v.Session.IsCurrent)
			}
			if len(v.Records) != 1 {
				t.Fatalf("version %d: len(Records) = %d, want 1", i+1, len(v.Records))
			}
			if v.Records[0].StatusID != wantStatus {
				t.Errorf("version %d: status = %s, want %s (superseded versions are immutable)", i+1, v.Records[0].StatusID, wantStatus)
			}
		}
		if v, err := hist.Next(ctx); err != nil || v != nil {
			t.Errorf("History.Next() after exhaustion = (%v, %v), want (nil, nil)", v, err)
		}
		hist.Reset()
	}
}

// conflictRepo fails CreateSession with ErrConcurrencyConflict a fixed number
// of times before delegating, simulating concurrent submissions.
type conflictRepo struct {
	attendance.Repository
	failures int
	calls    int
}

func (r *conflictRepo) CreateSession(ctx context.Context, sess attendance.Session, exec ...core.DBExecutor) (attendance.Session, error) {
	r.calls++
	if r.calls <= r.failures {
		return attendance.Session{}, attendance.ErrConcurrencyConflict
	}
	return r.Repository.CreateSession(ctx, sess, exec...)
}

func Test_service_SubmitAttendance_conflictRetry(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	amani := env.enrollStudent(t, "Amani", "")

	t.Run("recovers within budget", func(t *testing.T) {
		repo := &conflictRepo{Repository: env.repo, failures: 2}
		svc := attendance.NewServiceMock(env.db, repo, env.schRepo, env.mailSvc, testutil.NewLogger())

		cur, err := svc.SubmitAttendance(ctx, env.submission(
			attendance.SubmissionEntry{StudentID: amani.ID, StatusID: attendance.StatusPresent},
		))
		if err != nil {
			t.Fatalf("SubmitAttendance() failed, %v", err)
		}
		if repo.calls != 3 {
			t.Errorf("CreateSession calls = %d, want 3", repo.calls)
		}
		if cur.Session.Version != 1 {
			t.Errorf("Session.Version = %d, want 1", cur.Session.Version)
		}
	})

	t.Run("gives up after budget", func(t *testing.T) {
		repo := &conflictRepo{Repository: env.repo, failures: 10}
		svc := attendance.NewServiceMock(env.db, repo, env.schRepo, env.mailSvc, testutil.NewLogger())

		_, err := svc.SubmitAttendance(ctx, env.submission(
			attendance.SubmissionEntry{StudentID: amani.ID, StatusID: attendance.StatusPresent},
		))
		if err != attendance.ErrConcurrencyConflict {
			t.Fatalf("SubmitAttendance() error = %v, want %v", err, attendance.ErrConcurrencyConflict)
		}
		if repo.calls != 3 {
			t.Errorf("CreateSession calls = %d, want 3 (bounded retry)", repo.calls)
		}
	})
}

func Test_service_SubmitAttendance_absenceNotices(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	amani := env.enrollStudent(t, "Amani", "mom@test.cd")
	bahati := env.enrollStudent(t, "Bahati", "") // no guardian email
	chiku := env.enrollStudent(t, "Chiku", "dad@test.cd")

	if _, err := env.svc.SubmitAttendance(ctx, env.submission(
		attendance.SubmissionEntry{StudentID: amani.ID, StatusID: attendance.StatusAbsent, Remarks: "no show"},
		attendance.SubmissionEntry{StudentID: bahati.ID, StatusID: attendance.StatusAbsent},
		attendance.SubmissionEntry{StudentID: chiku.ID, StatusID: attendance.StatusPresent},
	)); err != nil {
		t.Fatalf("SubmitAttendance() failed, %v", err)
	}

	sent := env.mailSvc.Sent()
	if len(sent) != 1 {
		t.Fatalf("len(sent) = %d, want 1 (absent with guardian email only)", len(sent))
	}
	msg := sent[0]
	if len(msg.To) != 1 || msg.To[0].Address != "mom@test.cd" {
		t.Errorf("To = %v, want mom@test.cd", msg.To)
	}
	if msg.TemplateName != "absence-notice" {
		t.Errorf("TemplateName = %s, want absence-notice", msg.TemplateName)
	}
	if msg.TextContent == "" {
		t.Error("TextContent empty, want rendered template")
	}
}

func Test_service_Statuses(t *testing.T) {
	env := setup(t)

	statuses, err := env.svc.Statuses(context.Background())
	if err != nil {
		t.Fatalf("Statuses() failed, %v", err)
	}
	if len(statuses) != 4 {
		t.Fatalf("len(statuses) = %d, want 4", len(statuses))
	}
	want := []string{attendance.StatusAbsent, attendance.StatusExcused, attendance.StatusLate, attendance.StatusPresent}
	for i, st := range statuses {
		if st.Code != want[i] {
			t.Errorf("statuses[%d].Code = %s, want %s", i, st.Code, want[i])
		}
	}
}
