package sqlxrepos

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/mahudhurio/core"
	"github.com/trezcool/mahudhurio/core/attendance"
)

const (
	sessionColumns = `id, teacher_id, section_id, subject_id, session_date, start_time, end_time,
	session_type, status, metadata, version, is_current, completed_at, created_at`

	recordDetailColumns = `r.id, r.session_id, r.student_id, r.status_id, r.method, r.marked_by,
	r.marked_at, r.arrival_time, r.verified, r.version, r.is_current, r.source, r.remarks,
	s.name AS student_name, s.guardian_email, st.code AS status_code, st.name AS status_name`
)

type attendanceRepository struct {
	db *sqlx.DB
}

var _ attendance.Repository = (*attendanceRepository)(nil) // interface compliance check

func NewAttendanceRepository(db *sqlx.DB) *attendanceRepository {
	return &attendanceRepository{db: db}
}

// ext returns the caller's transaction when one is provided, the bare handle otherwise.
func (repo attendanceRepository) ext(exec []core.DBExecutor) sqlx.ExtContext {
	if len(exec) > 0 {
		if e, ok := exec[0].(sqlx.ExtContext); ok {
			return e
		}
	}
	return repo.db
}

type sessionRow struct {
	ID          string    `db:"id"`
	TeacherID   string    `db:"teacher_id"`
	SectionID   string    `db:"section_id"`
	SubjectID   string    `db:"subject_id"`
	Date        time.Time `db:"session_date"`
	StartTime   null.Time `db:"start_time"`
	EndTime     null.Time `db:"end_time"`
	Type        string    `db:"session_type"`
	Status      string    `db:"status"`
	Metadata    null.JSON `db:"metadata"`
	Version     int       `db:"version"`
	IsCurrent   bool      `db:"is_current"`
	CompletedAt null.Time `db:"completed_at"`
	CreatedAt   time.Time `db:"created_at"`
}

type recordRow struct {
	ID          string      `db:"id"`
	SessionID   string      `db:"session_id"`
	StudentID   string      `db:"student_id"`
	StatusID    string      `db:"status_id"`
	Method      string      `db:"method"`
	MarkedBy    string      `db:"marked_by"`
	MarkedAt    time.Time   `db:"marked_at"`
	ArrivalTime null.Time   `db:"arrival_time"`
	Verified    bool        `db:"verified"`
	Version     int         `db:"version"`
	IsCurrent   bool        `db:"is_current"`
	Source      string      `db:"source"`
	Remarks     null.String `db:"remarks"`
}

type recordDetailRow struct {
	recordRow
	StudentName   string      `db:"student_name"`
	GuardianEmail null.String `db:"guardian_email"`
	StatusCode    string      `db:"status_code"`
	StatusName    string      `db:"status_name"`
}

func (repo attendanceRepository) packSession(sess attendance.Session) (sessionRow, error) {
	row := sessionRow{
		ID:          sess.ID,
		TeacherID:   sess.TeacherID,
		SectionID:   sess.SectionID,
		SubjectID:   sess.SubjectID,
		Date:        sess.Date,
		StartTime:   null.TimeFromPtr(sess.StartTime),
		EndTime:     null.TimeFromPtr(sess.EndTime),
		Type:        sess.Type,
		Status:      sess.Status,
		Version:     sess.Version,
		IsCurrent:   sess.IsCurrent,
		CompletedAt: null.TimeFromPtr(sess.CompletedAt),
		CreatedAt:   sess.CreatedAt.UTC(),
	}
	if len(sess.Metadata) > 0 {
		b, err := json.Marshal(sess.Metadata)
		if err != nil {
			return row, errors.Wrap(err, "encoding session metadata")
		}
		row.Metadata = null.JSONFrom(b)
	}
	return row, nil
}

func (repo attendanceRepository) unpackSession(row sessionRow) (attendance.Session, error) {
	sess := attendance.Session{
		ID:          row.ID,
		TeacherID:   row.TeacherID,
		SectionID:   row.SectionID,
		SubjectID:   row.SubjectID,
		Date:        row.Date.UTC(),
		StartTime:   row.StartTime.Ptr(),
		EndTime:     row.EndTime.Ptr(),
		Type:        row.Type,
		Status:      row.Status,
		Version:     row.Version,
		IsCurrent:   row.IsCurrent,
		CompletedAt: row.CompletedAt.Ptr(),
		CreatedAt:   row.CreatedAt.UTC(),
	}
	if row.Metadata.Valid {
		if err := json.Unmarshal(row.Metadata.JSON, &sess.Metadata); err != nil {
			return sess, errors.Wrap(err, "decoding session metadata")
		}
	}
	return sess, nil
}

func (repo attendanceRepository) packRecord(rec attendance.Record) recordRow {
	return recordRow{
		ID:          rec.ID,
		SessionID:   rec.SessionID,
		StudentID:   rec.StudentID,
		StatusID:    rec.StatusID,
		Method:      rec.Method,
		MarkedBy:    rec.MarkedBy,
		MarkedAt:    rec.MarkedAt.UTC(),
		ArrivalTime: null.TimeFromPtr(rec.ArrivalTime),
		Verified:    rec.Verified,
		Version:     rec.Version,
		IsCurrent:   rec.IsCurrent,
		Source:      rec.Source,
		Remarks:     null.NewString(rec.Remarks, rec.Remarks != ""),
	}
}

func (repo attendanceRepository) unpackRecord(row recordRow) attendance.Record {
	return attendance.Record{
		ID:          row.ID,
		SessionID:   row.SessionID,
		StudentID:   row.StudentID,
		StatusID:    row.StatusID,
		Method:      row.Method,
		MarkedBy:    row.MarkedBy,
		MarkedAt:    row.MarkedAt.UTC(),
		ArrivalTime: row.ArrivalTime.Ptr(),
		Verified:    row.Verified,
		Version:     row.Version,
		IsCurrent:   row.IsCurrent,
		Source:      row.Source,
		Remarks:     row.Remarks.String,
	}
}

// trapNoRowsErr maps psql "no rows" err to attendance.ErrNotFound
func (repo attendanceRepository) trapNoRowsErr(err error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return attendance.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

// trapConflictErr maps serialization failures and current-version unique
// index violations to attendance.ErrConcurrencyConflict.
func (repo attendanceRepository) trapConflictErr(err error, msg string) error {
	if pqErr, ok := errors.Cause(err).(*pq.Error); ok {
		switch {
		case pqErr.Code == "40001" || pqErr.Code == "40P01":
			return attendance.ErrConcurrencyConflict
		case pqErr.Code == "23505" &&
			(pqErr.Constraint == "uq_attendance_sessions_current" || pqErr.Constraint == "uq_attendance_records_current"):
			return attendance.ErrConcurrencyConflict
		}
	}
	return errors.Wrap(err, msg)
}

func (repo attendanceRepository) GetCurrentSession(ctx context.Context, scope attendance.ScopeKey, exec ...core.DBExecutor) (attendance.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM attendance_sessions
	WHERE teacher_id = $1 AND section_id = $2 AND subject_id = $3 AND session_date = $4 AND is_current
	FOR UPDATE`

	var row sessionRow
	if err := sqlx.GetContext(ctx, repo.ext(exec), &row, query, scope.TeacherID, scope.SectionID, scope.SubjectID, scope.Date); err != nil {
		return attendance.Session{}, repo.trapNoRowsErr(err, "finding current session")
	}
	return repo.unpackSession(row)
}

func (repo attendanceRepository) FindCurrentSession(ctx context.Context, sectionID string, date time.Time, subjectID string, exec ...core.DBExecutor) (attendance.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM attendance_sessions
	WHERE section_id = $1 AND session_date = $2 AND is_current`
	args := []interface{}{sectionID, date}
	if subjectID != "" {
		query += ` AND subject_id = $3`
		args = append(args, subjectID)
	}
	query += ` ORDER BY created_at DESC LIMIT 1`

	var row sessionRow
	if err := sqlx.GetContext(ctx, repo.ext(exec), &row, query, args...); err != nil {
		return attendance.Session{}, repo.trapNoRowsErr(err, "finding current session by section")
	}
	return repo.unpackSession(row)
}

func (repo attendanceRepository) QuerySessionVersions(ctx context.Context, scope attendance.ScopeKey, exec ...core.DBExecutor) ([]attendance.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM attendance_sessions
	WHERE teacher_id = $1 AND section_id = $2 AND subject_id = $3 AND session_date = $4
	ORDER BY version ASC`

	var rows []sessionRow
	if err := sqlx.SelectContext(ctx, repo.ext(exec), &rows, query, scope.TeacherID, scope.SectionID, scope.SubjectID, scope.Date); err != nil {
		return nil, errors.Wrap(err, "querying session versions")
	}
	sessions := make([]attendance.Session, 0, len(rows))
	for _, row := range rows {
		sess, err := repo.unpackSession(row)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, nil
}

func (repo attendanceRepository) QueryRecordDetails(ctx context.Context, sessionID string, exec ...core.DBExecutor) ([]attendance.RecordDetail, error) {
	query := `SELECT ` + recordDetailColumns + ` FROM attendance_records r
	JOIN students s ON s.id = r.student_id
	JOIN attendance_statuses st ON st.id = r.status_id
	WHERE r.session_id = $1
	ORDER BY s.name, r.id`

	var rows []recordDetailRow
	if err := sqlx.SelectContext(ctx, repo.ext(exec), &rows, query, sessionID); err != nil {
		return nil, errors.Wrap(err, "querying record details")
	}
	details := make([]attendance.RecordDetail, 0, len(rows))
	for _, row := range rows {
		details = append(details, attendance.RecordDetail{
			Record:        repo.unpackRecord(row.recordRow),
			StudentName:   row.StudentName,
			GuardianEmail: row.GuardianEmail.String,
			StatusCode:    row.StatusCode,
			StatusName:    row.StatusName,
		})
	}
	return details, nil
}

func (repo attendanceRepository) QueryStatuses(ctx context.Context, exec ...core.DBExecutor) ([]attendance.Status, error) {
	var statuses []attendance.Status
	query := `SELECT id, code, name FROM attendance_statuses ORDER BY code`
	if err := sqlx.SelectContext(ctx, repo.ext(exec), &statuses, query); err != nil {
		return nil, errors.Wrap(err, "querying attendance statuses")
	}
	return statuses, nil
}

func (repo attendanceRepository) CreateSession(ctx context.Context, sess attendance.Session, exec ...core.DBExecutor) (attendance.Session, error) {
	sess.ID = uuid.New().String()
	row, err := repo.packSession(sess)
	if err != nil {
		return attendance.Session{}, err
	}

	query := `INSERT INTO attendance_sessions (` + sessionColumns + `)
	VALUES (:id, :teacher_id, :section_id, :subject_id, :session_date, :start_time, :end_time,
	:session_type, :status, :metadata, :version, :is_current, :completed_at, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, repo.ext(exec), query, row); err != nil {
		return attendance.Session{}, repo.trapConflictErr(err, "inserting session")
	}
	return sess, nil
}

func (repo attendanceRepository) SupersedeSession(ctx context.Context, sessionID string, exec ...core.DBExecutor) error {
	query := `UPDATE attendance_sessions SET is_current = FALSE WHERE id = $1 AND is_current`
	if _, err := repo.ext(exec).ExecContext(ctx, query, sessionID); err != nil {
		return errors.Wrap(err, "superseding session")
	}
	return nil
}

func (repo attendanceRepository) CreateRecord(ctx context.Context, rec attendance.Record, exec ...core.DBExecutor) (attendance.Record, error) {
	rec.ID = uuid.New().String()
	row := repo.packRecord(rec)

	query := `INSERT INTO attendance_records (id, session_id, student_id, status_id, method, marked_by,
	marked_at, arrival_time, verified, version, is_current, source, remarks)
	VALUES (:id, :session_id, :student_id, :status_id, :method, :marked_by,
	:marked_at, :arrival_time, :verified, :version, :is_current, :source, :remarks)`
	if _, err := sqlx.NamedExecContext(ctx, repo.ext(exec), query, row); err != nil {
		return attendance.Record{}, repo.trapConflictErr(err, "inserting record")
	}
	return rec, nil
}

func (repo attendanceRepository) SupersedeSessionRecords(ctx context.Context, sessionID string, exec ...core.DBExecutor) error {
	query := `UPDATE attendance_records SET is_current = FALSE WHERE session_id = $1 AND is_current`
	if _, err := repo.ext(exec).ExecContext(ctx, query, sessionID); err != nil {
		return errors.Wrap(err, "superseding session records")
	}
	return nil
}
