package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/mahudhurio/core"
	"github.com/trezcool/mahudhurio/core/school"
)

const (
	studentColumns    = `id, name, guardian_email, is_active, created_at, updated_at`
	teacherColumns    = `id, name, email, is_active, created_at, updated_at`
	enrollmentColumns = `id, student_id, section_id, school_year, is_active, effective_from, effective_to, created_at`
)

type schoolRepository struct {
	db *sqlx.DB
}

var _ school.Repository = (*schoolRepository)(nil) // interface compliance check

func NewSchoolRepository(db *sqlx.DB) *schoolRepository {
	return &schoolRepository{db: db}
}

func (repo schoolRepository) ext(exec []core.DBExecutor) sqlx.ExtContext {
	if len(exec) > 0 {
		if e, ok := exec[0].(sqlx.ExtContext); ok {
			return e
		}
	}
	return repo.db
}

type studentRow struct {
	ID            string      `db:"id"`
	Name          string      `db:"name"`
	GuardianEmail null.String `db:"guardian_email"`
	IsActive      bool        `db:"is_active"`
	CreatedAt     time.Time   `db:"created_at"`
	UpdatedAt     time.Time   `db:"updated_at"`
}

type teacherRow struct {
	ID        string      `db:"id"`
	Name      string      `db:"name"`
	Email     null.String `db:"email"`
	IsActive  bool        `db:"is_active"`
	CreatedAt time.Time   `db:"created_at"`
	UpdatedAt time.Time   `db:"updated_at"`
}

type enrollmentRow struct {
	ID            string    `db:"id"`
	StudentID     string    `db:"student_id"`
	SectionID     string    `db:"section_id"`
	SchoolYear    string    `db:"school_year"`
	IsActive      bool      `db:"is_active"`
	EffectiveFrom time.Time `db:"effective_from"`
	EffectiveTo   null.Time `db:"effective_to"`
	CreatedAt     time.Time `db:"created_at"`
}

func (repo schoolRepository) packStudent(st school.Student) studentRow {
	return studentRow{
		ID:            st.ID,
		Name:          st.Name,
		GuardianEmail: null.NewString(st.GuardianEmail, st.GuardianEmail != ""),
		IsActive:      st.IsActive,
		CreatedAt:     st.CreatedAt.UTC(),
		UpdatedAt:     st.UpdatedAt.UTC(),
	}
}

func (repo schoolRepository) unpackStudent(row studentRow) school.Student {
	return school.Student{
		ID:            row.ID,
		Name:          row.Name,
		GuardianEmail: row.GuardianEmail.String,
		IsActive:      row.IsActive,
		CreatedAt:     row.CreatedAt.UTC(),
		UpdatedAt:     row.UpdatedAt.UTC(),
	}
}

func (repo schoolRepository) packEnrollment(e school.Enrollment) enrollmentRow {
	return enrollmentRow{
		ID:            e.ID,
		StudentID:     e.StudentID,
		SectionID:     e.SectionID,
		SchoolYear:    e.SchoolYear,
		IsActive:      e.IsActive,
		EffectiveFrom: e.EffectiveFrom.UTC(),
		EffectiveTo:   null.TimeFromPtr(e.EffectiveTo),
		CreatedAt:     e.CreatedAt.UTC(),
	}
}

func (repo schoolRepository) unpackEnrollment(row enrollmentRow) school.Enrollment {
	return school.Enrollment{
		ID:            row.ID,
		StudentID:     row.StudentID,
		SectionID:     row.SectionID,
		SchoolYear:    row.SchoolYear,
		IsActive:      row.IsActive,
		EffectiveFrom: row.EffectiveFrom.UTC(),
		EffectiveTo:   row.EffectiveTo.Ptr(),
		CreatedAt:     row.CreatedAt.UTC(),
	}
}

// trapNoRowsErr maps psql "no rows" err to school.ErrNotFound
func (repo schoolRepository) trapNoRowsErr(err error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return school.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo schoolRepository) CreateStudent(ctx context.Context, st school.Student, exec ...core.DBExecutor) (school.Student, error) {
	st.ID = uuid.New().String()
	query := `INSERT INTO students (` + studentColumns + `)
	VALUES (:id, :name, :guardian_email, :is_active, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, repo.ext(exec), query, repo.packStudent(st)); err != nil {
		return school.Student{}, errors.Wrap(err, "inserting student")
	}
	return st, nil
}

func (repo schoolRepository) GetStudent(ctx context.Context, id string, exec ...core.DBExecutor) (school.Student, error) {
	var row studentRow
	query := `SELECT ` + studentColumns + ` FROM students WHERE id = $1`
	if err := sqlx.GetContext(ctx, repo.ext(exec), &row, query, id); err != nil {
		return school.Student{}, repo.trapNoRowsErr(err, "finding student")
	}
	return repo.unpackStudent(row), nil
}

func (repo schoolRepository) CreateTeacher(ctx context.Context, t school.Teacher, exec ...core.DBExecutor) (school.Teacher, error) {
	t.ID = uuid.New().String()
	row := teacherRow{
		ID:        t.ID,
		Name:      t.Name,
		Email:     null.NewString(t.Email, t.Email != ""),
		IsActive:  t.IsActive,
		CreatedAt: t.CreatedAt.UTC(),
		UpdatedAt: t.UpdatedAt.UTC(),
	}
	query := `INSERT INTO teachers (` + teacherColumns + `)
	VALUES (:id, :name, :email, :is_active, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, repo.ext(exec), query, row); err != nil {
		return school.Teacher{}, errors.Wrap(err, "inserting teacher")
	}
	return t, nil
}

func (repo schoolRepository) GetTeacher(ctx context.Context, id string, exec ...core.DBExecutor) (school.Teacher, error) {
	var row teacherRow
	query := `SELECT ` + teacherColumns + ` FROM teachers WHERE id = $1`
	if err := sqlx.GetContext(ctx, repo.ext(exec), &row, query, id); err != nil {
		return school.Teacher{}, repo.trapNoRowsErr(err, "finding teacher")
	}
	return school.Teacher{
		ID:        row.ID,
		Name:      row.Name,
		Email:     row.Email.String,
		IsActive:  row.IsActive,
		CreatedAt: row.CreatedAt.UTC(),
		UpdatedAt: row.UpdatedAt.UTC(),
	}, nil
}

func (repo schoolRepository) CreateSection(ctx context.Context, s school.Section, exec ...core.DBExecutor) (school.Section, error) {
	s.ID = uuid.New().String()
	query := `INSERT INTO sections (id, name, school_year, created_at) VALUES ($1, $2, $3, $4)`
	if _, err := repo.ext(exec).ExecContext(ctx, query, s.ID, s.Name, s.SchoolYear, s.CreatedAt.UTC()); err != nil {
		return school.Section{}, errors.Wrap(err, "inserting section")
	}
	return s, nil
}

func (repo schoolRepository) GetSection(ctx context.Context, id string, exec ...core.DBExecutor) (school.Section, error) {
	var s school.Section
	query := `SELECT id, name, school_year AS schoolyear, created_at AS createdat FROM sections WHERE id = $1`
	if err := sqlx.GetContext(ctx, repo.ext(exec), &s, query, id); err != nil {
		return school.Section{}, repo.trapNoRowsErr(err, "finding section")
	}
	return s, nil
}

func (repo schoolRepository) CreateSubject(ctx context.Context, s school.Subject, exec ...core.DBExecutor) (school.Subject, error) {
	s.ID = uuid.New().String()
	query := `INSERT INTO subjects (id, code, name, created_at) VALUES ($1, $2, $3, $4)`
	if _, err := repo.ext(exec).ExecContext(ctx, query, s.ID, s.Code, s.Name, s.CreatedAt.UTC()); err != nil {
		return school.Subject{}, errors.Wrap(err, "inserting subject")
	}
	return s, nil
}

func (repo schoolRepository) GetSubject(ctx context.Context, id string, exec ...core.DBExecutor) (school.Subject, error) {
	var s school.Subject
	query := `SELECT id, code, name, created_at AS createdat FROM subjects WHERE id = $1`
	if err := sqlx.GetContext(ctx, repo.ext(exec), &s, query, id); err != nil {
		return school.Subject{}, repo.trapNoRowsErr(err, "finding subject")
	}
	return s, nil
}

func (repo schoolRepository) CreateEnrollment(ctx context.Context, e school.Enrollment, exec ...core.DBExecutor) (school.Enrollment, error) {
	e.ID = uuid.New().String()
	query := `INSERT INTO student_section_enrollments (` + enrollmentColumns + `)
	VALUES (:id, :student_id, :section_id, :school_year, :is_active, :effective_from, :effective_to, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, repo.ext(exec), query, repo.packEnrollment(e)); err != nil {
		if pqErr, ok := errors.Cause(err).(*pq.Error); ok &&
			pqErr.Code == "23505" && pqErr.Constraint == "uq_enrollments_active" {
			return school.Enrollment{}, school.ErrAlreadyEnrolled
		}
		return school.Enrollment{}, errors.Wrap(err, "inserting enrollment")
	}
	return e, nil
}

func (repo schoolRepository) GetEnrollment(ctx context.Context, id string, exec ...core.DBExecutor) (school.Enrollment, error) {
	var row enrollmentRow
	query := `SELECT ` + enrollmentColumns + ` FROM student_section_enrollments WHERE id = $1`
	if err := sqlx.GetContext(ctx, repo.ext(exec), &row, query, id); err != nil {
		return school.Enrollment{}, repo.trapNoRowsErr(err, "finding enrollment")
	}
	return repo.unpackEnrollment(row), nil
}

func (repo schoolRepository) GetActiveEnrollment(ctx context.Context, studentID, schoolYear string, exec ...core.DBExecutor) (school.Enrollment, error) {
	var row enrollmentRow
	query := `SELECT ` + enrollmentColumns + ` FROM student_section_enrollments
	WHERE student_id = $1 AND school_year = $2 AND is_active`
	if err := sqlx.GetContext(ctx, repo.ext(exec), &row, query, studentID, schoolYear); err != nil {
		return school.Enrollment{}, repo.trapNoRowsErr(err, "finding active enrollment")
	}
	return repo.unpackEnrollment(row), nil
}

func (repo schoolRepository) UpdateEnrollment(ctx context.Context, e school.Enrollment, exec ...core.DBExecutor) (school.Enrollment, error) {
	query := `UPDATE student_section_enrollments
	SET is_active = :is_active, effective_from = :effective_from, effective_to = :effective_to
	WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, repo.ext(exec), query, repo.packEnrollment(e))
	if err != nil {
		return school.Enrollment{}, errors.Wrap(err, "updating enrollment")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return school.Enrollment{}, school.ErrNotFound
	}
	return e, nil
}

func (repo schoolRepository) QuerySectionRoster(ctx context.Context, sectionID string, date time.Time, exec ...core.DBExecutor) ([]school.Student, error) {
	query := `SELECT s.id, s.name, s.guardian_email, s.is_active, s.created_at, s.updated_at
	FROM students s
	JOIN student_section_enrollments e ON e.student_id = s.id
	WHERE e.section_id = $1 AND e.is_active AND s.is_active
	AND e.effective_from <= $2 AND ($2 <= e.effective_to OR e.effective_to IS NULL)
	ORDER BY s.name`

	var rows []studentRow
	if err := sqlx.SelectContext(ctx, repo.ext(exec), &rows, query, sectionID, date); err != nil {
		return nil, errors.Wrap(err, "querying section roster")
	}
	students := make([]school.Student, 0, len(rows))
	for _, row := range rows {
		students = append(students, repo.unpackStudent(row))
	}
	return students, nil
}

func (repo schoolRepository) IsActivelyEnrolled(ctx context.Context, studentID, sectionID string, date time.Time, exec ...core.DBExecutor) (bool, error) {
	query := `SELECT EXISTS (
	SELECT 1 FROM students s
	JOIN student_section_enrollments e ON e.student_id = s.id
	WHERE s.id = $1 AND e.section_id = $2 AND e.is_active AND s.is_active
	AND e.effective_from <= $3 AND ($3 <= e.effective_to OR e.effective_to IS NULL))`

	var enrolled bool
	if err := sqlx.GetContext(ctx, repo.ext(exec), &enrolled, query, studentID, sectionID, date); err != nil {
		return false, errors.Wrap(err, "checking enrollment")
	}
	return enrolled, nil
}
