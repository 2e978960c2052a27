package school

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/mahudhurio/core"
)

var (
	// errors
	ErrNotFound        = errors.New("not found")
	ErrAlreadyEnrolled = errors.New("student already has an active enrollment for this school year")

	nowFunc = time.Now // mockable
)

type (
	Repository interface {
		CreateStudent(ctx context.Context, st Student, exec ...core.DBExecutor) (Student, error)
		GetStudent(ctx context.Context, id string, exec ...core.DBExecutor) (Student, error)
		CreateTeacher(ctx context.Context, t Teacher, exec ...core.DBExecutor) (Teacher, error)
		GetTeacher(ctx context.Context, id string, exec ...core.DBExecutor) (Teacher, error)
		CreateSection(ctx context.Context, s Section, exec ...core.DBExecutor) (Section, error)
		GetSection(ctx context.Context, id string, exec ...core.DBExecutor) (Section, error)
		CreateSubject(ctx context.Context, s Subject, exec ...core.DBExecutor) (Subject, error)
		GetSubject(ctx context.Context, id string, exec ...core.DBExecutor) (Subject, error)

		CreateEnrollment(ctx context.Context, e Enrollment, exec ...core.DBExecutor) (Enrollment, error)
		GetEnrollment(ctx context.Context, id string, exec ...core.DBExecutor) (Enrollment, error)
		// GetActiveEnrollment returns the student's active enrollment for the
		// school year, if any.
		GetActiveEnrollment(ctx context.Context, studentID, schoolYear string, exec ...core.DBExecutor) (Enrollment, error)
		UpdateEnrollment(ctx context.Context, e Enrollment, exec ...core.DBExecutor) (Enrollment, error)
		// QuerySectionRoster returns the students actively enrolled in the
		// section as of the given date, ordered by name.
		QuerySectionRoster(ctx context.Context, sectionID string, date time.Time, exec ...core.DBExecutor) ([]Student, error)
		IsActivelyEnrolled(ctx context.Context, studentID, sectionID string, date time.Time, exec ...core.DBExecutor) (bool, error)
	}

	Service interface {
		CreateStudent(ctx context.Context, n NewStudent) (Student, error)
		GetStudent(ctx context.Context, id string) (Student, error)
		CreateTeacher(ctx context.Context, n NewTeacher) (Teacher, error)
		GetTeacher(ctx context.Context, id string) (Teacher, error)
		CreateSection(ctx context.Context, n NewSection) (Section, error)
		GetSection(ctx context.Context, id string) (Section, error)
		CreateSubject(ctx context.Context, n NewSubject) (Subject, error)

		Enroll(ctx context.Context, n NewEnrollment) (Enrollment, error)
		Withdraw(ctx context.Context, enrollmentID string) (Enrollment, error)
		SectionRoster(ctx context.Context, sectionID string, date time.Time) ([]Student, error)
		IsActivelyEnrolled(ctx context.Context, studentID, sectionID string, date time.Time, exec ...core.DBExecutor) (bool, error)
	}

	service struct {
		repo Repository
	}
)

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (svc *service) CreateStudent(ctx context.Context, n NewStudent) (Student, error) {
	if err := n.Validate(); err != nil {
		return Student{}, err
	}
	now := nowFunc().UTC()
	return svc.repo.CreateStudent(ctx, Student{
		Name:          n.Name,
		GuardianEmail: n.GuardianEmail,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
}

func (svc *service) GetStudent(ctx context.Context, id string) (Student, error) {
	return svc.repo.GetStudent(ctx, id)
}

func (svc *service) CreateTeacher(ctx context.Context, n NewTeacher) (Teacher, error) {
	if err := n.Validate(); err != nil {
		return Teacher{}, err
	}
	now := nowFunc().UTC()
	return svc.repo.CreateTeacher(ctx, Teacher{
		Name:      n.Name,
		Email:     n.Email,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

func (svc *service) GetTeacher(ctx context.Context, id string) (Teacher, error) {
	return svc.repo.GetTeacher(ctx, id)
}

func (svc *service) CreateSection(ctx context.Context, n NewSection) (Section, error) {
	if err := n.Validate(); err != nil {
		return Section{}, err
	}
	return svc.repo.CreateSection(ctx, Section{
		Name:       n.Name,
		SchoolYear: n.SchoolYear,
		CreatedAt:  nowFunc().UTC(),
	})
}

func (svc *service) GetSection(ctx context.Context, id string) (Section, error) {
	return svc.repo.GetSection(ctx, id)
}

func (svc *service) CreateSubject(ctx context.Context, n NewSubject) (Subject, error) {
	if err := n.Validate(); err != nil {
		return Subject{}, err
	}
	return svc.repo.CreateSubject(ctx, Subject{
		Code:      n.Code,
		Name:      n.Name,
		CreatedAt: nowFunc().UTC(),
	})
}

// Enroll registers the student in the section for the school year. A student
// may hold at most one active enrollment per school year; the check here is
// backed by a partial unique index in storage.
func (svc *service) Enroll(ctx context.Context, n NewEnrollment) (Enrollment, error) {
	if err := n.Validate(); err != nil {
		return Enrollment{}, err
	}

	if _, err := svc.repo.GetActiveEnrollment(ctx, n.StudentID, n.SchoolYear); err != ErrNotFound {
		if err != nil {
			return Enrollment{}, err
		}
		return Enrollment{}, svc.alreadyEnrolledError()
	}

	now := nowFunc().UTC()
	from := n.EffectiveFrom.UTC()
	if n.EffectiveFrom.IsZero() {
		from = now
	}
	enr, err := svc.repo.CreateEnrollment(ctx, Enrollment{
		StudentID:     n.StudentID,
		SectionID:     n.SectionID,
		SchoolYear:    n.SchoolYear,
		IsActive:      true,
		EffectiveFrom: from,
		CreatedAt:     now,
	})
	if err != nil {
		if errors.Cause(err) == ErrAlreadyEnrolled {
			return Enrollment{}, svc.alreadyEnrolledError()
		}
		return Enrollment{}, err
	}
	return enr, nil
}

func (svc *service) alreadyEnrolledError() error {
	return core.NewValidationError(ErrAlreadyEnrolled, core.FieldError{
		Field: "school_year",
		Error: ErrAlreadyEnrolled.Error(),
	})
}

// Withdraw deactivates an enrollment and stamps its effective-to date.
func (svc *service) Withdraw(ctx context.Context, enrollmentID string) (Enrollment, error) {
	enr, err := svc.repo.GetEnrollment(ctx, enrollmentID)
	if err != nil {
		return Enrollment{}, err
	}
	now := nowFunc().UTC()
	enr.IsActive = false
	enr.EffectiveTo = &now
	return svc.repo.UpdateEnrollment(ctx, enr)
}

func (svc *service) SectionRoster(ctx context.Context, sectionID string, date time.Time) ([]Student, error) {
	return svc.repo.QuerySectionRoster(ctx, sectionID, date.UTC())
}

func (svc *service) IsActivelyEnrolled(ctx context.Context, studentID, sectionID string, date time.Time, exec ...core.DBExecutor) (bool, error) {
	return svc.repo.IsActivelyEnrolled(ctx, studentID, sectionID, date.UTC(), exec...)
}
