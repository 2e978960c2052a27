package dummydb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/mahudhurio/core"
	"github.com/trezcool/mahudhurio/core/school"
)

type schoolRepository struct {
	db *DB
}

var _ school.Repository = (*schoolRepository)(nil) // interface compliance check

func NewSchoolRepository(db *DB) school.Repository {
	return &schoolRepository{db: db}
}

func (repo *schoolRepository) CreateStudent(ctx context.Context, st school.Student, exec ...core.DBExecutor) (school.Student, error) {
	defer repo.db.lock(exec)()

	st.ID = uuid.New().String()
	repo.db.data.students[st.ID] = st
	return st, nil
}

func (repo *schoolRepository) GetStudent(ctx context.Context, id string, exec ...core.DBExecutor) (school.Student, error) {
	defer repo.db.lock(exec)()

	if st, ok := repo.db.data.students[id]; ok {
		return st, nil
	}
	return school.Student{}, school.ErrNotFound
}

func (repo *schoolRepository) CreateTeacher(ctx context.Context, t school.Teacher, exec ...core.DBExecutor) (school.Teacher, error) {
	defer repo.db.lock(exec)()

	t.ID = uuid.New().String()
	repo.db.data.teachers[t.ID] = t
	return t, nil
}

func (repo *schoolRepository) GetTeacher(ctx context.Context, id string, exec ...core.DBExecutor) (school.Teacher, error) {
	defer repo.db.lock(exec)()

	if t, ok := repo.db.data.teachers[id]; ok {
		return t, nil
	}
	return school.Teacher{}, school.ErrNotFound
}

func (repo *schoolRepository) CreateSection(ctx context.Context, s school.Section, exec ...core.DBExecutor) (school.Section, error) {
	defer repo.db.lock(exec)()

	s.ID = uuid.New().String()
	repo.db.data.sections[s.ID] = s
	return s, nil
}

func (repo *schoolRepository) GetSection(ctx context.Context, id string, exec ...core.DBExecutor) (school.Section, error) {
	defer repo.db.lock(exec)()

	if s, ok := repo.db.data.sections[id]; ok {
		return s, nil
	}
	return school.Section{}, school.ErrNotFound
}

func (repo *schoolRepository) CreateSubject(ctx context.Context, s school.Subject, exec ...core.DBExecutor) (school.Subject, error) {
	defer repo.db.lock(exec)()

	s.ID = uuid.New().String()
	repo.db.data.subjects[s.ID] = s
	return s, nil
}

func (repo *schoolRepository) GetSubject(ctx context.Context, id string, exec ...core.DBExecutor) (school.Subject, error) {
	defer repo.db.lock(exec)()

	if s, ok := repo.db.data.subjects[id]; ok {
		return s, nil
	}
	return school.Subject{}, school.ErrNotFound
}

func (repo *schoolRepository) CreateEnrollment(ctx context.Context, e school.Enrollment, exec ...core.DBExecutor) (school.Enrollment, error) {
	defer repo.db.lock(exec)()

	if e.IsActive {
		// mirrors the partial unique index on active enrollments
		for _, other := range repo.db.data.enrollments {
			if other.IsActive && other.StudentID == e.StudentID && other.SchoolYear == e.SchoolYear {
				return school.Enrollment{}, school.ErrAlreadyEnrolled
			}
		}
	}
	e.ID = uuid.New().String()
	repo.db.data.enrollments[e.ID] = e
	return e, nil
}

func (repo *schoolRepository) GetEnrollment(ctx context.Context, id string, exec ...core.DBExecutor) (school.Enrollment, error) {
	defer repo.db.lock(exec)()

	if e, ok := repo.db.data.enrollments[id]; ok {
		return e, nil
	}
	return school.Enrollment{}, school.ErrNotFound
}

func (repo *schoolRepository) GetActiveEnrollment(ctx context.Context, studentID, schoolYear string, exec ...core.DBExecutor) (school.Enrollment, error) {
	defer repo.db.lock(exec)()

	for _, e := range repo.db.data.enrollments {
		if e.IsActive && e.StudentID == studentID && e.SchoolYear == schoolYear {
			return e, nil
		}
	}
	return school.Enrollment{}, school.ErrNotFound
}

func (repo *schoolRepository) UpdateEnrollment(ctx context.Context, e school.Enrollment, exec ...core.DBExecutor) (school.Enrollment, error) {
	defer repo.db.lock(exec)()

	if _, ok := repo.db.data.enrollments[e.ID]; !ok {
		return school.Enrollment{}, school.ErrNotFound
	}
	repo.db.data.enrollments[e.ID] = e
	return e, nil
}

func (repo *schoolRepository) QuerySectionRoster(ctx context.Context, sectionID string, date time.Time, exec ...core.DBExecutor) ([]school.Student, error) {
	defer repo.db.lock(exec)()

	var students []school.Student
	for _, e := range repo.db.data.enrollments {
		if e.SectionID != sectionID || !e.ActiveOn(date) {
			continue
		}
		if st, ok := repo.db.data.students[e.StudentID]; ok && st.IsActive {
			students = append(students, st)
		}
	}
	sort.Slice(students, func(i, j int) bool { return students[i].Name < students[j].Name })
	return students, nil
}

func (repo *schoolRepository) IsActivelyEnrolled(ctx context.Context, studentID, sectionID string, date time.Time, exec ...core.DBExecutor) (bool, error) {
	defer repo.db.lock(exec)()

	st, ok := repo.db.data.students[studentID]
	if !ok || !st.IsActive {
		return false, nil
	}
	for _, e := range repo.db.data.enrollments {
		if e.StudentID == studentID && e.SectionID == sectionID && e.ActiveOn(date) {
			return true, nil
		}
	}
	return false, nil
}
