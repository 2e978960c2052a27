package testutil

import (
	"context"
	"log"
	"os"
	"testing"
	"time"

	"github.com/trezcool/mahudhurio/core"
	"github.com/trezcool/mahudhurio/core/school"
)

// Logger is a core.Logger that only writes to stdout; it never reports
// anywhere and never kills the process.
type Logger struct {
	std *log.Logger
}

var _ core.Logger = (*Logger)(nil)

func NewLogger() *Logger {
	return &Logger{std: log.New(os.Stdout, "TEST : ", log.LstdFlags)}
}

func (l Logger) print(msg string, args []interface{}) {
	l.std.Println(msg)
	for _, arg := range args {
		l.std.Printf("%+v\n", arg)
	}
}

func (l Logger) Enable(enabled bool)                  {}
func (l Logger) Debug(msg string, args ...interface{}) { l.print(msg, args) }
func (l Logger) Info(msg string, args ...interface{})  { l.print(msg, args) }
func (l Logger) Warn(msg string, args ...interface{})  { l.print(msg, args) }
func (l Logger) Error(msg string, args ...interface{}) { l.print(msg, args) }
func (l Logger) Fatal(msg string, args ...interface{}) { l.print(msg, args) }

func CreateStudent(
	t *testing.T,
	repo school.Repository,
	name, guardianEmail string,
	isActive bool,
) school.Student {
	tstamp := time.Now().UTC()
	st, err := repo.CreateStudent(context.Background(), school.Student{
		Name:          name,
		GuardianEmail: guardianEmail,
		IsActive:      isActive,
		CreatedAt:     tstamp,
		UpdatedAt:     tstamp,
	})
	if err != nil {
		t.Fatalf("CreateStudent() failed: %v", err)
	}
	return st
}

func CreateTeacher(t *testing.T, repo school.Repository, name, email string) school.Teacher {
	tstamp := time.Now().UTC()
	teacher, err := repo.CreateTeacher(context.Background(), school.Teacher{
		Name:      name,
		Email:     email,
		IsActive:  true,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	})
	if err != nil {
		t.Fatalf("CreateTeacher() failed: %v", err)
	}
	return teacher
}

func CreateSection(t *testing.T, repo school.Repository, name, schoolYear string) school.Section {
	sec, err := repo.CreateSection(context.Background(), school.Section{
		Name:       name,
		SchoolYear: schoolYear,
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateSection() failed: %v", err)
	}
	return sec
}

func CreateSubject(t *testing.T, repo school.Repository, code, name string) school.Subject {
	sub, err := repo.CreateSubject(context.Background(), school.Subject{
		Code:      code,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateSubject() failed: %v", err)
	}
	return sub
}

func Enroll(
	t *testing.T,
	repo school.Repository,
	studentID, sectionID, schoolYear string,
	effectiveFrom ...time.Time,
) school.Enrollment {
	tstamp := time.Now().UTC()
	from := tstamp
	if len(effectiveFrom) > 0 {
		from = effectiveFrom[0].UTC()
	}
	enr, err := repo.CreateEnrollment(context.Background(), school.Enrollment{
		StudentID:     studentID,
		SectionID:     sectionID,
		SchoolYear:    schoolYear,
		IsActive:      true,
		EffectiveFrom: from,
		CreatedAt:     tstamp,
	})
	if err != nil {
		t.Fatalf("Enroll() failed: %v", err)
	}
	return enr
}
