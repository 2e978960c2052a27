package school

import (
	"time"

	"github.com/trezcool/mahudhurio/core"
)

type Student struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	GuardianEmail string    `json:"guardian_email,omitempty"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"` // UTC
	UpdatedAt     time.Time `json:"updated_at"` // UTC
}

type Teacher struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

type Section struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	SchoolYear string    `json:"school_year"`
	CreatedAt  time.Time `json:"created_at"` // UTC
}

type Subject struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"` // UTC
}

// Enrollment represents a student's membership in a section for a school
// year. A student holds at most one active enrollment per school year.
type Enrollment struct {
	ID            string     `json:"id"`
	StudentID     string     `json:"student_id"`
	SectionID     string     `json:"section_id"`
	SchoolYear    string     `json:"school_year"`
	IsActive      bool       `json:"is_active"`
	EffectiveFrom time.Time  `json:"effective_from"`
	EffectiveTo   *time.Time `json:"effective_to,omitempty"`
	CreatedAt     time.Time  `json:"created_at"` // UTC
}

// ActiveOn reports whether the enrollment covers the given date.
func (e Enrollment) ActiveOn(date time.Time) bool {
	if !e.IsActive || date.Before(e.EffectiveFrom) {
		return false
	}
	return e.EffectiveTo == nil || !date.After(*e.EffectiveTo)
}

// NewStudent contains information needed to register a new Student.
type NewStudent struct {
	Name          string `json:"name" validate:"required"`
	GuardianEmail string `json:"guardian_email" validate:"omitempty,email"`
}

func (n *NewStudent) Validate() error {
	n.Name = core.CleanString(n.Name)
	n.GuardianEmail = core.CleanString(n.GuardianEmail, true /* lower */)
	if err := core.Validate.Struct(n); err != nil {
		return core.TranslateValidatorErrors(err)
	}
	return nil
}

type NewTeacher struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"omitempty,email"`
}

func (n *NewTeacher) Validate() error {
	n.Name = core.CleanString(n.Name)
	n.Email = core.CleanString(n.Email, true /* lower */)
	if err := core.Validate.Struct(n); err != nil {
		return core.TranslateValidatorErrors(err)
	}
	return nil
}

type NewSection struct {
	Name       string `json:"name" validate:"required"`
	SchoolYear string `json:"school_year" validate:"required,schoolyear"`
}

func (n *NewSection) Validate() error {
	n.Name = core.CleanString(n.Name)
	n.SchoolYear = core.CleanString(n.SchoolYear)
	if err := core.Validate.Struct(n); err != nil {
		return core.TranslateValidatorErrors(err)
	}
	return nil
}

type NewSubject struct {
	Code string `json:"code" validate:"required,alphanum"`
	Name string `json:"name" validate:"required"`
}

func (n *NewSubject) Validate() error {
	n.Code = core.CleanString(n.Code, true /* lower */)
	n.Name = core.CleanString(n.Name)
	if err := core.Validate.Struct(n); err != nil {
		return core.TranslateValidatorErrors(err)
	}
	return nil
}

// NewEnrollment contains information needed to enroll a student in a section.
type NewEnrollment struct {
	StudentID     string    `json:"student_id" validate:"required"`
	SectionID     string    `json:"section_id" validate:"required"`
	SchoolYear    string    `json:"school_year" validate:"required,schoolyear"`
	EffectiveFrom time.Time `json:"effective_from"`
}

func (n *NewEnrollment) Validate() error {
	n.StudentID = core.CleanString(n.StudentID)
	n.SectionID = core.CleanString(n.SectionID)
	n.SchoolYear = core.CleanString(n.SchoolYear)
	if err := core.Validate.Struct(n); err != nil {
		return core.TranslateValidatorErrors(err)
	}
	return nil
}
