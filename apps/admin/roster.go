package main

import (
	"context"

	"github.com/trezcool/mahudhurio/core/school"
)

func (cli *commandLine) addStudent(name, guardianEmail string) error {
	st, err := cli.schSvc.CreateStudent(context.Background(), school.NewStudent{
		Name:          name,
		GuardianEmail: guardianEmail,
	})
	if err != nil {
		return err
	}
	logger.Printf("created student %q (%s)\n", st.Name, st.ID)
	return nil
}

func (cli *commandLine) addTeacher(name, email string) error {
	t, err := cli.schSvc.CreateTeacher(context.Background(), school.NewTeacher{
		Name:  name,
		Email: email,
	})
	if err != nil {
		return err
	}
	logger.Printf("created teacher %q (%s)\n", t.Name, t.ID)
	return nil
}

func (cli *commandLine) addSection(name, year string) error {
	s, err := cli.schSvc.CreateSection(context.Background(), school.NewSection{
		Name:       name,
		SchoolYear: year,
	})
	if err != nil {
		return err
	}
	logger.Printf("created section %q (%s)\n", s.Name, s.ID)
	return nil
}

func (cli *commandLine) addSubject(code, name string) error {
	s, err := cli.schSvc.CreateSubject(context.Background(), school.NewSubject{
		Code: code,
		Name: name,
	})
	if err != nil {
		return err
	}
	logger.Printf("created subject %q (%s)\n", s.Name, s.ID)
	return nil
}

func (cli *commandLine) enroll(studentID, sectionID, year string) error {
	enr, err := cli.schSvc.Enroll(context.Background(), school.NewEnrollment{
		StudentID:  studentID,
		SectionID:  sectionID,
		SchoolYear: year,
	})
	if err != nil {
		return err
	}
	logger.Printf("enrolled student %s in section %s for %s\n", enr.StudentID, enr.SectionID, enr.SchoolYear)
	return nil
}
