package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"

	"github.com/trezcool/mahudhurio/core/attendance"
	"github.com/trezcool/mahudhurio/core/school"
)

var errHelp = errors.New("help provided")

type commandLine struct {
	db     *sql.DB
	schSvc school.Service
	attSvc attendance.Service
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate COMMAND [ARGS] - run DB migrations (up, down, status, ...)")
	fmt.Println("  addstudent -name NAME [-email GUARDIAN_EMAIL] - register a new student")
	fmt.Println("  addteacher -name NAME [-email EMAIL] - register a new teacher")
	fmt.Println("  addsection -name NAME -year YEAR - create a section (year: 2025-2026)")
	fmt.Println("  addsubject -code CODE -name NAME - create a subject")
	fmt.Println("  enroll -student ID -section ID -year YEAR - enroll a student in a section")
	fmt.Println("  attendance -section ID -date YYYY-MM-DD [-subject ID] - show the current attendance")
	fmt.Println("  history -teacher ID -section ID -subject ID -date YYYY-MM-DD - show all versions of a session")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addStudentCmd := flag.NewFlagSet("addstudent", flag.ExitOnError)
	addStudentName := addStudentCmd.String("name", "", "The student's full name.")
	addStudentEmail := addStudentCmd.String("email", "", "The guardian's email, for absence notices.")

	addTeacherCmd := flag.NewFlagSet("addteacher", flag.ExitOnError)
	addTeacherName := addTeacherCmd.String("name", "", "The teacher's full name.")
	addTeacherEmail := addTeacherCmd.String("email", "", "The teacher's email.")

	addSectionCmd := flag.NewFlagSet("addsection", flag.ExitOnError)
	addSectionName := addSectionCmd.String("name", "", "The section's name.")
	addSectionYear := addSectionCmd.String("year", "", "The school year, eg. 2025-2026.")

	addSubjectCmd := flag.NewFlagSet("addsubject", flag.ExitOnError)
	addSubjectCode := addSubjectCmd.String("code", "", "The subject's short code, eg. math.")
	addSubjectName := addSubjectCmd.String("name", "", "The subject's name.")

	enrollCmd := flag.NewFlagSet("enroll", flag.ExitOnError)
	enrollStudent := enrollCmd.String("student", "", "The student's ID.")
	enrollSection := enrollCmd.String("section", "", "The section's ID.")
	enrollYear := enrollCmd.String("year", "", "The school year, eg. 2025-2026.")

	attendanceCmd := flag.NewFlagSet("attendance", flag.ExitOnError)
	attendanceSection := attendanceCmd.String("section", "", "The section's ID.")
	attendanceDate := attendanceCmd.String("date", "", "The session date, eg. 2026-03-09.")
	attendanceSubject := attendanceCmd.String("subject", "", "The subject's ID (optional).")

	historyCmd := flag.NewFlagSet("history", flag.ExitOnError)
	historyTeacher := historyCmd.String("teacher", "", "The teacher's ID.")
	historySection := historyCmd.String("section", "", "The section's ID.")
	historySubject := historyCmd.String("subject", "", "The subject's ID.")
	historyDate := historyCmd.String("date", "", "The session date, eg. 2026-03-09.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "addstudent":
		if err := addStudentCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addStudentName == "" {
			addStudentCmd.Usage()
			return errHelp
		}
		return cli.addStudent(*addStudentName, *addStudentEmail)
	case "addteacher":
		if err := addTeacherCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addTeacherName == "" {
			addTeacherCmd.Usage()
			return errHelp
		}
		return cli.addTeacher(*addTeacherName, *addTeacherEmail)
	case "addsection":
		if err := addSectionCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addSectionName == "" || *addSectionYear == "" {
			addSectionCmd.Usage()
			return errHelp
		}
		return cli.addSection(*addSectionName, *addSectionYear)
	case "addsubject":
		if err := addSubjectCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addSubjectCode == "" || *addSubjectName == "" {
			addSubjectCmd.Usage()
			return errHelp
		}
		return cli.addSubject(*addSubjectCode, *addSubjectName)
	case "enroll":
		if err := enrollCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *enrollStudent == "" || *enrollSection == "" || *enrollYear == "" {
			enrollCmd.Usage()
			return errHelp
		}
		return cli.enroll(*enrollStudent, *enrollSection, *enrollYear)
	case "attendance":
		if err := attendanceCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *attendanceSection == "" || *attendanceDate == "" {
			attendanceCmd.Usage()
			return errHelp
		}
		return cli.showAttendance(*attendanceSection, *attendanceDate, *attendanceSubject)
	case "history":
		if err := historyCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *historyTeacher == "" || *historySection == "" || *historySubject == "" || *historyDate == "" {
			historyCmd.Usage()
			return errHelp
		}
		return cli.showHistory(*historyTeacher, *historySection, *historySubject, *historyDate)
	default:
		cli.printUsage()
		return errHelp
	}
}
