package main

import (
	"context"
	"time"

	"github.com/trezcool/mahudhurio/core/attendance"
)

const dateLayout = "2006-01-02"

func (cli *commandLine) showAttendance(sectionID, dateStr, subjectID string) error {
	date, err := time.Parse(dateLayout, dateStr)
	if err != nil {
		return err
	}

	cur, err := cli.attSvc.GetCurrentAttendance(context.Background(), sectionID, date, subjectID)
	if err != nil {
		return err
	}
	if cur.IsEmpty() {
		logger.Printf("no attendance taken for section %s on %s\n", sectionID, dateStr)
		return nil
	}
	printVersion(cur.Session, cur.Records)
	return nil
}

func (cli *commandLine) showHistory(teacherID, sectionID, subjectID, dateStr string) error {
	date, err := time.Parse(dateLayout, dateStr)
	if err != nil {
		return err
	}

	ctx := context.Background()
	hist, err := cli.attSvc.GetHistory(ctx, attendance.ScopeKey{
		TeacherID: teacherID,
		SectionID: sectionID,
		SubjectID: subjectID,
		Date:      date,
	})
	if err != nil {
		return err
	}
	logger.Printf("%d version(s)\n", hist.Len())
	for {
		v, err := hist.Next(ctx)
		if err != nil {
			return err
		}
		if v == nil {
			return nil
		}
		printVersion(v.Session, v.Records)
	}
}

func printVersion(sess attendance.Session, records []attendance.RecordDetail) {
	current := ""
	if sess.IsCurrent {
		current = " (current)"
	}
	logger.Printf("version %d%s: %s %s, %d record(s)\n", sess.Version, current, sess.Status, sess.Type, len(records))
	for _, rec := range records {
		remarks := ""
		if rec.Remarks != "" {
			remarks = " - " + rec.Remarks
		}
		logger.Printf("  %-25s %s%s\n", rec.StudentName, rec.StatusCode, remarks)
	}
}
