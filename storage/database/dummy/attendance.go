package dummydb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/mahudhurio/core"
	"github.com/trezcool/mahudhurio/core/attendance"
)

type attendanceRepository struct {
	db *DB
}

var _ attendance.Repository = (*attendanceRepository)(nil) // interface compliance check

func NewAttendanceRepository(db *DB) attendance.Repository {
	return &attendanceRepository{db: db}
}

func sameScope(s attendance.Session, scope attendance.ScopeKey) bool {
	return s.TeacherID == scope.TeacherID &&
		s.SectionID == scope.SectionID &&
		s.SubjectID == scope.SubjectID &&
		s.Date.Equal(scope.Date)
}

func cloneSession(s attendance.Session) attendance.Session {
	if s.Metadata != nil {
		md := make(map[string]string, len(s.Metadata))
		for k, v := range s.Metadata {
			md[k] = v
		}
		s.Metadata = md
	}
	return s
}

func (repo *attendanceRepository) GetCurrentSession(ctx context.Context, scope attendance.ScopeKey, exec ...core.DBExecutor) (attendance.Session, error) {
	defer repo.db.lock(exec)()

	for _, s := range repo.db.data.sessions {
		if s.IsCurrent && sameScope(s, scope) {
			return cloneSession(s), nil
		}
	}
	return attendance.Session{}, attendance.ErrNotFound
}

func (repo *attendanceRepository) FindCurrentSession(ctx context.Context, sectionID string, date time.Time, subjectID string, exec ...core.DBExecutor) (attendance.Session, error) {
	defer repo.db.lock(exec)()

	var found attendance.Session
	for _, s := range repo.db.data.sessions {
		if !s.IsCurrent || s.SectionID != sectionID || !s.Date.Equal(date) {
			continue
		}
		if subjectID != "" && s.SubjectID != subjectID {
			continue
		}
		if found.ID == "" || s.CreatedAt.After(found.CreatedAt) {
			found = s
		}
	}
	if found.ID == "" {
		return attendance.Session{}, attendance.ErrNotFound
	}
	return cloneSession(found), nil
}

func (repo *attendanceRepository) QuerySessionVersions(ctx context.Context, scope attendance.ScopeKey, exec ...core.DBExecutor) ([]attendance.Session, error) {
	defer repo.db.lock(exec)()

	var sessions []attendance.Session
	for _, s := range repo.db.data.sessions {
		if sameScope(s, scope) {
			sessions = append(sessions, cloneSession(s))
		}
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].Version < sessions[j].Version })
	return sessions, nil
}

func (repo *attendanceRepository) QueryRecordDetails(ctx context.Context, sessionID string, exec ...core.DBExecutor) ([]attendance.RecordDetail, error) {
	defer repo.db.lock(exec)()

	var details []attendance.RecordDetail
	for _, rec := range repo.db.data.records {
		if rec.SessionID != sessionID {
			continue
		}
		detail := attendance.RecordDetail{Record: rec}
		if st, ok := repo.db.data.students[rec.StudentID]; ok {
			detail.StudentName = st.Name
			detail.GuardianEmail = st.GuardianEmail
		}
		if status, ok := repo.db.data.statuses[rec.StatusID]; ok {
			detail.StatusCode = status.Code
			detail.StatusName = status.Name
		}
		details = append(details, detail)
	}
	sort.Slice(details, func(i, j int) bool {
		if details[i].StudentName != details[j].StudentName {
			return details[i].StudentName < details[j].StudentName
		}
		return details[i].ID < details[j].ID
	})
	return details, nil
}

func (repo *attendanceRepository) QueryStatuses(ctx context.Context, exec ...core.DBExecutor) ([]attendance.Status, error) {
	defer repo.db.lock(exec)()

	statuses := make([]attendance.Status, 0, len(repo.db.data.statuses))
	for _, s := range repo.db.data.statuses {
		statuses = append(statuses, s)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Code < statuses[j].Code })
	return statuses, nil
}

func (repo *attendanceRepository) CreateSession(ctx context.Context, sess attendance.Session, exec ...core.DBExecutor) (attendance.Session, error) {
	defer repo.db.lock(exec)()

	if sess.IsCurrent {
		// mirrors the partial unique index on current sessions
		for _, s := range repo.db.data.sessions {
			if s.IsCurrent && sameScope(s, sess.Scope()) {
				return attendance.Session{}, attendance.ErrConcurrencyConflict
			}
		}
	}
	sess.ID = uuid.New().String()
	repo.db.data.sessions[sess.ID] = cloneSession(sess)
	return sess, nil
}

func (repo *attendanceRepository) SupersedeSession(ctx context.Context, sessionID string, exec ...core.DBExecutor) error {
	defer repo.db.lock(exec)()

	if s, ok := repo.db.data.sessions[sessionID]; ok && s.IsCurrent {
		s.IsCurrent = false
		repo.db.data.sessions[sessionID] = s
	}
	return nil
}

func (repo *attendanceRepository) CreateRecord(ctx context.Context, rec attendance.Record, exec ...core.DBExecutor) (attendance.Record, error) {
	defer repo.db.lock(exec)()

	rec.ID = uuid.New().String()
	repo.db.data.records[rec.ID] = rec
	return rec, nil
}

func (repo *attendanceRepository) SupersedeSessionRecords(ctx context.Context, sessionID string, exec ...core.DBExecutor) error {
	defer repo.db.lock(exec)()

	for id, rec := range repo.db.data.records {
		if rec.SessionID == sessionID && rec.IsCurrent {
			rec.IsCurrent = false
			repo.db.data.records[id] = rec
		}
	}
	return nil
}
