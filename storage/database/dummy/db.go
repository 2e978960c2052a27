package dummydb

import (
	"context"
	"database/sql"
	"sync"

	"github.com/pkg/errors"

	"github.com/trezcool/mahudhurio/core"
	"github.com/trezcool/mahudhurio/core/attendance"
	"github.com/trezcool/mahudhurio/core/school"
)

var errNotSupported = errors.New("dummydb: raw SQL is not supported")

type (
	// DB is an in-memory store for tests and local hacking. A transaction
	// holds the store mutex for its whole lifetime, so transactions are
	// fully serialized; Rollback restores the pre-transaction snapshot.
	DB struct {
		mu   sync.Mutex
		data *tables
	}

	tables struct {
		students    map[string]school.Student
		teachers    map[string]school.Teacher
		sections    map[string]school.Section
		subjects    map[string]school.Subject
		enrollments map[string]school.Enrollment
		statuses    map[string]attendance.Status
		sessions    map[string]attendance.Session
		records     map[string]attendance.Record
	}
)

var _ core.DB = (*DB)(nil) // interface compliance check

func Open() (*DB, error) {
	return &DB{data: newTables()}, nil
}

func newTables() *tables {
	t := &tables{
		students:    make(map[string]school.Student),
		teachers:    make(map[string]school.Teacher),
		sections:    make(map[string]school.Section),
		subjects:    make(map[string]school.Subject),
		enrollments: make(map[string]school.Enrollment),
		statuses:    make(map[string]attendance.Status),
		sessions:    make(map[string]attendance.Session),
		records:     make(map[string]attendance.Record),
	}
	// reference data normally seeded by migration
	for _, s := range []attendance.Status{
		{ID: attendance.StatusPresent, Code: attendance.StatusPresent, Name: "Present"},
		{ID: attendance.StatusAbsent, Code: attendance.StatusAbsent, Name: "Absent"},
		{ID: attendance.StatusLate, Code: attendance.StatusLate, Name: "Late"},
		{ID: attendance.StatusExcused, Code: attendance.StatusExcused, Name: "Excused"},
	} {
		t.statuses[s.ID] = s
	}
	return t
}

func (t *tables) clone() *tables {
	c := newTables()
	for k, v := range t.students {
		c.students[k] = v
	}
	for k, v := range t.teachers {
		c.teachers[k] = v
	}
	for k, v := range t.sections {
		c.sections[k] = v
	}
	for k, v := range t.subjects {
		c.subjects[k] = v
	}
	for k, v := range t.enrollments {
		c.enrollments[k] = v
	}
	for k, v := range t.statuses {
		c.statuses[k] = v
	}
	for k, v := range t.sessions {
		c.sessions[k] = v
	}
	for k, v := range t.records {
		c.records[k] = v
	}
	return c
}

// lock takes the store mutex unless the caller already holds it through an
// open transaction.
func (db *DB) lock(exec []core.DBExecutor) func() {
	if len(exec) > 0 {
		return func() {}
	}
	db.mu.Lock()
	return db.mu.Unlock
}

func (db *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (core.DBTransactor, error) {
	db.mu.Lock()
	return &Tx{db: db, snap: db.data.clone()}, nil
}

type Tx struct {
	db   *DB
	snap *tables
	done bool
}

func (tx *Tx) Commit() error {
	if tx.done {
		return sql.ErrTxDone
	}
	tx.done = true
	tx.db.mu.Unlock()
	return nil
}

func (tx *Tx) Rollback() error {
	if tx.done {
		return sql.ErrTxDone
	}
	tx.done = true
	tx.db.data = tx.snap
	tx.db.mu.Unlock()
	return nil
}

// raw SQL executor stubs; repositories go through the typed methods instead.

func (db *DB) Exec(query string, args ...interface{}) (sql.Result, error) {
	return nil, errNotSupported
}
func (db *DB) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return nil, errNotSupported
}
func (db *DB) Query(query string, args ...interface{}) (*sql.Rows, error) {
	return nil, errNotSupported
}
func (db *DB) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return nil, errNotSupported
}
func (db *DB) QueryRow(query string, args ...interface{}) *sql.Row                             { return nil }
func (db *DB) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row { return nil }

func (tx *Tx) Exec(query string, args ...interface{}) (sql.Result, error) {
	return nil, errNotSupported
}
func (tx *Tx) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return nil, errNotSupported
}
func (tx *Tx) Query(query string, args ...interface{}) (*sql.Rows, error) {
	return nil, errNotSupported
}
func (tx *Tx) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return nil, errNotSupported
}
func (tx *Tx) QueryRow(query string, args ...interface{}) *sql.Row                             { return nil }
func (tx *Tx) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row { return nil }
