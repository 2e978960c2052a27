package school_test

import (
	"context"
	"testing"
	"time"

	"github.com/trezcool/mahudhurio/core"
	"github.com/trezcool/mahudhurio/core/school"
	dummydb "github.com/trezcool/mahudhurio/storage/database/dummy"
	testutil "github.com/trezcool/mahudhurio/tests"
)

func setup(t *testing.T) (school.Service, school.Repository) {
	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("dummydb.Open() failed, %v", err)
	}
	repo := dummydb.NewSchoolRepository(db)
	return school.NewService(repo), repo
}

func Test_service_CreateStudent(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	st, err := svc.CreateStudent(ctx, school.NewStudent{Name: "  Amani ", GuardianEmail: " MOM@Test.CD "})
	if err != nil {
		t.Fatalf("CreateStudent() failed, %v", err)
	}
	if st.Name != "Amani" {
		t.Errorf("Name = %q, want trimmed", st.Name)
	}
	if st.GuardianEmail != "mom@test.cd" {
		t.Errorf("GuardianEmail = %q, want lowered", st.GuardianEmail)
	}
	if !st.IsActive {
		t.Error("IsActive = false, want true")
	}

	if _, err = svc.CreateStudent(ctx, school.NewStudent{Name: ""}); err == nil {
		t.Error("CreateStudent() with empty name: expected validation error")
	}
	if _, err = svc.CreateStudent(ctx, school.NewStudent{Name: "Bahati", GuardianEmail: "nope"}); err == nil {
		t.Error("CreateStudent() with bad email: expected validation error")
	}
}

func Test_service_CreateSection(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		year    string
		wantErr bool
	}{
		{name: "valid", year: "2025-2026"},
		{name: "bad format", year: "2025/2026", wantErr: true},
		{name: "non consecutive years", year: "2025-2027", wantErr: true},
		{name: "missing", year: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateSection(ctx, school.NewSection{Name: "Grade 5A", SchoolYear: tt.year})
			if tt.wantErr {
				if _, ok := err.(*core.ValidationError); !ok {
					t.Errorf("CreateSection() error = %v, want *core.ValidationError", err)
				}
			} else if err != nil {
				t.Errorf("CreateSection() unexpected error = %v", err)
			}
		})
	}
}

func Test_service_Enroll(t *testing.T) {
	svc, repo := setup(t)
	ctx := context.Background()

	st := testutil.CreateStudent(t, repo, "Amani", "", true)
	secA := testutil.CreateSection(t, repo, "Grade 5A", "2025-2026")
	secB := testutil.CreateSection(t, repo, "Grade 5B", "2025-2026")

	enr, err := svc.Enroll(ctx, school.NewEnrollment{StudentID: st.ID, SectionID: secA.ID, SchoolYear: "2025-2026"})
	if err != nil {
		t.Fatalf("Enroll() failed, %v", err)
	}
	if !enr.IsActive {
		t.Error("IsActive = false, want true")
	}
	if enr.EffectiveFrom.IsZero() {
		t.Error("EffectiveFrom not defaulted")
	}

	// one active enrollment per school year, even in another section
	_, err = svc.Enroll(ctx, school.NewEnrollment{StudentID: st.ID, SectionID: secB.ID, SchoolYear: "2025-2026"})
	vErr, ok := err.(*core.ValidationError)
	if !ok {
		t.Fatalf("Enroll() error = %v, want *core.ValidationError", err)
	}
	if len(vErr.Fields) == 0 || vErr.Fields[0].Field != "school_year" {
		t.Errorf("ValidationError.Fields = %+v, want school_year field error", vErr.Fields)
	}

	// a different school year is fine
	if _, err = svc.Enroll(ctx, school.NewEnrollment{StudentID: st.ID, SectionID: secB.ID, SchoolYear: "2026-2027"}); err != nil {
		t.Errorf("Enroll() for next year failed, %v", err)
	}
}

func Test_service_Withdraw(t *testing.T) {
	svc, repo := setup(t)
	ctx := context.Background()

	st := testutil.CreateStudent(t, repo, "Amani", "", true)
	sec := testutil.CreateSection(t, repo, "Grade 5A", "2025-2026")
	enr := testutil.Enroll(t, repo, st.ID, sec.ID, "2025-2026")

	got, err := svc.Withdraw(ctx, enr.ID)
	if err != nil {
		t.Fatalf("Withdraw() failed, %v", err)
	}
	if got.IsActive {
		t.Error("IsActive = true after withdrawal")
	}
	if got.EffectiveTo == nil {
		t.Error("EffectiveTo = nil after withdrawal")
	}

	enrolled, err := svc.IsActivelyEnrolled(ctx, st.ID, sec.ID, time.Now().UTC())
	if err != nil {
		t.Fatalf("IsActivelyEnrolled() failed, %v", err)
	}
	if enrolled {
		t.Error("expected student not enrolled after withdrawal")
	}

	// the student can re-enroll for the same year afterwards
	if _, err = svc.Enroll(ctx, school.NewEnrollment{StudentID: st.ID, SectionID: sec.ID, SchoolYear: "2025-2026"}); err != nil {
		t.Errorf("Enroll() after withdrawal failed, %v", err)
	}

	if _, err = svc.Withdraw(ctx, "nope"); err != school.ErrNotFound {
		t.Errorf("Withdraw() error = %v, want %v", err, school.ErrNotFound)
	}
}

func Test_service_IsActivelyEnrolled_dates(t *testing.T) {
	svc, repo := setup(t)
	ctx := context.Background()

	st := testutil.CreateStudent(t, repo, "Amani", "", true)
	sec := testutil.CreateSection(t, repo, "Grade 5A", "2025-2026")
	from := time.Date(2025, time.September, 1, 0, 0, 0, 0, time.UTC)
	testutil.Enroll(t, repo, st.ID, sec.ID, "2025-2026", from)

	tests := []struct {
		name string
		date time.Time
		want bool
	}{
		{name: "before effective date", date: from.AddDate(0, 0, -1), want: false},
		{name: "on effective date", date: from, want: true},
		{name: "after effective date", date: from.AddDate(0, 3, 0), want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.IsActivelyEnrolled(ctx, st.ID, sec.ID, tt.date)
			if err != nil {
				t.Fatalf("IsActivelyEnrolled() failed, %v", err)
			}
			if got != tt.want {
				t.Errorf("IsActivelyEnrolled() = %t, want %t", got, tt.want)
			}
		})
	}
}

func Test_service_SectionRoster(t *testing.T) {
	svc, repo := setup(t)
	ctx := context.Background()

	sec := testutil.CreateSection(t, repo, "Grade 5A", "2025-2026")
	bahati := testutil.CreateStudent(t, repo, "Bahati", "", true)
	amani := testutil.CreateStudent(t, repo, "Amani", "", true)
	inactive := testutil.CreateStudent(t, repo, "Chiku", "", false)
	for _, st := range []school.Student{bahati, amani, inactive} {
		testutil.Enroll(t, repo, st.ID, sec.ID, "2025-2026")
	}

	roster, err := svc.SectionRoster(ctx, sec.ID, time.Now().UTC())
	if err != nil {
		t.Fatalf("SectionRoster() failed, %v", err)
	}
	if len(roster) != 2 {
		t.Fatalf("len(roster) = %d, want 2 (inactive student excluded)", len(roster))
	}
	if roster[0].Name != "Amani" || roster[1].Name != "Bahati" {
		t.Errorf("roster order = [%s, %s], want sorted by name", roster[0].Name, roster[1].Name)
	}
}
