package attendance

import (
	"context"

	"github.com/trezcool/mahudhurio/core"
)

type serviceMock struct {
	service
}

// NewServiceMock returns a Service whose side effects (absence notices) run
// synchronously, for use in tests.
func NewServiceMock(db core.DB, repo Repository, enrollment EnrollmentLookup, mailSvc core.EmailService, logger core.Logger) Service {
	return &serviceMock{
		service: service{
			db:         db,
			repo:       repo,
			enrollment: enrollment,
			mailSvc:    mailSvc,
			logger:     logger,
		},
	}
}

func (svc *serviceMock) SubmitAttendance(ctx context.Context, ns NewSubmission) (CurrentAttendance, error) {
	cur, err := svc.submitWithRetry(ctx, ns)
	if err != nil {
		return CurrentAttendance{}, err
	}
	// run synchronously
	svc.sendAbsenceNotices(cur)
	return cur, nil
}
