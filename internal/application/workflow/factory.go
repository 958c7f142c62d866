package workflow

import (
	"context"
	"fmt"

	"github.com/garyjia/expense-approval/internal/domain/entity"
	domainwf "github.com/garyjia/expense-approval/internal/domain/workflow"
)

// nextReportStatus fires trigger on the report machine. nextRole names the
// step about to become pending, for ROUTE and ADVANCE.
func nextReportStatus(ctx context.Context, report *entity.Report, trigger domainwf.Trigger, nextRole entity.ReviewRole) (string, error) {
	if nextRole != "" {
		ctx = domainwf.WithNextRole(ctx, nextRole.String())
	}
	state, err := domainwf.Next(ctx, report.Status, trigger)
	if err != nil {
		return "", fmt.Errorf("report %d: %w", report.ID, err)
	}
	return state.String(), nil
}

// routeReport moves a report through SUBMIT or RESUBMIT and then ROUTE to
// the pending status of the first step's role
func routeReport(ctx context.Context, report *entity.Report, trigger domainwf.Trigger, firstRole entity.ReviewRole) (string, error) {
	submitted, err := nextReportStatus(ctx, report, trigger, "")
	if err != nil {
		return "", err
	}
	staged := *report
	staged.Status = submitted
	return nextReportStatus(ctx, &staged, domainwf.TriggerRoute, firstRole)
}

// inReview reports whether the report status admits step decisions
func inReview(report *entity.Report) bool {
	state, err := domainwf.ParseState(report.Status)
	return err == nil && state.InReview()
}
