package service

import (
	"context"
	"testing"

	"backend/internal/model"
	"backend/pkg/apperror"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitComputesTotalAndBudgetCheck(t *testing.T) {
	env := newTestEnv(t)
	env.createBudget(t, "Fuel", "1000.00")
	env.createBudget(t, "Meals", "300.00")

	res := env.submit(t,
		item("Fuel", "250.50"),
		item("Meals", "99.50"),
		item("Fuel", "100.00"),
	)

	assert.Equal(t, "450.00", res.TotalAmount)
	assert.Equal(t, model.ReportStatusSubmitted, res.Status)
	assert.Equal(t, model.BudgetCheckWithinBudget, res.BudgetCheck)
	assert.Len(t, res.Items, 3)
	assert.False(t, res.Reimbursed)
}

func TestSubmitFlagsOverBudgetPerCategory(t *testing.T) {
	env := newTestEnv(t)
	env.createBudget(t, "Fuel", "1000.00")
	env.createBudget(t, "Meals", "300.00")

	// Fuel stays within its allocation but Meals exceeds its own.
	res := env.submit(t,
		item("Fuel", "500.00"),
		item("Meals", "301.00"),
	)
	assert.Equal(t, model.BudgetCheckOverBudget, res.BudgetCheck)
}

func TestSubmitUnbudgetedCategoryIsWithinBudget(t *testing.T) {
	env := newTestEnv(t)

	res := env.submit(t, item("Souvenirs", "99999.00"))
	assert.Equal(t, model.BudgetCheckWithinBudget, res.BudgetCheck)
}

func TestSubmitValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	cases := []struct {
		name string
		req  SubmitReportRequest
	}{
		{"no items", SubmitReportRequest{}},
		{"missing category", SubmitReportRequest{Items: []ExpenseItemInput{{Amount: "10.00", Date: todayStr()}}}},
		{"unparseable amount", SubmitReportRequest{Items: []ExpenseItemInput{{Category: "Fuel", Amount: "ten", Date: todayStr()}}}},
		{"zero amount", SubmitReportRequest{Items: []ExpenseItemInput{{Category: "Fuel", Amount: "0", Date: todayStr()}}}},
		{"negative amount", SubmitReportRequest{Items: []ExpenseItemInput{{Category: "Fuel", Amount: "-5.00", Date: todayStr()}}}},
		{"three decimal places", SubmitReportRequest{Items: []ExpenseItemInput{{Category: "Fuel", Amount: "10.005", Date: todayStr()}}}},
		{"bad date", SubmitReportRequest{Items: []ExpenseItemInput{{Category: "Fuel", Amount: "10.00", Date: "01/02/2026"}}}},
		{"trip end before start", SubmitReportRequest{
			Items:     []ExpenseItemInput{item("Fuel", "10.00")},
			TripStart: "2026-03-10",
			TripEnd:   "2026-03-01",
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.reports.Submit(ctx, env.driver, tc.req)
			require.Error(t, err)
			assert.True(t, apperror.IsKind(err, apperror.KindValidation))
		})
	}
}

func TestSubmitDerivesTripDays(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.reports.Submit(ctx, env.driver, SubmitReportRequest{
		Items:     []ExpenseItemInput{item("Fuel", "10.00")},
		TripStart: "2026-03-01",
		TripEnd:   "2026-03-03",
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.TripDays)
	require.NotNil(t, res.TripStart)
	assert.Equal(t, "2026-03-01", *res.TripStart)
}

func TestResubmitRestartsWorkflow(t *testing.T) {
	env := newTestEnv(t)
	env.createBudget(t, "Fuel", "1000.00")
	ctx := context.Background()

	submitted := env.submit(t, item("Fuel", "2000.00"))
	require.Equal(t, model.BudgetCheckOverBudget, submitted.BudgetCheck)
	id := mustID(t, submitted.ID)

	_, err := env.workflow.RejectAsManager(ctx, env.manager, id, "trim the fuel costs")
	require.NoError(t, err)

	res, err := env.reports.Resubmit(ctx, env.driver, id, SubmitReportRequest{
		Items: []ExpenseItemInput{item("Fuel", "800.00")},
	})
	require.NoError(t, err)

	assert.Equal(t, model.ReportStatusSubmitted, res.Status)
	assert.Equal(t, model.BudgetCheckWithinBudget, res.BudgetCheck)
	assert.Equal(t, "800.00", res.TotalAmount)
	assert.False(t, res.ForwardedToCEO)
	assert.False(t, res.CEOApproved)
	assert.False(t, res.Reimbursed)
	require.Len(t, res.Items, 1)

	// The rejection is superseded: the active trail starts over.
	trail, err := env.reports.Trail(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, trail)

	report := env.reload(t, submitted.ID)
	assert.False(t, report.LedgerPosted)
	assert.Greater(t, report.Version, 1)
}

func TestResubmitRejectsForeignAndApprovedReports(t *testing.T) {
	env := newTestEnv(t)
	env.createBudget(t, "Fuel", "1000.00")
	ctx := context.Background()

	submitted := env.submit(t, item("Fuel", "400.00"))
	id := mustID(t, submitted.ID)
	req := SubmitReportRequest{Items: []ExpenseItemInput{item("Fuel", "10.00")}}

	// Another user's report reads as not found, not forbidden.
	_, err := env.reports.Resubmit(ctx, env.manager, id, req)
	require.Error(t, err)
	assert.True(t, apperror.IsKind(err, apperror.KindNotFound))

	_, err = env.workflow.ApproveAsManager(ctx, env.manager, id, "")
	require.NoError(t, err)

	_, err = env.reports.Resubmit(ctx, env.driver, id, req)
	require.Error(t, err)
	assert.True(t, apperror.IsKind(err, apperror.KindInvalidState))
}

func TestGetAndListByUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first := env.submit(t, item("Fuel", "10.00"))
	env.submit(t, item("Meals", "20.00"))

	got, err := env.reports.Get(ctx, mustID(t, first.ID))
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)

	mine, total, err := env.reports.ListByUser(ctx, env.driver, 1, 20)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, mine, 2)

	others, total, err := env.reports.ListByUser(ctx, env.manager, 1, 20)
	require.NoError(t, err)
	assert.EqualValues(t, 0, total)
	assert.Empty(t, others)

	_, err = env.reports.Get(ctx, mustID(t, "00000000-0000-0000-0000-000000000001"))
	require.Error(t, err)
	assert.True(t, apperror.IsKind(err, apperror.KindNotFound))
}
