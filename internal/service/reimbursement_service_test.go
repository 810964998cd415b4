package service

import (
	"context"
	"errors"
	"testing"

	"backend/internal/model"
	"backend/pkg/apperror"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// approvedReport drives a fresh within-budget report through manager approval.
func approvedReport(t *testing.T, env *testEnv, amount string) uuid.UUID {
	t.Helper()
	submitted := env.submit(t, item("Fuel", amount))
	_, err := env.workflow.ApproveAsManager(context.Background(), env.manager, mustID(t, submitted.ID), "")
	require.NoError(t, err)
	return mustID(t, submitted.ID)
}

func TestInitiateCheckoutCreatesSession(t *testing.T) {
	env := newTestEnv(t)
	env.createBudget(t, "Fuel", "1000.00")
	ctx := context.Background()

	reportID := approvedReport(t, env, "400.00")

	payment, err := env.reimbursements.InitiateCheckout(ctx, env.finance, reportID)
	require.NoError(t, err)
	assert.NotEmpty(t, payment.SessionID)
	assert.Equal(t, "https://checkout.example/session", payment.CheckoutURL)
	assert.Equal(t, model.PaymentStatusUnpaid, payment.Status)
	assert.Equal(t, "400.00", payment.Amount)
	assert.Equal(t, "driver@expense.com", env.gateway.lastRequest.CustomerEmail)

	// Re-initiating replaces the session instead of stacking a second row.
	replaced, err := env.reimbursements.InitiateCheckout(ctx, env.finance, reportID)
	require.NoError(t, err)
	assert.Equal(t, payment.ID, replaced.ID)
	assert.NotEqual(t, payment.SessionID, replaced.SessionID)
	assert.Equal(t, 2, env.gateway.sessionCounter)
}

func TestInitiateCheckoutGuards(t *testing.T) {
	env := newTestEnv(t)
	env.createBudget(t, "Fuel", "1000.00")
	ctx := context.Background()

	// Not yet approved.
	submitted := env.submit(t, item("Fuel", "100.00"))
	_, err := env.reimbursements.InitiateCheckout(ctx, env.finance, mustID(t, submitted.ID))
	assert.True(t, apperror.IsKind(err, apperror.KindInvalidState))

	// Over budget, escalated but not yet CEO-approved.
	over := env.submit(t, item("Fuel", "2000.00"))
	_, err = env.workflow.ApproveAsManager(ctx, env.manager, mustID(t, over.ID), "")
	require.NoError(t, err)
	_, err = env.reimbursements.InitiateCheckout(ctx, env.finance, mustID(t, over.ID))
	assert.True(t, apperror.IsKind(err, apperror.KindInvalidState))
}

func TestInitiateCheckoutGatewayFailureLeavesNoLocalState(t *testing.T) {
	env := newTestEnv(t)
	env.createBudget(t, "Fuel", "1000.00")
	ctx := context.Background()

	reportID := approvedReport(t, env, "400.00")
	env.gateway.createErr = errors.New("gateway down")

	_, err := env.reimbursements.InitiateCheckout(ctx, env.finance, reportID)
	require.Error(t, err)
	assert.True(t, apperror.IsKind(err, apperror.KindExternalService))

	payment, err := env.paymentRepo.FindByReport(ctx, reportID)
	require.NoError(t, err)
	assert.Nil(t, payment, "no payment row may exist after a gateway failure")
}

func TestConfirmPaymentMarksReimbursedOnce(t *testing.T) {
	env := newTestEnv(t)
	env.createBudget(t, "Fuel", "1000.00")
	ctx := context.Background()

	reportID := approvedReport(t, env, "400.00")
	require.Equal(t, "400.00", env.spentFor(t, "Fuel"))

	_, err := env.reimbursements.InitiateCheckout(ctx, env.finance, reportID)
	require.NoError(t, err)

	res, err := env.reimbursements.ConfirmPayment(ctx, env.finance, reportID, model.PaymentStatusPaid)
	require.NoError(t, err)
	assert.True(t, res.Reimbursed)
	assert.Equal(t, model.ReportStatusApproved, res.Status)

	payment, err := env.paymentRepo.FindByReport(ctx, reportID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusPaid, payment.Status)
	assert.NotNil(t, payment.PaidAt)

	trail, err := env.reports.Trail(ctx, reportID)
	require.NoError(t, err)
	require.Len(t, trail, 2)
	assert.Equal(t, model.StageFinance, trail[1].Stage)

	// Spend was posted at manager approval; confirmation must not double-post.
	assert.Equal(t, "400.00", env.spentFor(t, "Fuel"))

	// Duplicate confirmation (webhook redelivery) is a silent success.
	res, err = env.reimbursements.ConfirmPayment(ctx, env.finance, reportID, model.PaymentStatusPaid)
	require.NoError(t, err)
	assert.True(t, res.Reimbursed)

	trail, err = env.reports.Trail(ctx, reportID)
	require.NoError(t, err)
	assert.Len(t, trail, 2, "no second finance approval on redelivery")
	assert.Equal(t, "400.00", env.spentFor(t, "Fuel"))
}

func TestConfirmPaymentNonPaidStatusOnlyTracksSession(t *testing.T) {
	env := newTestEnv(t)
	env.createBudget(t, "Fuel", "1000.00")
	ctx := context.Background()

	reportID := approvedReport(t, env, "400.00")
	_, err := env.reimbursements.InitiateCheckout(ctx, env.finance, reportID)
	require.NoError(t, err)

	res, err := env.reimbursements.ConfirmPayment(ctx, env.finance, reportID, model.PaymentStatusExpired)
	require.NoError(t, err)
	assert.False(t, res.Reimbursed)

	payment, err := env.paymentRepo.FindByReport(ctx, reportID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusExpired, payment.Status)
}

func TestConfirmPaymentWithoutSessionIsNotFound(t *testing.T) {
	env := newTestEnv(t)
	env.createBudget(t, "Fuel", "1000.00")
	ctx := context.Background()

	reportID := approvedReport(t, env, "400.00")
	_, err := env.reimbursements.ConfirmPayment(ctx, env.finance, reportID, model.PaymentStatusPaid)
	assert.True(t, apperror.IsKind(err, apperror.KindNotFound))
}

func TestConfirmPaymentBySession(t *testing.T) {
	env := newTestEnv(t)
	env.createBudget(t, "Fuel", "1000.00")
	ctx := context.Background()

	reportID := approvedReport(t, env, "400.00")
	payment, err := env.reimbursements.InitiateCheckout(ctx, env.finance, reportID)
	require.NoError(t, err)

	// Webhook path: no human actor, attribution falls back to the initiator.
	require.NoError(t, env.reimbursements.ConfirmPaymentBySession(ctx, payment.SessionID, model.PaymentStatusPaid))

	report := env.reload(t, reportID.String())
	assert.True(t, report.Reimbursed)

	trail, err := env.reports.Trail(ctx, reportID)
	require.NoError(t, err)
	require.Len(t, trail, 2)
	assert.Equal(t, env.finance.String(), trail[1].ApproverID)

	err = env.reimbursements.ConfirmPaymentBySession(ctx, "cs_unknown", model.PaymentStatusPaid)
	assert.True(t, apperror.IsKind(err, apperror.KindNotFound))
}

func TestRefreshStatus(t *testing.T) {
	env := newTestEnv(t)
	env.createBudget(t, "Fuel", "1000.00")
	ctx := context.Background()

	reportID := approvedReport(t, env, "400.00")
	_, err := env.reimbursements.InitiateCheckout(ctx, env.finance, reportID)
	require.NoError(t, err)

	env.gateway.statusErr = errors.New("timeout")
	_, err = env.reimbursements.RefreshStatus(ctx, env.finance, reportID)
	require.Error(t, err)
	assert.True(t, apperror.IsKind(err, apperror.KindExternalService))
	assert.False(t, env.reload(t, reportID.String()).Reimbursed)

	env.gateway.statusErr = nil
	env.gateway.status = model.PaymentStatusPaid
	res, err := env.reimbursements.RefreshStatus(ctx, env.finance, reportID)
	require.NoError(t, err)
	assert.True(t, res.Reimbursed)
}

func TestMarkReimbursedManualWorksWithoutSession(t *testing.T) {
	env := newTestEnv(t)
	env.createBudget(t, "Fuel", "1000.00")
	ctx := context.Background()

	reportID := approvedReport(t, env, "400.00")

	res, err := env.reimbursements.MarkReimbursedManual(ctx, env.finance, reportID, "paid by bank transfer")
	require.NoError(t, err)
	assert.True(t, res.Reimbursed)

	trail, err := env.reports.Trail(ctx, reportID)
	require.NoError(t, err)
	require.Len(t, trail, 2)
	assert.Equal(t, "paid by bank transfer", trail[1].Remarks)

	// Checkout after the fact is refused.
	_, err = env.reimbursements.InitiateCheckout(ctx, env.finance, reportID)
	assert.True(t, apperror.IsKind(err, apperror.KindAlreadyPaid))
}

func TestFinanceQueueFiltering(t *testing.T) {
	env := newTestEnv(t)
	env.createBudget(t, "Fuel", "10000.00")
	ctx := context.Background()

	approved := approvedReport(t, env, "400.00")
	reimbursed := approvedReport(t, env, "300.00")
	_, err := env.reimbursements.MarkReimbursedManual(ctx, env.finance, reimbursed, "")
	require.NoError(t, err)

	queue, total, err := env.reimbursements.FinanceQueue(ctx, 1, 20)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, queue, 1)
	assert.Equal(t, approved.String(), queue[0].ID)
}
