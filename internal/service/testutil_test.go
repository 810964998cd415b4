package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"backend/internal/database"
	"backend/internal/model"
	"backend/internal/paymongo"
	"backend/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// fakeGateway stands in for PayMongo so reimbursement tests control what the
// external side reports.
type fakeGateway struct {
	createErr      error
	statusErr      error
	status         string
	sessionCounter int
	lastRequest    paymongo.CheckoutRequest
}

func (f *fakeGateway) CreateCheckoutSession(_ context.Context, req paymongo.CheckoutRequest) (*paymongo.CheckoutSession, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.sessionCounter++
	f.lastRequest = req
	return &paymongo.CheckoutSession{
		SessionID:   "cs_test_" + uuid.NewString()[:8],
		CheckoutURL: "https://checkout.example/session",
	}, nil
}

func (f *fakeGateway) GetCheckoutStatus(_ context.Context, _ string) (string, error) {
	if f.statusErr != nil {
		return "", f.statusErr
	}
	if f.status == "" {
		return model.PaymentStatusUnpaid, nil
	}
	return f.status, nil
}

type testEnv struct {
	db *gorm.DB

	reportRepo   repository.ReportRepository
	approvalRepo repository.ApprovalRepository
	budgetRepo   repository.BudgetRepository
	paymentRepo  repository.PaymentRepository
	auditRepo    repository.AuditRepository
	userRepo     repository.UserRepository

	budgets        BudgetService
	reports        ReportService
	workflow       WorkflowService
	reimbursements ReimbursementService
	gateway        *fakeGateway

	driver  uuid.UUID
	manager uuid.UUID
	ceo     uuid.UUID
	finance uuid.UUID
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "workflow.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	txManager := repository.NewTransactionManager(db)
	env := &testEnv{
		db:           db,
		reportRepo:   repository.NewReportRepository(db),
		approvalRepo: repository.NewApprovalRepository(db),
		budgetRepo:   repository.NewBudgetRepository(db),
		paymentRepo:  repository.NewPaymentRepository(db),
		auditRepo:    repository.NewAuditRepository(db),
		userRepo:     repository.NewUserRepository(db),
		gateway:      &fakeGateway{},
	}

	logger := zap.NewNop()
	env.budgets = NewBudgetService(env.budgetRepo, env.reportRepo, env.auditRepo, txManager)
	env.reports = NewReportService(env.reportRepo, env.approvalRepo, env.auditRepo, env.budgets, txManager)
	env.workflow = NewWorkflowService(env.reportRepo, env.approvalRepo, env.budgetRepo, env.auditRepo, env.budgets, txManager, nil, logger)
	env.reimbursements = NewReimbursementService(
		env.reportRepo, env.paymentRepo, env.approvalRepo, env.userRepo, env.auditRepo,
		env.budgets, env.gateway, txManager, nil, logger, "http://localhost:8080",
	)

	env.driver = env.createUser(t, "driver@expense.com", "Delivery Driver", model.RoleDriver)
	env.manager = env.createUser(t, "manager@expense.com", "Fleet Manager", model.RoleManager)
	env.ceo = env.createUser(t, "ceo@expense.com", "Chief Executive", model.RoleCEO)
	env.finance = env.createUser(t, "finance@expense.com", "Finance Officer", model.RoleFinance)

	return env
}

func (e *testEnv) createUser(t *testing.T, email, name, role string) uuid.UUID {
	t.Helper()
	user := model.User{Email: email, Name: name, Role: role, PasswordHash: "x"}
	require.NoError(t, e.userRepo.Create(context.Background(), &user))
	return user.ID
}

func (e *testEnv) createBudget(t *testing.T, category, allocated string) {
	t.Helper()
	_, err := e.budgets.CreateBudget(context.Background(), CreateBudgetRequest{
		Category:  category,
		Allocated: allocated,
	})
	require.NoError(t, err)
}

// todayStr returns today's date in the item date format, so test items always
// land in the current budget month.
func todayStr() string {
	return time.Now().UTC().Format(dateLayout)
}

func item(category, amount string) ExpenseItemInput {
	return ExpenseItemInput{Category: category, Amount: amount, Date: todayStr()}
}

func (e *testEnv) submit(t *testing.T, items ...ExpenseItemInput) ReportResponse {
	t.Helper()
	res, err := e.reports.Submit(context.Background(), e.driver, SubmitReportRequest{Items: items})
	require.NoError(t, err)
	return res
}

func mustID(t *testing.T, s string) uuid.UUID {
	t.Helper()
	id, err := uuid.Parse(s)
	require.NoError(t, err)
	return id
}

func (e *testEnv) reload(t *testing.T, id string) *model.ExpenseReport {
	t.Helper()
	report, err := e.reportRepo.FindByID(context.Background(), mustID(t, id))
	require.NoError(t, err)
	return report
}

func (e *testEnv) spentFor(t *testing.T, category string) string {
	t.Helper()
	budget, err := e.budgetRepo.FindByCategory(context.Background(), category)
	require.NoError(t, err)
	require.NotNil(t, budget)
	return budget.Spent.StringFixed(2)
}
