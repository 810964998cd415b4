package database

import (
	"backend/internal/model"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type seedAccount struct {
	email string
	name  string
	role  string
}

var seedAccounts = []seedAccount{
	{"ceo@expense.com", "Chief Executive", model.RoleCEO},
	{"manager@expense.com", "Fleet Manager", model.RoleManager},
	{"driver@expense.com", "Delivery Driver", model.RoleDriver},
	{"finance@expense.com", "Finance Officer", model.RoleFinance},
}

var seedBudgets = map[string]string{
	"Fuel":        "20000.00",
	"Meals":       "8000.00",
	"Lodging":     "15000.00",
	"Maintenance": "12000.00",
	"Tolls":       "5000.00",
}

// Seed inserts the default accounts and category budgets when they are
// missing. Safe to run on every boot.
func Seed(db *gorm.DB, defaultPassword string, logger *zap.Logger) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(defaultPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	for _, account := range seedAccounts {
		var count int64
		if err := db.Model(&model.User{}).Where("email = ?", account.email).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			continue
		}
		user := model.User{
			Email:        account.email,
			Name:         account.name,
			Role:         account.role,
			PasswordHash: string(hash),
		}
		if err := db.Create(&user).Error; err != nil {
			return err
		}
		logger.Info("seeded account", zap.String("email", account.email), zap.String("role", account.role))
	}

	for category, allocated := range seedBudgets {
		var count int64
		if err := db.Model(&model.Budget{}).Where("category = ?", category).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			continue
		}
		amount, err := decimal.NewFromString(allocated)
		if err != nil {
			return err
		}
		budget := model.Budget{
			Category:  category,
			Allocated: amount,
			Spent:     decimal.Zero,
		}
		if err := db.Create(&budget).Error; err != nil {
			return err
		}
		logger.Info("seeded budget", zap.String("category", category), zap.String("allocated", allocated))
	}

	return nil
}
