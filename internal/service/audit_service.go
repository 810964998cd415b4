package service

import (
	"context"
	"time"

	"backend/internal/model"
	"backend/internal/repository"

	"github.com/google/uuid"
)

type AuditLogResponse struct {
	ID          string `json:"id"`
	Action      string `json:"action"`
	Module      string `json:"module"`
	Role        string `json:"role"`
	PerformedBy string `json:"performed_by"`
	ReportID    string `json:"report_id"`
	Details     string `json:"details"`
	CreatedAt   string `json:"created_at"`
}

type AuditService interface {
	GetAuditLogs(ctx context.Context, page, limit int) ([]AuditLogResponse, int64, error)
	GetReportAuditLogs(ctx context.Context, reportID uuid.UUID) ([]AuditLogResponse, error)
}

type auditService struct {
	auditRepo repository.AuditRepository
}

// NewAuditService creates a new AuditService instance
func NewAuditService(auditRepo repository.AuditRepository) AuditService {
	return &auditService{auditRepo: auditRepo}
}

func (s *auditService) GetAuditLogs(ctx context.Context, page, limit int) ([]AuditLogResponse, int64, error) {
	logs, total, err := s.auditRepo.List(ctx, page, limit)
	if err != nil {
		return nil, 0, err
	}
	res := make([]AuditLogResponse, 0, len(logs))
	for _, l := range logs {
		res = append(res, toAuditResponse(l))
	}
	return res, total, nil
}

func (s *auditService) GetReportAuditLogs(ctx context.Context, reportID uuid.UUID) ([]AuditLogResponse, error) {
	logs, err := s.auditRepo.ListByReport(ctx, reportID)
	if err != nil {
		return nil, err
	}
	res := make([]AuditLogResponse, 0, len(logs))
	for _, l := range logs {
		res = append(res, toAuditResponse(l))
	}
	return res, nil
}

func toAuditResponse(l model.AuditLog) AuditLogResponse {
	res := AuditLogResponse{
		ID:        l.ID.String(),
		Action:    l.Action,
		Module:    l.Module,
		Role:      l.Role,
		Details:   l.Details,
		CreatedAt: l.CreatedAt.Format(time.RFC3339),
	}
	if l.PerformedBy != nil {
		res.PerformedBy = l.PerformedBy.String()
	}
	if l.ReportID != nil {
		res.ReportID = l.ReportID.String()
	}
	return res
}
