package repository

import (
	"context"
	"testing"
	"time"

	"listing_studio_v1/internal/model"
)

func TestAICallLogRepo_Create(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAICallLogRepository(db)
	ctx := context.Background()

	log := &model.AICallLog{
		UserID:     "u1",
		SessionID:  "s1",
		VariantID:  "v1",
		CallType:   model.AICallTypeAnalyze,
		Provider:   "http",
		DurationMs: 1500,
		Status:     model.AICallStatusSuccess,
	}

	if err := repo.Create(ctx, log); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if log.ID == 0 {
		t.Error("ID 应该被自动分配")
	}

	found, err := repo.GetByID(ctx, log.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if found.CallType != model.AICallTypeAnalyze {
		t.Errorf("CallType = %s, want analyze", found.CallType)
	}
}

func TestAICallLogRepo_ListBySession(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAICallLogRepository(db)
	ctx := context.Background()

	for _, l := range []*model.AICallLog{
		{SessionID: "s1", CallType: model.AICallTypeAnalyze, Status: model.AICallStatusSuccess},
		{SessionID: "s2", CallType: model.AICallTypeAnalyze, Status: model.AICallStatusSuccess},
		{SessionID: "s1", CallType: model.AICallTypeGenerate, Status: model.AICallStatusFailed},
	} {
		repo.Create(ctx, l)
	}

	logs, err := repo.ListBySession(ctx, "s1")
	if err != nil {
		t.Fatalf("ListBySession() error = %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("len = %d, want 2", len(logs))
	}
	if logs[0].CallType != model.AICallTypeAnalyze || logs[1].CallType != model.AICallTypeGenerate {
		t.Errorf("顺序错误: %s, %s", logs[0].CallType, logs[1].CallType)
	}
}

func TestAICallLogRepo_GetUsageByUser(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAICallLogRepository(db)
	ctx := context.Background()

	logs := []*model.AICallLog{
		{UserID: "u1", CallType: model.AICallTypeAnalyze, DurationMs: 1000, Status: model.AICallStatusSuccess},
		{UserID: "u1", CallType: model.AICallTypeAnalyze, DurationMs: 3000, Status: model.AICallStatusNoMatch},
		{UserID: "u1", CallType: model.AICallTypeGenerate, DurationMs: 2000, Status: model.AICallStatusSuccess},
		{UserID: "u1", CallType: model.AICallTypePublish, DurationMs: 2000, Status: model.AICallStatusFailed},
		{UserID: "u2", CallType: model.AICallTypeAnalyze, Status: model.AICallStatusSuccess},
	}
	for _, log := range logs {
		repo.Create(ctx, log)
	}

	stats, err := repo.GetUsageByUser(ctx, "u1", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("GetUsageByUser() error = %v", err)
	}

	if stats.TotalCalls != 4 {
		t.Errorf("TotalCalls = %d, want 4", stats.TotalCalls)
	}
	if stats.AnalyzeCalls != 2 {
		t.Errorf("AnalyzeCalls = %d, want 2", stats.AnalyzeCalls)
	}
	if stats.GenerateCalls != 1 || stats.PublishCalls != 1 {
		t.Errorf("GenerateCalls = %d, PublishCalls = %d, want 1/1", stats.GenerateCalls, stats.PublishCalls)
	}
	if stats.AvgDurationMs != 2000 {
		t.Errorf("AvgDurationMs = %v, want 2000", stats.AvgDurationMs)
	}
	if stats.SuccessCount != 2 {
		t.Errorf("SuccessCount = %d, want 2", stats.SuccessCount)
	}
	if stats.FailedCount != 1 {
		t.Errorf("FailedCount = %d, want 1", stats.FailedCount)
	}
}

func TestAICallLogRepo_GetUsageByUser_TimeRange(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAICallLogRepository(db)
	ctx := context.Background()

	repo.Create(ctx, &model.AICallLog{UserID: "u1", CallType: model.AICallTypeAnalyze, Status: model.AICallStatusSuccess})

	stats, err := repo.GetUsageByUser(ctx, "u1", time.Now().Add(time.Hour), time.Time{})
	if err != nil {
		t.Fatalf("GetUsageByUser() error = %v", err)
	}
	if stats.TotalCalls != 0 {
		t.Errorf("TotalCalls = %d, want 0", stats.TotalCalls)
	}
}
