package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryckox/syntagma/internal/model"
	"github.com/ryckox/syntagma/internal/testutil"
)

func strPtr(s string) *string { return &s }

func TestAuditLogRepository_CreateAndList(t *testing.T) {
	db := testutil.NewDB(t)
	f := testutil.Seed(t, db)
	repo := NewAuditLogRepository(db)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i, action := range []model.AuditAction{model.AuditActionCreated, model.AuditActionUpdated, model.AuditActionDeleted} {
		entry := &model.AuditLogEntry{
			RulesetID:     42,
			Action:        action,
			FieldChanges:  strPtr(`{}`),
			VersionBefore: model.MarkerForVersion(i).Text(),
			VersionAfter:  model.Numbered(i + 1).Text(),
			UserID:        &f.Admin.ID,
			UserName:      f.Admin.Username,
			Timestamp:     base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, repo.Create(ctx, entry))
	}
	other := &model.AuditLogEntry{RulesetID: 7, Action: model.AuditActionCreated, UserName: "x"}
	require.NoError(t, repo.Create(ctx, other))
	assert.False(t, other.Timestamp.IsZero())

	rulesetID := int64(42)
	page := &model.Pagination{}
	entries, err := repo.List(ctx, page, &AuditLogFilter{RulesetID: &rulesetID})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, int64(3), page.Total)
	assert.Equal(t, model.AuditActionDeleted, entries[0].Action)
	assert.Equal(t, model.AuditActionCreated, entries[2].Action)
	require.NotNil(t, entries[0].VersionAfter)
	assert.Equal(t, "3", *entries[0].VersionAfter)
	require.NotNil(t, entries[2].VersionBefore)
	assert.Equal(t, "unpublished", *entries[2].VersionBefore)

	page = &model.Pagination{}
	entries, err = repo.List(ctx, page, &AuditLogFilter{Action: model.AuditActionCreated})
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	start := base.Add(90 * time.Second)
	page = &model.Pagination{}
	entries, err = repo.List(ctx, page, &AuditLogFilter{RulesetID: &rulesetID, StartTime: &start})
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	got, err := repo.GetByID(ctx, other.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Nil(t, got.VersionBefore)
	assert.Nil(t, got.UserID)

	missing, err := repo.GetByID(ctx, 9999)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestAuditLogRepository_RejectsUnknownAction(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewAuditLogRepository(db)

	err := repo.Create(context.Background(), &model.AuditLogEntry{RulesetID: 1, Action: "published"})
	assert.Error(t, err)
}

func TestAuditLogRepository_UserDeletionNullsReference(t *testing.T) {
	db := testutil.NewDB(t)
	f := testutil.Seed(t, db)
	repo := NewAuditLogRepository(db)
	ctx := context.Background()

	entry := &model.AuditLogEntry{RulesetID: 1, Action: model.AuditActionCreated, UserID: &f.Other.ID, UserName: f.Other.Username}
	require.NoError(t, repo.Create(ctx, entry))
	require.NoError(t, db.Delete(&model.User{}, f.Other.ID).Error)

	got, err := repo.GetByID(ctx, entry.ID)
	require.NoError(t, err)
	assert.Nil(t, got.UserID)
	assert.Equal(t, "other", got.UserName)
}
