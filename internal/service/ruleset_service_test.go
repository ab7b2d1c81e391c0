package service

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ryckox/syntagma/internal/model"
	"github.com/ryckox/syntagma/internal/repository"
	"github.com/ryckox/syntagma/internal/testutil"
	pkgerrors "github.com/ryckox/syntagma/pkg/errors"
)

func TestRulesetService_CreateDraft(t *testing.T) {
	e := newTestEnv(t)
	rs := e.createRuleset(t, "")

	assert.Equal(t, model.RulesetStatusDraft, rs.Status)
	assert.Equal(t, 0, rs.Version)
	assert.Equal(t, e.fx.Author.ID, rs.CreatedBy)
	assert.Equal(t, []int64{e.fx.Topics[0].ID}, rs.TopicIDs())

	records := e.auditRecords(t, rs.ID)
	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, model.AuditActionCreated, rec.Action)
	assert.True(t, rec.VersionBefore.IsAbsent())
	assert.Equal(t, model.Unpublished(), rec.VersionAfter)
	assert.Equal(t, "author", rec.UserName)
	require.NotNil(t, rec.UserID)
	assert.Equal(t, e.fx.Author.ID, *rec.UserID)
	assert.Equal(t, "192.0.2.10", rec.IPAddress)
	assert.Equal(t, "go-test", rec.UserAgent)
	assert.False(t, rec.Corrupt)

	assert.Equal(t, model.FieldChange{From: nil, To: "Geschäftsordnung"}, rec.FieldChanges["title"])
	assert.Equal(t, model.AssociationChanged, rec.FieldChanges["topic_ids"].To)
	assert.NotContains(t, rec.FieldChanges, "tag_names")
	assert.Empty(t, rec.OldValues)
	assert.Equal(t, "draft", rec.NewValues["status"])
}

func TestRulesetService_CreatePublished(t *testing.T) {
	e := newTestEnv(t)
	rs := e.createRuleset(t, model.RulesetStatusPublished)

	assert.Equal(t, 1, rs.Version)
	records := e.auditRecords(t, rs.ID)
	require.Len(t, records, 1)
	assert.Equal(t, model.Numbered(1), records[0].VersionAfter)
}

func TestRulesetService_CreateWithTagsAndContents(t *testing.T) {
	e := newTestEnv(t)
	rs, err := e.rulesets.Create(context.Background(), actorOf(e.fx.Author), &CreateRulesetRequest{
		Title:    "Finanzordnung",
		TypeID:   e.fx.Type.ID,
		TopicIDs: []int64{e.fx.Topics[0].ID, e.fx.Topics[1].ID},
		Content:  "Regeln für die Verwendung von Mitteln.",
		TagNames: []string{"finanzen", "kasse"},
		TableOfContents: []TOCInput{
			{Level: 1, Title: "Haushalt"},
			{Level: 2, Title: "Kassenprüfung", Content: "§ 4"},
		},
	})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"finanzen", "kasse"}, rs.TagNames())
	require.Len(t, rs.TableOfContents, 2)
	assert.Equal(t, "Kassenprüfung", rs.TableOfContents[1].Title)

	rec := e.auditRecords(t, rs.ID)[0]
	assert.Contains(t, rec.FieldChanges, "tag_names")
	assert.Contains(t, rec.FieldChanges, "table_of_contents")
}

func TestRulesetService_CreateValidation(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	actor := actorOf(e.fx.Author)

	tests := []struct {
		name string
		req  *CreateRulesetRequest
		want *pkgerrors.Error
	}{
		{
			name: "unknown type",
			req:  &CreateRulesetRequest{Title: "Titel", TypeID: 999, TopicIDs: []int64{e.fx.Topics[0].ID}, Content: "Mindestens zehn Zeichen"},
			want: pkgerrors.ErrTypeNotFound,
		},
		{
			name: "topic of another type",
			req:  &CreateRulesetRequest{Title: "Titel", TypeID: e.fx.Type.ID, TopicIDs: []int64{e.fx.OtherTopic.ID}, Content: "Mindestens zehn Zeichen"},
			want: pkgerrors.ErrTopicMismatch,
		},
		{
			name: "no topics",
			req:  &CreateRulesetRequest{Title: "Titel", TypeID: e.fx.Type.ID, Content: "Mindestens zehn Zeichen"},
			want: pkgerrors.ErrInvalidRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.rulesets.Create(ctx, actor, tt.req)
			assert.True(t, pkgerrors.Is(err, tt.want), "got %v", err)
		})
	}

	var count int64
	require.NoError(t, e.db.Model(&model.AuditLogEntry{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestRulesetService_UpdateVersionPolicy(t *testing.T) {
	ctx := context.Background()

	t.Run("publishing a draft sets version 1", func(t *testing.T) {
		e := newTestEnv(t)
		rs := e.createRuleset(t, model.RulesetStatusDraft)

		got, err := e.rulesets.Update(ctx, actorOf(e.fx.Author), rs.ID, &UpdateRulesetRequest{Status: statusPtr(model.RulesetStatusPublished)})
		require.NoError(t, err)
		assert.Equal(t, 1, got.Version)

		rec := e.auditRecords(t, rs.ID)[0]
		assert.Equal(t, model.Unpublished(), rec.VersionBefore)
		assert.Equal(t, model.Numbered(1), rec.VersionAfter)
	})

	t.Run("content change on published increments", func(t *testing.T) {
		e := newTestEnv(t)
		rs := e.createRuleset(t, model.RulesetStatusPublished)

		got, err := e.rulesets.Update(ctx, actorOf(e.fx.Author), rs.ID, &UpdateRulesetRequest{Content: strPtr("Neu gefasster Inhalt der Ordnung.")})
		require.NoError(t, err)
		assert.Equal(t, 2, got.Version)
		assert.Equal(t, "Neu gefasster Inhalt der Ordnung.", got.Content)

		rec := e.auditRecords(t, rs.ID)[0]
		assert.Equal(t, model.AuditActionUpdated, rec.Action)
		assert.Equal(t, model.Numbered(1), rec.VersionBefore)
		assert.Equal(t, model.Numbered(2), rec.VersionAfter)
		assert.Equal(t, []string{"content"}, keys(rec.FieldChanges))
		assert.Equal(t, []string{"content"}, keys(rec.OldValues))
		assert.Equal(t, "Neu gefasster Inhalt der Ordnung.", rec.NewValues["content"])
	})

	t.Run("draft content edit keeps version", func(t *testing.T) {
		e := newTestEnv(t)
		rs := e.createRuleset(t, model.RulesetStatusDraft)

		got, err := e.rulesets.Update(ctx, actorOf(e.fx.Author), rs.ID, &UpdateRulesetRequest{Content: strPtr("Entwurf wurde überarbeitet.")})
		require.NoError(t, err)
		assert.Equal(t, 0, got.Version)
	})

	t.Run("tag only change on published keeps version", func(t *testing.T) {
		e := newTestEnv(t)
		rs := e.createRuleset(t, model.RulesetStatusPublished)
		for i := 0; i < 2; i++ {
			_, err := e.rulesets.Update(ctx, actorOf(e.fx.Author), rs.ID, &UpdateRulesetRequest{Title: strPtr("Titel " + string(rune('A'+i)))})
			require.NoError(t, err)
		}

		got, err := e.rulesets.Update(ctx, actorOf(e.fx.Author), rs.ID, &UpdateRulesetRequest{TagNames: []string{"aktuell"}})
		require.NoError(t, err)
		assert.Equal(t, 3, got.Version)
		assert.Equal(t, []string{"aktuell"}, got.TagNames())

		rec := e.auditRecords(t, rs.ID)[0]
		assert.Equal(t, []string{"tag_names"}, keys(rec.FieldChanges))
		assert.Equal(t, model.Numbered(3), rec.VersionAfter)
	})

	t.Run("archiving keeps version", func(t *testing.T) {
		e := newTestEnv(t)
		rs := e.createRuleset(t, model.RulesetStatusPublished)

		got, err := e.rulesets.Update(ctx, actorOf(e.fx.Admin), rs.ID, &UpdateRulesetRequest{
			Status:  statusPtr(model.RulesetStatusArchived),
			Content: strPtr("Archivierte Fassung des Inhalts."),
		})
		require.NoError(t, err)
		assert.Equal(t, model.RulesetStatusArchived, got.Status)
		assert.Equal(t, 1, got.Version)
	})
}

func TestRulesetService_UpdateSameValueRecordsNoFieldChange(t *testing.T) {
	e := newTestEnv(t)
	rs := e.createRuleset(t, model.RulesetStatusPublished)

	got, err := e.rulesets.Update(context.Background(), actorOf(e.fx.Author), rs.ID, &UpdateRulesetRequest{Title: strPtr(rs.Title)})
	require.NoError(t, err)
	// title 出现在请求中即视为内容变更
	assert.Equal(t, 2, got.Version)

	rec := e.auditRecords(t, rs.ID)[0]
	assert.Empty(t, rec.FieldChanges)
	assert.Empty(t, rec.OldValues)
	assert.Empty(t, rec.NewValues)
}

func TestRulesetService_UpdateErrors(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	rs := e.createRuleset(t, model.RulesetStatusDraft)

	_, err := e.rulesets.Update(ctx, actorOf(e.fx.Author), rs.ID, &UpdateRulesetRequest{})
	assert.True(t, pkgerrors.Is(err, pkgerrors.ErrNoChanges))

	_, err = e.rulesets.Update(ctx, actorOf(e.fx.Other), rs.ID, &UpdateRulesetRequest{Title: strPtr("Fremd")})
	assert.True(t, pkgerrors.Is(err, pkgerrors.ErrForbidden))
	assert.Equal(t, http.StatusForbidden, pkgerrors.FromError(err).HTTPStatus)

	_, err = e.rulesets.Update(ctx, actorOf(e.fx.Author), 999, &UpdateRulesetRequest{Title: strPtr("Nicht da")})
	assert.True(t, pkgerrors.Is(err, pkgerrors.ErrRulesetNotFound))
	assert.Equal(t, http.StatusNotFound, pkgerrors.FromError(err).HTTPStatus)

	_, err = e.rulesets.Update(ctx, actorOf(e.fx.Author), rs.ID, &UpdateRulesetRequest{TopicIDs: []int64{e.fx.OtherTopic.ID}})
	assert.True(t, pkgerrors.Is(err, pkgerrors.ErrTopicMismatch))
	assert.Equal(t, http.StatusBadRequest, pkgerrors.FromError(err).HTTPStatus)

	_, err = e.rulesets.Update(ctx, actorOf(e.fx.Author), rs.ID, &UpdateRulesetRequest{
		TypeID:   &e.fx.OtherType.ID,
		TopicIDs: []int64{e.fx.OtherTopic.ID},
	})
	require.NoError(t, err)

	// 失败的更新不写审计
	assert.Len(t, e.auditRecords(t, rs.ID), 2)
}

func TestRulesetService_AdminMayEditForeignRuleset(t *testing.T) {
	e := newTestEnv(t)
	rs := e.createRuleset(t, model.RulesetStatusDraft)

	got, err := e.rulesets.Update(context.Background(), actorOf(e.fx.Admin), rs.ID, &UpdateRulesetRequest{Title: strPtr("Vom Admin geändert")})
	require.NoError(t, err)
	assert.Equal(t, "Vom Admin geändert", got.Title)
	assert.Equal(t, "admin", e.auditRecords(t, rs.ID)[0].UserName)
}

func TestRulesetService_Delete(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	rs := e.createRuleset(t, model.RulesetStatusPublished)

	err := e.rulesets.Delete(ctx, actorOf(e.fx.Other), rs.ID)
	assert.True(t, pkgerrors.Is(err, pkgerrors.ErrForbidden))

	require.NoError(t, e.rulesets.Delete(ctx, actorOf(e.fx.Author), rs.ID))

	got, err := e.rulesetRepo.GetByID(ctx, rs.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	err = e.rulesets.Delete(ctx, actorOf(e.fx.Author), rs.ID)
	assert.True(t, pkgerrors.Is(err, pkgerrors.ErrRulesetNotFound))

	records := e.auditRecords(t, rs.ID)
	require.Len(t, records, 2)
	rec := records[0]
	assert.Equal(t, model.AuditActionDeleted, rec.Action)
	assert.Equal(t, model.Numbered(1), rec.VersionBefore)
	assert.Equal(t, model.Deleted(), rec.VersionAfter)
	assert.Equal(t, "Geschäftsordnung", rec.OldValues["title"])
	assert.Empty(t, rec.NewValues)
}

func TestRulesetService_OneAuditRowPerMutation(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	actor := actorOf(e.fx.Author)

	rs := e.createRuleset(t, model.RulesetStatusDraft)
	_, err := e.rulesets.Update(ctx, actor, rs.ID, &UpdateRulesetRequest{Status: statusPtr(model.RulesetStatusPublished)})
	require.NoError(t, err)
	_, err = e.rulesets.Update(ctx, actor, rs.ID, &UpdateRulesetRequest{Content: strPtr("Zweite Fassung des Inhalts.")})
	require.NoError(t, err)
	require.NoError(t, e.rulesets.Delete(ctx, actor, rs.ID))

	records := e.auditRecords(t, rs.ID)
	require.Len(t, records, 4)
	actions := make([]model.AuditAction, 0, len(records))
	for _, r := range records {
		assert.Equal(t, rs.ID, r.RulesetID)
		actions = append(actions, r.Action)
	}
	assert.Equal(t, []model.AuditAction{
		model.AuditActionDeleted,
		model.AuditActionUpdated,
		model.AuditActionUpdated,
		model.AuditActionCreated,
	}, actions)
}

func TestRulesetService_AuditFailureDoesNotFailMutation(t *testing.T) {
	e := newTestEnv(t)
	require.NoError(t, e.db.Exec("DROP TABLE ruleset_audit_log").Error)

	rs := e.createRuleset(t, model.RulesetStatusPublished)
	got, err := e.rulesets.Update(context.Background(), actorOf(e.fx.Author), rs.ID, &UpdateRulesetRequest{Content: strPtr("Trotz Fehler gespeichert.")})
	require.NoError(t, err)
	assert.Equal(t, 2, got.Version)
	require.NoError(t, e.rulesets.Delete(context.Background(), actorOf(e.fx.Author), rs.ID))

	assert.Equal(t, 3, e.logs.FilterMessage("failed to write audit log").Len())
}

// conflictingRepo 模拟另一个写入者在读取和写入之间提交了新版本
type conflictingRepo struct {
	repository.RulesetRepository
	db        *gorm.DB
	conflicts int
	calls     int
	bump      int64
}

func (r *conflictingRepo) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	err := r.RulesetRepository.Transaction(ctx, fn)
	if r.bump != 0 {
		if bumpErr := r.db.Exec("UPDATE rulesets SET version = version + 1 WHERE id = ?", r.bump).Error; bumpErr != nil {
			return bumpErr
		}
		r.bump = 0
	}
	return err
}

func (r *conflictingRepo) UpdateCAS(ctx context.Context, id int64, expectedVersion int, fields map[string]interface{}) error {
	r.calls++
	if r.calls <= r.conflicts {
		r.bump = id
		return repository.ErrStaleVersion
	}
	return r.RulesetRepository.UpdateCAS(ctx, id, expectedVersion, fields)
}

func TestRulesetService_UpdateRetriesOnVersionConflict(t *testing.T) {
	db := testutil.NewDB(t)
	repo := &conflictingRepo{RulesetRepository: repository.NewRulesetRepository(db), db: db, conflicts: 1}
	e := newTestEnvWithRepo(t, db, repo)
	rs := e.createRuleset(t, model.RulesetStatusPublished)

	got, err := e.rulesets.Update(context.Background(), actorOf(e.fx.Author), rs.ID, &UpdateRulesetRequest{Content: strPtr("Nach Konflikt gespeichert.")})
	require.NoError(t, err)
	assert.Equal(t, 2, repo.calls)
	// 并发写入的版本 2 不会被覆盖
	assert.Equal(t, 3, got.Version)
	assert.Equal(t, 1, e.logs.FilterMessage("ruleset version conflict").Len())

	rec := e.auditRecords(t, rs.ID)[0]
	assert.Equal(t, model.Numbered(2), rec.VersionBefore)
	assert.Equal(t, model.Numbered(3), rec.VersionAfter)
}

func TestRulesetService_UpdateConflictExhausted(t *testing.T) {
	db := testutil.NewDB(t)
	repo := &conflictingRepo{RulesetRepository: repository.NewRulesetRepository(db), db: db, conflicts: 100}
	e := newTestEnvWithRepo(t, db, repo)
	rs := e.createRuleset(t, model.RulesetStatusPublished)

	_, err := e.rulesets.Update(context.Background(), actorOf(e.fx.Author), rs.ID, &UpdateRulesetRequest{Content: strPtr("Wird nie gespeichert.")})
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.ErrVersionConflict))
	assert.True(t, errors.Is(err, repository.ErrStaleVersion))
	assert.Equal(t, 3, repo.calls)

	assert.Len(t, e.auditRecords(t, rs.ID), 1)
}

func TestRulesetService_GetVisibility(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	draft := e.createRuleset(t, model.RulesetStatusDraft)
	published := e.createRuleset(t, model.RulesetStatusPublished)

	_, err := e.rulesets.Get(ctx, nil, published.ID)
	assert.NoError(t, err)

	_, err = e.rulesets.Get(ctx, nil, draft.ID)
	assert.True(t, pkgerrors.Is(err, pkgerrors.ErrForbidden))
	_, err = e.rulesets.Get(ctx, actorOf(e.fx.Other), draft.ID)
	assert.True(t, pkgerrors.Is(err, pkgerrors.ErrForbidden))

	_, err = e.rulesets.Get(ctx, actorOf(e.fx.Author), draft.ID)
	assert.NoError(t, err)
	_, err = e.rulesets.Get(ctx, actorOf(e.fx.Admin), draft.ID)
	assert.NoError(t, err)

	_, err = e.rulesets.Get(ctx, nil, 999)
	assert.True(t, pkgerrors.Is(err, pkgerrors.ErrRulesetNotFound))
}

func TestRulesetService_ListVisibility(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.createRuleset(t, model.RulesetStatusDraft)
	e.createRuleset(t, model.RulesetStatusPublished)

	page := &model.Pagination{}
	items, err := e.rulesets.List(ctx, actorOf(e.fx.Author), page, &RulesetQuery{})
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, int64(1), page.Total)

	page = &model.Pagination{}
	items, err = e.rulesets.List(ctx, actorOf(e.fx.Admin), page, nil)
	require.NoError(t, err)
	assert.Len(t, items, 2)

	page = &model.Pagination{}
	items, err = e.rulesets.List(ctx, actorOf(e.fx.Admin), page, &RulesetQuery{Status: model.RulesetStatusDraft})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, model.RulesetStatusDraft, items[0].Status)
}

type memoryCache struct {
	items       map[int64]*model.Ruleset
	invalidated []int64
}

func (c *memoryCache) Get(_ context.Context, id int64) (*model.Ruleset, bool) {
	r, ok := c.items[id]
	return r, ok
}

func (c *memoryCache) Set(_ context.Context, r *model.Ruleset) { c.items[r.ID] = r }

func (c *memoryCache) Invalidate(_ context.Context, id int64) {
	delete(c.items, id)
	c.invalidated = append(c.invalidated, id)
}

func TestRulesetService_CacheInvalidatedOnWrite(t *testing.T) {
	e := newTestEnv(t)
	cache := &memoryCache{items: make(map[int64]*model.Ruleset)}
	e.rulesets.cache = cache
	ctx := context.Background()

	rs := e.createRuleset(t, model.RulesetStatusPublished)
	_, err := e.rulesets.Get(ctx, nil, rs.ID)
	require.NoError(t, err)
	assert.Contains(t, cache.items, rs.ID)

	_, err = e.rulesets.Update(ctx, actorOf(e.fx.Author), rs.ID, &UpdateRulesetRequest{Title: strPtr("Neuer Titel")})
	require.NoError(t, err)
	assert.NotContains(t, cache.items, rs.ID)

	got, err := e.rulesets.Get(ctx, nil, rs.ID)
	require.NoError(t, err)
	assert.Equal(t, "Neuer Titel", got.Title)

	require.NoError(t, e.rulesets.Delete(ctx, actorOf(e.fx.Author), rs.ID))
	assert.Equal(t, []int64{rs.ID, rs.ID}, cache.invalidated)
}

func TestUpdateRulesetRequest_ContentChanged(t *testing.T) {
	assert.False(t, (&UpdateRulesetRequest{Status: statusPtr(model.RulesetStatusPublished)}).contentChanged())
	assert.False(t, (&UpdateRulesetRequest{TagNames: []string{"x"}}).contentChanged())
	assert.True(t, (&UpdateRulesetRequest{TopicIDs: []int64{}}).contentChanged())
	assert.True(t, (&UpdateRulesetRequest{TableOfContents: []TOCInput{}}).contentChanged())
	assert.True(t, (&UpdateRulesetRequest{}).empty())
	assert.False(t, (&UpdateRulesetRequest{TagNames: []string{}}).empty())
}
