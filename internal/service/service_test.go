package service

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"

	"github.com/ryckox/syntagma/internal/model"
	"github.com/ryckox/syntagma/internal/repository"
	"github.com/ryckox/syntagma/internal/testutil"
)

type testEnv struct {
	db          *gorm.DB
	fx          *testutil.Fixture
	rulesetRepo repository.RulesetRepository
	audit       *AuditService
	rulesets    *RulesetService
	logs        *observer.ObservedLogs
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := testutil.NewDB(t)
	return newTestEnvWithRepo(t, db, repository.NewRulesetRepository(db))
}

func newTestEnvWithRepo(t *testing.T, db *gorm.DB, rulesetRepo repository.RulesetRepository) *testEnv {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	log := zap.New(core)

	audit := NewAuditService(repository.NewAuditLogRepository(db), log)
	rulesets := NewRulesetService(rulesetRepo, repository.NewTaxonomyRepository(db), audit, nil, log)
	rulesets.SetRetry(3, time.Millisecond)

	return &testEnv{
		db:          db,
		fx:          testutil.Seed(t, db),
		rulesetRepo: rulesetRepo,
		audit:       audit,
		rulesets:    rulesets,
		logs:        logs,
	}
}

func actorOf(u *model.User) *Actor {
	return &Actor{
		UserID:    u.ID,
		Username:  u.Username,
		Role:      u.Role,
		IP:        "192.0.2.10",
		UserAgent: "go-test",
	}
}

func (e *testEnv) createRuleset(t *testing.T, status model.RulesetStatus) *model.Ruleset {
	t.Helper()
	rs, err := e.rulesets.Create(context.Background(), actorOf(e.fx.Author), &CreateRulesetRequest{
		Title:    "Geschäftsordnung",
		TypeID:   e.fx.Type.ID,
		TopicIDs: []int64{e.fx.Topics[0].ID},
		Content:  "Diese Geschäftsordnung regelt die Sitzungen.",
		Status:   status,
	})
	require.NoError(t, err)
	require.NotNil(t, rs)
	return rs
}

func (e *testEnv) auditRecords(t *testing.T, rulesetID int64) []*model.AuditRecord {
	t.Helper()
	records, err := e.audit.ListByRuleset(context.Background(), rulesetID, &model.Pagination{PageSize: 100})
	require.NoError(t, err)
	return records
}

func strPtr(s string) *string { return &s }

func statusPtr(s model.RulesetStatus) *model.RulesetStatus { return &s }

func keys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
