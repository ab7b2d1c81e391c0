package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryckox/syntagma/internal/model"
	"github.com/ryckox/syntagma/internal/repository"
	"github.com/ryckox/syntagma/internal/testutil"
	pkgerrors "github.com/ryckox/syntagma/pkg/errors"
)

func TestUserService_CreateAndLogin(t *testing.T) {
	auth, f, users := newAuthService(t)
	svc := NewUserService(users, auth)
	ctx := context.Background()

	user, err := svc.Create(ctx, &CreateUserRequest{
		Username: "kassenwart",
		Email:    " Kasse@Verein.DE ",
		Password: "geheim123",
	})
	require.NoError(t, err)
	assert.Equal(t, model.RoleUser, user.Role)
	assert.True(t, user.Active)
	assert.Equal(t, "kasse@verein.de", user.Email)

	resp, err := auth.Login(ctx, &LoginRequest{Username: "kassenwart", Password: "geheim123"})
	require.NoError(t, err)
	assert.Equal(t, user.ID, resp.User.ID)

	_, err = svc.Create(ctx, &CreateUserRequest{Username: "author", Email: "neu@verein.de", Password: "geheim123"})
	assert.True(t, pkgerrors.Is(err, pkgerrors.ErrNameTaken))
	_, err = svc.Create(ctx, &CreateUserRequest{Username: "neu", Email: f.Author.Email, Password: "geheim123"})
	assert.True(t, pkgerrors.Is(err, pkgerrors.ErrNameTaken))

	inactive := false
	disabled, err := svc.Create(ctx, &CreateUserRequest{
		Username: "gast",
		Email:    "gast@verein.de",
		Password: "geheim123",
		Role:     model.RoleAdmin,
		Active:   &inactive,
	})
	require.NoError(t, err)
	assert.True(t, disabled.IsAdmin())
	_, err = auth.Login(ctx, &LoginRequest{Username: "gast", Password: "geheim123"})
	assert.True(t, pkgerrors.Is(err, pkgerrors.ErrAccountDisabled))

	list, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 5)
}

func TestUserService_Update(t *testing.T) {
	auth, f, users := newAuthService(t)
	svc := NewUserService(users, auth)
	ctx := context.Background()
	admin := actorOf(f.Admin)

	inactive := false
	role := model.RoleAdmin
	updated, err := svc.Update(ctx, admin, f.Other.ID, &UpdateUserRequest{Active: &inactive, Role: &role})
	require.NoError(t, err)
	assert.False(t, updated.Active)
	assert.True(t, updated.IsAdmin())

	_, err = auth.Login(ctx, &LoginRequest{Username: "other", Password: testutil.Password})
	assert.True(t, pkgerrors.Is(err, pkgerrors.ErrAccountDisabled))

	password := "neuespasswort"
	_, err = svc.Update(ctx, admin, f.Author.ID, &UpdateUserRequest{Password: &password})
	require.NoError(t, err)
	_, err = auth.Login(ctx, &LoginRequest{Username: "author", Password: password})
	require.NoError(t, err)

	_, err = svc.Update(ctx, admin, f.Author.ID, &UpdateUserRequest{Username: strPtr("other")})
	assert.True(t, pkgerrors.Is(err, pkgerrors.ErrNameTaken))

	_, err = svc.Update(ctx, admin, f.Author.ID, &UpdateUserRequest{})
	assert.True(t, pkgerrors.Is(err, pkgerrors.ErrNoChanges))

	_, err = svc.Update(ctx, admin, 999, &UpdateUserRequest{Active: &inactive})
	assert.True(t, pkgerrors.Is(err, pkgerrors.ErrUserNotFound))

	// 管理员不能把自己锁在外面
	_, err = svc.Update(ctx, admin, f.Admin.ID, &UpdateUserRequest{Active: &inactive})
	assert.True(t, pkgerrors.Is(err, pkgerrors.ErrSelfAction))
	demoted := model.RoleUser
	_, err = svc.Update(ctx, admin, f.Admin.ID, &UpdateUserRequest{Role: &demoted})
	assert.True(t, pkgerrors.Is(err, pkgerrors.ErrSelfAction))

	_, err = svc.Update(ctx, nil, f.Author.ID, &UpdateUserRequest{Active: &inactive})
	assert.True(t, pkgerrors.Is(err, pkgerrors.ErrUnauthorized))
}

func TestUserService_Delete(t *testing.T) {
	db := testutil.NewDB(t)
	f := testutil.Seed(t, db)
	users := repository.NewUserRepository(db)
	svc := NewUserService(users, NewAuthService(users, &AuthServiceConfig{JWTSecret: "x"}))
	ctx := context.Background()
	admin := actorOf(f.Admin)

	rs := &model.Ruleset{Title: "Ordnung", Content: "Inhalt der Ordnung", Status: model.RulesetStatusDraft, TypeID: f.Type.ID, CreatedBy: f.Author.ID}
	require.NoError(t, repository.NewRulesetRepository(db).Create(ctx, rs))

	err := svc.Delete(ctx, admin, f.Author.ID)
	assert.True(t, pkgerrors.Is(err, pkgerrors.ErrInUse))

	err = svc.Delete(ctx, admin, f.Admin.ID)
	assert.True(t, pkgerrors.Is(err, pkgerrors.ErrSelfAction))

	require.NoError(t, svc.Delete(ctx, admin, f.Other.ID))
	_, err = svc.Get(ctx, f.Other.ID)
	assert.True(t, pkgerrors.Is(err, pkgerrors.ErrUserNotFound))
	assert.True(t, pkgerrors.Is(svc.Delete(ctx, admin, f.Other.ID), pkgerrors.ErrUserNotFound))
}
