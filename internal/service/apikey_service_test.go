package service

import (
	"encoding/json"
	"strings"
	"testing"

	"adslot-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIKeyLifecycle(t *testing.T) {
	env := newTestEnv(t)
	svc := NewAPIKeyService(env.store, env.store)

	created, err := svc.Create(env.ctx, env.tenant.ID, &CreateAPIKeyRequest{Name: "ci pipeline"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(created.Key, "ak_"))
	assert.NotEqual(t, created.Key, created.KeyHash)
	assert.True(t, strings.HasSuffix(created.KeyPreview, created.Key[len(created.Key)-4:]))

	identity, err := svc.Resolve(env.ctx, created.Key)
	require.NoError(t, err)
	assert.Equal(t, env.tenant.ID, identity.TenantID)
	assert.Equal(t, env.tenant.TelegramID, identity.UserID)
	assert.Equal(t, models.AuthMethodAPIKey, identity.Method)

	keys, err := svc.List(env.ctx, env.tenant.ID)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	body, err := json.Marshal(keys[0])
	require.NoError(t, err)
	assert.NotContains(t, string(body), created.KeyHash)
	assert.NotContains(t, string(body), created.Key)

	assert.ErrorIs(t, svc.Revoke(env.ctx, otherTenantID(), created.ID), models.ErrNotFound)
	require.NoError(t, svc.Revoke(env.ctx, env.tenant.ID, created.ID))

	_, err = svc.Resolve(env.ctx, created.Key)
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestAPIKeyResolve_Rejects(t *testing.T) {
	env := newTestEnv(t)
	svc := NewAPIKeyService(env.store, env.store)

	_, err := svc.Resolve(env.ctx, "sk_live_something")
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	_, err = svc.Resolve(env.ctx, "ak_unknown")
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	_, err = svc.Create(env.ctx, env.tenant.ID, &CreateAPIKeyRequest{Name: "   "})
	assert.ErrorIs(t, err, models.ErrValidation)
}
