package sqlstore

import (
	"context"
	"testing"
	"time"

	"github.com/MrEthical07/eduAuth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountsCreateAndFind(t *testing.T) {
	db := openTestDB(t)
	accounts := NewAccounts(db)
	ctx := context.Background()

	require.NoError(t, accounts.Create(ctx, &eduAuth.Account{
		ID:           "acc-1",
		Email:        "  Ada@Example.com ",
		PasswordHash: "$argon2id$...",
		Role:         "teacher",
		IsActive:     true,
	}))

	byEmail, err := accounts.FindByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	require.NotNil(t, byEmail)
	assert.Equal(t, "acc-1", byEmail.ID)
	assert.Equal(t, "ada@example.com", byEmail.Email)
	assert.Equal(t, "teacher", byEmail.Role)
	assert.True(t, byEmail.IsActive)
	assert.False(t, byEmail.IsVerified)
	assert.Nil(t, byEmail.ExternalIdentity)
	assert.False(t, byEmail.CreatedAt.IsZero())

	byID, err := accounts.FindByID(ctx, "acc-1")
	require.NoError(t, err)
	assert.Equal(t, byEmail, byID)

	missing, err := accounts.FindByEmail(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestAccountsLinkIdentity(t *testing.T) {
	db := openTestDB(t)
	accounts := NewAccounts(db)
	ctx := context.Background()

	acc := &eduAuth.Account{ID: "acc-1", Email: "ada@example.com", Role: "student", IsActive: true}
	require.NoError(t, accounts.Create(ctx, acc))

	linkedAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	acc.IsVerified = true
	acc.ExternalIdentity = &eduAuth.ExternalIdentity{
		Provider:              "google",
		ProviderID:            "g-42",
		ProviderEmail:         "ada@example.com",
		ProviderVerifiedEmail: true,
		LinkedAt:              linkedAt,
	}
	acc.UpdatedAt = time.Time{}
	require.NoError(t, accounts.Update(ctx, acc))

	got, err := accounts.FindByExternalID(ctx, "google", "g-42")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.IsVerified)
	require.NotNil(t, got.ExternalIdentity)
	assert.Equal(t, "g-42", got.ExternalIdentity.ProviderID)
	assert.True(t, got.ExternalIdentity.ProviderVerifiedEmail)
	assert.True(t, linkedAt.Equal(got.ExternalIdentity.LinkedAt))

	none, err := accounts.FindByExternalID(ctx, "github", "g-42")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestAccountsUniqueConstraints(t *testing.T) {
	db := openTestDB(t)
	accounts := NewAccounts(db)
	ctx := context.Background()

	require.NoError(t, accounts.Create(ctx, &eduAuth.Account{ID: "a", Email: "x@example.com", Role: "student"}))
	err := accounts.Create(ctx, &eduAuth.Account{ID: "b", Email: "X@example.com", Role: "student"})
	assert.ErrorIs(t, err, ErrDuplicate)

	ext := &eduAuth.ExternalIdentity{Provider: "google", ProviderID: "same"}
	require.NoError(t, accounts.Create(ctx, &eduAuth.Account{ID: "c", Email: "c@example.com", Role: "student", ExternalIdentity: ext}))
	err = accounts.Create(ctx, &eduAuth.Account{ID: "d", Email: "d@example.com", Role: "student", ExternalIdentity: ext})
	assert.ErrorIs(t, err, ErrDuplicate)

	// Unlinked accounts never collide on the identity index.
	require.NoError(t, accounts.Create(ctx, &eduAuth.Account{ID: "e", Email: "e@example.com", Role: "student"}))
}

func TestAccountsUpdateMissing(t *testing.T) {
	accounts := NewAccounts(openTestDB(t))
	err := accounts.Update(context.Background(), &eduAuth.Account{ID: "ghost", Email: "g@example.com"})
	assert.Error(t, err)
}
