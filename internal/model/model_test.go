package model

import (
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
)

func TestAccount_Identity_DropsSecrets(t *testing.T) {
	t.Parallel()

	a := &Account{
		ID:           uuid.Must(uuid.NewV4()),
		Name:         "alice",
		Email:        "alice@example.com",
		PasswordHash: "$argon2id$...",
		Confirmed:    true,
		RefreshToken: "rt",
		AvatarURL:    "https://img/alice.png",
		CreatedAt:    time.Unix(1700000000, 0),
	}

	id := a.Identity()
	require.Equal(t, a.ID, id.ID)
	require.Equal(t, "alice", id.Name)
	require.Equal(t, "alice@example.com", id.Email)
	require.True(t, id.Confirmed)
	require.Equal(t, a.AvatarURL, id.AvatarURL)
	require.True(t, a.CreatedAt.Equal(id.CreatedAt))
}
