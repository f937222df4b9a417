package rtc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinGrantOwner(t *testing.T) {
	grant := JoinGrant("lesson-1", true)

	assert.True(t, grant.RoomJoin)
	assert.Equal(t, "lesson-1", grant.Room)
	assert.True(t, grant.RoomAdmin)
	require.NotNil(t, grant.CanPublish)
	assert.True(t, *grant.CanPublish)
	require.NotNil(t, grant.CanSubscribe)
	assert.True(t, *grant.CanSubscribe)
}

func TestJoinGrantViewer(t *testing.T) {
	grant := JoinGrant("lesson-1", false)

	assert.True(t, grant.RoomJoin)
	assert.False(t, grant.RoomAdmin)
	require.NotNil(t, grant.CanPublish)
	assert.False(t, *grant.CanPublish, "non-owners are subscribe-only")
	require.NotNil(t, grant.CanSubscribe)
	assert.True(t, *grant.CanSubscribe)
}

func TestMintJoinTokenValidation(t *testing.T) {
	m := NewTokenMinter("", "", time.Hour)
	_, err := m.MintJoinToken("room", "user", false)
	assert.Error(t, err)

	m = NewTokenMinter("key", "secret-secret-secret-secret-1234", time.Hour)
	_, err = m.MintJoinToken("", "user", false)
	assert.Error(t, err)

	token, err := m.MintJoinToken("room", "user", true)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
}
