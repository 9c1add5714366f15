package store

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/ncostello/go-messenger/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SqliteRepository {
	db, err := NewSqliteRepository(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err, "expected sqlite store to open")
	t.Cleanup(func() {
		db.Close()
	})
	return db
}

func createTestAccount(t *testing.T, db *SqliteRepository, username string) Account {
	acct, err := db.CreateAccount(CreateAccountParams{
		Username:     username,
		PasswordHash: "hash",
	})
	require.NoError(t, err, "expected account creation to succeed")
	return acct
}

func TestCreateAndGetAccount(t *testing.T) {
	db := newTestStore(t)

	acct := createTestAccount(t, db, "alice")
	assert.NotZero(t, acct.Id, "expected an assigned id")
	assert.Equal(t, "alice", acct.Username, "expected username to be stored")
	assert.Equal(t, string(types.VisibilityPublic), acct.MessagesVisibility, "expected default visibility")
	assert.True(t, acct.AllowPrivate, "expected allow_private to default to true")
	assert.False(t, acct.Blocked, "expected blocked to default to false")

	byName, err := db.GetAccountByUsername("alice")
	assert.NoError(t, err, "expected lookup by username to succeed")
	assert.Equal(t, acct.Id, byName.Id, "expected same account by username")

	_, err = db.GetAccountByUsername("nobody")
	assert.ErrorIs(t, err, sql.ErrNoRows, "expected ErrNoRows for unknown username")

	_, err = db.CreateAccount(CreateAccountParams{Username: "alice", PasswordHash: "other"})
	assert.Error(t, err, "expected duplicate username to fail")
}

func TestUpdateAccount(t *testing.T) {
	db := newTestStore(t)
	acct := createTestAccount(t, db, "alice")

	updated, err := db.UpdateAccount(UpdateAccountParams{
		UserId:             acct.Id,
		Avatar:             "/uploads/a.png",
		MessagesVisibility: string(types.VisibilityFriends),
		AllowPrivate:       false,
		ProfileLocked:      true,
	})
	assert.NoError(t, err, "expected update to succeed")
	assert.Equal(t, "/uploads/a.png", updated.Avatar, "expected avatar to be updated")
	assert.Equal(t, string(types.VisibilityFriends), updated.MessagesVisibility, "expected visibility to be updated")
	assert.False(t, updated.AllowPrivate, "expected allow_private to be updated")
	assert.True(t, updated.ProfileLocked, "expected profile_locked to be updated")
}

func TestSetBlocked(t *testing.T) {
	db := newTestStore(t)
	acct := createTestAccount(t, db, "carol")

	assert.NoError(t, db.SetBlocked(acct.Id, true), "expected SetBlocked to succeed")

	blocked, err := db.GetAccountById(acct.Id)
	assert.NoError(t, err)
	assert.True(t, blocked.Blocked, "expected account to be blocked")
}

func TestFriends(t *testing.T) {
	db := newTestStore(t)
	alice := createTestAccount(t, db, "alice")
	bob := createTestAccount(t, db, "bob")

	assert.False(t, db.IsFriend(alice.Id, bob.Id), "expected no link initially")

	assert.NoError(t, db.AddFriend(alice.Id, bob.Id), "expected AddFriend to succeed")
	assert.True(t, db.IsFriend(alice.Id, bob.Id), "expected link in insert direction")
	assert.True(t, db.IsFriend(bob.Id, alice.Id), "expected link to be symmetric")

	// adding the same link again is harmless
	assert.NoError(t, db.AddFriend(alice.Id, bob.Id), "expected duplicate AddFriend not to error")

	aliceFriends, err := db.ListFriends(alice.Id)
	assert.NoError(t, err)
	assert.Len(t, aliceFriends, 1, "expected one friend for alice")
	assert.Equal(t, "bob", aliceFriends[0].Username)

	bobFriends, err := db.ListFriends(bob.Id)
	assert.NoError(t, err)
	assert.Len(t, bobFriends, 1, "expected link to be listed for both sides")

	// removal works from either direction
	assert.NoError(t, db.RemoveFriend(bob.Id, alice.Id), "expected RemoveFriend to succeed")
	assert.False(t, db.IsFriend(alice.Id, bob.Id), "expected link to be gone")
}

func TestAppendOrdering(t *testing.T) {
	db := newTestStore(t)
	alice := createTestAccount(t, db, "alice")

	m1, err := db.AppendPublic(&alice.Id, "first", nil)
	assert.NoError(t, err, "expected append to succeed")
	m2, err := db.AppendPublic(&alice.Id, "second", nil)
	assert.NoError(t, err, "expected append to succeed")

	assert.Less(t, m1.Id, m2.Id, "expected ids to increase in append order")
	assert.LessOrEqual(t, m1.Timestamp, m2.Timestamp, "expected timestamps to be non-decreasing")

	recent, err := db.RecentPublic(10)
	assert.NoError(t, err)
	assert.Len(t, recent, 2)
	assert.Equal(t, "first", recent[0].Text, "expected oldest-first order")
	assert.Equal(t, "second", recent[1].Text)
}

func TestRecentPublicLimit(t *testing.T) {
	db := newTestStore(t)

	for _, text := range []string{"m1", "m2", "m3"} {
		_, err := db.AppendPublic(nil, text, nil)
		require.NoError(t, err)
	}

	recent, err := db.RecentPublic(2)
	assert.NoError(t, err)
	assert.Len(t, recent, 2, "expected limit to cap the result")
	// the newest two, still oldest-first
	assert.Equal(t, "m2", recent[0].Text)
	assert.Equal(t, "m3", recent[1].Text)
}

func TestPrivateMessagesNotInPublicFeed(t *testing.T) {
	db := newTestStore(t)
	alice := createTestAccount(t, db, "alice")
	bob := createTestAccount(t, db, "bob")

	_, err := db.AppendPublic(&alice.Id, "hello all", nil)
	require.NoError(t, err)
	_, err = db.AppendPrivate(&alice.Id, bob.Id, "hello bob", nil)
	require.NoError(t, err)

	recent, err := db.RecentPublic(10)
	assert.NoError(t, err)
	assert.Len(t, recent, 1, "expected private message to be absent from the public feed")
	assert.Equal(t, "hello all", recent[0].Text)
	assert.Nil(t, recent[0].ToUser, "expected public message to have no recipient")
}

func TestConversation(t *testing.T) {
	db := newTestStore(t)
	alice := createTestAccount(t, db, "alice")
	bob := createTestAccount(t, db, "bob")
	eve := createTestAccount(t, db, "eve")

	_, err := db.AppendPrivate(&alice.Id, bob.Id, "hi bob", nil)
	require.NoError(t, err)
	_, err = db.AppendPrivate(&bob.Id, alice.Id, "hi alice", nil)
	require.NoError(t, err)
	_, err = db.AppendPrivate(&eve.Id, alice.Id, "unrelated", nil)
	require.NoError(t, err)
	_, err = db.AppendPublic(&alice.Id, "public", nil)
	require.NoError(t, err)

	conv, err := db.Conversation(alice.Id, bob.Id)
	assert.NoError(t, err)
	assert.Len(t, conv, 2, "expected both directions, nothing else")
	assert.Equal(t, "hi bob", conv[0].Text, "expected chronological order")
	assert.Equal(t, "hi alice", conv[1].Text)

	// the pair is unordered
	reversed, err := db.Conversation(bob.Id, alice.Id)
	assert.NoError(t, err)
	assert.Equal(t, conv, reversed, "expected the same conversation regardless of argument order")
}

func TestAppendMedia(t *testing.T) {
	db := newTestStore(t)

	media := &types.Media{Kind: types.MediaKindImage, Url: "/uploads/pic.png"}
	m, err := db.AppendPublic(nil, "", media)
	assert.NoError(t, err, "expected media-only guest message to persist")
	assert.Nil(t, m.FromUser, "expected nil sender for guest")
	require.NotNil(t, m.MediaType)
	assert.Equal(t, types.MediaKindImage, *m.MediaType)

	recent, err := db.RecentPublic(1)
	assert.NoError(t, err)
	require.Len(t, recent, 1)
	require.NotNil(t, recent[0].MediaUrl)
	assert.Equal(t, "/uploads/pic.png", *recent[0].MediaUrl, "expected media url to round-trip")
}
