package chat_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vedran77/pulsechat/internal/chat"
	"github.com/vedran77/pulsechat/internal/chat/memory"
	"github.com/vedran77/pulsechat/internal/domain"
)

func newDirectory(store *memory.Store, user domain.User) *chat.Directory {
	b := store.For(user.ID)
	return chat.NewDirectory(b, chat.NewResolver(b))
}

func TestNormalizeChannelName(t *testing.T) {
	tests := map[string]string{
		"General":          "general",
		"  Sales   Team  ": "sales-team",
		"q3\tplanning\n":   "q3-planning",
		"   ":              "",
	}
	for in, want := range tests {
		assert.Equal(t, want, chat.NormalizeChannelName(in), "input %q", in)
	}
}

func TestCreatePublicChannel(t *testing.T) {
	store := memory.NewStore()
	u := store.AddUser("ana", "Ana")
	dir := newDirectory(store, u)
	ctx := context.Background()

	var observed [][]domain.Channel
	dir.OnChange(func(list []domain.Channel) { observed = append(observed, list) })

	ch, err := dir.CreatePublicChannel(ctx, " Sales Team ", u.ID)
	require.NoError(t, err)
	assert.Equal(t, "sales-team", ch.Name)
	assert.False(t, ch.IsPrivate)
	assert.Equal(t, u.ID, ch.CreatedBy)

	members, err := dir.Members(ctx, ch.ID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "Ana", members[0].DisplayName)

	require.Len(t, observed, 1)
	assert.Equal(t, "sales-team", observed[0][0].Name)
}

func TestCreatePublicChannelRejections(t *testing.T) {
	store := memory.NewStore()
	u := store.AddUser("ana", "Ana")
	dir := newDirectory(store, u)
	ctx := context.Background()

	_, err := dir.CreatePublicChannel(ctx, "sales team", u.ID)
	require.NoError(t, err)

	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"collision after normalizing", "Sales  Team", chat.ErrDuplicateChannel},
		{"dm prefix is reserved", "DM-anything", chat.ErrReservedName},
		{"blank", "  ", chat.ErrInvalidName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := dir.CreatePublicChannel(ctx, tt.input, u.ID)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
	assert.Len(t, dir.Channels(), 1)
}

func TestDeleteChannelOnlyByCreator(t *testing.T) {
	store := memory.NewStore()
	owner := store.AddUser("ana", "Ana")
	other := store.AddUser("ivo", "Ivo")
	ctx := context.Background()

	ownerDir := newDirectory(store, owner)
	ch, err := ownerDir.CreatePublicChannel(ctx, "general", owner.ID)
	require.NoError(t, err)
	_, err = store.For(owner.ID).InsertMessage(ctx, ch.ID, owner.ID, "hello", "")
	require.NoError(t, err)

	otherDir := newDirectory(store, other)
	require.NoError(t, otherDir.Refresh(ctx))

	err = otherDir.DeleteChannel(ctx, ch.ID, other.ID)
	assert.ErrorIs(t, err, chat.ErrNotAuthorized)
	assert.Equal(t, 1, store.MessageCount(ch.ID))

	require.NoError(t, ownerDir.DeleteChannel(ctx, ch.ID, owner.ID))
	assert.Zero(t, store.MessageCount(ch.ID))
	assert.Empty(t, ownerDir.Channels())

	found, err := store.For(owner.ID).FindChannel(ctx, "general", false)
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestResolveOrPrepareDMFindsExistingChannel(t *testing.T) {
	store := memory.NewStore()
	u1 := store.AddUser("ana", "Ana")
	u2 := store.AddUser("ivo", "Ivo")
	ctx := context.Background()
	dir := newDirectory(store, u1)

	conv, err := dir.ResolveOrPrepareDM(ctx, u1.ID, u2.ID)
	require.NoError(t, err)
	created, isNew, err := dir.CreateDM(ctx, conv.Pending, u1.ID)
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.True(t, created.IsPrivate)
	assert.True(t, created.IsDM())

	again, err := newDirectory(store, u2).ResolveOrPrepareDM(ctx, u2.ID, u1.ID)
	require.NoError(t, err)
	require.NotNil(t, again.Channel)
	assert.Nil(t, again.Pending)
	assert.Equal(t, created.ID, again.Channel.ID)

	names := []string{again.Members[0].DisplayName, again.Members[1].DisplayName}
	assert.ElementsMatch(t, []string{"Ana", "Ivo"}, names)
}

func TestCreateDMAdoptsPeerChannel(t *testing.T) {
	store := memory.NewStore()
	u1 := store.AddUser("ana", "Ana")
	u2 := store.AddUser("ivo", "Ivo")
	ctx := context.Background()

	conv, err := newDirectory(store, u1).ResolveOrPrepareDM(ctx, u1.ID, u2.ID)
	require.NoError(t, err)
	first, isNew, err := newDirectory(store, u2).CreateDM(ctx, conv.Pending, u2.ID)
	require.NoError(t, err)
	assert.True(t, isNew)

	second, isNew, err := newDirectory(store, u1).CreateDM(ctx, conv.Pending, u1.ID)
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, first.ID, second.ID)
}
