package effects

import (
	"bytes"
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intranet/internal/domain/notification"
)

type recordingToaster struct {
	mu     sync.Mutex
	toasts []Toast
}

func (r *recordingToaster) Show(t Toast) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.toasts = append(r.toasts, t)
}

func (r *recordingToaster) all() []Toast {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Toast(nil), r.toasts...)
}

type fakeAudio struct {
	calls int
	err   error
}

func (f *fakeAudio) Play(context.Context) error {
	f.calls++
	return f.err
}

type recordingInvalidator struct {
	keys [][]Key
	err  error
}

func (r *recordingInvalidator) Invalidate(_ context.Context, keys []Key) error {
	r.keys = append(r.keys, keys)
	return r.err
}

func TestInvalidationTable_CoversEveryType(t *testing.T) {
	for _, typ := range notification.AllTypes() {
		assert.NotEmpty(t, DomainsFor(typ), "type %q has no invalidation entry", typ)
	}
	assert.Len(t, invalidationTable, len(notification.AllTypes()))
}

func TestToastFor_PriorityStyles(t *testing.T) {
	tests := []struct {
		priority notification.Priority
		style    Style
		duration time.Duration
	}{
		{notification.PriorityUrgent, StyleError, 10 * time.Second},
		{notification.PriorityHigh, StyleWarning, 6 * time.Second},
		{notification.PriorityMedium, StyleSuccess, 4 * time.Second},
		{notification.PriorityLow, StyleSuccess, 4 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.priority.String(), func(t *testing.T) {
			toast := ToastFor(notification.Notification{Title: "x", Priority: tt.priority})
			assert.Equal(t, tt.style, toast.Style)
			assert.Equal(t, tt.duration, toast.Duration)
		})
	}
}

func TestToastFor_Metadata(t *testing.T) {
	n := notification.Notification{
		Title: "Jane liked your post",
		Metadata: &notification.Metadata{
			ActorName:   "Jane",
			ActorAvatar: "https://cdn/jane.png",
			OrgUnit:     "Marketing",
			URL:         "/posts/7",
		},
	}

	toast := ToastFor(n)
	assert.Equal(t, "https://cdn/jane.png", toast.AvatarURL)
	assert.Equal(t, "Marketing", toast.Badge)
	assert.Equal(t, "/posts/7", toast.Link)
	assert.True(t, toast.Clickable())
}

func TestToastFor_NoMetadata(t *testing.T) {
	toast := ToastFor(notification.Notification{Title: "System maintenance"})
	assert.Empty(t, toast.AvatarURL)
	assert.Empty(t, toast.Badge)
	assert.False(t, toast.Clickable())
}

func TestKeysFor_EntityDomain(t *testing.T) {
	n := notification.Notification{
		Type:     notification.TypePostLiked,
		Metadata: &notification.Metadata{EntityType: "post", EntityID: "42"},
	}

	keys := KeysFor(n)
	require.Len(t, keys, 3)
	assert.Equal(t, "entity:post:42", keys[0].String())
	assert.Equal(t, "feed", keys[1].String())
	assert.Equal(t, "social", keys[2].String())
}

func TestKeysFor_SkipsEntityWithoutReference(t *testing.T) {
	keys := KeysFor(notification.Notification{Type: notification.TypePostLiked})
	require.Len(t, keys, 2)
	for _, k := range keys {
		assert.NotEqual(t, DomainEntity, k.Domain)
	}
}

func TestKeysFor_UnknownType(t *testing.T) {
	assert.Nil(t, KeysFor(notification.Notification{Type: "something_new"}))
}

func TestDispatcher_UrgentPlaysAudio(t *testing.T) {
	toaster := &recordingToaster{}
	audio := &fakeAudio{}
	inv := &recordingInvalidator{}
	d := NewDispatcher(toaster, audio, inv, nil)

	d.Dispatch(context.Background(), notification.Notification{
		ID:       "n1",
		Type:     notification.TypeContentFlagged,
		Title:    "Post flagged",
		Priority: notification.PriorityUrgent,
	})

	toasts := toaster.all()
	require.Len(t, toasts, 1)
	assert.Equal(t, StyleError, toasts[0].Style)
	assert.Equal(t, 10*time.Second, toasts[0].Duration)
	assert.Empty(t, toasts[0].AvatarURL)
	assert.Equal(t, 1, audio.calls)

	require.Len(t, inv.keys, 1)
	var domains []Domain
	for _, k := range inv.keys[0] {
		domains = append(domains, k.Domain)
	}
	assert.ElementsMatch(t, []Domain{DomainFlaggedContent, DomainAdmin, DomainModerationQueue}, domains)
}

func TestDispatcher_NonUrgentIsSilent(t *testing.T) {
	audio := &fakeAudio{}
	d := NewDispatcher(&recordingToaster{}, audio, nil, nil)

	d.Dispatch(context.Background(), notification.Notification{
		Type:     notification.TypeEventCreated,
		Priority: notification.PriorityHigh,
	})

	assert.Zero(t, audio.calls)
}

func TestDispatcher_SwallowsEffectErrors(t *testing.T) {
	toaster := &recordingToaster{}
	audio := &fakeAudio{err: errors.New("no audio device")}
	inv := &recordingInvalidator{err: errors.New("redis down")}
	d := NewDispatcher(toaster, audio, inv, nil)

	assert.NotPanics(t, func() {
		d.Dispatch(context.Background(), notification.Notification{
			Type:     notification.TypeEventCancelled,
			Priority: notification.PriorityUrgent,
		})
	})
	assert.Len(t, toaster.all(), 1)
	assert.Equal(t, 1, audio.calls)
}

func TestDispatcher_Acknowledge(t *testing.T) {
	toaster := &recordingToaster{}
	d := NewDispatcher(toaster, nil, nil, nil)

	d.Acknowledge(true, "Notification deleted")
	d.Acknowledge(false, "Failed to delete notification")

	toasts := toaster.all()
	require.Len(t, toasts, 2)
	assert.Equal(t, StyleSuccess, toasts[0].Style)
	assert.Equal(t, StyleError, toasts[1].Style)
	assert.Equal(t, "Failed to delete notification", toasts[1].Title)
}

func TestRegistry_Invalidate(t *testing.T) {
	reg := NewRegistry()
	var got []string
	reg.Register(DomainFeed, func(k Key) { got = append(got, "feed:"+k.String()) })
	reg.Register(DomainEntity, func(k Key) { got = append(got, k.String()) })

	err := reg.Invalidate(context.Background(), []Key{
		{Domain: DomainFeed},
		{Domain: DomainSocial},
		{Domain: DomainEntity, EntityType: "post", EntityID: "1"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"feed:feed", "entity:post:1"}, got)
}

func TestMultiInvalidator_JoinsErrors(t *testing.T) {
	ok := &recordingInvalidator{}
	bad := &recordingInvalidator{err: errors.New("boom")}

	err := MultiInvalidator{ok, nil, bad}.Invalidate(context.Background(), []Key{{Domain: DomainJobs}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Len(t, ok.keys, 1)
}

func TestRenderToast_OmitsMissingParts(t *testing.T) {
	out := RenderToast(Toast{Title: "Hello", Style: StyleSuccess})
	assert.Contains(t, out, "Hello")
	assert.NotContains(t, out, "@ ")

	out = RenderToast(Toast{Title: "Hello", AvatarURL: "a.png", ActorName: "Bob", Link: "/x"})
	assert.Contains(t, out, "Bob")
	assert.Contains(t, out, "/x")
}

func TestBellPlayer(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, BellPlayer{Out: &buf}.Play(context.Background()))
	assert.Equal(t, "\a", buf.String())

	err := BellPlayer{Out: &buf, AssetPath: "/nonexistent/alert.mp3"}.Play(context.Background())
	assert.Error(t, err)
}

func TestRedisInvalidator(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	inv := NewRedisInvalidator(client, "test-intranet")
	require.NoError(t, client.Set(ctx, "test-intranet:feed", "cached", time.Minute).Err())

	sub := client.Subscribe(ctx, inv.Channel())
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, inv.Invalidate(ctx, []Key{{Domain: DomainFeed}}))

	exists, err := client.Exists(ctx, "test-intranet:feed").Result()
	require.NoError(t, err)
	assert.Zero(t, exists)

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	assert.Contains(t, msg.Payload, `"feed"`)
}
