package browser

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/xkilldash9x/browserd/api/schemas"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestCreateSession(t *testing.T) {
	t.Run("registers a new session", func(t *testing.T) {
		launcher := &fakeLauncher{browser: &fakeBrowser{}, page: &fakePage{}}
		svc, _ := newTestService(launcher)

		result, err := svc.CreateSession(context.Background(), schemas.CreateSessionRequest{SessionID: "s1"})
		require.NoError(t, err)
		assert.True(t, result.Success)
		assert.Equal(t, 1, launcher.launchCount())

		info, ok := svc.SessionByID("s1")
		require.True(t, ok)
		assert.True(t, info.Active)
	})

	t.Run("rejects an empty session id", func(t *testing.T) {
		launcher := &fakeLauncher{browser: &fakeBrowser{}, page: &fakePage{}}
		svc, _ := newTestService(launcher)

		_, err := svc.CreateSession(context.Background(), schemas.CreateSessionRequest{})
		require.Error(t, err)
		assert.Zero(t, launcher.launchCount())
	})

	t.Run("rejects a duplicate id without touching the existing session", func(t *testing.T) {
		launcher := &fakeLauncher{browser: &fakeBrowser{}, page: &fakePage{}}
		svc, _ := newTestService(launcher)

		_, err := svc.CreateSession(context.Background(), schemas.CreateSessionRequest{SessionID: "dup"})
		require.NoError(t, err)

		_, err = svc.CreateSession(context.Background(), schemas.CreateSessionRequest{SessionID: "dup"})
		require.ErrorIs(t, err, ErrSessionExists)

		assert.Equal(t, 1, launcher.launchCount(), "a rejected duplicate must not launch a browser")
		assert.Zero(t, launcher.browser.closeCount(), "the original session must survive")
	})

	t.Run("propagates launch failure", func(t *testing.T) {
		launcher := &fakeLauncher{err: errors.New("chrome exploded")}
		svc, _ := newTestService(launcher)

		_, err := svc.CreateSession(context.Background(), schemas.CreateSessionRequest{SessionID: "s1"})
		require.Error(t, err)

		_, ok := svc.SessionByID("s1")
		assert.False(t, ok, "a failed launch must leave no registry entry")
	})

	t.Run("navigates to the initial url and tolerates its failure", func(t *testing.T) {
		page := &fakePage{navigateErr: errors.New("dns failure")}
		launcher := &fakeLauncher{browser: &fakeBrowser{}, page: page}
		svc, _ := newTestService(launcher)

		result, err := svc.CreateSession(context.Background(), schemas.CreateSessionRequest{
			SessionID:  "s1",
			InitialURL: "https://example.com",
		})
		require.NoError(t, err, "initial navigation failure must not fail creation")
		assert.True(t, result.Success)
		assert.Empty(t, result.Screenshot)

		_, ok := svc.SessionByID("s1")
		assert.True(t, ok, "the session stays registered")
	})

	t.Run("initial url success carries screenshot and page info", func(t *testing.T) {
		page := pageWithLinks(nil)
		launcher := &fakeLauncher{browser: &fakeBrowser{}, page: page}
		svc, _ := newTestService(launcher)

		result, err := svc.CreateSession(context.Background(), schemas.CreateSessionRequest{
			SessionID:  "s1",
			InitialURL: "https://example.com",
		})
		require.NoError(t, err)
		assert.NotEmpty(t, result.Screenshot)
		require.NotNil(t, result.PageInfo)
		assert.Equal(t, "Test Page", result.PageInfo.Title)
	})
}

func TestNavigate(t *testing.T) {
	t.Run("unknown session", func(t *testing.T) {
		svc, _ := newTestService(&fakeLauncher{})
		_, err := svc.Navigate(context.Background(), "ghost", "https://example.com")
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})

	t.Run("drives the page and refreshes activity", func(t *testing.T) {
		page := &fakePage{}
		launcher := &fakeLauncher{browser: &fakeBrowser{}, page: page}
		svc, clock := newTestService(launcher)

		_, err := svc.CreateSession(context.Background(), schemas.CreateSessionRequest{SessionID: "s1"})
		require.NoError(t, err)
		created, _ := svc.SessionByID("s1")

		clock.Advance(10 * time.Minute)

		result, err := svc.Navigate(context.Background(), "s1", "https://example.com/next")
		require.NoError(t, err)
		assert.True(t, result.Success)
		assert.Equal(t, "https://example.com/next", result.URL)
		assert.NotEmpty(t, result.Screenshot)
		assert.Contains(t, page.callLog(), "navigate:https://example.com/next")

		after, _ := svc.SessionByID("s1")
		assert.True(t, after.LastActivity.After(created.LastActivity))
	})

	t.Run("navigation failure leaves the session registered", func(t *testing.T) {
		page := &fakePage{navigateErr: errors.New("timeout")}
		launcher := &fakeLauncher{browser: &fakeBrowser{}, page: page}
		svc, _ := newTestService(launcher)

		_, err := svc.CreateSession(context.Background(), schemas.CreateSessionRequest{SessionID: "s1"})
		require.NoError(t, err)

		_, err = svc.Navigate(context.Background(), "s1", "https://example.com")
		require.Error(t, err)

		_, ok := svc.SessionByID("s1")
		assert.True(t, ok)
	})
}

func TestCloseSession(t *testing.T) {
	t.Run("closes and terminates the process", func(t *testing.T) {
		browserHandle := &fakeBrowser{}
		launcher := &fakeLauncher{browser: browserHandle, page: &fakePage{}}
		svc, _ := newTestService(launcher)

		_, err := svc.CreateSession(context.Background(), schemas.CreateSessionRequest{SessionID: "s1"})
		require.NoError(t, err)

		assert.True(t, svc.CloseSession("s1"))
		assert.Equal(t, 1, browserHandle.closeCount())

		_, ok := svc.SessionByID("s1")
		assert.False(t, ok)
	})

	t.Run("unknown id returns false", func(t *testing.T) {
		svc, _ := newTestService(&fakeLauncher{})
		assert.False(t, svc.CloseSession("ghost"))
	})

	t.Run("operations after close fail with not found", func(t *testing.T) {
		launcher := &fakeLauncher{browser: &fakeBrowser{}, page: &fakePage{}}
		svc, _ := newTestService(launcher)

		_, err := svc.CreateSession(context.Background(), schemas.CreateSessionRequest{SessionID: "s1"})
		require.NoError(t, err)
		require.True(t, svc.CloseSession("s1"))

		_, err = svc.Navigate(context.Background(), "s1", "https://example.com")
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})
}

func TestCleanupInactive(t *testing.T) {
	t.Run("reaps exactly the sessions past the idle timeout", func(t *testing.T) {
		browserHandle := &fakeBrowser{}
		launcher := &fakeLauncher{browser: browserHandle, page: &fakePage{}}
		svc, clock := newTestService(launcher)

		_, err := svc.CreateSession(context.Background(), schemas.CreateSessionRequest{SessionID: "old"})
		require.NoError(t, err)

		clock.Advance(20 * time.Minute)
		_, err = svc.CreateSession(context.Background(), schemas.CreateSessionRequest{SessionID: "fresh"})
		require.NoError(t, err)

		// "old" is now 31 minutes idle, "fresh" only 11.
		clock.Advance(11 * time.Minute)

		reaped := svc.CleanupInactive()
		assert.Equal(t, []string{"old"}, reaped)

		_, ok := svc.SessionByID("old")
		assert.False(t, ok)
		_, ok = svc.SessionByID("fresh")
		assert.True(t, ok)
	})

	t.Run("activity resets the idle clock", func(t *testing.T) {
		launcher := &fakeLauncher{browser: &fakeBrowser{}, page: &fakePage{}}
		svc, clock := newTestService(launcher)

		_, err := svc.CreateSession(context.Background(), schemas.CreateSessionRequest{SessionID: "s1"})
		require.NoError(t, err)

		clock.Advance(25 * time.Minute)
		_, err = svc.Navigate(context.Background(), "s1", "https://example.com")
		require.NoError(t, err)

		clock.Advance(25 * time.Minute)
		assert.Empty(t, svc.CleanupInactive(), "50 minutes old but only 25 idle")

		clock.Advance(6 * time.Minute)
		assert.Equal(t, []string{"s1"}, svc.CleanupInactive())
	})

	t.Run("no sessions is a no-op", func(t *testing.T) {
		svc, _ := newTestService(&fakeLauncher{})
		assert.Empty(t, svc.CleanupInactive())
	})
}

func TestActiveSessions(t *testing.T) {
	launcher := &fakeLauncher{browser: &fakeBrowser{}, page: &fakePage{}}
	svc, _ := newTestService(launcher)

	assert.Empty(t, svc.ActiveSessions())

	for _, id := range []string{"a", "b", "c"} {
		_, err := svc.CreateSession(context.Background(), schemas.CreateSessionRequest{SessionID: id})
		require.NoError(t, err)
	}

	infos := svc.ActiveSessions()
	assert.Len(t, infos, 3)
	for _, info := range infos {
		assert.True(t, info.Active)
	}
}

func TestShutdown(t *testing.T) {
	browserHandle := &fakeBrowser{}
	launcher := &fakeLauncher{browser: browserHandle, page: &fakePage{}}
	svc, _ := newTestService(launcher)

	for _, id := range []string{"a", "b"} {
		_, err := svc.CreateSession(context.Background(), schemas.CreateSessionRequest{SessionID: id})
		require.NoError(t, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	svc.Shutdown(ctx)

	assert.Equal(t, 2, browserHandle.closeCount())
	assert.Empty(t, svc.ActiveSessions())
}
