package dashboard_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"dashrpc/client"
	"dashrpc/dashboard"
	"dashrpc/dashboard/demo"
	"dashrpc/rpcerr"
	"dashrpc/server"
	"dashrpc/transport"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newDashboard serves the demo backend, with any extra routes overriding it, and
// returns a dashboard connected to it.
func newDashboard(t *testing.T, extra func(svr *server.Server)) *dashboard.Dashboard {
	t.Helper()
	svr := server.NewServer(server.Options{})
	require.NoError(t, demo.Register(svr, demo.NewStore()))
	if extra != nil {
		extra(svr)
	}
	ts := httptest.NewServer(svr)
	c := client.NewClient(client.URLDialer("ws"+strings.TrimPrefix(ts.URL, "http"), transport.Options{}),
		client.WithCallTimeout(2*time.Second))
	t.Cleanup(func() {
		c.Close()
		svr.Shutdown(time.Second)
		ts.Close()
	})
	return dashboard.New(c, nil)
}

func TestLogin(t *testing.T) {
	d := newDashboard(t, nil)
	ctx := context.Background()

	u, err := d.Login(ctx, "ada@example.com", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, "u-1", u.ID)
	assert.Equal(t, "admin", u.Role)

	_, err = d.Login(ctx, "ada@example.com", "wrong")
	assert.ErrorIs(t, err, dashboard.ErrInvalidCredentials)
	assert.True(t, rpcerr.IsDomain(err))
	assert.Contains(t, err.Error(), "invalid credentials")
}

func TestLoginRejectsMalformedUser(t *testing.T) {
	d := newDashboard(t, func(svr *server.Server) {
		svr.Handle("users.login", func(ctx context.Context, data []byte) ([]byte, error) {
			return []byte(`{"id":"u-9","role":"admin"}`), nil
		})
	})

	_, err := d.Login(context.Background(), "x@example.com", "pw")
	require.True(t, rpcerr.IsParse(err), "got %v", err)
	assert.Contains(t, err.Error(), "email")
}

func TestRegister(t *testing.T) {
	d := newDashboard(t, nil)
	ctx := context.Background()
	req := &dashboard.RegisterRequest{Name: "Cy", Email: "cy@example.com", Password: "long-enough"}

	u, err := d.Register(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "cy@example.com", u.Email)

	_, err = d.Register(ctx, req)
	assert.ErrorIs(t, err, dashboard.ErrRegistrationRejected)

	logged, err := d.Login(ctx, "cy@example.com", "long-enough")
	require.NoError(t, err)
	assert.Equal(t, u.ID, logged.ID)
}

func TestGetUserByIDNeverFails(t *testing.T) {
	d := newDashboard(t, nil)
	ctx := context.Background()

	u, err := d.GetUserByID(ctx, "u-2")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "Bo Lindqvist", u.Name)

	u, err = d.GetUserByID(ctx, "u-404")
	assert.NoError(t, err)
	assert.Nil(t, u)

	offline := dashboard.New(client.NewClient(client.DialerFunc(func(context.Context) (*transport.ClientTransport, error) {
		return nil, errors.New("connection refused")
	})), nil)
	u, err = offline.GetUserByID(ctx, "u-2")
	assert.NoError(t, err)
	assert.Nil(t, u)
}

func TestUpdateFactor(t *testing.T) {
	d := newDashboard(t, nil)
	ctx := context.Background()

	u, err := d.UpdateFactor(ctx, "u-2", 0.7)
	require.NoError(t, err)
	assert.Equal(t, 0.7, u.Factor)

	_, err = d.UpdateFactor(ctx, "u-404", 0.7)
	assert.ErrorIs(t, err, dashboard.ErrNotFound)

	// The backend rejects the request itself: that is not a decline.
	_, err = d.UpdateFactor(ctx, "u-2", -1)
	assert.True(t, rpcerr.IsConnection(err), "got %v", err)
	assert.NotErrorIs(t, err, dashboard.ErrNotFound)
}

func TestChats(t *testing.T) {
	d := newDashboard(t, nil)
	ctx := context.Background()

	chats, err := d.GetChats(ctx, "u-1")
	require.NoError(t, err)
	require.Len(t, chats, 1)
	assert.Equal(t, "c-1", chats[0].ID)

	msgs, err := d.GetMessages(ctx, "c-1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "m-1", msgs[0].ID)
	assert.Equal(t, "m-2", msgs[1].ID)

	// Unknown chat: the stream fails and the list degrades to empty.
	msgs, err = d.GetMessages(ctx, "c-404")
	require.NoError(t, err)
	assert.Empty(t, msgs)

	_, err = d.SendMessage(ctx, "c-404", "u-1", "hello?")
	assert.ErrorIs(t, err, dashboard.ErrNotFound)
}

func TestStreamMessages(t *testing.T) {
	d := newDashboard(t, nil)
	ctx := context.Background()

	got := make(chan dashboard.Message, 1)
	sub, err := d.StreamMessages(ctx, "c-1", func(m dashboard.Message) {
		select {
		case got <- m:
		default:
		}
	}, nil)
	require.NoError(t, err)
	defer sub.Close()

	// The subscription is live once the server has registered it; keep sending
	// until the first message comes through.
	var sent *dashboard.Message
	deadline := time.After(2 * time.Second)
	for {
		sent, err = d.SendMessage(ctx, "c-1", "u-1", "quote attached")
		require.NoError(t, err)
		select {
		case m := <-got:
			assert.Equal(t, "quote attached", m.Text)
			assert.Equal(t, "c-1", m.ChatID)
			assert.NotEmpty(t, sent.ID)
			sub.Close()
			<-sub.Done()
			assert.NoError(t, sub.Err())
			return
		case <-time.After(20 * time.Millisecond):
		case <-deadline:
			t.Fatal("no message pushed")
		}
	}
}

func TestStreamMessagesUnknownChat(t *testing.T) {
	d := newDashboard(t, nil)

	failed := make(chan error, 1)
	sub, err := d.StreamMessages(context.Background(), "c-404", func(dashboard.Message) {}, func(err error) { failed <- err })
	require.NoError(t, err)

	select {
	case err := <-failed:
		assert.True(t, rpcerr.IsConnection(err))
	case <-time.After(2 * time.Second):
		t.Fatal("error not reported")
	}
	<-sub.Done()
}

func TestProjects(t *testing.T) {
	d := newDashboard(t, nil)
	ctx := context.Background()

	all, err := d.GetProjectsForUser(ctx, "u-1", "admin")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	own, err := d.GetProjectsForUser(ctx, "u-2", "dealer")
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, "proj-200002", own[0].ID)
}

func TestUnimplementedRouteDegradesToEmpty(t *testing.T) {
	svr := server.NewServer(server.Options{})
	ts := httptest.NewServer(svr)
	c := client.NewClient(client.URLDialer("ws"+strings.TrimPrefix(ts.URL, "http"), transport.Options{}))
	t.Cleanup(func() {
		c.Close()
		svr.Shutdown(time.Second)
		ts.Close()
	})
	d := dashboard.New(c, nil)

	projects, err := d.GetProjectsForUser(context.Background(), "u-1", "admin")
	require.NoError(t, err)
	assert.NotNil(t, projects)
	assert.Empty(t, projects)

	profiles, err := d.GetProfilesByDimensions(context.Background(), dashboard.Dimensions{})
	require.NoError(t, err)
	assert.Empty(t, profiles)
}

func TestGetBoqPdf(t *testing.T) {
	d := newDashboard(t, nil)
	ctx := context.Background()

	pdf, err := d.GetBoqPdf(ctx, "proj-123456")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(pdf), "%PDF-1.4\n%\xe2\xe3\xcf\xd3\n"), "binary header must survive untouched")
	assert.True(t, strings.HasSuffix(string(pdf), "%%EOF\n"))
	assert.Contains(t, string(pdf), "Riverside offices")

	_, err = d.GetBoqPdf(ctx, "proj-404")
	assert.ErrorIs(t, err, dashboard.ErrNotFound)
}

func TestGetProfilesByDimensions(t *testing.T) {
	d := newDashboard(t, nil)

	profiles, err := d.GetProfilesByDimensions(context.Background(), dashboard.Dimensions{MinWidth: 50, MaxWidth: 90})
	require.NoError(t, err)
	var codes []string
	for _, p := range profiles {
		codes = append(codes, p.Code)
	}
	assert.Equal(t, []string{"AL-6030", "AL-8040"}, codes)
}
