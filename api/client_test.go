package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/karthikraju391/rentchat/models"
	"github.com/karthikraju391/rentchat/normalize"
	"github.com/karthikraju391/rentchat/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
)

// newTestClient serves handler over an in-memory listener.
func newTestClient(t *testing.T, handler fasthttp.RequestHandler) *Client {
	t.Helper()
	ln := fasthttputil.NewInmemoryListener()
	srv := &fasthttp.Server{Handler: handler}
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = ln.Close() })

	hc := &fasthttp.Client{
		Dial: func(addr string) (net.Conn, error) { return ln.Dial() },
	}
	return New("http://backend.test/", WithHTTPClient(hc), WithTimeout(2*time.Second))
}

func TestHistory(t *testing.T) {
	var gotPath string
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		gotPath = string(ctx.Path())
		ctx.SetContentType("application/json")
		ctx.SetBodyString(`[{"id":1,"sender_email":"a@x.io","receiver_email":"b@x.io","text":"hi","timestamp":"2024-05-01T10:00:00"}]`)
	})

	msgs, err := c.History(context.Background(), "a@x.io", "bob")
	require.NoError(t, err)
	assert.Equal(t, "/chat/messages/a@x.io/bob", gotPath)
	require.Len(t, msgs, 1)
	assert.Equal(t, models.MessageID("1"), msgs[0].ID)
	assert.Equal(t, "hi", msgs[0].Text)
}

func TestHistoryNotFound(t *testing.T) {
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusNotFound)
		ctx.SetBodyString(`{"detail":"Receiver not found"}`)
	})

	_, err := c.History(context.Background(), "a@x.io", "ghost")
	var serr *StatusError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, fasthttp.StatusNotFound, serr.Code)
	assert.Equal(t, "Receiver not found", serr.Detail)
}

func TestSearchUsers(t *testing.T) {
	var gotQuery string
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		gotQuery = string(ctx.QueryArgs().Peek("query"))
		ctx.SetBodyString(`[{"username":"bob","email":"b@x.io"}]`)
	})

	peers, err := c.SearchUsers(context.Background(), "  bo b ")
	require.NoError(t, err)
	assert.Equal(t, "bo b", gotQuery)
	assert.Equal(t, []models.Peer{{Username: "bob", Email: "b@x.io"}}, peers)

	peers, err = c.SearchUsers(context.Background(), "   ")
	require.NoError(t, err)
	assert.Nil(t, peers)
}

func TestSendMessage(t *testing.T) {
	var got models.SendRequest
	var method, contentType string
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		method = string(ctx.Method())
		contentType = string(ctx.Request.Header.ContentType())
		_ = json.Unmarshal(ctx.PostBody(), &got)
		ctx.SetBodyString(`{"id":9,"sender_email":"a@x.io","receiver_email":"b@x.io","text":"yo","timestamp":"2024-05-01T10:00:00Z"}`)
	})

	req := models.SendRequest{SenderEmail: "a@x.io", ReceiverUsername: "bob", Text: "yo"}
	msg, err := c.SendMessage(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, fasthttp.MethodPost, method)
	assert.Equal(t, "application/json", contentType)
	assert.Equal(t, req, got)
	assert.Equal(t, models.MessageID("9"), msg.ID)
}

func TestCatalogGoesThroughNormalizer(t *testing.T) {
	var gotURI string
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		gotURI = string(ctx.RequestURI())
		ctx.SetBodyString(`{"data":{"cars":[{"id":5,"name":"Y"}]}}`)
	})

	res, err := c.SearchCars(context.Background(), models.CarFilter{Location: "Almaty", CarType: "SUV"})
	require.NoError(t, err)
	assert.Equal(t, "/car/cars/search?car_type=SUV&location=Almaty", gotURI)
	require.Equal(t, normalize.Ok, res.Kind)
	assert.Equal(t, int64(5), res.Records[0].ID)
	assert.Equal(t, normalize.DefaultCategory, res.Records[0].Category)

	_, err = c.SearchCars(context.Background(), models.CarFilter{})
	require.NoError(t, err)
	assert.Equal(t, "/car/cars", gotURI)

	_, err = c.UserCars(context.Background(), "o@x.io")
	require.NoError(t, err)
	assert.Equal(t, "/car/user-cars?email=o%40x.io", gotURI)
}

func TestCatalogEmptyResponse(t *testing.T) {
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		ctx.SetBodyString(`[]`)
	})

	res, err := c.ListCars(context.Background())
	require.NoError(t, err)
	assert.Equal(t, normalize.Empty, res.Kind)
	assert.True(t, res.Rows()[0].Placeholder)
}

func TestCanceledContextSkipsRequest(t *testing.T) {
	called := false
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) { called = true })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.ListCars(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestCancelAbortsRequestInFlight(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		close(started)
		<-release
		ctx.SetBodyString(`[]`)
	})
	t.Cleanup(func() { close(release) })
	c.timeout = 10 * time.Second

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	begin := time.Now()
	_, err := c.History(ctx, "alice@example.com", "bob")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(begin), time.Second)
}

func TestSessionCloseDoesNotWaitForHistory(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		close(started)
		<-release
		ctx.SetBodyString(`[]`)
	})
	t.Cleanup(func() { close(release) })
	c.timeout = 10 * time.Second

	s, err := session.Open(session.Options{
		Identity: "alice@example.com",
		Dialer: session.DialerFunc(func(context.Context, string) (session.Conn, error) {
			return nil, errors.New("offline")
		}),
		Backend: c,
	})
	require.NoError(t, err)
	require.NoError(t, s.SelectCounterpart(models.Peer{Username: "bob", Email: "bob@example.com"}))
	<-started

	begin := time.Now()
	require.NoError(t, s.Close())
	assert.Less(t, time.Since(begin), time.Second)
}

func TestDetailFallsBackToBody(t *testing.T) {
	assert.Equal(t, "Receiver not found", detail([]byte(`{"detail":"Receiver not found"}`)))
	assert.Equal(t, `[{"loc":"query"}]`, detail([]byte(`{"detail":[{"loc":"query"}]}`)))
	assert.Equal(t, "bad gateway", detail([]byte("bad gateway\n")))
}
