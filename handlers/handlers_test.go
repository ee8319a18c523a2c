package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/karthikraju391/rentchat/broker"
	"github.com/karthikraju391/rentchat/config"
	"github.com/karthikraju391/rentchat/models"
	"github.com/karthikraju391/rentchat/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	aliceEmail = "alice@example.com"
	bobEmail   = "bob@example.com"
)

type fixture struct {
	h      *Handler
	store  *store.Memory
	broker *broker.Local
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := store.NewMemory()
	require.NoError(t, store.Seed(context.Background(), st, config.Seed{
		Users: []config.SeedUser{
			{Username: "alice", Email: aliceEmail},
			{Username: "bob", Email: bobEmail},
		},
		Cars: []config.SeedCar{
			{OwnerEmail: aliceEmail, Name: "Civic", PricePerDay: 40, Location: "Berlin", CarType: "Sedan"},
			{OwnerEmail: bobEmail, Name: "Model Y", PricePerDay: 95, Location: "Munich", CarType: "SUV"},
		},
	}))
	br := broker.NewLocal()
	return &fixture{
		h:      NewHandler(st, br, config.Default().Transport, zap.NewNop()),
		store:  st,
		broker: br,
	}
}

func (f *fixture) do(t *testing.T, method, target, body string) (int, []byte) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := NewApp(f.h, false).Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(data, &v), string(data))
	return v
}

func TestSendAndHistory(t *testing.T) {
	f := newFixture(t)

	var published []*models.Envelope
	sub, err := f.broker.Subscribe(context.Background(), bobEmail, func(env *models.Envelope) {
		published = append(published, env)
	})
	require.NoError(t, err)
	defer sub.Stop()

	code, body := f.do(t, http.MethodPost, "/chat/send", `{"sender_email":"alice@example.com","receiver_username":"bob","text":"  hi bob "}`)
	require.Equal(t, http.StatusOK, code, string(body))
	sent := decode[models.Message](t, body)
	assert.Equal(t, "hi bob", sent.Text)
	assert.Equal(t, bobEmail, sent.ReceiverEmail)
	assert.NotEmpty(t, sent.ID)

	require.Len(t, published, 1)
	assert.Equal(t, sent.ID, published[0].Message.ID)

	code, body = f.do(t, http.MethodGet, "/chat/messages/bob@example.com/alice", "")
	require.Equal(t, http.StatusOK, code)
	history := decode[[]models.Message](t, body)
	require.Len(t, history, 1)
	assert.Equal(t, sent.ID, history[0].ID)
}

func TestSendRejectsBadRequests(t *testing.T) {
	f := newFixture(t)
	cases := []struct {
		name, body string
		code       int
	}{
		{"unknown receiver", `{"sender_email":"alice@example.com","receiver_username":"zed","text":"hi"}`, http.StatusNotFound},
		{"blank text", `{"sender_email":"alice@example.com","receiver_username":"bob","text":"   "}`, http.StatusUnprocessableEntity},
		{"bad email", `{"sender_email":"alice","receiver_username":"bob","text":"hi"}`, http.StatusUnprocessableEntity},
		{"not json", `{`, http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, body := f.do(t, http.MethodPost, "/chat/send", tc.body)
			assert.Equal(t, tc.code, code)
			assert.NotEmpty(t, decode[map[string]string](t, body)["detail"])
		})
	}
}

func TestHistoryUnknownReceiver(t *testing.T) {
	f := newFixture(t)
	code, body := f.do(t, http.MethodGet, "/chat/messages/alice@example.com/zed", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, map[string]string{"detail": "Receiver not found"}, decode[map[string]string](t, body))
}

func TestHistoryEmptyIsArray(t *testing.T) {
	f := newFixture(t)
	code, body := f.do(t, http.MethodGet, "/chat/messages/alice@example.com/bob", "")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `[]`, string(body))
}

func TestSearchUsers(t *testing.T) {
	f := newFixture(t)

	code, body := f.do(t, http.MethodGet, "/chat/search-users?query=BO", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []models.Peer{{Username: "bob", Email: bobEmail}}, decode[[]models.Peer](t, body))

	code, _ = f.do(t, http.MethodGet, "/chat/search-users?query=", "")
	assert.Equal(t, http.StatusUnprocessableEntity, code)
}

func TestCarRoutes(t *testing.T) {
	f := newFixture(t)

	code, body := f.do(t, http.MethodGet, "/car/cars", "")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, decode[[]models.Car](t, body), 2)

	code, body = f.do(t, http.MethodGet, "/car/cars/search?location=munich&max_price=100", "")
	require.Equal(t, http.StatusOK, code)
	found := decode[[]models.Car](t, body)
	require.Len(t, found, 1)
	assert.Equal(t, "SUV", found[0].Category)

	code, body = f.do(t, http.MethodGet, "/car/cars/search?car_type=truck", "")
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `[]`, string(body))

	code, _ = f.do(t, http.MethodGet, "/car/cars/search?max_price=cheap", "")
	assert.Equal(t, http.StatusUnprocessableEntity, code)

	code, body = f.do(t, http.MethodGet, "/car/user-cars?email=alice@example.com", "")
	require.Equal(t, http.StatusOK, code)
	owned := decode[[]models.Car](t, body)
	require.Len(t, owned, 1)
	assert.Equal(t, "Civic", owned[0].Name)

	code, body = f.do(t, http.MethodGet, "/car/cars/1", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Civic", decode[models.Car](t, body).Name)

	code, _ = f.do(t, http.MethodGet, "/car/cars/99", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestCreateCar(t *testing.T) {
	f := newFixture(t)

	code, body := f.do(t, http.MethodPost, "/car/cars?email=bob@example.com",
		`{"name":"Golf","price_per_day":35,"location":"Hamburg","car_type":"Hatchback","image_url":"http://img.example.com/golf.png"}`)
	require.Equal(t, http.StatusCreated, code, string(body))
	car := decode[models.Car](t, body)
	assert.NotZero(t, car.ID)
	assert.Equal(t, bobEmail, car.OwnerEmail)
	require.NotNil(t, car.ImageURL)

	code, _ = f.do(t, http.MethodPost, "/car/cars?email=zed@example.com", `{"name":"X","price_per_day":1,"location":"Y","car_type":"Z"}`)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = f.do(t, http.MethodPost, "/car/cars?email=bob@example.com", `{"name":"X","price_per_day":0,"location":"Y","car_type":"Z"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
}

func TestWebSocketRouteRequiresUpgrade(t *testing.T) {
	f := newFixture(t)
	code, body := f.do(t, http.MethodGet, "/chat/ws/alice@example.com", "")
	assert.Equal(t, http.StatusUpgradeRequired, code)
	assert.Contains(t, string(body), "detail")
}
