package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/avvvet/namecard-services/internal/cardsvc/catalog"
	"github.com/avvvet/namecard-services/internal/cardsvc/command"
	"github.com/avvvet/namecard-services/internal/cardsvc/service"
	"github.com/avvvet/namecard-services/internal/cardsvc/session"
	"github.com/avvvet/namecard-services/internal/cardsvc/store"
	"github.com/avvvet/namecard-services/internal/cardsvc/worker"
	"github.com/go-chi/chi"
	"github.com/go-chi/jwtauth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

const testCatalog = `
namecards:
  default-card-id: bronze
  cards:
    gold: {layer: 1, display-name: Gold}
    bronze: {layer: 0, display-name: Bronze}
`

var inline = worker.PosterFunc(func(fn func()) bool { fn(); return true })

type nopNotifier struct{}

func (nopNotifier) Notify(*session.Session, string) {}

type fixture struct {
	router *chi.Mux
	cards  *service.CardService
}

func newFixture(t *testing.T, loop worker.Poster) *fixture {
	t.Helper()
	c := catalog.New("")
	c.LoadFrom(strings.NewReader(testCatalog))

	b := store.NewSQLiteStore(filepath.Join(t.TempDir(), "cards.db"))
	require.NoError(t, b.Connect(context.Background()))
	t.Cleanup(func() { _ = b.Disconnect() })
	cards := service.NewCardService(c, store.NewOwnershipStore(b))

	pool := worker.NewPool(2, time.Second)
	t.Cleanup(func() { pool.Close(time.Second) })

	registry := session.NewRegistry()
	registry.Register(session.New("Bob", "u-bob", "sock-b", nil))

	h := NewHandler("8090", c, command.New(c, cards, registry, nopNotifier{}, pool, inline), loop)
	h.InitAuth(secret)
	r := chi.NewRouter()
	h.SetRoutes(r)
	return &fixture{router: r, cards: cards}
}

func token(t *testing.T) string {
	t.Helper()
	_, s, err := jwtauth.New("HS256", []byte(secret), nil).Encode(map[string]interface{}{"service_id": "test"})
	require.NoError(t, err)
	return s
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var rsp Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&rsp))
	return rsp
}

func TestHealth(t *testing.T) {
	f := newFixture(t, inline)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, decode(t, rec).Message, "8090")
}

func TestCardsInLayerOrder(t *testing.T) {
	f := newFixture(t, inline)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/cards", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data CardList `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "bronze", body.Data.DefaultID)
	require.Len(t, body.Data.Cards, 2)
	assert.Equal(t, "bronze", body.Data.Cards[0].ID)
	assert.Equal(t, "gold", body.Data.Cards[1].ID)
}

func TestCommandRequiresToken(t *testing.T) {
	f := newFixture(t, inline)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/admin/command", strings.NewReader(`{"args":["reload"]}`))
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCommandRunsAsConsole(t *testing.T) {
	f := newFixture(t, inline)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/admin/command", strings.NewReader(`{"args":["add","bob","gold"]}`))
	req.Header.Set("Authorization", "Bearer "+token(t))
	f.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	rsp := decode(t, rec)
	msgs, ok := rsp.Data.([]interface{})
	require.True(t, ok)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "Gave Bob the name card gold")
	assert.True(t, f.cards.HasCard(context.Background(), "u-bob", "gold"))
}

func TestCommandBadBody(t *testing.T) {
	f := newFixture(t, inline)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/admin/command", strings.NewReader(`nope`))
	req.Header.Set("Authorization", "Bearer "+token(t))
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCommandLoopStopped(t *testing.T) {
	stopped := worker.PosterFunc(func(func()) bool { return false })
	f := newFixture(t, stopped)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/admin/command", strings.NewReader(`{"args":[]}`))
	req.Header.Set("Authorization", "Bearer "+token(t))
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
