package router_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/tee-time-reservation/internal/cache"
	"github.com/iliyamo/tee-time-reservation/internal/config"
	"github.com/iliyamo/tee-time-reservation/internal/database"
	"github.com/iliyamo/tee-time-reservation/internal/handler"
	"github.com/iliyamo/tee-time-reservation/internal/middleware"
	"github.com/iliyamo/tee-time-reservation/internal/model"
	"github.com/iliyamo/tee-time-reservation/internal/repository"
	"github.com/iliyamo/tee-time-reservation/internal/reservation"
	"github.com/iliyamo/tee-time-reservation/internal/roster"
	"github.com/iliyamo/tee-time-reservation/internal/router"
	"github.com/iliyamo/tee-time-reservation/internal/utils"
)

const secret = "router-secret"

type app struct {
	t     *testing.T
	e     *echo.Echo
	coord *reservation.Coordinator
}

func newApp(t *testing.T) *app {
	t.Helper()
	ctx := context.Background()

	db, err := database.OpenSQLite(fmt.Sprintf("file:router_%d?mode=memory&cache=shared", time.Now().UnixNano()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.Migrate(ctx, db, database.DriverSQLite))

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	users := repository.NewUserRepo(db)
	coord := reservation.New(nil, repository.NewReservationRepo(db), reservation.Collaborators{
		Cache:    cache.NewInvalidator(nil, rdb, "tc"),
		Profiles: users,
		Roster:   roster.NewRedisIndex(rdb, "tt"),
	}, reservation.Options{InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond})
	t.Cleanup(coord.Wait)

	cacheCfg := config.CacheConfig{Enabled: true, Methods: []string{"GET"}, TTL: time.Minute, Prefix: "tc"}
	e := echo.New()
	router.RegisterRoutes(e, router.Deps{
		JWTSecret:    secret,
		Health:       handler.Health(db),
		Reservations: handler.NewReservationHandler(nil, coord),
		Profiles:     handler.NewProfileHandler(nil, users),
		Cache:        middleware.NewRedisCache(nil, cacheCfg, rdb),
	})
	return &app{t: t, e: e, coord: coord}
}

func (a *app) do(method, path, user string, body any) *httptest.ResponseRecorder {
	a.t.Helper()
	var payload string
	if body != nil {
		bs, err := json.Marshal(body)
		require.NoError(a.t, err)
		payload = string(bs)
	}
	req := httptest.NewRequest(method, path, strings.NewReader(payload))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if user != "" {
		tok, err := utils.NewAccessToken(secret, user, time.Hour)
		require.NoError(a.t, err)
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+tok.Token)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (a *app) create(owner string, capacity int, visibility string) model.Reservation {
	a.t.Helper()
	rec := a.do(http.MethodPost, "/v1/reservations", owner, echo.Map{
		"capacity":     capacity,
		"scheduled_at": time.Now().Add(72 * time.Hour).UTC().Format(time.RFC3339),
		"location":     "St Andrews Old Course",
		"visibility":   visibility,
	})
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())
	a.coord.Wait()
	return decode[model.Reservation](a.t, rec)
}

func TestHealthz(t *testing.T) {
	a := newApp(t)
	rec := a.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestRequiresToken(t *testing.T) {
	a := newApp(t)
	assert.Equal(t, http.StatusUnauthorized, a.do(http.MethodGet, "/v1/my-reservations", "", nil).Code)
}

func TestCreateValidation(t *testing.T) {
	a := newApp(t)
	rec := a.do(http.MethodPost, "/v1/reservations", "owner", echo.Map{"capacity": 1, "location": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode[map[string]string](t, rec)
	assert.Equal(t, "invalid_argument", body["error"])
	assert.Contains(t, body["message"], "capacity")

	rec = a.do(http.MethodPost, "/v1/reservations", "owner", echo.Map{
		"capacity": 4, "scheduled_at": time.Now().Add(time.Hour).Format(time.RFC3339),
		"location": "x", "visibility": "secret",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRestrictedJoinFlow(t *testing.T) {
	a := newApp(t)
	res := a.create("owner", 2, "restricted")
	base := "/v1/reservations/" + res.ID

	rec := a.do(http.MethodPost, base+"/join", "bob", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, decode[model.Reservation](t, rec).Occupancy)

	rec = a.do(http.MethodPost, base+"/join", "carol", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = a.do(http.MethodPost, base+"/members/bob/approve", "bob", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "permission_denied", decode[map[string]string](t, rec)["error"])

	rec = a.do(http.MethodPost, base+"/members/bob/approve", "owner", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	approved := decode[model.Reservation](t, rec)
	assert.Equal(t, 2, approved.Occupancy)
	assert.Equal(t, model.StatusFull, approved.Status)

	rec = a.do(http.MethodPost, base+"/members/carol/approve", "owner", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "full", decode[map[string]string](t, rec)["error"])

	rec = a.do(http.MethodPost, base+"/members/carol/decline", "owner", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = a.do(http.MethodGet, base+"/members", "owner", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	members := decode[struct {
		Members []model.Membership `json:"members"`
	}](t, rec).Members
	statuses := map[string]model.MembershipStatus{}
	for _, m := range members {
		statuses[m.UserID] = m.Status
	}
	assert.Equal(t, map[string]model.MembershipStatus{
		"owner": model.MembershipConfirmed,
		"bob":   model.MembershipConfirmed,
		"carol": model.MembershipDeclined,
	}, statuses)

	rec = a.do(http.MethodPost, base+"/join", "owner", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "full", decode[map[string]string](t, rec)["error"])
}

func TestInvitationFlowAndCacheInvalidation(t *testing.T) {
	a := newApp(t)
	res := a.create("owner", 4, "private")
	base := "/v1/reservations/" + res.ID

	first := a.do(http.MethodGet, base, "dave", nil)
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "MISS", first.Header().Get("X-Cache"))
	assert.Equal(t, "HIT", a.do(http.MethodGet, base, "dave", nil).Header().Get("X-Cache"))

	rec := a.do(http.MethodPost, base+"/invitations", "owner", echo.Map{"user_id": "dave"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	a.coord.Wait()

	rec = a.do(http.MethodGet, base+"/invitations", "owner", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	invites := decode[struct {
		Invitations []model.Invitation `json:"invitations"`
	}](t, rec).Invitations
	require.Len(t, invites, 1)
	assert.Equal(t, model.InvitationPending, invites[0].Status)

	rec = a.do(http.MethodPost, base+"/invitations/accept", "dave", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 2, decode[model.Reservation](t, rec).Occupancy)
	a.coord.Wait()

	after := a.do(http.MethodGet, base, "dave", nil)
	assert.Equal(t, "MISS", after.Header().Get("X-Cache"))
	view := decode[reservation.View](t, after)
	assert.Equal(t, 2, view.Reservation.Occupancy)

	rec = a.do(http.MethodGet, "/v1/my-reservations", "dave", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	mine := decode[struct {
		Reservations []model.Reservation `json:"reservations"`
	}](t, rec).Reservations
	require.Len(t, mine, 1)
	assert.Equal(t, res.ID, mine[0].ID)
}

func TestUpdateAndCancel(t *testing.T) {
	a := newApp(t)
	res := a.create("owner", 4, "public")
	base := "/v1/reservations/" + res.ID

	require.Equal(t, http.StatusOK, a.do(http.MethodPost, base+"/join", "bob", nil).Code)
	require.Equal(t, http.StatusOK, a.do(http.MethodPost, base+"/join", "carol", nil).Code)

	rec := a.do(http.MethodPatch, base, "owner", echo.Map{"capacity": 2})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_argument", decode[map[string]string](t, rec)["error"])

	rec = a.do(http.MethodPatch, base, "bob", echo.Map{"location": "Elsewhere"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = a.do(http.MethodPatch, base, "owner", echo.Map{"capacity": 3, "location": "Carnoustie"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[model.Reservation](t, rec)
	assert.Equal(t, model.StatusFull, updated.Status)
	assert.Equal(t, "Carnoustie", updated.Location)

	rec = a.do(http.MethodDelete, base+"/members/carol", "carol", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, decode[model.Reservation](t, rec).Occupancy)

	assert.Equal(t, http.StatusForbidden, a.do(http.MethodPost, base+"/cancel", "bob", nil).Code)
	rec = a.do(http.MethodPost, base+"/cancel", "owner", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.StatusCancelled, decode[model.Reservation](t, rec).Status)

	rec = a.do(http.MethodPost, base+"/join", "erin", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_state", decode[map[string]string](t, rec)["error"])

	assert.Equal(t, http.StatusNotFound, a.do(http.MethodGet, "/v1/reservations/missing", "owner", nil).Code)
}

func TestProfile(t *testing.T) {
	a := newApp(t)

	rec := a.do(http.MethodGet, "/v1/me", "ada", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ada", decode[model.ProfileSummary](t, rec).DisplayName)

	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodPut, "/v1/me", "ada", echo.Map{"display_name": ""}).Code)

	rec = a.do(http.MethodPut, "/v1/me", "ada", echo.Map{"display_name": "Ada Lovelace"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = a.do(http.MethodGet, "/v1/me", "ada", nil)
	assert.Equal(t, "Ada Lovelace", decode[model.ProfileSummary](t, rec).DisplayName)
}
