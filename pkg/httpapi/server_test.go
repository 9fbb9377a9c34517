package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gocloud.dev/blob/memblob"

	"github.com/slapcommerce/core-sub014/pkg/auth"
	"github.com/slapcommerce/core-sub014/pkg/commands"
	"github.com/slapcommerce/core-sub014/pkg/httpapi"
	"github.com/slapcommerce/core-sub014/pkg/imagestore"
	"github.com/slapcommerce/core-sub014/pkg/projection"
	"github.com/slapcommerce/core-sub014/pkg/store/sqlite"
)

var testClock = func() time.Time {
	return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

type fixture struct {
	srv    *httptest.Server
	runner *projection.Runner
	token  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s, err := sqlite.New(sqlite.WithMemoryDatabase(), sqlite.WithClock(testClock))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	services := commands.NewServices(s, slog.Default(), testClock)
	bus := commands.NewBus()
	services.Register(bus)

	runner := projection.NewRunner(s, s, projection.DefaultConfig(), slog.Default())
	runner.Register(
		projection.NewProductList(s.DB()),
		projection.NewVariantList(s.DB()),
		projection.NewCollectionList(s.DB()),
		projection.NewSlugDirectory(s.DB()),
		projection.NewScheduleList(s.DB()),
	)

	passwordHash, err := auth.HashPassword("correct horse battery staple")
	require.NoError(t, err)

	bucket := memblob.OpenBucket(nil)
	t.Cleanup(func() { bucket.Close() })
	images, err := imagestore.NewBlobStore(bucket, "https://cdn.example.com")
	require.NoError(t, err)

	sessions := auth.NewSessions([]byte("test-secret"), time.Hour, testClock)
	server := httpapi.NewServer(httpapi.Config{
		Bus:               bus,
		Views:             projection.NewViews(s.DB()),
		Sessions:          sessions,
		Origins:           auth.NewOriginPolicy([]string{"https://admin.example.com"}),
		Images:            images,
		Logger:            slog.Default(),
		AdminPrincipal:    "admin@example.com",
		AdminPasswordHash: passwordHash,
	})

	srv := httptest.NewServer(server.Handler())
	t.Cleanup(srv.Close)

	token, err := sessions.Issue("admin@example.com")
	require.NoError(t, err)
	return &fixture{srv: srv, runner: runner, token: token}
}

func (f *fixture) post(t *testing.T, path string, body string, decorate func(*http.Request)) (int, map[string]json.RawMessage) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, f.srv.URL+path, bytes.NewBufferString(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if decorate != nil {
		decorate(req)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var envelope map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	return resp.StatusCode, envelope
}

func (f *fixture) authed(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+f.token)
}

func errorKind(t *testing.T, envelope map[string]json.RawMessage) string {
	t.Helper()
	var body struct {
		Kind string `json:"kind"`
	}
	require.NoError(t, json.Unmarshal(envelope["error"], &body))
	return body.Kind
}

func TestLogin(t *testing.T) {
	f := newFixture(t)

	status, envelope := f.post(t, "/session",
		`{"principal":"admin@example.com","password":"correct horse battery staple"}`, nil)
	require.Equal(t, http.StatusOK, status)
	var data struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(envelope["data"], &data))
	assert.NotEmpty(t, data.Token)

	t.Run("WrongPassword", func(t *testing.T) {
		status, envelope := f.post(t, "/session",
			`{"principal":"admin@example.com","password":"nope"}`, nil)
		assert.Equal(t, http.StatusUnauthorized, status)
		assert.Equal(t, "unauthorized", errorKind(t, envelope))
	})

	t.Run("UnknownPrincipal", func(t *testing.T) {
		status, _ := f.post(t, "/session",
			`{"principal":"nobody@example.com","password":"correct horse battery staple"}`, nil)
		assert.Equal(t, http.StatusUnauthorized, status)
	})
}

func TestCommandEndpoint(t *testing.T) {
	f := newFixture(t)

	status, envelope := f.post(t, "/commands",
		`{"type":"product.create","payload":{"name":"Linen Shirt","fulfillmentType":"digital"}}`,
		f.authed)
	require.Equal(t, http.StatusOK, status)

	var result struct {
		AggregateID string `json:"aggregateId"`
		Version     int64  `json:"version"`
	}
	require.NoError(t, json.Unmarshal(envelope["data"], &result))
	assert.NotEmpty(t, result.AggregateID)
	assert.Equal(t, int64(1), result.Version)

	t.Run("MissingSession", func(t *testing.T) {
		status, envelope := f.post(t, "/commands",
			`{"type":"product.create","payload":{"name":"X","fulfillmentType":"digital"}}`, nil)
		assert.Equal(t, http.StatusUnauthorized, status)
		assert.Equal(t, "unauthorized", errorKind(t, envelope))
	})

	t.Run("UntrustedOrigin", func(t *testing.T) {
		status, _ := f.post(t, "/commands",
			`{"type":"product.create","payload":{"name":"X","fulfillmentType":"digital"}}`,
			func(req *http.Request) {
				f.authed(req)
				req.Header.Set("Origin", "https://evil.com")
			})
		assert.Equal(t, http.StatusUnauthorized, status)
	})

	t.Run("ValidationFailure", func(t *testing.T) {
		status, envelope := f.post(t, "/commands",
			`{"type":"product.create","payload":{"name":"","fulfillmentType":"digital"}}`,
			f.authed)
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "validation_failed", errorKind(t, envelope))
	})

	t.Run("NotFound", func(t *testing.T) {
		status, envelope := f.post(t, "/commands",
			`{"type":"product.publish","payload":{"productId":"missing"}}`, f.authed)
		assert.Equal(t, http.StatusNotFound, status)
		assert.Equal(t, "not_found", errorKind(t, envelope))
	})

	t.Run("SlugConflict", func(t *testing.T) {
		status, envelope := f.post(t, "/commands",
			`{"type":"product.create","payload":{"name":"Other","slug":"linen-shirt","fulfillmentType":"digital"}}`,
			f.authed)
		assert.Equal(t, http.StatusConflict, status)
		assert.Equal(t, "constraint_violated", errorKind(t, envelope))
	})

	t.Run("UnknownType", func(t *testing.T) {
		status, _ := f.post(t, "/commands", `{"type":"no.such.thing","payload":{}}`, f.authed)
		assert.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("StaleExpectedVersion", func(t *testing.T) {
		status, envelope := f.post(t, "/commands",
			`{"type":"product.rename","payload":{"productId":"`+result.AggregateID+`","name":"Never Applied","expectedVersion":7}}`,
			f.authed)
		assert.Equal(t, http.StatusConflict, status)
		assert.Equal(t, "optimistic_concurrency_conflict", errorKind(t, envelope))
	})
}

func TestQueryEndpoint(t *testing.T) {
	f := newFixture(t)

	status, _ := f.post(t, "/commands",
		`{"type":"product.create","payload":{"name":"Linen Shirt","fulfillmentType":"digital"}}`,
		f.authed)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, f.runner.CatchUp(context.Background()))

	status, envelope := f.post(t, "/queries",
		`{"type":"products.list","payload":{"status":"draft"}}`, f.authed)
	require.Equal(t, http.StatusOK, status)

	var rows []struct {
		Name string `json:"name"`
		Slug string `json:"slug"`
	}
	require.NoError(t, json.Unmarshal(envelope["data"], &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "Linen Shirt", rows[0].Name)
	assert.Equal(t, "linen-shirt", rows[0].Slug)

	t.Run("SlugResolve", func(t *testing.T) {
		status, envelope := f.post(t, "/queries",
			`{"type":"slug.resolve","payload":{"slug":"linen-shirt"}}`, f.authed)
		require.Equal(t, http.StatusOK, status)
		var res struct {
			EntityType string `json:"entityType"`
		}
		require.NoError(t, json.Unmarshal(envelope["data"], &res))
		assert.Equal(t, "product", res.EntityType)
	})

	t.Run("UnknownSlug", func(t *testing.T) {
		status, _ := f.post(t, "/queries",
			`{"type":"slug.resolve","payload":{"slug":"nope"}}`, f.authed)
		assert.Equal(t, http.StatusNotFound, status)
	})

	t.Run("UnknownQueryType", func(t *testing.T) {
		status, _ := f.post(t, "/queries", `{"type":"nope","payload":{}}`, f.authed)
		assert.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("RequiresSession", func(t *testing.T) {
		status, _ := f.post(t, "/queries", `{"type":"products.list","payload":{}}`, nil)
		assert.Equal(t, http.StatusUnauthorized, status)
	})
}

func TestImageEndpoints(t *testing.T) {
	f := newFixture(t)

	status, envelope := f.post(t, "/images",
		`{"renditions":[{"size":"thumbnail","format":"webp","contentType":"image/webp","data":"aGVsbG8="}]}`,
		f.authed)
	require.Equal(t, http.StatusOK, status)

	var data struct {
		ImageID string                       `json:"imageId"`
		URLs    map[string]map[string]string `json:"urls"`
	}
	require.NoError(t, json.Unmarshal(envelope["data"], &data))
	require.NotEmpty(t, data.ImageID)
	assert.Equal(t,
		"https://cdn.example.com/images/"+data.ImageID+"/thumbnail.webp",
		data.URLs["thumbnail"]["webp"])

	t.Run("Delete", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodDelete, f.srv.URL+"/images/"+data.ImageID, nil)
		require.NoError(t, err)
		f.authed(req)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("EmptyUploadRejected", func(t *testing.T) {
		status, _ := f.post(t, "/images", `{"renditions":[]}`, f.authed)
		assert.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("RequiresSession", func(t *testing.T) {
		status, _ := f.post(t, "/images", `{"renditions":[]}`, nil)
		assert.Equal(t, http.StatusUnauthorized, status)
	})
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	resp, err := http.Get(fmt.Sprintf("%s/healthz", f.srv.URL))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
