package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Atulx21/SevaConnect/internal/domain"
	apperrors "github.com/Atulx21/SevaConnect/pkg/errors"
	"github.com/Atulx21/SevaConnect/pkg/httpclient"
)

const profileJSON = `{
	"id": "u-1",
	"full_name": "Sunita Devi",
	"phone": "9876543210",
	"village": "Oldtown",
	"role": "worker",
	"rating": 4.5,
	"total_ratings": 10,
	"created_at": "2026-03-01T10:00:00Z",
	"updated_at": "2026-03-01T10:00:00Z",
	"avatar_url": null
}`

func TestFetchOne_DecodesRowAndSendsHeaders(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/rest/v1/profiles", r.URL.Path)
		assert.Equal(t, "eq.u-1", r.URL.Query().Get("id"))
		assert.Equal(t, testAnonKey, r.Header.Get("apikey"))
		assert.Equal(t, "Bearer "+testAnonKey, r.Header.Get("Authorization"))
		assert.Equal(t, mediaSingleObject, r.Header.Get("Accept"))
		_, _ = w.Write([]byte(profileJSON))
	}, nil)

	p, err := FetchOne[domain.Profile](context.Background(), c.Data, "u-1")
	require.NoError(t, err)
	assert.Equal(t, "Oldtown", p.Village)
	assert.Equal(t, domain.RoleWorker, p.Role)
	assert.InDelta(t, 4.5, p.Rating, 0.0001)
	assert.Equal(t, 10, p.TotalRatings)
}

func TestFetchOne_NoRowsIsNotFound(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotAcceptable)
		_, _ = w.Write([]byte(`{"code":"PGRST116","details":"The result contains 0 rows","hint":null,"message":"JSON object requested, multiple (or no) rows returned"}`))
	}, nil)

	p, err := FetchOne[domain.Profile](context.Background(), c.Data, "u-1")
	assert.Nil(t, p)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	assert.Equal(t, httpclient.CodeNoRows, apperrors.RemoteCodeOf(err))
	assert.False(t, apperrors.IsTransient(err))
}

func TestFetchOne_MissingTableIsNotNoRows(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"code":"PGRST205","details":null,"hint":null,"message":"Could not find the table 'public.profiles' in the schema cache"}`))
	}, nil)

	p, err := FetchOne[domain.Profile](context.Background(), c.Data, "u-1")
	assert.Nil(t, p)
	require.Error(t, err)
	assert.False(t, errors.Is(err, apperrors.ErrNotFound))
	assert.Equal(t, "PGRST205", apperrors.RemoteCodeOf(err))
	assert.Equal(t, http.StatusNotFound, apperrors.HTTPStatus(err))
}

func TestFetchOne_MalformedRow(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "wrong type", body: `{"id":"u-1","role":"worker","rating":"high"}`},
		{name: "unknown role", body: `{"id":"u-1","role":"landlord","rating":1}`},
		{name: "missing id", body: `{"role":"worker"}`},
		{name: "null", body: `null`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}, nil)

			_, err := FetchOne[domain.Profile](context.Background(), c.Data, "u-1")
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedRow))
			assert.False(t, apperrors.IsTransient(err))
		})
	}
}

func TestFetchOne_ServerErrorIsTransient(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`upstream connect error`))
	}, nil)

	_, err := FetchOne[domain.Profile](context.Background(), c.Data, "u-1")
	require.Error(t, err)
	assert.True(t, apperrors.IsTransient(err))
}

func TestFetchOne_UnreachableIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := New(DefaultConfig(url, testAnonKey), httpclient.New(httpclient.Config{Timeout: time.Second, MaxConnsPerHost: 1}), nil, testLogger())
	_, err := FetchOne[domain.Profile](context.Background(), c.Data, "u-1")
	require.Error(t, err)
	assert.True(t, apperrors.IsTransient(err))
}

func TestUpdateOne_SendsPatchAndReturnsStoredRow(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "eq.u-1", r.URL.Query().Get("id"))
		assert.Equal(t, "return=representation", r.Header.Get("Prefer"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]any{"village": "Rampur"}, body)

		_, _ = w.Write([]byte(`{"id":"u-1","full_name":"Sunita Devi","village":"Rampur","role":"worker","rating":4.5,"total_ratings":10}`))
	}, nil)

	village := "Rampur"
	p, err := UpdateOne[domain.Profile](context.Background(), c.Data, "u-1", domain.ProfileUpdate{Village: &village})
	require.NoError(t, err)
	assert.Equal(t, "Rampur", p.Village)
}

func TestInsertOne_DuplicateKey(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"code":"23505","details":"Key (id)=(u-1) already exists.","hint":null,"message":"duplicate key value violates unique constraint \"profiles_pkey\""}`))
	}, nil)

	_, err := InsertOne[domain.Profile](context.Background(), c.Data, domain.ProfileInsert{ID: "u-1", Role: domain.RoleWorker})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrAlreadyExists))
	assert.Equal(t, httpclient.CodeUniqueViolation, apperrors.RemoteCodeOf(err))
}

func TestInsertOne_MarketplaceRow(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/ratings", r.URL.Path)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"r-1","rater_id":"u-1","ratee_id":"u-2","score":5,"created_at":"2026-03-01T10:00:00Z"}`))
	}, nil)

	r, err := InsertOne[domain.Rating](context.Background(), c.Data, map[string]any{"rater_id": "u-1", "ratee_id": "u-2", "score": 5})
	require.NoError(t, err)
	assert.Equal(t, 5, r.Score)
}

func TestDataClient_UsesAccessTokenWhenSignedIn(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/v1/token":
			_, _ = w.Write([]byte(sessionJSON("access-1", "refresh-1", 3600)))
		case "/rest/v1/profiles":
			assert.Equal(t, "Bearer access-1", r.Header.Get("Authorization"))
			assert.Equal(t, testAnonKey, r.Header.Get("apikey"))
			_, _ = w.Write([]byte(profileJSON))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}, nil)

	_, err := c.Auth.SignInWithPassword(context.Background(), domain.Credentials{Email: "sunita@example.in", Password: "secret1"})
	require.NoError(t, err)

	_, err = FetchOne[domain.Profile](context.Background(), c.Data, "u-1")
	require.NoError(t, err)
}

func TestClient_Ping(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/health", r.URL.Path)
		_, _ = w.Write([]byte(`{"version":"v2","name":"GoTrue"}`))
	}, nil)

	assert.NoError(t, c.Ping(context.Background()))
}
