package immich

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jamo/immich-gps/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	key     string
	cleared int
}

func (s *memoryStore) LoadCredential() (string, error) { return s.key, nil }
func (s *memoryStore) SaveCredential(key string) error { s.key = key; return nil }
func (s *memoryStore) ClearCredential() error {
	s.key = ""
	s.cleared++
	return nil
}

func TestSearchMetadata(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/search/metadata", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("x-api-key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "", body["query"])
		assert.Equal(t, false, body["clip"])
		assert.Equal(t, "IMAGE", body["type"])
		assert.Equal(t, float64(2), body["size"])
		assert.Equal(t, float64(3), body["page"])

		w.Write([]byte(`{"assets":{"items":[
			{"id":"a","originalFileName":"a.jpg","fileCreatedAt":"2021-05-01T10:00:00.000Z"},
			{"id":"b","originalFileName":"b.jpg","localDateTime":"2021-05-02T10:00:00.000Z"}
		],"total":2}}`))
	}))
	defer server.Close()

	c := NewClient(server.URL+"/", "secret")
	page, err := c.SearchMetadata(context.Background(), SearchRequest{Size: 2, Page: 3})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "a", page.Items[0].ID)
	assert.Equal(t, "2021-05-02T10:00:00.000Z", page.Items[1].LocalDateTime)
	assert.Contains(t, string(page.Items[0].Raw), `"originalFileName":"a.jpg"`)
	assert.True(t, page.HasMore, "a full page means more may remain")
}

func TestAuthFailureDiscardsCredential(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	store := &memoryStore{key: "stale"}
	c := NewClient(server.URL, "", WithCredentialStore(store))

	_, err := c.TimeBuckets(context.Background())
	var authErr *AuthError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, http.StatusUnauthorized, authErr.StatusCode)
	assert.True(t, IsAuthError(err))
	assert.False(t, c.HasCredential())
	assert.Equal(t, "", store.key)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))

	// nothing to send any more: fails without reaching the server
	_, err = c.AssetDetails(context.Background(), "x")
	require.True(t, errors.As(err, &authErr))
	assert.Zero(t, authErr.StatusCode)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestCredentialFromPrompter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "typed" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Write([]byte(`[{"id":"al","albumName":"Holidays","assetCount":3}]`))
	}))
	defer server.Close()

	store := &memoryStore{}
	prompts := 0
	c := NewClient(server.URL, "",
		WithCredentialStore(store),
		WithPrompter(PromptFunc(func(ctx context.Context) (string, error) {
			prompts++
			return " typed ", nil
		})),
	)

	albums, err := c.Albums(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []models.Album{{ID: "al", AlbumName: "Holidays", AssetCount: 3}}, albums)
	assert.Equal(t, "typed", store.key)

	_, err = c.Albums(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, prompts)
}

func TestConcurrentRequestsShareOnePrompt(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "typed" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"id":"a1"}`))
	}))
	defer server.Close()

	var calls, active, maxActive int32
	c := NewClient(server.URL, "", WithPrompter(PromptFunc(func(ctx context.Context) (string, error) {
		atomic.AddInt32(&calls, 1)
		n := atomic.AddInt32(&active, 1)
		defer atomic.AddInt32(&active, -1)
		for {
			m := atomic.LoadInt32(&maxActive)
			if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		return "typed", nil
	})))

	const requests = 5
	var wg sync.WaitGroup
	errs := make(chan error, requests)
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.AssetDetails(context.Background(), "a1")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, int32(1), atomic.LoadInt32(&maxActive))
}

func TestLateRejectionKeepsNewCredential(t *testing.T) {
	store := &memoryStore{key: "old"}
	var c *Client
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") == "old" {
			// replaced while the request was in flight
			assert.NoError(t, c.SetCredential("new"))
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`[]`))
	}))
	defer server.Close()
	c = NewClient(server.URL, "", WithCredentialStore(store))

	_, err := c.Albums(context.Background())
	assert.True(t, IsAuthError(err))
	assert.True(t, c.HasCredential())
	assert.Equal(t, "new", store.key)
	assert.Zero(t, store.cleared)

	_, err = c.Albums(context.Background())
	assert.NoError(t, err)
}

func TestTimeBucketsCached(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		assert.Equal(t, "/api/timeline/buckets", r.URL.Path)
		w.Write([]byte(`[{"timeBucket":"2021-05-01T00:00:00.000Z","count":12}]`))
	}))
	defer server.Close()

	c := NewClient(server.URL, "k")
	ctx := context.Background()

	first, err := c.TimeBuckets(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.TimeBucket{{TimeBucket: "2021-05-01T00:00:00.000Z", Count: 12}}, first)

	first[0].Count = 0
	second, err := c.TimeBuckets(ctx)
	require.NoError(t, err)
	assert.Equal(t, 12, second[0].Count, "cached listing must not be shared with callers")
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))

	_, err = c.RefreshTimeBuckets(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))

	uncached := NewClient(server.URL, "k", WithBucketTTL(0))
	_, _ = uncached.TimeBuckets(ctx)
	_, _ = uncached.TimeBuckets(ctx)
	assert.Equal(t, int32(4), atomic.LoadInt32(&hits))
}

func TestTimelineBucketQuery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/timeline/bucket", r.URL.Path)
		assert.Equal(t, "2021-05-01T00:00:00.000Z", r.URL.Query().Get("timeBucket"))
		assert.Equal(t, "MONTH", r.URL.Query().Get("size"))
		w.Write([]byte(`[{"id":"a"}]`))
	}))
	defer server.Close()

	assets, err := NewClient(server.URL, "k").TimelineBucket(context.Background(), "2021-05-01T00:00:00.000Z")
	require.NoError(t, err)
	require.Len(t, assets, 1)
	assert.Equal(t, "a", assets[0].ID)
}

func TestAssetDetails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/assets/abc", r.URL.Path)
		w.Write([]byte(`{"id":"abc","exifInfo":{"latitude":48.8566,"longitude":2.3522,"city":"Paris","country":"France","altitude":35,"dateTimeOriginal":"2021-05-01T10:00:00.000Z"}}`))
	}))
	defer server.Close()

	a, err := NewClient(server.URL, "k").AssetDetails(context.Background(), "abc")
	require.NoError(t, err)
	require.NotNil(t, a.ExifInfo)
	require.NotNil(t, a.ExifInfo.Latitude)
	assert.Equal(t, 48.8566, *a.ExifInfo.Latitude)
	assert.Equal(t, "Paris", a.ExifInfo.City)
	require.NotNil(t, a.ExifInfo.Altitude)
	assert.Equal(t, 35.0, *a.ExifInfo.Altitude)
}

func TestErrorClassification(t *testing.T) {
	status := int32(http.StatusInternalServerError)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(atomic.LoadInt32(&status)))
		w.Write([]byte("boom"))
	}))
	c := NewClient(server.URL, "k")
	ctx := context.Background()

	_, err := c.AssetDetails(ctx, "a")
	var reqErr *RequestError
	require.True(t, errors.As(err, &reqErr))
	assert.Equal(t, "boom", reqErr.Body)
	assert.True(t, IsTransient(err))
	assert.False(t, IsAuthError(err))

	atomic.StoreInt32(&status, http.StatusNotFound)
	_, err = c.AssetDetails(ctx, "a")
	assert.False(t, IsTransient(err))

	atomic.StoreInt32(&status, http.StatusTooManyRequests)
	_, err = c.AssetDetails(ctx, "a")
	assert.True(t, IsTransient(err))

	server.Close()
	_, err = c.AssetDetails(ctx, "a")
	var transientErr *TransientError
	assert.True(t, errors.As(err, &transientErr))
	assert.True(t, IsTransient(err))
	assert.True(t, c.HasCredential(), "network failures keep the key")
}

func TestDecodeFailureIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"assets":`))
	}))
	defer server.Close()

	_, err := NewClient(server.URL, "k").SearchMetadata(context.Background(), SearchRequest{Size: 10})
	assert.True(t, IsTransient(err))
}

func TestForward(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/assets/a/thumbnail", r.URL.Path)
		assert.Equal(t, "preview", r.URL.Query().Get("size"))
		assert.Equal(t, "k", r.Header.Get("x-api-key"))
		assert.Empty(t, r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte("jpeg"))
	}))
	defer server.Close()

	resp, err := NewClient(server.URL, "k").Forward(context.Background(), "/assets/a/thumbnail", "size=preview")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "jpeg", string(body))
	assert.Equal(t, "image/jpeg", resp.Header.Get("Content-Type"))
}

func TestSetCredential(t *testing.T) {
	store := &memoryStore{}
	c := NewClient("http://example.invalid", "", WithCredentialStore(store))

	require.NoError(t, c.SetCredential(" new "))
	assert.True(t, c.HasCredential())
	assert.Equal(t, "new", store.key)

	require.NoError(t, c.ClearCredential())
	assert.False(t, c.HasCredential())
	assert.Equal(t, 1, store.cleared)
}
