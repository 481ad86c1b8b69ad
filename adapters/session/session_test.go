package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore 以記憶體map實作 IStore
type fakeStore struct {
	data      map[string]map[string]string
	loadErr   error
	saveErr   error
	loadCalls int
	saveCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string]map[string]string)}
}

func (s *fakeStore) Load(ctx context.Context, name string) (map[string]string, error) {
	s.loadCalls++
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	stored, ok := s.data[name]
	if !ok {
		return map[string]string{}, nil
	}
	copied := make(map[string]string, len(stored))
	for k, v := range stored {
		copied[k] = v
	}
	return copied, nil
}

func (s *fakeStore) Save(ctx context.Context, name string, data map[string]string) error {
	s.saveCalls++
	if s.saveErr != nil {
		return s.saveErr
	}
	copied := make(map[string]string, len(data))
	for k, v := range data {
		copied[k] = v
	}
	s.data[name] = copied
	return nil
}

func TestSession_Load(t *testing.T) {
	t.Run("successful load", func(t *testing.T) {
		store := newFakeStore()
		store.data["s1"] = map[string]string{"user_id": "u1"}

		s := NewSession(context.Background(), "s1", store)
		require.NoError(t, s.Load())
		assert.Equal(t, "u1", s.Get("user_id"))
	})

	t.Run("load is lazy and cached", func(t *testing.T) {
		store := newFakeStore()

		s := NewSession(context.Background(), "s1", store)
		require.NoError(t, s.Load())
		require.NoError(t, s.Load())
		assert.Equal(t, 1, store.loadCalls)
	})

	t.Run("load error", func(t *testing.T) {
		store := newFakeStore()
		store.loadErr = errors.New("load error")

		s := NewSession(context.Background(), "s1", store)
		err := s.Load()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "load error")
	})

	t.Run("nil context is tolerated", func(t *testing.T) {
		store := newFakeStore()
		s := NewSession(nil, "s1", store)
		assert.NoError(t, s.Load())
	})
}

func TestSession_GetSetDelete(t *testing.T) {
	store := newFakeStore()
	s := NewSession(context.Background(), "s1", store)

	// 未載入時讀取為空字串
	assert.Empty(t, s.Get("user_id"))

	s.Set("user_id", "u1")
	s.Set("state", "xyz")
	assert.Equal(t, "u1", s.Get("user_id"))

	s.Delete("state")
	assert.Empty(t, s.Get("state"))

	s.Clear()
	assert.Empty(t, s.Get("user_id"))
}

func TestSession_Save(t *testing.T) {
	t.Run("save roundtrip", func(t *testing.T) {
		store := newFakeStore()

		s := NewSession(context.Background(), "s1", store)
		s.Set("user_id", "u1")
		require.NoError(t, s.Save())

		loaded := NewSession(context.Background(), "s1", store)
		require.NoError(t, loaded.Load())
		assert.Equal(t, "u1", loaded.Get("user_id"))
	})

	t.Run("save without data is no-op", func(t *testing.T) {
		store := newFakeStore()

		s := NewSession(context.Background(), "s1", store)
		require.NoError(t, s.Save())
		assert.Zero(t, store.saveCalls)
	})

	t.Run("save error", func(t *testing.T) {
		store := newFakeStore()
		store.saveErr = errors.New("save error")

		s := NewSession(context.Background(), "s1", store)
		s.Set("user_id", "u1")
		err := s.Save()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "save error")
	})
}

func TestGinMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("issues cookie and exposes session", func(t *testing.T) {
		store := newFakeStore()

		router := gin.New()
		router.Use(GinMiddleware(store))
		router.GET("/", func(c *gin.Context) {
			sess, err := GetSession(c)
			require.NoError(t, err)
			sess.Set("user_id", "u1")
			require.NoError(t, sess.Save())
			c.Status(http.StatusOK)
		})

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		cookies := w.Result().Cookies()
		require.NotEmpty(t, cookies)
		assert.Equal(t, DefaultSessionKeyForCookie, cookies[0].Name)
		assert.NotEmpty(t, cookies[0].Value)
		assert.Equal(t, 1, store.saveCalls)
	})

	t.Run("reuses session id from cookie", func(t *testing.T) {
		store := newFakeStore()
		store.data["known-id"] = map[string]string{"user_id": "u1"}

		router := gin.New()
		router.Use(GinMiddleware(store))
		router.GET("/", func(c *gin.Context) {
			sess, err := GetSession(c)
			require.NoError(t, err)
			c.String(http.StatusOK, sess.Get("user_id"))
		})

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: DefaultSessionKeyForCookie, Value: "known-id"})
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "u1", w.Body.String())
	})

	t.Run("get session without middleware", func(t *testing.T) {
		_, err := GetSession(context.Background())
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})
}
