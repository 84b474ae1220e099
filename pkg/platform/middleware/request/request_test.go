package request

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evoto/pkg/requestcontext"
)

func TestRequestID(t *testing.T) {
	t.Run("generates an id when header is missing", func(t *testing.T) {
		var got string
		h := RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			got = requestcontext.RequestID(r.Context())
		}))
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

		_, err := uuid.Parse(got)
		require.NoError(t, err)
		assert.Equal(t, got, w.Header().Get(HeaderRequestID))
	})

	t.Run("keeps a well formed inbound id", func(t *testing.T) {
		inbound := uuid.NewString()
		var got string
		h := RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			got = requestcontext.RequestID(r.Context())
		}))
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set(HeaderRequestID, inbound)
		h.ServeHTTP(httptest.NewRecorder(), r)

		assert.Equal(t, inbound, got)
	})

	t.Run("replaces a malformed inbound id", func(t *testing.T) {
		var got string
		h := RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			got = requestcontext.RequestID(r.Context())
		}))
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set(HeaderRequestID, "<script>")
		h.ServeHTTP(httptest.NewRecorder(), r)

		assert.NotEqual(t, "<script>", got)
	})
}

func TestRecovery(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := Recovery(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"internal_error"}`, w.Body.String())
}
