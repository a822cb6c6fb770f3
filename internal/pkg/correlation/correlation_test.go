package correlation

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromContext_Empty(t *testing.T) {
	assert.Equal(t, "", FromContext(context.Background()))
}

func TestWithID_RoundTrip(t *testing.T) {
	ctx := WithID(context.Background(), "abc-123")
	assert.Equal(t, "abc-123", FromContext(ctx))
}

func TestMiddleware_UsesInboundHeader(t *testing.T) {
	var got string
	handler := Middleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got = FromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(Header, "trace-42")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, "trace-42", got)
	assert.Equal(t, "trace-42", rec.Header().Get(Header))
}

func TestMiddleware_GeneratesWhenMissing(t *testing.T) {
	var got string
	handler := Middleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got = FromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.NotEmpty(t, got)
	assert.Equal(t, got, rec.Header().Get(Header))
}
