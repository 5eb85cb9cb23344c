package httpc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"count":3,"wait_time":6}`))
		case "/bad":
			w.Write([]byte(`{`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	var got struct {
		Count    int `json:"count"`
		WaitTime int `json:"wait_time"`
	}
	require.NoError(t, GetJSON(context.Background(), Client, srv.URL+"/ok", &got))
	assert.Equal(t, 3, got.Count)
	assert.Equal(t, 6, got.WaitTime)

	assert.ErrorContains(t, GetJSON(context.Background(), Client, srv.URL+"/missing", &got), "status 404")
	assert.ErrorContains(t, GetJSON(context.Background(), Client, srv.URL+"/bad", &got), "decode")
}

func TestGetJSON_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var v any
	assert.Error(t, GetJSON(ctx, Client, "http://127.0.0.1:1/", &v))
}
