package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/comps/internal/config"
	"github.com/sells-group/comps/internal/model"
)

func TestNewHTTPServer_Routes(t *testing.T) {
	c := sqliteConfig(t)
	c.Server.Port = 9999
	ctx := context.Background()

	e, err := initEnv(ctx, c, true)
	require.NoError(t, err)
	defer e.Close()

	rev := 25.0
	_, err = e.Store.UpsertCompanies(ctx, []model.Company{
		{ID: 1, Name: "Acme", IndustrySector: "Technology", Country: "US", RevenueMillions: &rev},
		{ID: 2, Name: "Beacon", IndustrySector: "Technology", Country: "US", RevenueMillions: &rev},
	})
	require.NoError(t, err)

	srv := newHTTPServer(c, e)
	assert.Equal(t, ":9999", srv.Addr)

	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/similar-companies", strings.NewReader(`{"input_company_ids":[1]}`))
	srv.Handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Body.String(), `"input_companies"`)
}

func TestRunServer_ShutsDownOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	srv := &http.Server{
		Addr:              "127.0.0.1:0",
		Handler:           http.NewServeMux(),
		ReadHeaderTimeout: time.Second,
	}

	done := make(chan error, 1)
	go func() {
		done <- runServer(ctx, srv, config.ServerConfig{ShutdownTimeout: time.Second})
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
