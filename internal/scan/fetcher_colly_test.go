package scan

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestCollyFetcher() *CollyFetcher {
	f := NewCollyFetcher(zap.NewNop())
	f.MaxRetries = 0
	f.RequestTimeout = 2 * time.Second
	f.DomainDelay = 0
	return f
}

func TestCollyFetchCanceledContextReturnsError(t *testing.T) {
	f := newTestCollyFetcher()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Port 1 refuses connections, so the error path and the canceled
	// context race to report first. Either way Fetch must return an
	// error, never panic.
	doc, err := f.Fetch(ctx, "http://127.0.0.1:1/editions")
	require.Error(t, err)
	assert.Nil(t, doc)
}

func TestCollyFetchConnectionRefused(t *testing.T) {
	f := newTestCollyFetcher()

	doc, err := f.Fetch(context.Background(), "http://127.0.0.1:1/editions")
	require.Error(t, err)
	assert.Nil(t, doc)
}

func TestCollyFetchAllowsExplicitPort(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "<html><body>Project Name: Test</body></html>")
	}))
	defer srv.Close()

	f := newTestCollyFetcher()

	// httptest URLs always carry an explicit port.
	doc, err := f.Fetch(context.Background(), srv.URL+"/bids")
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, http.StatusOK, doc.StatusCode)
}
