package sync

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/team.ics":
			w.Header().Set("Content-Type", "text/calendar")
			w.Write([]byte("BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	fetcher := NewHTTPFetcher(5 * time.Second)

	t.Run("ok", func(t *testing.T) {
		body, err := fetcher.Fetch(context.Background(), srv.URL+"/team.ics")
		require.NoError(t, err)
		assert.Contains(t, string(body), "BEGIN:VCALENDAR")
	})

	t.Run("upstream error status", func(t *testing.T) {
		_, err := fetcher.Fetch(context.Background(), srv.URL+"/missing.ics")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "404")
	})

	t.Run("unreachable host", func(t *testing.T) {
		_, err := fetcher.Fetch(context.Background(), "http://127.0.0.1:1/feed.ics")
		assert.Error(t, err)
	})
}
