package httputil

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewClientSetsUserAgent(t *testing.T) {
	var got []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = append(got, r.UserAgent())
	}))
	defer srv.Close()

	client := NewClient(5*time.Second, "pinion-test/1")
	if client.Timeout != 5*time.Second {
		t.Errorf("timeout = %v", client.Timeout)
	}

	resp, err := client.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	req.Header.Set("User-Agent", "explicit")
	resp, err = client.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if len(got) != 2 || got[0] != "pinion-test/1" || got[1] != "explicit" {
		t.Errorf("user agents = %v", got)
	}
}

func TestNewClientWithoutUserAgent(t *testing.T) {
	client := NewClient(time.Second, "")
	if _, ok := client.Transport.(*http.Transport); !ok {
		t.Errorf("expected bare transport, got %T", client.Transport)
	}
}
