package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"cardrelay/middleman"
)

func TestCollector_Prometheus(t *testing.T) {
	c := New()
	c.PDU(middleman.In, 4)
	c.PDU(middleman.In, 5)
	c.PDU(middleman.Out, 2)

	expected := `
# HELP cardrelay_pdus_total PDUs relayed, by direction.
# TYPE cardrelay_pdus_total counter
cardrelay_pdus_total{direction="In"} 2
cardrelay_pdus_total{direction="Out"} 1
`
	if err := testutil.CollectAndCompare(c, strings.NewReader(expected), "cardrelay_pdus_total"); err != nil {
		t.Error(err)
	}

	if n := testutil.CollectAndCount(c); n != 9 {
		t.Errorf("metric count = %d, want 9", n)
	}
}

func TestHandler(t *testing.T) {
	c := New()
	c.SessionOpened()

	reg := NewRegistry()
	reg.MustRegister(c)

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	for _, want := range []string{"cardrelay_sessions_active 1", "go_goroutines"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("scrape output missing %q", want)
		}
	}
}

func TestRegister_Twice(t *testing.T) {
	c := New()
	reg := prometheus.NewRegistry()
	if err := c.Register(reg); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := c.Register(reg); err == nil {
		t.Fatal("registering the same collector twice should fail")
	}
}
