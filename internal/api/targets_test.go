package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vijaygupta18/multidb/internal/target"
	"github.com/vijaygupta18/multidb/internal/target/fake"
)

func TestListTargets(t *testing.T) {
	srv := newTestServer(t, fake.New("zeta"), fake.New("alpha"))
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/targets")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	var infos []target.Info
	if err := json.NewDecoder(resp.Body).Decode(&infos); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("targets = %d, want 2", len(infos))
	}
	if infos[0].Name != "alpha" || infos[1].Name != "zeta" {
		t.Errorf("order = [%s %s], want [alpha zeta]", infos[0].Name, infos[1].Name)
	}
	if infos[0].Stats != nil {
		t.Error("fake target reported pool stats")
	}
}
