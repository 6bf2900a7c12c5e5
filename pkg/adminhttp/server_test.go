package adminhttp

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/newtron-network/karabo/pkg/fabric"
)

type fakeLister struct {
	instances []fabric.InstanceInfo
}

func (f fakeLister) Instances() []fabric.InstanceInfo { return f.instances }

func TestHealthzReturnsOK(t *testing.T) {
	srv := httptest.NewServer(NewServer(fakeLister{}, []string{"*"}))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestDevicesListsKnownInstances(t *testing.T) {
	lister := fakeLister{instances: []fabric.InstanceInfo{
		{InstanceID: "dev1", ClassID: "TestDevice"},
	}}
	srv := httptest.NewServer(NewServer(lister, []string{"*"}))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/devices")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	var got []fabric.InstanceInfo
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if len(got) != 1 || got[0].InstanceID != "dev1" {
		t.Fatalf("expected one instance dev1, got %+v", got)
	}
}

func TestMetricsExposesPrometheusFormat(t *testing.T) {
	srv := httptest.NewServer(NewServer(fakeLister{}, []string{"*"}))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}
