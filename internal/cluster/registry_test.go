package cluster

import (
	"strings"
	"testing"
)

func TestRegistryLoad(t *testing.T) {
	r := NewRegistry()
	err := r.Load([]ClusterConfig{
		{Name: "prod-west", StreamEndpoint: "wss://west.example.com/stream"},
		{Name: "prod-east", StreamEndpoint: "wss://east.example.com/stream"},
		{Name: "edge", ListEndpoint: "https://edge.example.com/events"},
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if r.Count() != 3 {
		t.Errorf("Count = %d, want 3", r.Count())
	}
	if got := r.Get("edge"); got == nil || got.ListEndpoint == "" {
		t.Error("Get(edge) did not return the poll-path config")
	}
	if r.Get("missing") != nil {
		t.Error("Get on unknown name should return nil")
	}
}

func TestRegistryNamesSorted(t *testing.T) {
	r := NewRegistry()
	if err := r.Load([]ClusterConfig{
		{Name: "zeta", StreamEndpoint: "wss://z/stream"},
		{Name: "alpha", StreamEndpoint: "wss://a/stream"},
		{Name: "mid", StreamEndpoint: "wss://m/stream"},
	}); err != nil {
		t.Fatalf("Load: %v", err)
	}

	names := r.Names()
	want := []string{"alpha", "mid", "zeta"}
	for i, n := range want {
		if names[i] != n {
			t.Fatalf("Names() = %v, want %v", names, want)
		}
	}

	list := r.List()
	for i, n := range want {
		if list[i].Name != n {
			t.Fatalf("List() order = %v at %d, want %v", list[i].Name, i, n)
		}
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	err := r.Load([]ClusterConfig{
		{Name: "prod", StreamEndpoint: "wss://a/stream"},
		{Name: "prod", StreamEndpoint: "wss://b/stream"},
	})
	if err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Fatalf("expected duplicate name error, got %v", err)
	}
}

func TestRegistryRejectsInvalidConfig(t *testing.T) {
	r := NewRegistry()
	if err := r.Load([]ClusterConfig{{Name: "lonely"}}); err == nil {
		t.Fatal("expected validation error for cluster with no endpoints")
	}
}
