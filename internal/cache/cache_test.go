package cache

import (
	"testing"

	"github.com/ternarybob/effluo/internal/models"
)

func baseRequest() *models.ExportRequest {
	return &models.ExportRequest{
		StoreName:   "shop1",
		AccessToken: "secret",
		APIVersion:  "2025-07",
		Query:       "{ products { edges { node { id } } } }",
		Variables:   map[string]string{"a": "1", "b": "2"},
	}
}

func TestKey_Deterministic(t *testing.T) {
	if Key(baseRequest()) != Key(baseRequest()) {
		t.Error("identical requests must hash identically")
	}
}

func TestKey_VariableOrderIndependent(t *testing.T) {
	r1 := baseRequest()
	r1.Variables = map[string]string{}
	r1.Variables["a"] = "1"
	r1.Variables["b"] = "2"

	r2 := baseRequest()
	r2.Variables = map[string]string{}
	r2.Variables["b"] = "2"
	r2.Variables["a"] = "1"

	if Key(r1) != Key(r2) {
		t.Error("variable insertion order must not affect the key")
	}
}

func TestKey_SensitiveToEveryLogicalField(t *testing.T) {
	base := Key(baseRequest())

	tests := []struct {
		name   string
		mutate func(*models.ExportRequest)
	}{
		{"query", func(r *models.ExportRequest) { r.Query = "{ orders { edges { node { id } } } }" }},
		{"variables", func(r *models.ExportRequest) { r.Variables["a"] = "changed" }},
		{"store", func(r *models.ExportRequest) { r.StoreName = "shop2" }},
		{"api version", func(r *models.ExportRequest) { r.APIVersion = "2024-10" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := baseRequest()
			tt.mutate(r)
			if Key(r) == base {
				t.Errorf("changing %s must change the key", tt.name)
			}
		})
	}
}

func TestKey_IgnoresCredential(t *testing.T) {
	r := baseRequest()
	r.AccessToken = "rotated"
	if Key(r) != Key(baseRequest()) {
		t.Error("credential rotation must not invalidate cached results")
	}
}

func TestNoop(t *testing.T) {
	var store Store = Noop{}

	if err := store.Put("k", []byte("v")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if _, ok, err := store.Get("k"); ok || err != nil {
		t.Errorf("disabled cache must always miss (ok=%v, err=%v)", ok, err)
	}
}
