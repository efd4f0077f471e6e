package stream

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/effluo/internal/models"
)

func TestDecode_PreservesOrderAndSkipsBlankLines(t *testing.T) {
	input := "{\"id\":1}\n{\"id\":2}\n\n"

	records, err := Decode(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	if len(records) != 2 {
		t.Fatalf("records = %d, want 2", len(records))
	}
	if records[0]["id"].(float64) != 1 || records[1]["id"].(float64) != 2 {
		t.Errorf("order not preserved: %v", records)
	}
}

func TestDecode_InteriorBlankLines(t *testing.T) {
	input := "{\"id\":1}\n\n  \n{\"id\":2}\n"

	records, err := Decode(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(records) != 2 {
		t.Errorf("records = %d, want 2", len(records))
	}
}

func TestDecode_Empty(t *testing.T) {
	records, err := Decode(strings.NewReader(""))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if records == nil || len(records) != 0 {
		t.Errorf("want empty non-nil sequence, got %v", records)
	}
}

func TestDecode_ParseFaultAbortsWithNoPartialOutput(t *testing.T) {
	input := "{\"id\":1}\nnot json\n{\"id\":3}\n"

	records, err := Decode(strings.NewReader(input))
	var streamErr *models.StreamError
	if !errors.As(err, &streamErr) {
		t.Fatalf("expected StreamError, got %v", err)
	}
	if records != nil {
		t.Errorf("partial output observed: %v", records)
	}
}

func TestDecodeTyped(t *testing.T) {
	type variant struct {
		ID       string `json:"id"`
		ParentID string `json:"__parentId"`
	}

	input := `{"id":"gid://shopify/Product/9"}
{"id":"gid://shopify/ProductVariant/1","__parentId":"gid://shopify/Product/9"}
`

	records, err := DecodeTyped[variant](strings.NewReader(input))
	if err != nil {
		t.Fatalf("DecodeTyped() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records = %d, want 2", len(records))
	}
	if records[1].ParentID != "gid://shopify/Product/9" {
		t.Errorf("parent link = %q", records[1].ParentID)
	}
}

func TestStreamer_Fetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("{\"id\":1}\n{\"id\":2}\n"))
	}))
	defer server.Close()

	s := NewStreamer(arbor.NewLogger())
	records, err := s.Fetch(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(records) != 2 {
		t.Errorf("records = %d, want 2", len(records))
	}
}

func TestStreamer_FetchHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer server.Close()

	s := NewStreamer(arbor.NewLogger())
	_, err := s.Fetch(context.Background(), server.URL)

	var streamErr *models.StreamError
	if !errors.As(err, &streamErr) {
		t.Fatalf("expected StreamError, got %v", err)
	}
}
