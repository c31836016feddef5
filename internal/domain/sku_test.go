package domain

import "testing"

func TestNewSku(t *testing.T) {
	tests := []struct {
		raw  string
		want Sku
		ok   bool
	}{
		{"sku-abc-1", "SKU-ABC-1", true},
		{"  widget_9  ", "WIDGET_9", true},
		{"AB", "", false},
		{"", "", false},
		{"SKU WITH SPACE", "", false},
		{"SKU#1", "", false},
	}
	for _, tt := range tests {
		got, err := NewSku(tt.raw)
		if tt.ok {
			if err != nil {
				t.Errorf("NewSku(%q): unexpected error %v", tt.raw, err)
				continue
			}
			if got != tt.want {
				t.Errorf("NewSku(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		} else if !IsInvariant(err) {
			t.Errorf("NewSku(%q): expected invariant error, got %v", tt.raw, err)
		}
	}
}

func TestNewQuantity(t *testing.T) {
	if _, err := NewQuantity(-1); !IsInvariant(err) {
		t.Fatalf("expected invariant error, got %v", err)
	}
	q, err := NewQuantity(7)
	if err != nil {
		t.Fatalf("NewQuantity: %v", err)
	}
	if q.Int64() != 7 {
		t.Fatalf("expected 7, got %d", q.Int64())
	}
}
