package core

import (
	"reflect"
	"testing"
)

func TestParseZIP(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"28202", "28202", false},
		{" 28202 ", "28202", false},
		{"28202-1234", "28202", false},
		{"2820", "", true},
		{"abcde", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseZIP(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseZIP(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
				return
			}
			if got != tt.want {
				t.Errorf("ParseZIP(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseLatLng(t *testing.T) {
	lat, lng, ok := ParseLatLng("35.2271, -80.8431")
	if !ok {
		t.Fatal("expected coordinates to parse")
	}
	if lat != 35.2271 || lng != -80.8431 {
		t.Errorf("got (%v, %v)", lat, lng)
	}

	if _, _, ok := ParseLatLng("28202"); ok {
		t.Error("expected a ZIP not to parse as coordinates")
	}
	if _, _, ok := ParseLatLng("95,10"); ok {
		t.Error("expected out-of-range latitude to be rejected")
	}
}

func TestParseList(t *testing.T) {
	got := ParseList(" Restaurant, cafe ,,BAR ")
	want := []string{"restaurant", "cafe", "bar"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParseList = %v, want %v", got, want)
	}
	if ParseList("  ") != nil {
		t.Error("expected nil for blank input")
	}
}

func TestParsePriceLevels(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []string
		wantErr bool
	}{
		{"empty", "", nil, false},
		{"single dollars", "$$", []string{"PRICE_LEVEL_MODERATE"}, false},
		{"dollar range", "$$-$$$", []string{"PRICE_LEVEL_MODERATE", "PRICE_LEVEL_EXPENSIVE"}, false},
		{"reversed range", "3-2", []string{"PRICE_LEVEL_MODERATE", "PRICE_LEVEL_EXPENSIVE"}, false},
		{"numeric list with dup", "1,1,4", []string{"PRICE_LEVEL_INEXPENSIVE", "PRICE_LEVEL_VERY_EXPENSIVE"}, false},
		{"too many dollars", "$$$$$", nil, true},
		{"garbage", "cheap", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePriceLevels(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParsePriceLevels(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParsePriceLevels(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestPriceTier(t *testing.T) {
	if PriceTier("PRICE_LEVEL_MODERATE") != 2 {
		t.Error("expected moderate to be tier 2")
	}
	if PriceTier("") != -1 {
		t.Error("expected unknown level to be -1")
	}
}

func TestNormalizeDomain(t *testing.T) {
	tests := map[string]string{
		"https://www.Example.com/menu?x=1": "example.com",
		"order.toasttab.com":               "order.toasttab.com",
		"http://mcdonalds.com":             "mcdonalds.com",
		"":                                 "",
	}
	for input, want := range tests {
		if got := NormalizeDomain(input); got != want {
			t.Errorf("NormalizeDomain(%q) = %q, want %q", input, got, want)
		}
	}
}
