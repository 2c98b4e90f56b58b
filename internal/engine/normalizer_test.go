package engine

import (
	"testing"

	"CandleFlow/internal/domain/models"
)

func TestNormalizeValid(t *testing.T) {
	tk, err := Normalize(models.RawTick{Symbol: "BTCUSDT", Timestamp: 1700000000, Price: "42000.25", Volume: "0.5"})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if tk.Symbol != "BTCUSDT" || tk.Time.Unix() != 1700000000 {
		t.Fatalf("unexpected tick %+v", tk)
	}
	if tk.Price.String() != "42000.25" || tk.Volume.String() != "0.5" {
		t.Fatalf("precision lost: %s %s", tk.Price, tk.Volume)
	}
}

func TestNormalizeMillis(t *testing.T) {
	tk, err := Normalize(models.RawTick{Symbol: "BTCUSDT", Timestamp: 1700000000123, Price: "1"})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if tk.Time.Unix() != 1700000000 {
		t.Fatalf("ms timestamp not reduced: %d", tk.Time.Unix())
	}
}

func TestNormalizeEmptyVolume(t *testing.T) {
	tk, err := Normalize(models.RawTick{Symbol: "BTCUSDT", Timestamp: 100, Price: "1"})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if !tk.Volume.IsZero() {
		t.Fatalf("volume = %s, want 0", tk.Volume)
	}
}

func TestNormalizeRejects(t *testing.T) {
	cases := []models.RawTick{
		{Symbol: "", Timestamp: 100, Price: "1"},
		{Symbol: "BTCUSDT", Timestamp: 0, Price: "1"},
		{Symbol: "BTCUSDT", Timestamp: -5, Price: "1"},
		{Symbol: "BTCUSDT", Timestamp: 100, Price: ""},
		{Symbol: "BTCUSDT", Timestamp: 100, Price: "abc"},
		{Symbol: "BTCUSDT", Timestamp: 100, Price: "0"},
		{Symbol: "BTCUSDT", Timestamp: 100, Price: "-1"},
		{Symbol: "BTCUSDT", Timestamp: 100, Price: "1", Volume: "-2"},
		{Symbol: "BTCUSDT", Timestamp: 100, Price: "1", Volume: "x"},
	}
	for i, raw := range cases {
		if _, err := Normalize(raw); err == nil {
			t.Fatalf("case %d accepted: %+v", i, raw)
		} else if !models.IsValidation(err) {
			t.Fatalf("case %d: not a validation error: %v", i, err)
		}
	}
}
