package sync

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/xelth-com/magazzino/internal/models"
	"github.com/xelth-com/magazzino/internal/remote"
)

func TestCodecRoundTrip(t *testing.T) {
	ts := time.Date(2026, 3, 1, 10, 30, 0, 123000000, time.UTC)
	ref := models.ItemRef{Warehouse: "Magazzino 1", Category: "cibo", Name: "Pasta"}
	item := models.Item{Name: "Pasta", Quantity: 15, AlertThreshold: 5, RemoteID: "rec1", LastModified: &ts}

	// pass through JSON the way the wire does
	raw, err := json.Marshal(EncodeItem(ref, item))
	if err != nil {
		t.Fatal(err)
	}
	var rec remote.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		t.Fatal(err)
	}

	gotRef, got, ok := DecodeRecord(rec)
	if !ok {
		t.Fatal("record was skipped")
	}
	if gotRef != ref {
		t.Errorf("ref = %+v, want %+v", gotRef, ref)
	}
	if got.Name != item.Name || got.Quantity != item.Quantity || got.AlertThreshold != item.AlertThreshold {
		t.Errorf("item = %+v, want %+v", got, item)
	}
	if got.RemoteID != "rec1" {
		t.Errorf("RemoteID = %q, want rec1", got.RemoteID)
	}
	if got.LastModified == nil || !got.LastModified.Equal(ts) {
		t.Errorf("LastModified = %v, want %v", got.LastModified, ts)
	}
}

func TestEncodeDefaults(t *testing.T) {
	rec := EncodeItem(models.ItemRef{Warehouse: "W", Category: "C"}, models.Item{Quantity: -2})
	if rec.Fields[FieldName] != UnnamedItem {
		t.Errorf("name = %v, want %q", rec.Fields[FieldName], UnnamedItem)
	}
	if rec.Fields[FieldThreshold] != models.DefaultAlertThreshold {
		t.Errorf("threshold = %v, want %d", rec.Fields[FieldThreshold], models.DefaultAlertThreshold)
	}
	if rec.Fields[FieldQuantity] != 0 {
		t.Errorf("quantity = %v, want 0", rec.Fields[FieldQuantity])
	}
	if _, ok := rec.Fields[FieldLastModified]; ok {
		t.Error("unset timestamp should not be encoded")
	}
}

func TestDecodeDefaultsAndSkips(t *testing.T) {
	records := []remote.Record{
		{ID: "rec1", Fields: remote.Fields{FieldName: "Sale", FieldQuantity: "12"}},
		{ID: "rec2", Fields: remote.Fields{FieldName: UnnamedItem}},
		{ID: "rec3", Fields: remote.Fields{FieldQuantity: float64(3)}},
	}

	data := DecodeRecords(records)
	if data.Count() != 1 {
		t.Fatalf("decoded %d items, want 1", data.Count())
	}
	item, ok := data.Lookup(models.ItemRef{Warehouse: DefaultWarehouse, Category: DefaultCategory, Name: "Sale"})
	if !ok {
		t.Fatalf("Sale not placed under defaults: %+v", data)
	}
	if item.Quantity != 12 || item.AlertThreshold != models.DefaultAlertThreshold {
		t.Errorf("item = %+v", item)
	}
}

func TestDecodeClampsOutOfRangeNumbers(t *testing.T) {
	records := []remote.Record{
		{ID: "recBig", Fields: remote.Fields{FieldName: "Farina", FieldQuantity: 1e300, FieldThreshold: math.Inf(1)}},
		{ID: "recNeg", Fields: remote.Fields{FieldName: "Zucchero", FieldQuantity: -1e300, FieldThreshold: math.NaN()}},
	}

	_, big, ok := DecodeRecord(records[0])
	if !ok || big.Quantity != math.MaxInt || big.AlertThreshold != math.MaxInt {
		t.Errorf("huge values should clamp to MaxInt, got %+v", big)
	}
	_, neg, ok := DecodeRecord(records[1])
	if !ok || neg.Quantity != 0 || neg.AlertThreshold != models.DefaultAlertThreshold {
		t.Errorf("negative quantity and NaN threshold should normalize, got %+v", neg)
	}
}

func TestDecodeMergesByUpdate(t *testing.T) {
	records := []remote.Record{
		{ID: "rec1", Fields: remote.Fields{FieldWarehouse: "W", FieldCategory: "C", FieldName: "Olio", FieldQuantity: float64(1)}},
		{ID: "rec2", Fields: remote.Fields{FieldWarehouse: "W", FieldCategory: "C", FieldName: "olio", FieldQuantity: float64(4)}},
	}

	cat := DecodeRecords(records)["W"]["C"]
	if len(cat) != 1 {
		t.Fatalf("got %d items, want merged into 1", len(cat))
	}
	if cat[0].Quantity != 4 || cat[0].RemoteID != "rec2" {
		t.Errorf("item = %+v, want later record to win", cat[0])
	}
}

func TestParseTimestamp(t *testing.T) {
	cases := map[string]bool{
		"2026-03-01T10:30:00.000Z":  true,
		"2026-03-01T10:30:00+02:00": true,
		"2026-03-01":                true,
		"":                          false,
		"yesterday":                 false,
	}
	for in, ok := range cases {
		if got := ParseTimestamp(in); (got != nil) != ok {
			t.Errorf("ParseTimestamp(%q) = %v, want ok=%v", in, got, ok)
		}
	}
}

func TestResolveConflict(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Minute)

	if ResolveConflict(&t1, &t0) != WinnerLocal {
		t.Error("newer local should win")
	}
	if ResolveConflict(&t0, &t1) != WinnerRemote {
		t.Error("older local should lose")
	}
	if ResolveConflict(&t0, &t0) != WinnerRemote {
		t.Error("equal timestamps leave the remote untouched")
	}
	if ResolveConflict(nil, nil) != WinnerRemote {
		t.Error("missing timestamps compare as zero")
	}
	if ResolveConflict(&t0, nil) != WinnerLocal {
		t.Error("any local timestamp beats a missing remote one")
	}
}
