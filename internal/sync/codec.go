package sync

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/xelth-com/magazzino/internal/models"
	"github.com/xelth-com/magazzino/internal/remote"
)

// Remote table columns
const (
	FieldWarehouse    = "Magazzino"
	FieldCategory     = "Categoria"
	FieldName         = "Articolo"
	FieldQuantity     = "Quantita"
	FieldThreshold    = "SogliaAllerta"
	FieldLastModified = "UltimaModifica"
)

// Placeholders used when a record or item lacks a value
const (
	UnnamedItem      = "Senza nome"
	DefaultWarehouse = "Magazzino Default"
	DefaultCategory  = "Generale"
)

const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// EncodeItem maps a local item to its remote representation, preserving remoteId
func EncodeItem(ref models.ItemRef, item models.Item) remote.Record {
	name := strings.TrimSpace(item.Name)
	if name == "" {
		name = UnnamedItem
	}
	threshold := item.AlertThreshold
	if threshold < 1 {
		threshold = models.DefaultAlertThreshold
	}
	quantity := item.Quantity
	if quantity < 0 {
		quantity = 0
	}

	fields := remote.Fields{
		FieldWarehouse: ref.Warehouse,
		FieldCategory:  ref.Category,
		FieldName:      name,
		FieldQuantity:  quantity,
		FieldThreshold: threshold,
	}
	if item.LastModified != nil {
		fields[FieldLastModified] = FormatTimestamp(*item.LastModified)
	}
	return remote.Record{ID: item.RemoteID, Fields: fields}
}

// DecodeRecord maps a remote record to a local item and its location.
// It reports false for records without a usable name.
func DecodeRecord(rec remote.Record) (models.ItemRef, models.Item, bool) {
	name := strings.TrimSpace(stringField(rec.Fields, FieldName))
	if name == "" || name == UnnamedItem {
		return models.ItemRef{}, models.Item{}, false
	}

	ref := models.ItemRef{
		Warehouse: strings.TrimSpace(stringField(rec.Fields, FieldWarehouse)),
		Category:  strings.TrimSpace(stringField(rec.Fields, FieldCategory)),
		Name:      name,
	}
	if ref.Warehouse == "" {
		ref.Warehouse = DefaultWarehouse
	}
	if ref.Category == "" {
		ref.Category = DefaultCategory
	}

	item := models.Item{
		Name:           name,
		Quantity:       intField(rec.Fields, FieldQuantity, 0),
		AlertThreshold: intField(rec.Fields, FieldThreshold, models.DefaultAlertThreshold),
		RemoteID:       rec.ID,
		LastModified:   RecordTimestamp(rec),
	}
	return ref, item.Normalize(), true
}

// DecodeRecords builds a collection from remote records.
// Records resolving to the same item (same remoteId, or same name in the same
// category) merge by update: the later record wins.
func DecodeRecords(records []remote.Record) models.Collection {
	out := models.Collection{}
	for _, rec := range records {
		ref, item, ok := DecodeRecord(rec)
		if !ok {
			continue
		}
		wh, ok := out[ref.Warehouse]
		if !ok {
			wh = models.Warehouse{}
			out[ref.Warehouse] = wh
		}
		cat := wh[ref.Category]
		if idx := cat.FindRemote(item.RemoteID); idx >= 0 {
			cat[idx] = item
		} else {
			cat = cat.Upsert(item)
		}
		wh[ref.Category] = cat
	}
	return out
}

// RecordTimestamp parses the record's last-modified column
func RecordTimestamp(rec remote.Record) *time.Time {
	return ParseTimestamp(stringField(rec.Fields, FieldLastModified))
}

// FormatTimestamp renders t with millisecond precision in UTC
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// ParseTimestamp accepts RFC 3339 timestamps and plain dates. Unparseable values yield nil.
func ParseTimestamp(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC().Truncate(time.Millisecond)
			return &t
		}
	}
	return nil
}

func stringField(fields remote.Fields, key string) string {
	switch v := fields[key].(type) {
	case string:
		return v
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

func intField(fields remote.Fields, key string, def int) int {
	switch v := fields[key].(type) {
	case float64:
		switch {
		case math.IsNaN(v):
			return def
		case v >= math.MaxInt:
			return math.MaxInt
		case v <= math.MinInt:
			return math.MinInt
		}
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
		if f, err := v.Float64(); err == nil {
			return int(f)
		}
	case string:
		// leading-integer parse, "12 pz" reads as 12
		s := strings.TrimSpace(v)
		end := 0
		for end < len(s) && (s[end] >= '0' && s[end] <= '9' || end == 0 && s[end] == '-') {
			end++
		}
		if n, err := strconv.Atoi(s[:end]); err == nil {
			return n
		}
	}
	return def
}
