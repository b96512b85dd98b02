package models

import (
	"testing"
	"time"
)

func TestCategoryFindIsCaseInsensitive(t *testing.T) {
	cat := Category{{Name: "Pasta"}, {Name: "Riso"}}
	if idx := cat.Find("  pasta "); idx != 0 {
		t.Errorf("Find(pasta) = %d, want 0", idx)
	}
	if idx := cat.Find("olio"); idx != -1 {
		t.Errorf("Find(olio) = %d, want -1", idx)
	}
}

func TestCategoryUpsertMergesByName(t *testing.T) {
	cat := Category{{Name: "Pasta", Quantity: 1}}
	cat = cat.Upsert(Item{Name: "PASTA", Quantity: 9})
	if len(cat) != 1 {
		t.Fatalf("len = %d, want 1", len(cat))
	}
	if cat[0].Quantity != 9 {
		t.Errorf("Quantity = %d, want 9", cat[0].Quantity)
	}
}

func TestCollectionCloneIsDeep(t *testing.T) {
	orig := DefaultCollection()
	orig["Magazzino 1"]["cibo"][0].Touch(time.Unix(100, 0))

	cp := orig.Clone()
	cp["Magazzino 1"]["cibo"][0].Quantity = 99
	*cp["Magazzino 1"]["cibo"][0].LastModified = time.Unix(200, 0)

	if orig["Magazzino 1"]["cibo"][0].Quantity == 99 {
		t.Error("clone shares item storage with original")
	}
	if orig["Magazzino 1"]["cibo"][0].ModifiedAt().Unix() != 100 {
		t.Error("clone shares timestamp pointer with original")
	}
}

func TestLowStock(t *testing.T) {
	c := Collection{"W": Warehouse{"C": Category{
		{Name: "a", Quantity: 2, AlertThreshold: 2},
		{Name: "b", Quantity: 3, AlertThreshold: 2},
	}}}
	refs := c.LowStock()
	if len(refs) != 1 || refs[0].Name != "a" {
		t.Errorf("LowStock = %+v, want only a", refs)
	}
}

func TestNormalize(t *testing.T) {
	it := Item{Name: "  Sale ", Quantity: -3}.Normalize()
	if it.Name != "Sale" || it.Quantity != 0 || it.AlertThreshold != DefaultAlertThreshold {
		t.Errorf("Normalize = %+v", it)
	}
}
