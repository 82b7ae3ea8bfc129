package storage

import "testing"

func seedAssetFixture(t *testing.T, store *Storage) (walletID, tokenID int64) {
	t.Helper()
	seedChain(t, store, "ethereum")

	w, err := store.GetOrCreateWallet("0xaaa0000000000000000000000000000000000001", "ethereum")
	if err != nil {
		t.Fatalf("GetOrCreateWallet() error = %v", err)
	}
	tok, err := store.InsertToken(&Token{
		Symbol: "ETH", Name: "Ethereum", Blockchain: "ethereum", Decimals: 18,
	})
	if err != nil {
		t.Fatalf("InsertToken() error = %v", err)
	}
	return w.ID, tok.ID
}

func TestAssetAddDeleteReaddCycle(t *testing.T) {
	store := newTestStore(t)
	walletID, tokenID := seedAssetFixture(t, store)

	// First add creates.
	a1, status, err := store.CreateAsset(walletID, tokenID, "")
	if err != nil {
		t.Fatalf("CreateAsset() error = %v", err)
	}
	if status != AssetCreated {
		t.Errorf("status = %s, want %s", status, AssetCreated)
	}

	// Duplicate add returns existing.
	a2, status, err := store.CreateAsset(walletID, tokenID, "")
	if err != nil {
		t.Fatalf("duplicate CreateAsset() error = %v", err)
	}
	if status != AssetExisting {
		t.Errorf("status = %s, want %s", status, AssetExisting)
	}
	if a1.ID != a2.ID {
		t.Errorf("duplicate add returned different asset: %s vs %s", a1.ID, a2.ID)
	}

	// Soft delete.
	if err := store.SoftDeleteAsset(a1.ID); err != nil {
		t.Fatalf("SoftDeleteAsset() error = %v", err)
	}

	// Re-add reactivates the same row.
	a3, status, err := store.CreateAsset(walletID, tokenID, "defi")
	if err != nil {
		t.Fatalf("re-add CreateAsset() error = %v", err)
	}
	if status != AssetReactivated {
		t.Errorf("status = %s, want %s", status, AssetReactivated)
	}
	if a3.ID != a1.ID {
		t.Errorf("reactivation created a new row: %s vs %s", a3.ID, a1.ID)
	}
	if a3.Tag != "defi" {
		t.Errorf("Tag = %s, want defi", a3.Tag)
	}

	// Exactly one active asset for the pair.
	rows, err := store.ListAssetRows(nil)
	if err != nil {
		t.Fatalf("ListAssetRows() error = %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("active assets = %d, want 1", len(rows))
	}
}

func TestSoftDeleteKeepsHistory(t *testing.T) {
	store := newTestStore(t)
	walletID, tokenID := seedAssetFixture(t, store)

	a, _, err := store.CreateAsset(walletID, tokenID, "")
	if err != nil {
		t.Fatalf("CreateAsset() error = %v", err)
	}

	if err := store.UpsertBalancePoint(a.ID, 1700000400, 1.5); err != nil {
		t.Fatalf("UpsertBalancePoint() error = %v", err)
	}
	if err := store.SoftDeleteAsset(a.ID); err != nil {
		t.Fatalf("SoftDeleteAsset() error = %v", err)
	}

	point, err := store.LatestBalancePoint(a.ID)
	if err != nil {
		t.Fatalf("LatestBalancePoint() after delete error = %v", err)
	}
	if point.Balance != 1.5 {
		t.Errorf("Balance = %v, want 1.5", point.Balance)
	}
}

func TestListAssetRowsFilters(t *testing.T) {
	store := newTestStore(t)
	seedChain(t, store, "ethereum")
	seedChain(t, store, "solana")

	ethWallet, _ := store.GetOrCreateWallet("0xaaa0000000000000000000000000000000000001", "ethereum")
	solWallet, _ := store.GetOrCreateWallet("So11111111111111111111111111111111111111112", "solana")
	ethTok, _ := store.InsertToken(&Token{Symbol: "ETH", Name: "Ethereum", Blockchain: "ethereum", Decimals: 18})
	solTok, _ := store.InsertToken(&Token{Symbol: "SOL", Name: "Solana", Blockchain: "solana", Decimals: 9})

	store.CreateAsset(ethWallet.ID, ethTok.ID, "main")
	store.CreateAsset(solWallet.ID, solTok.ID, "alt")

	all, _ := store.ListAssetRows(nil)
	if len(all) != 2 {
		t.Fatalf("all = %d, want 2", len(all))
	}

	ethOnly, _ := store.ListAssetRows(&AssetFilter{Blockchain: "ethereum"})
	if len(ethOnly) != 1 || ethOnly[0].Symbol != "ETH" {
		t.Errorf("ethereum filter returned %d rows", len(ethOnly))
	}

	tagged, _ := store.ListAssetRows(&AssetFilter{Tag: "alt"})
	if len(tagged) != 1 || tagged[0].Symbol != "SOL" {
		t.Errorf("tag filter returned %d rows", len(tagged))
	}
}

func TestUpdateAssetTag(t *testing.T) {
	store := newTestStore(t)
	walletID, tokenID := seedAssetFixture(t, store)

	a, _, _ := store.CreateAsset(walletID, tokenID, "")
	if err := store.UpdateAssetTag(a.ID, "cold"); err != nil {
		t.Fatalf("UpdateAssetTag() error = %v", err)
	}

	got, _ := store.GetAsset(a.ID)
	if got.Tag != "cold" {
		t.Errorf("Tag = %s, want cold", got.Tag)
	}

	if err := store.UpdateAssetTag("missing-id", "x"); err != ErrNotFound {
		t.Errorf("UpdateAssetTag(missing) error = %v, want ErrNotFound", err)
	}
}
