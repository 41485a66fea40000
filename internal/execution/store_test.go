package execution

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	clierr "github.com/ggonzalez94/chedda-agent/internal/errors"
	"github.com/ggonzalez94/chedda-agent/internal/id"
)

func TestStoreSaveGetList(t *testing.T) {
	dir := t.TempDir()
	store, err := OpenStore(filepath.Join(dir, "actions.db"), filepath.Join(dir, "actions.lock"))
	if err != nil {
		t.Fatalf("OpenStore failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	network, _ := id.ParseNetwork("base-sepolia")
	action := NewAction(NewActionID(), "transfer", network)
	if err := action.Encode(common.HexToAddress("0x036CbD53842c5426634e7929541eC2318f3dCF7e"), []byte{0xa9, 0x05, 0x9c, 0xbb}, nil, "Transfer 1 USDC"); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if err := store.Save(action); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := store.Get(action.ActionID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Name != "transfer" || got.Status != ActionStatusEncoded {
		t.Fatalf("unexpected action: %+v", got)
	}
	if got.Data != "0xa9059cbb" || got.Value != "0" {
		t.Fatalf("unexpected journaled call: data=%s value=%s", got.Data, got.Value)
	}

	got.Fail("boom")
	if err := store.Save(got); err != nil {
		t.Fatalf("Save update failed: %v", err)
	}
	failed, err := store.List(ListFilter{Status: ActionStatusFailed, Limit: 10})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(failed) != 1 || failed[0].Error != "boom" {
		t.Fatalf("expected one failed action, got %+v", failed)
	}
	all, err := store.List(ListFilter{})
	if err != nil {
		t.Fatalf("List all failed: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected upsert to keep one row, got %d", len(all))
	}
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	store, err := OpenStore(filepath.Join(dir, "actions.db"), filepath.Join(dir, "actions.lock"))
	if err != nil {
		t.Fatalf("OpenStore failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStoreListFiltersAndTxHashLookup(t *testing.T) {
	store := openTestStore(t)
	sepolia, _ := id.ParseNetwork("base-sepolia")
	mainnet, _ := id.ParseNetwork("base")

	transfer := NewAction("act_1", "transfer", sepolia)
	transfer.TxHash = "0x" + strings.Repeat("AB", 32)
	supply := NewAction("act_2", "supply_to_vault", sepolia)
	other := NewAction("act_3", "transfer", mainnet)
	for _, a := range []Action{transfer, supply, other} {
		if err := store.Save(a); err != nil {
			t.Fatalf("Save %s failed: %v", a.ActionID, err)
		}
	}

	onSepolia, err := store.List(ListFilter{Network: "base-sepolia"})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(onSepolia) != 2 {
		t.Fatalf("expected 2 base-sepolia actions, got %d", len(onSepolia))
	}
	transfers, err := store.List(ListFilter{Name: "transfer", Network: "base-sepolia"})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(transfers) != 1 || transfers[0].ActionID != "act_1" {
		t.Fatalf("unexpected transfers: %+v", transfers)
	}

	got, err := store.ByTxHash("0x" + strings.Repeat("ab", 32))
	if err != nil {
		t.Fatalf("ByTxHash failed: %v", err)
	}
	if got.ActionID != "act_1" {
		t.Fatalf("expected act_1, got %s", got.ActionID)
	}
	if _, err := store.ByTxHash("0x" + strings.Repeat("cd", 32)); !clierr.IsCode(err, clierr.CodeUsage) {
		t.Fatalf("expected usage error for unknown tx hash, got %v", err)
	}
}

func TestStoreGetMissingAction(t *testing.T) {
	store := openTestStore(t)

	if _, err := store.Get("missing"); !clierr.IsCode(err, clierr.CodeUsage) {
		t.Fatalf("expected usage error for missing action, got %v", err)
	}
}
