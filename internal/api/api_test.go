package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/joernpreuss/SAVT/internal/config"
	"github.com/joernpreuss/SAVT/internal/engine"
	"github.com/joernpreuss/SAVT/internal/query"
	"github.com/joernpreuss/SAVT/internal/storage/sqlite"
)

func setupTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	store, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	eng := engine.New(store, engine.Config{})
	handler := New(eng, query.New(store), config.Terminology{
		ItemSingular: "pizza", ItemPlural: "pizzas",
		FeatureSingular: "topping", FeaturePlural: "toppings",
	})

	server := httptest.NewServer(handler.Routes())
	t.Cleanup(server.Close)
	return server
}

func doJSON(t *testing.T, method, url string, body any, out any) int {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, url, err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
	}
	return resp.StatusCode
}

func createItem(t *testing.T, server *httptest.Server, name string) string {
	t.Helper()
	var resp struct {
		ID string `json:"id"`
	}
	status := doJSON(t, http.MethodPost, server.URL+"/api/v1/items",
		map[string]string{"name": name}, &resp)
	if status != http.StatusCreated {
		t.Fatalf("create item %q: status %d", name, status)
	}
	return resp.ID
}

func createFeature(t *testing.T, server *httptest.Server, name, itemID string) string {
	t.Helper()
	var resp struct {
		ID string `json:"id"`
	}
	status := doJSON(t, http.MethodPost, server.URL+"/api/v1/features",
		map[string]string{"name": name, "item_id": itemID}, &resp)
	if status != http.StatusCreated {
		t.Fatalf("create feature %q: status %d", name, status)
	}
	return resp.ID
}

func TestItemLifecycle(t *testing.T) {
	server := setupTestServer(t)

	itemID := createItem(t, server, "Pizza")
	featureID := createFeature(t, server, "Mushrooms", itemID)

	var item struct {
		Name     string `json:"name"`
		Features []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"features"`
	}
	status := doJSON(t, http.MethodGet, server.URL+"/api/v1/items/"+itemID, nil, &item)
	if status != http.StatusOK {
		t.Fatalf("get item: status %d", status)
	}
	if item.Name != "Pizza" || len(item.Features) != 1 || item.Features[0].ID != featureID {
		t.Errorf("item = %+v, want Pizza with Mushrooms", item)
	}

	status = doJSON(t, http.MethodDelete, server.URL+"/api/v1/items/"+itemID+"?user=alice", nil, nil)
	if status != http.StatusNoContent {
		t.Fatalf("remove item: status %d", status)
	}

	var restored struct {
		Removed bool `json:"removed"`
	}
	status = doJSON(t, http.MethodPost, server.URL+"/api/v1/items/"+itemID+"/restore", nil, &restored)
	if status != http.StatusOK || restored.Removed {
		t.Errorf("restore item: status %d removed %v, want 200 and live", status, restored.Removed)
	}
}

func TestDuplicateVsInvalidName(t *testing.T) {
	server := setupTestServer(t)
	createItem(t, server, "Pizza")

	// A duplicate is a 409 with the already_exists code and terminology in
	// the message.
	var dup struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	status := doJSON(t, http.MethodPost, server.URL+"/api/v1/items",
		map[string]string{"name": "pizza"}, &dup)
	if status != http.StatusConflict || dup.Error != "already_exists" {
		t.Errorf("duplicate: status %d error %q, want 409 already_exists", status, dup.Error)
	}
	if dup.Message != "a pizza with that name already exists" {
		t.Errorf("duplicate message = %q, want terminology label", dup.Message)
	}

	// An invalid name is a 400 with a different code, never collapsed into
	// the duplicate case.
	var bad struct {
		Error string `json:"error"`
	}
	status = doJSON(t, http.MethodPost, server.URL+"/api/v1/items",
		map[string]string{"name": "   "}, &bad)
	if status != http.StatusBadRequest || bad.Error != "invalid_name" {
		t.Errorf("invalid name: status %d error %q, want 400 invalid_name", status, bad.Error)
	}
}

func TestVetoRoutes(t *testing.T) {
	server := setupTestServer(t)

	itemID := createItem(t, server, "Pizza")
	featureID := createFeature(t, server, "Pineapple", itemID)
	vetoURL := fmt.Sprintf("%s/api/v1/users/alice/features/%s/veto", server.URL, featureID)

	var feature struct {
		VetoedBy []string `json:"vetoed_by"`
		Vetoed   bool     `json:"vetoed"`
	}
	status := doJSON(t, http.MethodPost, vetoURL, nil, &feature)
	if status != http.StatusOK {
		t.Fatalf("veto: status %d", status)
	}
	if !feature.Vetoed || len(feature.VetoedBy) != 1 || feature.VetoedBy[0] != "alice" {
		t.Errorf("after veto: %+v, want vetoed by alice", feature)
	}

	status = doJSON(t, http.MethodDelete, vetoURL, nil, &feature)
	if status != http.StatusOK {
		t.Fatalf("unveto: status %d", status)
	}
	if feature.Vetoed || len(feature.VetoedBy) != 0 {
		t.Errorf("after unveto: %+v, want empty veto set", feature)
	}

	status = doJSON(t, http.MethodPost, server.URL+"/api/v1/users/alice/features/missing/veto", nil, nil)
	if status != http.StatusNotFound {
		t.Errorf("veto on missing feature: status %d, want 404", status)
	}
}

func TestStandaloneFeatures(t *testing.T) {
	server := setupTestServer(t)

	createFeature(t, server, "Cheese", "")
	itemID := createItem(t, server, "Pizza")
	createFeature(t, server, "Cheese", itemID) // different scope, allowed

	var list struct {
		Features []struct {
			Name   string `json:"name"`
			ItemID string `json:"item_id"`
		} `json:"features"`
	}
	status := doJSON(t, http.MethodGet, server.URL+"/api/v1/features", nil, &list)
	if status != http.StatusOK {
		t.Fatalf("list features: status %d", status)
	}
	if len(list.Features) != 1 || list.Features[0].Name != "Cheese" || list.Features[0].ItemID != "" {
		t.Errorf("standalone features = %+v, want one unowned Cheese", list.Features)
	}
}

func TestMergeAndSplitRoutes(t *testing.T) {
	server := setupTestServer(t)

	a := createItem(t, server, "Pizza A")
	b := createItem(t, server, "Pizza B")
	createFeature(t, server, "Cheese", a)
	olives := createFeature(t, server, "Olives", b)

	var merged struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	status := doJSON(t, http.MethodPost, server.URL+"/api/v1/items/merge",
		map[string]string{"item_a": a, "item_b": b, "name": "Super Pizza"}, &merged)
	if status != http.StatusOK || merged.Name != "Super Pizza" {
		t.Fatalf("merge: status %d name %q", status, merged.Name)
	}

	var split struct {
		ID string `json:"id"`
	}
	status = doJSON(t, http.MethodPost, server.URL+"/api/v1/items/"+merged.ID+"/split",
		map[string]any{"feature_ids": []string{olives}, "name": "Side"}, &split)
	if status != http.StatusCreated {
		t.Fatalf("split: status %d", status)
	}

	var side struct {
		Features []struct {
			ID string `json:"id"`
		} `json:"features"`
	}
	status = doJSON(t, http.MethodGet, server.URL+"/api/v1/items/"+split.ID, nil, &side)
	if status != http.StatusOK || len(side.Features) != 1 || side.Features[0].ID != olives {
		t.Errorf("split item = %+v, want only Olives", side)
	}
}

func TestEventsRoute(t *testing.T) {
	server := setupTestServer(t)

	itemID := createItem(t, server, "Pizza")
	var events struct {
		Events []struct {
			Operation string `json:"operation"`
		} `json:"events"`
	}
	status := doJSON(t, http.MethodGet, server.URL+"/api/v1/events/"+itemID, nil, &events)
	if status != http.StatusOK {
		t.Fatalf("list events: status %d", status)
	}
	if len(events.Events) != 1 || events.Events[0].Operation != "create_item" {
		t.Errorf("events = %+v, want one create_item", events.Events)
	}
}

func TestInvalidBody(t *testing.T) {
	server := setupTestServer(t)

	resp, err := http.Post(server.URL+"/api/v1/items", "application/json",
		bytes.NewBufferString("{not json"))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid body: status %d, want 400", resp.StatusCode)
	}
}
