package controllers

import (
	"net/http"
	"testing"

	"github.com/google/uuid"
)

func TestWishlistAddIsIdempotent(t *testing.T) {
	f := newShopperFixture(t, uuid.New())
	logg := testLogger()

	resp := serve(AddWishlistItem(logg), f.request(t, http.MethodPost, "/wishlist/items", map[string]string{"productId": "tee"}, nil))
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	resp = serve(AddWishlistItem(logg), f.request(t, http.MethodPost, "/wishlist/items", map[string]string{"productId": "tee"}, nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for a duplicate got %d", resp.Code)
	}
	var body struct {
		Changed  bool `json:"changed"`
		Wishlist struct {
			Count int `json:"count"`
		} `json:"wishlist"`
	}
	decodeData(t, resp, &body)
	if body.Changed || body.Wishlist.Count != 1 {
		t.Fatalf("unexpected duplicate add %+v", body)
	}

	resp = serve(AddWishlistItem(logg), f.request(t, http.MethodPost, "/wishlist/items", map[string]string{"productId": "ghost"}, nil))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for an unknown product got %d", resp.Code)
	}
}

func TestMoveWishlistItemToCart(t *testing.T) {
	f := newShopperFixture(t, uuid.New())
	logg := testLogger()
	serve(AddWishlistItem(logg), f.request(t, http.MethodPost, "/wishlist/items", map[string]string{"productId": "tee"}, nil))
	serve(AddWishlistItem(logg), f.request(t, http.MethodPost, "/wishlist/items", map[string]string{"productId": "sold"}, nil))

	params := map[string]string{"productId": "tee"}
	resp := serve(MoveWishlistItemToCart(logg), f.request(t, http.MethodPost, "/wishlist/items/tee/move-to-cart", map[string]any{"variant": map[string]string{"size": "L"}}, params))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 moving got %d: %s", resp.Code, resp.Body.String())
	}
	items := f.session.Cart.Items()
	if len(items) != 1 || items[0].Variant.Size != "L" {
		t.Fatalf("expected tee in size L in the cart, got %+v", items)
	}
	if f.session.Wishlist.Contains("tee") {
		t.Fatal("expected tee dropped from the wishlist")
	}

	params["productId"] = "sold"
	resp = serve(MoveWishlistItemToCart(logg), f.request(t, http.MethodPost, "/wishlist/items/sold/move-to-cart", nil, params))
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 for an out of stock move got %d", resp.Code)
	}
	if !f.session.Wishlist.Contains("sold") {
		t.Fatal("expected a rejected move to keep the wishlist item")
	}

	resp = serve(RemoveWishlistItem(logg), f.request(t, http.MethodDelete, "/wishlist/items/sold", nil, params))
	if resp.Code != http.StatusOK || f.session.Wishlist.Contains("sold") {
		t.Fatalf("expected removal, status %d", resp.Code)
	}
}
