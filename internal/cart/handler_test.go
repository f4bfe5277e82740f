package cart

import (
	"io"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
)

func makeAppWithCartHandler(cHandler *Handler) *fiber.App {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		if v := c.Get("X-User-ID"); v != "" {
			id, err := strconv.Atoi(v)
			if err == nil {
				claims := jwt.MapClaims{"user_id": id, "email": "u" + v + "@example.com", "role": c.Get("X-Role")}
				tok := &jwt.Token{Claims: claims}
				c.Locals("user", tok)
			}
		}
		return c.Next()
	})
	cHandler.RegisterProtectedRoutes(app)
	return app
}

func doRequest(t *testing.T, app *fiber.App, method, path, body, userID string) (int, string) {
	t.Helper()
	var req = httptest.NewRequest(method, path, nil)
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	res, err := app.Test(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	b, _ := io.ReadAll(res.Body)
	return res.StatusCode, string(b)
}

func TestCartRoutes_Basic(t *testing.T) {
	f := newFixture()
	app := makeAppWithCartHandler(NewHandler(f.svc))

	routes := map[string]bool{}
	for _, grp := range app.Stack() {
		for _, r := range grp {
			routes[r.Path] = true
		}
	}
	for _, p := range []string{"/api/v1/cart", "/api/v1/cart/items", "/api/v1/cart/items/:productId<[0-9]+>", "/api/v1/cart/disable"} {
		if !routes[p] {
			t.Fatalf("expected route %q to be registered", p)
		}
	}

	// unauthorized access should be blocked
	if code, _ := doRequest(t, app, "GET", "/api/v1/cart", "", ""); code != fiber.StatusUnauthorized {
		t.Fatalf("expected 401 for unauthenticated GET, got %d", code)
	}
	if code, _ := doRequest(t, app, "POST", "/api/v1/cart/items", `{"productID":2,"amount":1}`, ""); code != fiber.StatusUnauthorized {
		t.Fatalf("expected 401 for unauthenticated POST, got %d", code)
	}

	// no cart yet
	if code, body := doRequest(t, app, "GET", "/api/v1/cart", "", "1"); code != fiber.StatusConflict || !strings.Contains(body, "no_active_cart") {
		t.Fatalf("expected 409 no_active_cart, got %d %s", code, body)
	}

	code, body := doRequest(t, app, "POST", "/api/v1/cart/items", `{"productID":2,"amount":2}`, "1")
	if code != fiber.StatusOK {
		t.Fatalf("expected 200 for adding to cart, got %d %s", code, body)
	}
	if !strings.Contains(body, `"amount":2`) || !strings.Contains(body, `"email":"u1@example.com"`) {
		t.Fatalf("unexpected add response: %s", body)
	}

	code, body = doRequest(t, app, "POST", "/api/v1/cart/items", `{"productID":1,"amount":6}`, "1")
	if code != fiber.StatusUnprocessableEntity || !strings.Contains(body, "insufficient_stock") {
		t.Fatalf("expected 422 insufficient_stock, got %d %s", code, body)
	}

	code, body = doRequest(t, app, "DELETE", "/api/v1/cart/items/2?amount=3", "", "1")
	if code != fiber.StatusUnprocessableEntity || !strings.Contains(body, "excess_removal") {
		t.Fatalf("expected 422 excess_removal, got %d %s", code, body)
	}

	code, body = doRequest(t, app, "DELETE", "/api/v1/cart/items/2?amount=1", "", "1")
	if code != fiber.StatusOK || !strings.Contains(body, `"amount":1`) {
		t.Fatalf("expected amount 1 after partial removal, got %d %s", code, body)
	}

	code, body = doRequest(t, app, "GET", "/api/v1/cart", "", "1")
	if code != fiber.StatusOK || !strings.Contains(body, "livePrice") {
		t.Fatalf("expected cart view, got %d %s", code, body)
	}

	code, body = doRequest(t, app, "DELETE", "/api/v1/cart/items/2", "", "1")
	if code != fiber.StatusOK || strings.Contains(body, `"productID":2`) {
		t.Fatalf("expected line removed, got %d %s", code, body)
	}

	if code, _ := doRequest(t, app, "DELETE", "/api/v1/cart", "", "1"); code != fiber.StatusOK {
		t.Fatalf("expected 200 for clear, got %d", code)
	}
	if code, _ := doRequest(t, app, "POST", "/api/v1/cart/disable", "", "1"); code != fiber.StatusOK {
		t.Fatalf("expected 200 for disable, got %d", code)
	}
	if code, _ := doRequest(t, app, "POST", "/api/v1/cart/disable", "", "1"); code != fiber.StatusConflict {
		t.Fatalf("expected 409 for second disable, got %d", code)
	}
}

func TestCartAdminRoutes(t *testing.T) {
	f := newFixture()
	app := makeAppWithCartHandler(NewHandler(f.svc))

	if code, _ := doRequest(t, app, "POST", "/api/v1/cart/items", `{"productID":2,"amount":1}`, "2"); code != fiber.StatusOK {
		t.Fatalf("expected 200 for add, got %d", code)
	}
	if code, _ := doRequest(t, app, "GET", "/api/v1/admin/carts", "", "2"); code != fiber.StatusForbidden {
		t.Fatalf("expected 403 for non-admin, got %d", code)
	}

	req := httptest.NewRequest("GET", "/api/v1/admin/carts/email/u2@example.com", nil)
	req.Header.Set("X-User-ID", "99")
	req.Header.Set("X-Role", "admin")
	res, _ := app.Test(req)
	if res.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200 for admin lookup, got %d", res.StatusCode)
	}
	b, _ := io.ReadAll(res.Body)
	if !strings.Contains(string(b), `"userID":2`) {
		t.Fatalf("unexpected admin lookup body: %s", string(b))
	}

	req = httptest.NewRequest("GET", "/api/v1/admin/carts/email/u1@example.com", nil)
	req.Header.Set("X-User-ID", "99")
	req.Header.Set("X-Role", "admin")
	res, _ = app.Test(req)
	if res.StatusCode != fiber.StatusNotFound {
		t.Fatalf("expected 404 for user without cart, got %d", res.StatusCode)
	}

	req = httptest.NewRequest("GET", "/api/v1/admin/carts", nil)
	req.Header.Set("X-User-ID", "99")
	req.Header.Set("X-Role", "admin")
	res, _ = app.Test(req)
	if res.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200 for admin list, got %d", res.StatusCode)
	}
}
