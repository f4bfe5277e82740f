package cart

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/wichananm65/pet-shop-fulfillment/internal/apperr"
	"github.com/wichananm65/pet-shop-fulfillment/internal/user"
)

// Handler exposes the cart manager to the HTTP layer.
type Handler struct {
	service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{service: s}
}

func (h *Handler) RegisterProtectedRoutes(app *fiber.App) {
	app.Get("/api/v1/cart", h.getCart)
	app.Post("/api/v1/cart/items", h.addItem)
	app.Delete("/api/v1/cart/items/:productId<[0-9]+>", h.removeItem)
	app.Delete("/api/v1/cart", h.clearCart)
	app.Post("/api/v1/cart/disable", h.disableCart)

	app.Get("/api/v1/admin/carts", h.listCarts)
	app.Get("/api/v1/admin/carts/email/:email", h.getCartByEmail)
}

type addItemRequest struct {
	ProductID int `json:"productID"`
	Amount    int `json:"amount"`
}

func writeError(c *fiber.Ctx, err error) error {
	return c.Status(apperr.Status(err)).JSON(fiber.Map{"message": err.Error(), "code": apperr.Code(err)})
}

func (h *Handler) addItem(c *fiber.Ctx) error {
	payload := new(addItemRequest)
	if err := c.BodyParser(payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": err.Error()})
	}
	userID, err := user.GetUserIDFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "unauthorized"})
	}

	cart, err := h.service.AddItem(c.UserContext(), userID, payload.ProductID, payload.Amount, user.GetEmailFromCtx(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(cart)
}

func (h *Handler) removeItem(c *fiber.Ctx) error {
	userID, err := user.GetUserIDFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "unauthorized"})
	}
	productID, err := strconv.Atoi(c.Params("productId"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "invalid productId"})
	}

	// no amount means the whole line
	var cart Cart
	if raw := c.Query("amount"); raw != "" {
		amount, err := strconv.Atoi(raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "invalid amount"})
		}
		cart, err = h.service.RemoveItem(c.UserContext(), userID, productID, amount)
		if err != nil {
			return writeError(c, err)
		}
	} else {
		cart, err = h.service.RemoveLine(c.UserContext(), userID, productID)
		if err != nil {
			return writeError(c, err)
		}
	}
	return c.JSON(cart)
}

func (h *Handler) clearCart(c *fiber.Ctx) error {
	userID, err := user.GetUserIDFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "unauthorized"})
	}
	cart, err := h.service.Clear(c.UserContext(), userID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(cart)
}

func (h *Handler) disableCart(c *fiber.Ctx) error {
	userID, err := user.GetUserIDFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "unauthorized"})
	}
	cart, err := h.service.Disable(c.UserContext(), userID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(cart)
}

func (h *Handler) getCart(c *fiber.Ctx) error {
	userID, err := user.GetUserIDFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "unauthorized"})
	}

	view, err := h.service.GetByUser(c.UserContext(), userID)
	if err != nil {
		return writeError(c, err)
	}
	if view == nil {
		return writeError(c, apperr.New(apperr.ErrNoActiveCart, "user", userID))
	}
	return c.JSON(view)
}

func (h *Handler) listCarts(c *fiber.Ctx) error {
	if !user.IsAdmin(c) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"message": "forbidden"})
	}
	views, err := h.service.ListAll(c.UserContext())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(views)
}

func (h *Handler) getCartByEmail(c *fiber.Ctx) error {
	if !user.IsAdmin(c) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"message": "forbidden"})
	}
	view, err := h.service.GetByEmail(c.UserContext(), c.Params("email"))
	if err != nil {
		return writeError(c, err)
	}
	if view == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"message": "no active cart", "code": apperr.Code(apperr.ErrNoActiveCart)})
	}
	return c.JSON(view)
}
