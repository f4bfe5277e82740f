package order

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/wichananm65/pet-shop-fulfillment/internal/apperr"
	"github.com/wichananm65/pet-shop-fulfillment/internal/user"
)

// Profiles looks up the caller when the token carries no email claim.
type Profiles interface {
	GetByID(ctx context.Context, id int) (user.User, error)
}

// Handler delegates order operations to the order service.
type Handler struct {
	service  *Service
	profiles Profiles
}

func NewHandler(s *Service, profiles Profiles) *Handler {
	return &Handler{service: s, profiles: profiles}
}

func (h *Handler) RegisterProtectedRoutes(app *fiber.App) {
	app.Post("/api/v1/orders", h.createOrder)
	app.Get("/api/v1/orders", h.getOrders)
	app.Get("/api/v1/orders/:id", h.getOrder)

	app.Get("/api/v1/admin/orders", h.listOrders)
}

type createOrderRequest struct {
	PaymentMethod string `json:"paymentMethod"`
}

func writeError(c *fiber.Ctx, err error) error {
	return c.Status(apperr.Status(err)).JSON(fiber.Map{"message": err.Error(), "code": apperr.Code(err)})
}

func (h *Handler) createOrder(c *fiber.Ctx) error {
	payload := new(createOrderRequest)
	if err := c.BodyParser(payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": err.Error()})
	}
	userID, err := user.GetUserIDFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "unauthorized"})
	}

	email := user.GetEmailFromCtx(c)
	if email == "" && h.profiles != nil {
		if u, err := h.profiles.GetByID(c.UserContext(), userID); err == nil {
			email = u.Email
		}
	}

	ord, err := h.service.Convert(c.UserContext(), userID, email, payload.PaymentMethod)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(ord)
}

func (h *Handler) getOrders(c *fiber.Ctx) error {
	userID, err := user.GetUserIDFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "unauthorized"})
	}
	orders, err := h.service.ListByUser(c.UserContext(), userID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(orders)
}

func (h *Handler) getOrder(c *fiber.Ctx) error {
	userID, err := user.GetUserIDFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "unauthorized"})
	}
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "invalid order id"})
	}
	ord, err := h.service.Get(c.UserContext(), userID, id, user.IsAdmin(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(ord)
}

func (h *Handler) listOrders(c *fiber.Ctx) error {
	if !user.IsAdmin(c) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"message": "forbidden"})
	}
	orders, err := h.service.ListAll(c.UserContext())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(orders)
}
