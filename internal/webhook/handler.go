package webhook

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
)

type createSubscriptionRequest struct {
	EventType string `json:"event_type"`
	URL       string `json:"url"`
	Secret    string `json:"secret"`
}

// POST /api/admin/webhooks
func CreateSubscriptionHandler(r *Registry) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body createSubscriptionRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		sub, err := r.Create(c.UserContext(), body.EventType, body.URL, body.Secret)
		if errors.Is(err, ErrInvalidEvent) || errors.Is(err, ErrInvalidURL) {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(sub)
	}
}

// GET /api/admin/webhooks
func ListSubscriptionsHandler(r *Registry) fiber.Handler {
	return func(c *fiber.Ctx) error {
		subs, err := r.List(c.UserContext())
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "could not list webhooks")
		}
		return c.JSON(subs)
	}
}

// DELETE /api/admin/webhooks/:id
func DeleteSubscriptionHandler(r *Registry) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := strconv.ParseUint(c.Params("id"), 10, 64)
		if err != nil || id == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "invalid webhook id")
		}
		if err := r.Delete(c.UserContext(), uint(id)); errors.Is(err, ErrNotFound) {
			return fiber.NewError(fiber.StatusNotFound, err.Error())
		} else if err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}
