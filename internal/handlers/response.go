package handlers

import "github.com/gofiber/fiber/v2"

// Every endpoint answers with the same envelope: a status of "success"
// or "fail", a human-readable message, and an optional data payload.

func success(c *fiber.Ctx, statusCode int, message string, data interface{}) error {
	body := fiber.Map{
		"status":  "success",
		"message": message,
	}
	if data != nil {
		body["data"] = data
	}
	return c.Status(statusCode).JSON(body)
}

func fail(c *fiber.Ctx, statusCode int, message string) error {
	return c.Status(statusCode).JSON(fiber.Map{
		"status":  "fail",
		"message": message,
	})
}

func currentUser(c *fiber.Ctx) (userID, role string, ok bool) {
	userID, _ = c.Locals("user_id").(string)
	role, _ = c.Locals("role").(string)
	return userID, role, userID != "" && role != ""
}
