package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/pleastandby/major-project-sub000/internal/observability"
	"github.com/pleastandby/major-project-sub000/internal/utils"
)

func reviewerApp(role interface{}) *fiber.App {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		if role != nil {
			c.Locals("user_role", role)
		}
		return c.Next()
	})
	app.Use(RequireRole(RoleInstructor, RoleAdmin))
	app.Post("/submissions/1/approve", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	return app
}

func TestRequireRole(t *testing.T) {
	cases := []struct {
		name   string
		role   interface{}
		status int
	}{
		{name: "instructor", role: "instructor", status: fiber.StatusOK},
		{name: "admin with padding", role: " Admin ", status: fiber.StatusOK},
		{name: "student", role: "student", status: fiber.StatusForbidden},
		{name: "missing role", role: nil, status: fiber.StatusForbidden},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/submissions/1/approve", nil)
			resp, err := reviewerApp(tc.role).Test(req)
			require.NoError(t, err)
			require.Equal(t, tc.status, resp.StatusCode)
		})
	}
}

func TestRequireRoleReportsForbiddenKind(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/submissions/1/approve", nil)
	resp, err := reviewerApp(RoleStudent).Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var payload struct {
		Success bool `json:"success"`
		Details struct {
			Kind      string `json:"kind"`
			Retryable bool   `json:"retryable"`
		} `json:"details"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	require.False(t, payload.Success)
	require.Equal(t, "forbidden", payload.Details.Kind)
	require.False(t, payload.Details.Retryable)
}

func TestRequireRoleCountsDenialsByRole(t *testing.T) {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user_role", RoleStudent)
		return c.Next()
	})
	app.Post("/review/:id/override", RequireRole(RoleInstructor), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	denied := observability.AccessDenied().WithLabelValues(RoleStudent, "/review/:id/override")
	before := counterValue(t, denied)

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/review/3/override", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	require.Equal(t, before+1, counterValue(t, denied))
}

func TestRequireRoleRecordsErrorKindLocal(t *testing.T) {
	app := fiber.New()
	var kind interface{}
	app.Use(func(c *fiber.Ctx) error {
		err := c.Next()
		kind = c.Locals(utils.LocalErrorKind)
		return err
	})
	app.Use(RequireRole(RoleAdmin))
	app.Get("/", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	require.Equal(t, "forbidden", kind)
}
