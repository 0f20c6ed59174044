package http

import (
	"fmt"
	"regexp"
	"strings"

	"studio_server/core/service/project"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
)

// ProjectHandler serves the stored project history and brand-kit exports.
type ProjectHandler struct {
	projects *project.Service
}

func NewProjectHandler(projects *project.Service) *ProjectHandler {
	return &ProjectHandler{projects: projects}
}

func (h *ProjectHandler) Register(app fiber.Router) {
	app.Get("/projects", h.List)
	app.Get("/projects/:id", h.Get)
	app.Get("/projects/:id/export", h.Export)
}

// RegisterPublic registers the landing-page counter.
func (h *ProjectHandler) RegisterPublic(app fiber.Router) {
	app.Get("/stats", h.Stats)
}

// List returns the caller's projects, newest first.
func (h *ProjectHandler) List(c *fiber.Ctx) error {
	user, err := GetUser(c)
	if err != nil {
		return ErrorResponse(c, 401, "unauthorized")
	}

	projects, err := h.projects.List(c.UserContext(), user.ID, c.QueryInt("limit", 0))
	if err != nil {
		return AppErrorResponse(c, err)
	}
	return SuccessResponse(c, fiber.Map{
		"projects": projects,
		"total":    len(projects),
	})
}

func (h *ProjectHandler) Get(c *fiber.Ctx) error {
	user, err := GetUser(c)
	if err != nil {
		return ErrorResponse(c, 401, "unauthorized")
	}

	p, err := h.projects.Get(c.UserContext(), user.ID, c.Params("id"))
	if err != nil {
		return AppErrorResponse(c, err)
	}
	return SuccessResponse(c, p)
}

var unsafeFilename = regexp.MustCompile(`[^a-z0-9]+`)

// Export streams the brand kit as a downloadable JSON document.
func (h *ProjectHandler) Export(c *fiber.Ctx) error {
	user, err := GetUser(c)
	if err != nil {
		return ErrorResponse(c, 401, "unauthorized")
	}

	kit, err := h.projects.Export(c.UserContext(), user.ID, c.Params("id"))
	if err != nil {
		return AppErrorResponse(c, err)
	}

	body, err := json.MarshalIndent(kit, "", "  ")
	if err != nil {
		return AppErrorResponse(c, err)
	}

	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSONCharsetUTF8)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, exportFilename(kit.Branding.CompanyName)))
	return c.Send(body)
}

// exportFilename builds "<company>-brand-kit.json", falling back to "brand-kit.json".
func exportFilename(company string) string {
	slug := strings.Trim(unsafeFilename.ReplaceAllString(strings.ToLower(company), "-"), "-")
	if slug == "" {
		return "brand-kit.json"
	}
	return slug + "-brand-kit.json"
}

func (h *ProjectHandler) Stats(c *fiber.Ctx) error {
	return SuccessResponse(c, h.projects.Stats(c.UserContext()))
}
