package http

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"studio_server/adapter/out/realtime"
	"studio_server/core/domain"
	"studio_server/core/service/studio"
	"studio_server/pkg/apperr"
	"studio_server/pkg/imageutil"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/rs/zerolog"
)

// =============================================================================
// Studio Handler
// =============================================================================

// StudioHandler exposes the studio session: submit, reset, load and the event stream.
type StudioHandler struct {
	studio *studio.Service
	hub    *realtime.SSEHub
	log    zerolog.Logger

	// analysisTimeout bounds how long Submit waits for the analysis outcome.
	analysisTimeout time.Duration
}

func NewStudioHandler(svc *studio.Service, hub *realtime.SSEHub, analysisTimeout time.Duration, log zerolog.Logger) *StudioHandler {
	if analysisTimeout <= 0 {
		analysisTimeout = 2 * time.Minute
	}
	return &StudioHandler{
		studio:          svc,
		hub:             hub,
		log:             log.With().Str("handler", "studio").Logger(),
		analysisTimeout: analysisTimeout,
	}
}

func (h *StudioHandler) Register(app fiber.Router) {
	g := app.Group("/studio")
	g.Get("/state", h.State)
	g.Post("/submit", h.Submit)
	g.Post("/reset", h.Reset)
	g.Post("/load/:id", h.Load)
	g.Get("/events", h.Stream)
	g.Get("/events/status", h.Status)
}

// RegisterPublic registers routes that need no authentication.
func (h *StudioHandler) RegisterPublic(app fiber.Router) {
	app.Get("/studio/categories", h.Categories)
}

func (h *StudioHandler) Categories(c *fiber.Ctx) error {
	return SuccessResponse(c, fiber.Map{"categories": domain.LogoCategories})
}

func (h *StudioHandler) State(c *fiber.Ctx) error {
	user, err := GetUser(c)
	if err != nil {
		return ErrorResponse(c, 401, "unauthorized")
	}
	return SuccessResponse(c, h.studio.State(user.ID))
}

// submitRequest is the JSON variant of Submit; Image is a data URI or bare base64.
type submitRequest struct {
	Image       string `json:"image"`
	Category    string `json:"category"`
	CompanyName string `json:"companyName"`
}

// Submit starts a run and answers once the analysis phase is over. Asset generation keeps
// going in the background and is observed through /events or /state.
func (h *StudioHandler) Submit(c *fiber.Ctx) error {
	user, err := GetUser(c)
	if err != nil {
		return ErrorResponse(c, 401, "unauthorized")
	}

	in, err := parseSubmit(c)
	if err != nil {
		return AppErrorResponse(c, err)
	}

	run, err := h.studio.Submit(c.UserContext(), user, in)
	if err != nil {
		if errors.Is(err, domain.ErrSessionBusy) {
			return AppErrorResponse(c, apperr.SessionBusy(string(h.studio.State(user.ID).Status)))
		}
		return AppErrorResponse(c, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.analysisTimeout)
	defer cancel()

	projectID, err := run.Analyzed(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			// Analysis is still running; the client follows it on the stream.
			return SuccessResponse(c.Status(fiber.StatusAccepted), fiber.Map{
				"runId": run.ID(),
				"state": h.studio.State(user.ID),
			})
		}
		return AppErrorResponse(c, err)
	}

	h.log.Info().
		Str("user_id", user.ID).
		Str("run_id", run.ID()).
		Str("project_id", projectID).
		Msg("studio analysis completed")

	return SuccessResponse(c, fiber.Map{
		"runId":     run.ID(),
		"projectId": projectID,
		"state":     h.studio.State(user.ID),
	})
}

// parseSubmit copies every string it keeps: the run goroutine holds them after the
// request buffer is recycled.
func parseSubmit(c *fiber.Ctx) (studio.SubmitInput, error) {
	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		fh, err := c.FormFile("logo")
		if err != nil {
			return studio.SubmitInput{}, apperr.MissingField("logo")
		}
		f, err := fh.Open()
		if err != nil {
			return studio.SubmitInput{}, apperr.InvalidInput("logo", "unreadable upload")
		}
		defer f.Close()

		data, err := io.ReadAll(f)
		if err != nil {
			return studio.SubmitInput{}, apperr.InvalidInput("logo", "unreadable upload")
		}
		return studio.SubmitInput{
			Image:       data,
			Category:    utils.CopyString(strings.TrimSpace(c.FormValue("category"))),
			CompanyName: utils.CopyString(strings.TrimSpace(c.FormValue("companyName"))),
		}, nil
	}

	var req submitRequest
	if err := c.BodyParser(&req); err != nil {
		return studio.SubmitInput{}, apperr.BadRequest("invalid request body")
	}
	if req.Image == "" {
		return studio.SubmitInput{}, apperr.MissingField("image")
	}
	data, _, err := imageutil.ParseDataURI(req.Image)
	if err != nil {
		return studio.SubmitInput{}, apperr.InvalidInput("image", err.Error())
	}
	return studio.SubmitInput{
		Image:       data,
		Category:    utils.CopyString(strings.TrimSpace(req.Category)),
		CompanyName: utils.CopyString(strings.TrimSpace(req.CompanyName)),
	}, nil
}

func (h *StudioHandler) Reset(c *fiber.Ctx) error {
	user, err := GetUser(c)
	if err != nil {
		return ErrorResponse(c, 401, "unauthorized")
	}
	return SuccessResponse(c, h.studio.Reset(user.ID))
}

func (h *StudioHandler) Load(c *fiber.Ctx) error {
	user, err := GetUser(c)
	if err != nil {
		return ErrorResponse(c, 401, "unauthorized")
	}
	id := c.Params("id")
	if id == "" {
		return AppErrorResponse(c, apperr.MissingField("id"))
	}

	state, err := h.studio.LoadProject(c.UserContext(), user, id)
	if err != nil {
		return AppErrorResponse(c, err)
	}
	return SuccessResponse(c, state)
}

// =============================================================================
// Event Stream
// =============================================================================

// Stream handles SSE connections. The first frame after "connected" is the current
// session snapshot so a reconnecting client never has to poll.
func (h *StudioHandler) Stream(c *fiber.Ctx) error {
	user, err := GetUser(c)
	if err != nil {
		return ErrorResponse(c, 401, "unauthorized")
	}

	client := h.hub.CreateClient(user.ID)
	snapshot := domain.NewRealtimeEvent(user.ID, domain.EventSessionState, h.studio.State(user.ID))

	h.log.Info().
		Str("user_id", user.ID).
		Msg("SSE client connected")

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("Transfer-Encoding", "chunked")
	c.Set("X-Accel-Buffering", "no")

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		ticker := time.NewTicker(client.HeartbeatInterval())
		defer ticker.Stop()
		defer func() {
			client.Close()
			h.log.Info().
				Str("user_id", user.ID).
				Msg("SSE client disconnected")
		}()

		w.WriteString("event: connected\n")
		w.WriteString("data: {\"status\":\"connected\"}\n\n")
		if !h.writeEvent(w, snapshot) {
			return
		}

		for {
			select {
			case event, ok := <-client.Events:
				if !ok {
					return
				}
				if !h.writeEvent(w, event) {
					return
				}

			case <-ticker.C:
				w.WriteString(": heartbeat\n\n")
				if err := w.Flush(); err != nil {
					h.log.Debug().Err(err).Msg("client disconnected during heartbeat")
					return
				}

			case <-client.Done:
				return
			}
		}
	})

	return nil
}

// writeEvent reports false once the client is gone.
func (h *StudioHandler) writeEvent(w *bufio.Writer, event *domain.RealtimeEvent) bool {
	frame, err := realtime.FormatSSE(event)
	if err != nil {
		h.log.Error().Err(err).Str("event_type", string(event.Type)).Msg("failed to serialize event")
		return true
	}
	w.Write(frame)
	if err := w.Flush(); err != nil {
		h.log.Debug().Err(err).Msg("client disconnected during write")
		return false
	}
	return true
}

// Status returns SSE connection metrics for the caller.
func (h *StudioHandler) Status(c *fiber.Ctx) error {
	user, err := GetUser(c)
	if err != nil {
		return ErrorResponse(c, 401, "unauthorized")
	}
	return SuccessResponse(c, fiber.Map{
		"user_id":         user.ID,
		"connected":       h.hub.Metrics(),
		"active_sessions": h.studio.ActiveSessions(),
		"latency":         h.studio.Latency(),
	})
}
