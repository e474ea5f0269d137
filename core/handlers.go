package core

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type Handlers interface {
	PostEvents(gctx *gin.Context)
	GetEvents(gctx *gin.Context)
	PutEvent(gctx *gin.Context)
	DeleteEvent(gctx *gin.Context)
	SearchEvents(gctx *gin.Context)
	ExportCalendar(gctx *gin.Context)
	GetHealth(gctx *gin.Context)
}

type handlers struct {
	name       string
	repository Repository
}

func NewHandlers(name string, repository Repository) Handlers {
	return &handlers{name: name, repository: repository}
}

func RegisterRoutes(router gin.IRouter, h Handlers) {
	router.GET("/health", h.GetHealth)

	events := router.Group("/events")
	events.POST("", h.PostEvents)
	events.GET("", h.GetEvents)
	events.GET("/search", h.SearchEvents)
	events.GET("/export.ics", h.ExportCalendar)
	events.PUT("/:id", h.PutEvent)
	events.DELETE("/:id", h.DeleteEvent)
}

// abort answers with the status matching err's kind.
func abort(gctx *gin.Context, message string, err error) {
	ctx := gctx.Request.Context()
	status := StatusOf(err)

	if status >= http.StatusInternalServerError {
		log.Ctx(ctx).Error().Err(err).Msg(message)
	} else {
		log.Ctx(ctx).Info().Err(err).Msg(message)
	}

	gctx.AbortWithStatusJSON(status, NewError(message, err))
}

func (h *handlers) PostEvents(gctx *gin.Context) {
	ctx := gctx.Request.Context()

	var req EventRequest

	err := gctx.ShouldBindJSON(&req)
	if err != nil {
		log.Ctx(ctx).Info().Err(err).Msg("failed to bind JSON")
		gctx.AbortWithStatusJSON(http.StatusBadRequest, NewError("failed to bind JSON", err))

		return
	}

	event, err := h.repository.CreateEvent(ctx, &req)
	if err != nil {
		switch {
		case errors.Is(err, ErrValidation):
			abort(gctx, "event validation failed", err)
		case errors.Is(err, ErrConflict):
			abort(gctx, "event id already exists", err)
		default:
			abort(gctx, "saving event failed", err)
		}

		return
	}

	gctx.JSON(http.StatusCreated, event)
}

func (h *handlers) GetEvents(gctx *gin.Context) {
	events, err := h.repository.ListEvents(gctx.Request.Context())
	if err != nil {
		abort(gctx, "listing events failed", err)
		return
	}

	gctx.JSON(http.StatusOK, events)
}

// PutEvent treats an empty body as an empty patch.
func (h *handlers) PutEvent(gctx *gin.Context) {
	ctx := gctx.Request.Context()
	id := gctx.Param("id")

	var patch EventPatch

	err := gctx.ShouldBindJSON(&patch)
	if err != nil && !errors.Is(err, io.EOF) {
		log.Ctx(ctx).Info().Err(err).Msg("failed to bind JSON")
		gctx.AbortWithStatusJSON(http.StatusBadRequest, NewError("failed to bind JSON", err))

		return
	}

	event, err := h.repository.UpdateEvent(ctx, id, &patch)
	if err != nil {
		switch {
		case errors.Is(err, ErrEventNotFound):
			abort(gctx, "event not found", err)
		case errors.Is(err, ErrValidation):
			abort(gctx, "event validation failed", err)
		default:
			abort(gctx, "updating event failed", err)
		}

		return
	}

	gctx.JSON(http.StatusOK, event)
}

func (h *handlers) DeleteEvent(gctx *gin.Context) {
	ctx := gctx.Request.Context()
	id := gctx.Param("id")

	removed, err := h.repository.DeleteEvent(ctx, id)
	if err != nil {
		abort(gctx, "deleting event failed", err)
		return
	}

	log.Ctx(ctx).Debug().Str("id", id).Int("removed", removed).Msg("events deleted")
	gctx.JSON(http.StatusOK, gin.H{"message": "Event deleted"})
}

func (h *handlers) SearchEvents(gctx *gin.Context) {
	events, err := h.repository.SearchEvents(gctx.Request.Context(), gctx.Query("q"))
	if err != nil {
		if errors.Is(err, ErrValidation) {
			abort(gctx, "query parameter 'q' is required", err)
			return
		}

		abort(gctx, "searching events failed", err)

		return
	}

	gctx.JSON(http.StatusOK, events)
}

func (h *handlers) ExportCalendar(gctx *gin.Context) {
	ctx := gctx.Request.Context()

	body := EncodeCalendar(ctx, h.name, h.repository.AllEvents(ctx), time.Now().UTC())

	gctx.Header("Content-Disposition", `attachment; filename="events.ics"`)
	gctx.Data(http.StatusOK, "text/calendar; charset=utf-8", []byte(body))
}

func (h *handlers) GetHealth(gctx *gin.Context) {
	gctx.JSON(http.StatusOK, gin.H{"status": "ok", "events": h.repository.Count()})
}
