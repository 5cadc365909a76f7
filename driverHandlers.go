package main

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/fleet_backend/config"
	"github.com/mmdatafocus/fleet_backend/models"
	"github.com/mmdatafocus/fleet_backend/utils"
	"github.com/mmdatafocus/fleet_backend/workflow"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// driverService bundles the pipeline components once the database is connected.
type driverService struct {
	importer  *workflow.Importer
	resolver  *workflow.Resolver
	refresher *workflow.ViewRefresher
	journal   workflow.ResolutionJournal
	notifier  workflow.Notifier
	logger    *logrus.Logger
	// bumpGeneration marks the merged view outdated after a mutation.
	bumpGeneration func(ctx context.Context) (int64, error)
}

var services atomic.Pointer[driverService]

func currentServices() *driverService {
	return services.Load()
}

func newDriverService(db *gorm.DB, logger *logrus.Logger) *driverService {
	store := models.NewDriverStore(db)

	var notifier workflow.Notifier = workflow.LogNotifier{Logger: logger}
	if config.NotificationsViaPubSub() {
		notifier = workflow.MultiNotifier{notifier, workflow.NewPubSubNotifier()}
	}

	return &driverService{
		importer:       workflow.NewImporter(store, store, logger),
		resolver:       workflow.NewResolver(store, store, store, utils.RedisLocker{Prefix: "lock"}, logger),
		refresher:      workflow.NewViewRefresher(store, store, store, utils.CurrentDriverViewGeneration, logger),
		journal:        store,
		notifier:       notifier,
		logger:         logger,
		bumpGeneration: utils.BumpDriverViewGeneration,
	}
}

// publish delivers the notification and, when something changed, bumps the view generation.
func (s *driverService) publish(ctx context.Context, n workflow.Notification, changed bool) (workflow.Notification, int64) {
	n = n.WithContext(ctx)
	if err := s.notifier.Notify(ctx, n); err != nil {
		config.LogError(s.logger, "driverHandlers.go", "publish", "Notify", n.Operation, err)
	}
	var generation int64
	if changed {
		gen, err := s.bumpGeneration(ctx)
		if err != nil {
			config.LogError(s.logger, "driverHandlers.go", "publish", "bumpGeneration", n.Operation, err)
		}
		generation = gen
	}
	return n, generation
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, workflow.ErrMalformedId), errors.Is(err, workflow.ErrInvalidChoice):
		return http.StatusBadRequest
	case errors.Is(err, workflow.ErrPendingNotFound):
		return http.StatusNotFound
	case errors.Is(err, workflow.ErrReferentialIntegrity),
		errors.Is(err, workflow.ErrResolutionMismatch),
		errors.Is(err, workflow.ErrStaleRevision),
		errors.Is(err, utils.ErrLockNotObtained):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func driverViewHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		svc := currentServices()
		var q workflow.ViewQuery
		if err := c.ShouldBindQuery(&q); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query"})
			return
		}
		q.Category = workflow.ParseViewCategory(string(q.Category))

		snapshot, err := svc.refresher.Refresh(c.Request.Context(), q)
		if err != nil {
			config.LogError(svc.logger, "driverHandlers.go", "driverViewHandler", "Refresh", q, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": snapshot})
	}
}

type importRowsRequest struct {
	Rows []workflow.ImportRow `json:"rows" binding:"required"`
}

func importRowsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		svc := currentServices()
		var req importRowsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		respondImport(c, svc, req.Rows, nil)
	}
}

func respondImport(c *gin.Context, svc *driverService, rows []workflow.ImportRow, extra gin.H) {
	ctx := c.Request.Context()
	result, err := svc.importer.Import(ctx, rows, utils.GetOperatorIdFromContext(ctx))
	n, generation := svc.publish(ctx, workflow.ImportNotification(result, err), result.Inserted+result.Staged > 0)

	status := http.StatusOK
	if err != nil {
		status = statusForError(err)
	}
	body := gin.H{"data": result, "notification": n, "generation": generation}
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(status, body)
}

func approvePendingHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		svc := currentServices()
		ctx := c.Request.Context()
		id := c.Param("id")

		result, err := svc.resolver.Approve(ctx, id)
		changed := (err == nil && result.Outcome == workflow.OutcomeApprovedNew) || workflow.IsPartialResolution(err)
		n, generation := svc.publish(ctx, workflow.ApprovalNotification(workflow.OperationApprove, id, result, err), changed)
		if err != nil {
			c.JSON(statusForError(err), gin.H{"error": err.Error(), "notification": n})
			return
		}
		status := http.StatusOK
		if result.Outcome == workflow.OutcomeActionRequired {
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"data": result, "notification": n, "generation": generation})
	}
}

type resolveRequest struct {
	Choice          models.ResolutionChoice `json:"choice" binding:"required"`
	AuthoritativeId string                  `json:"authoritative_id" binding:"required"`
}

func resolvePendingHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		svc := currentServices()
		ctx := c.Request.Context()
		id := c.Param("id")

		var req resolveRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "choice and authoritative_id are required", "fields": utils.ProcessValidationErrors(err)})
			return
		}

		result, err := svc.resolver.Resolve(ctx, id, req.Choice, req.AuthoritativeId)
		changed := err == nil || workflow.IsPartialResolution(err)
		n, generation := svc.publish(ctx, workflow.ApprovalNotification(workflow.OperationResolve, id, result, err), changed)
		if err != nil {
			c.JSON(statusForError(err), gin.H{"error": err.Error(), "notification": n})
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": result, "notification": n, "generation": generation})
	}
}

func rejectPendingHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		svc := currentServices()
		ctx := c.Request.Context()
		id := c.Param("id")

		deleted, err := svc.resolver.Reject(ctx, id)
		n, generation := svc.publish(ctx, workflow.RejectNotification(id, deleted, err), deleted)
		if err != nil {
			c.JSON(statusForError(err), gin.H{"error": err.Error(), "notification": n})
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": gin.H{"deleted": deleted}, "notification": n, "generation": generation})
	}
}

type bulkRequest struct {
	Ids []string `json:"ids" binding:"required"`
}

func bulkApproveHandler() gin.HandlerFunc {
	return bulkHandler(workflow.OperationBulkApprove, func(s *driverService) func(context.Context, []string) workflow.BulkResult {
		return s.resolver.BulkApprove
	})
}

func bulkRejectHandler() gin.HandlerFunc {
	return bulkHandler(workflow.OperationBulkReject, func(s *driverService) func(context.Context, []string) workflow.BulkResult {
		return s.resolver.BulkReject
	})
}

// bulkHandler answers 200 even with per-row failures; the counts carry the outcome.
func bulkHandler(op workflow.Operation, run func(*driverService) func(context.Context, []string) workflow.BulkResult) gin.HandlerFunc {
	return func(c *gin.Context) {
		svc := currentServices()
		ctx := c.Request.Context()

		var req bulkRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "ids are required"})
			return
		}
		result := run(svc)(ctx, utils.UniqueSlice(req.Ids))
		n, generation := svc.publish(ctx, workflow.BulkNotification(op, result), result.Succeeded > 0)
		c.JSON(http.StatusOK, gin.H{"data": result, "notification": n, "generation": generation})
	}
}

func openResolutionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		svc := currentServices()
		open, err := svc.journal.ListOpenResolutions(c.Request.Context())
		if err != nil {
			config.LogError(svc.logger, "driverHandlers.go", "openResolutionsHandler", "ListOpenResolutions", nil, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": open})
	}
}
