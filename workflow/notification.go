package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mmdatafocus/fleet_backend/config"
	"github.com/mmdatafocus/fleet_backend/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"
)

type NotificationLevel string

const (
	NotificationSuccess NotificationLevel = "success"
	NotificationInfo    NotificationLevel = "info"
	NotificationWarning NotificationLevel = "warning"
	NotificationError   NotificationLevel = "error"
)

type Operation string

const (
	OperationImport      Operation = "import"
	OperationApprove     Operation = "approve"
	OperationResolve     Operation = "resolve"
	OperationReject      Operation = "reject"
	OperationBulkApprove Operation = "bulk-approve"
	OperationBulkReject  Operation = "bulk-reject"
)

// Notification is the operator-facing summary of one mutation.
type Notification struct {
	Level         NotificationLevel `json:"level"`
	Operation     Operation         `json:"operation"`
	Title         string            `json:"title"`
	Message       string            `json:"message"`
	Counts        map[string]int    `json:"counts,omitempty"`
	CorrelationId string            `json:"correlation_id,omitempty"`
	TraceId       string            `json:"trace_id,omitempty"`
	OperatorId    *int              `json:"operator_id,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

// WithContext stamps the request's correlation id, trace and operator.
func (n Notification) WithContext(ctx context.Context) Notification {
	if id, ok := utils.GetCorrelationIdFromContext(ctx); ok {
		n.CorrelationId = id
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		n.TraceId = sc.TraceID().String()
	}
	n.OperatorId = utils.GetOperatorIdFromContext(ctx)
	return n
}

func newNotification(level NotificationLevel, op Operation, title, message string) Notification {
	return Notification{
		Level:     level,
		Operation: op,
		Title:     title,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	}
}

func ImportNotification(result ImportResult, err error) Notification {
	counts := map[string]int{
		"inserted": result.Inserted,
		"staged":   result.Staged,
		"skipped":  result.Skipped,
	}
	var n Notification
	switch {
	case err != nil:
		n = newNotification(NotificationError, OperationImport, "Import failed",
			fmt.Sprintf("%d inserted, %d staged before the failure: %v", result.Inserted, result.Staged, err))
	case result.Skipped > 0:
		n = newNotification(NotificationWarning, OperationImport, "Import finished",
			fmt.Sprintf("%d inserted, %d sent for approval, %d rows skipped for missing name or CPF", result.Inserted, result.Staged, result.Skipped))
	default:
		n = newNotification(NotificationSuccess, OperationImport, "Import finished",
			fmt.Sprintf("%d inserted, %d sent for approval", result.Inserted, result.Staged))
	}
	n.Counts = counts
	return n
}

func ApprovalNotification(op Operation, pendingId string, result *ApprovalResult, err error) Notification {
	if err != nil {
		return failureNotification(op, pendingId, err)
	}
	switch result.Outcome {
	case OutcomeActionRequired:
		return newNotification(NotificationInfo, op, "Duplicate needs review",
			fmt.Sprintf("%s conflicts with registered driver %s; choose which record to keep", result.Pending.FullName, result.Driver.FullName))
	case OutcomeApprovedNew:
		return newNotification(NotificationSuccess, op, "Driver approved",
			fmt.Sprintf("%s added to registered drivers", result.Driver.FullName))
	case OutcomeKeepAuthoritative:
		return newNotification(NotificationSuccess, op, "Duplicate discarded",
			fmt.Sprintf("kept registered record of %s", result.Driver.FullName))
	case OutcomeKeepStaged:
		return newNotification(NotificationSuccess, op, "Driver updated",
			fmt.Sprintf("registered record of %s replaced with the uploaded data", result.Driver.FullName))
	}
	return newNotification(NotificationInfo, op, "Done", string(result.Outcome))
}

func RejectNotification(pendingId string, deleted bool, err error) Notification {
	if err != nil {
		return failureNotification(OperationReject, pendingId, err)
	}
	if !deleted {
		return newNotification(NotificationInfo, OperationReject, "Already removed",
			fmt.Sprintf("pending driver %s no longer exists", pendingId))
	}
	return newNotification(NotificationSuccess, OperationReject, "Driver rejected",
		fmt.Sprintf("pending driver %s removed", pendingId))
}

// BulkNotification always reports succeeded, skipped and failed.
func BulkNotification(op Operation, result BulkResult) Notification {
	level := NotificationSuccess
	switch {
	case result.Failed > 0 && result.Succeeded == 0:
		level = NotificationError
	case result.Failed > 0 || result.Skipped > 0:
		level = NotificationWarning
	}
	verb := "approved"
	if op == OperationBulkReject {
		verb = "rejected"
	}
	n := newNotification(level, op, "Bulk operation finished",
		fmt.Sprintf("%d %s, %d skipped as duplicates, %d failed", result.Succeeded, verb, result.Skipped, result.Failed))
	n.Counts = map[string]int{
		"succeeded": result.Succeeded,
		"skipped":   result.Skipped,
		"failed":    result.Failed,
	}
	return n
}

func failureNotification(op Operation, pendingId string, err error) Notification {
	title := "Operation failed"
	switch {
	case errors.Is(err, ErrReferentialIntegrity):
		title = "Referenced driver is missing"
	case errors.Is(err, ErrMalformedId), errors.Is(err, ErrInvalidChoice):
		title = "Invalid request"
	case errors.Is(err, ErrStaleRevision):
		title = "Driver changed meanwhile"
	case IsPartialResolution(err):
		title = "Resolution incomplete; retry"
	}
	return newNotification(NotificationError, op, title, fmt.Sprintf("pending driver %s: %v", pendingId, err))
}

// Notifier delivers a notification to the operator channel.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

type LogNotifier struct {
	Logger *logrus.Logger
}

func (l LogNotifier) Notify(ctx context.Context, n Notification) error {
	entry := l.Logger.WithFields(logrus.Fields{
		"operation":      n.Operation,
		"title":          n.Title,
		"counts":         n.Counts,
		"correlation_id": n.CorrelationId,
	})
	switch n.Level {
	case NotificationError:
		entry.Error(n.Message)
	case NotificationWarning:
		entry.Warn(n.Message)
	default:
		entry.Info(n.Message)
	}
	return nil
}

type PubSubNotifier struct {
	Publish func(ctx context.Context, obj interface{}, attributes map[string]string) (string, error)
}

func NewPubSubNotifier() PubSubNotifier {
	return PubSubNotifier{Publish: config.PublishNotification}
}

func (p PubSubNotifier) Notify(ctx context.Context, n Notification) error {
	_, err := p.Publish(ctx, n, map[string]string{
		"operation": string(n.Operation),
		"level":     string(n.Level),
	})
	return err
}

// MultiNotifier fans out to every notifier and joins their errors.
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for _, notifier := range m {
		if err := notifier.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
