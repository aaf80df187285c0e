// Package notify defines the boundary to the external email service.
// Delivery itself happens outside this system; implementations here only
// decide what a notification would say.
package notify

import (
	"context"

	"github.com/sirupsen/logrus"

	"planline/internal/domain"
	"planline/internal/importer"
)

// Notifier is told about completed imports so operators can be emailed.
type Notifier interface {
	ImportCompleted(ctx context.Context, project domain.Project, sum *importer.Summary) error
}

// LogNotifier records what would be sent instead of delivering anything.
type LogNotifier struct {
	Log *logrus.Logger
}

func (n LogNotifier) ImportCompleted(ctx context.Context, project domain.Project, sum *importer.Summary) error {
	log := n.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	log.WithFields(logrus.Fields{
		"project":  project.ID,
		"counts":   sum.Counts(),
		"warnings": len(sum.Warnings),
	}).Info("import completed notification")
	return nil
}

// Noop discards notifications.
type Noop struct{}

func (Noop) ImportCompleted(context.Context, domain.Project, *importer.Summary) error { return nil }
