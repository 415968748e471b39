// Package recorder turns trigger events into persisted evidence: a frame image,
// its analysis record and, when action is required, an alert.
package recorder

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Capitan-Parrot/threatsnap/internal/logger"
	"github.com/Capitan-Parrot/threatsnap/internal/metrics"
	"github.com/Capitan-Parrot/threatsnap/internal/models"
	"github.com/Capitan-Parrot/threatsnap/internal/storage"
)

const (
	module = "recorder"

	AlertSubject = "ThreatSnap Alert - Action Required"

	idLayout = "20060102_150405.000"
)

type Store interface {
	SaveImage(ctx context.Context, name string, data []byte) (string, error)
	SaveRecord(ctx context.Context, name string, record models.LogRecord) (string, error)
}

type Dispatcher interface {
	Analyze(ctx context.Context, image []byte, imagePath string) (models.Analysis, error)
}

type Notifier interface {
	Notify(ctx context.Context, alert models.Alert) error
}

// Index keeps a queryable copy of every record.
type Index interface {
	InsertRecord(ctx context.Context, sessionID string, record models.LogRecord) error
}

type EventSink interface {
	SendEvent(event models.SessionEvent) error
}

type Recorder struct {
	store      Store
	dispatcher Dispatcher
	notifier   Notifier
	index      Index
	events     EventSink
	metrics    *metrics.Metrics

	mu     sync.Mutex
	lastID time.Time
	now    func() time.Time
}

// New creates a Recorder. notifier, index, events and m may be nil.
func New(store Store, dispatcher Dispatcher, notifier Notifier, index Index, events EventSink, m *metrics.Metrics) *Recorder {
	return &Recorder{
		store:      store,
		dispatcher: dispatcher,
		notifier:   notifier,
		index:      index,
		events:     events,
		metrics:    m,
		now:        time.Now,
	}
}

// Record persists evidence for ev and returns the written record. An analysis
// failure still produces a record with an error-shaped analysis; only a failure
// to write the record itself is returned.
func (r *Recorder) Record(ctx context.Context, ev models.TriggerEvent) (models.LogRecord, error) {
	at := r.now()
	id := r.nextID(at)
	imageName := id + storage.ImageExt
	recordName := id + storage.RecordExt

	imagePath, err := r.store.SaveImage(ctx, imageName, ev.Frame.Data)
	if err != nil {
		logger.Error(module, "save image %s: %v", imageName, err)
		imagePath = imageName
	}

	analysis, err := r.dispatcher.Analyze(ctx, ev.Frame.Data, imagePath)
	if err != nil {
		logger.Warn(module, "analysis of %s failed: %v", imageName, err)
		analysis = models.ErrorAnalysis(r.now(), imagePath, err)
		if r.metrics != nil {
			r.metrics.AnalysisErrors.Add(1)
		}
	}

	record := models.LogRecord{
		Timestamp: id,
		Image:     imageName,
		Analysis:  analysis,
	}
	if _, err := r.store.SaveRecord(ctx, recordName, record); err != nil {
		return record, fmt.Errorf("save record %s: %w", recordName, err)
	}
	if r.metrics != nil {
		r.metrics.Records.Add(1)
	}

	logger.Info(module, "[LOGGED] %s | Action: %t | Danger: %s", imageName, analysis.ActionRequired, analysis.Danger)

	if r.index != nil {
		if err := r.index.InsertRecord(ctx, ev.SessionID, record); err != nil {
			logger.Warn(module, "index record %s: %v", id, err)
		}
	}

	if r.events != nil {
		if err := r.events.SendEvent(models.SessionEvent{
			SessionID: ev.SessionID,
			Type:      models.EventTriggered,
			Frame:     ev.Frame.Seq,
			Record:    id,
			Action:    analysis.ActionRequired,
			TimeStamp: at.UTC(),
		}); err != nil {
			logger.Warn(module, "send triggered event for %s: %v", id, err)
		}
	}

	if analysis.ActionRequired && ev.NotifyAddress != "" {
		r.notify(ctx, ev.NotifyAddress, analysis, imageName, recordName)
	}

	return record, nil
}

func (r *Recorder) notify(ctx context.Context, to string, analysis models.Analysis, attachments ...string) {
	if r.notifier == nil {
		logger.Warn(module, "alert for %s not sent: no notifier configured", to)
		return
	}

	if err := r.notifier.Notify(ctx, AlertFor(to, analysis, attachments...)); err != nil {
		logger.Error(module, "alert to %s failed: %v", to, err)
		if r.metrics != nil {
			r.metrics.AlertsFailed.Add(1)
		}
		return
	}
	if r.metrics != nil {
		r.metrics.AlertsSent.Add(1)
	}
}

// AlertFor builds the alert mail for an analysis that requires action.
func AlertFor(to string, analysis models.Analysis, attachments ...string) models.Alert {
	danger := analysis.Danger
	if danger == "" {
		danger = "N/A"
	}

	var body strings.Builder
	fmt.Fprintf(&body, "Timestamp: %s\n\n", analysis.Timestamp)
	fmt.Fprintf(&body, "Danger: %s\n\n", danger)
	body.WriteString("Recommended Action: Investigate immediately.\n\n")
	body.WriteString("See attached image and log file for more information.")

	return models.Alert{
		Recipient:   to,
		Subject:     AlertSubject,
		Body:        body.String(),
		Attachments: attachments,
	}
}

// nextID returns a millisecond timestamp id strictly greater than the previous one.
func (r *Recorder) nextID(at time.Time) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	at = at.Truncate(time.Millisecond)
	if !at.After(r.lastID) {
		at = r.lastID.Add(time.Millisecond)
	}
	r.lastID = at

	return strings.Replace(at.Format(idLayout), ".", "_", 1)
}
