// Package audit records security and mutation events.
//
// Recording is observational: the outcome of the tracked action is decided
// before an entry is queued, entries are written by a single background
// goroutine, and a full queue or a failing store drops the entry (at most
// once, best effort) instead of reaching the caller.
package audit

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/cafeteria-procurement/internal/model"
)

// Store persists audit entries.
type Store interface {
	Insert(ctx context.Context, e *model.AuditLogEntry) error
}

// Meta carries the request facts attached to every entry.
type Meta struct {
	IP        string
	UserAgent string
	RequestID string
}

const writeTimeout = 5 * time.Second

// Recorder is a bounded, non-blocking audit queue.
type Recorder struct {
	store     Store
	log       *zap.Logger
	now       func() time.Time
	ch        chan model.AuditLogEntry
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	failed    atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

// NewRecorder starts the writer goroutine.  Close must be called on
// shutdown to flush queued entries.
func NewRecorder(store Store, bufferSize int, log *zap.Logger) *Recorder {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	r := &Recorder{
		store: store,
		log:   log.Named("audit"),
		now:   time.Now,
		ch:    make(chan model.AuditLogEntry, bufferSize),
		done:  make(chan struct{}),
	}
	r.wg.Add(1)
	go r.run()
	return r
}

func (r *Recorder) run() {
	defer r.wg.Done()
	for {
		select {
		case e := <-r.ch:
			r.write(e)
		case <-r.done:
			for {
				select {
				case e := <-r.ch:
					r.write(e)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) write(e model.AuditLogEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := r.store.Insert(ctx, &e); err != nil {
		r.failed.Add(1)
		r.log.Error("audit write failed",
			zap.String("action", string(e.Action)),
			zap.String("resource", e.Resource),
			zap.String("request_id", e.RequestID),
			zap.Error(err))
	}
}

// Record redacts the snapshots and queues e.  It never blocks.
func (r *Recorder) Record(_ context.Context, e model.AuditLogEntry) {
	if r == nil || r.closed.Load() {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = r.now().UTC()
	}
	e.OldValue = Redact(e.OldValue)
	e.NewValue = Redact(e.NewValue)

	select {
	case r.ch <- e:
	case <-r.done:
	default:
		r.dropped.Add(1)
		r.log.Warn("audit queue full, entry dropped",
			zap.String("action", string(e.Action)),
			zap.String("request_id", e.RequestID))
	}
}

// RecordEvent is the collaborator entry point used by resource routers on
// create, update and delete.  resourceID and actorID may be empty/nil.
func (r *Recorder) RecordEvent(ctx context.Context, action model.Action, resource, resourceID string,
	oldValue, newValue any, actorID *uint64, meta Meta) {
	var rid *string
	if resourceID != "" {
		rid = &resourceID
	}
	r.Record(ctx, model.AuditLogEntry{
		UserID:     actorID,
		Action:     action,
		Resource:   resource,
		ResourceID: rid,
		OldValue:   oldValue,
		NewValue:   newValue,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
		RequestID:  meta.RequestID,
	})
}

// Dropped returns how many entries were discarded because the queue was full.
func (r *Recorder) Dropped() uint64 {
	if r == nil {
		return 0
	}
	return r.dropped.Load()
}

// Failed returns how many entries the store rejected.
func (r *Recorder) Failed() uint64 {
	if r == nil {
		return 0
	}
	return r.failed.Load()
}

// Close stops intake and waits until queued entries are written.
func (r *Recorder) Close() {
	if r == nil {
		return
	}
	r.closeOnce.Do(func() {
		r.closed.Store(true)
		close(r.done)
		r.wg.Wait()
	})
}

// UserRef formats a user id for the resource_id column.
func UserRef(id uint64) string {
	return strconv.FormatUint(id, 10)
}
