package reminder

import (
	"context"
	"time"

	"remindbot/internal/eventbus"
	"remindbot/internal/storage"
	"remindbot/internal/subscriber"
	logx "remindbot/pkg/logx"
)

const auditTimeout = 2 * time.Second

// auditor writes to the optional store. Store errors are logged only.
type auditor struct {
	store storage.Store
	log   logx.Logger
}

// ctx is only used for its values: an audit write outlives a canceled send.
func (a auditor) delivery(ctx context.Context, r storage.DeliveryRecord) {
	if a.store == nil {
		return
	}
	if r.At.IsZero() {
		r.At = time.Now()
	}
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditTimeout)
	defer cancel()
	if err := a.store.AppendDelivery(wctx, r); err != nil {
		a.log.Warn("audit write failed", logx.String("kind", string(r.Kind)), logx.Int64("chat_id", r.ChatID), logx.Err(err))
	}
}

func (a auditor) run(ctx context.Context, r storage.RunSummary) {
	if a.store == nil {
		return
	}
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditTimeout)
	defer cancel()
	if err := a.store.AppendRun(wctx, r); err != nil {
		a.log.Warn("audit run write failed", logx.String("run_id", r.RunID), logx.Err(err))
	}
}

func (a auditor) lastRun(ctx context.Context) (storage.RunSummary, bool) {
	if a.store == nil {
		return storage.RunSummary{}, false
	}
	r, ok, err := a.store.LastRun(ctx)
	if err != nil {
		a.log.Debug("audit last run read failed", logx.Err(err))
		return storage.RunSummary{}, false
	}
	return r, ok
}

func storageKind(eventType string) storage.Kind {
	if eventType == eventbus.SubscriberLeft {
		return storage.KindLeave
	}
	return storage.KindJoin
}

func recordFor(kind storage.Kind, id subscriber.ID) storage.DeliveryRecord {
	return storage.DeliveryRecord{ChatID: int64(id), Kind: kind, OK: true}
}
