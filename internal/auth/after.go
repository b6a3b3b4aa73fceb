package auth

import (
	"context"
	"fmt"

	"shopifyapp/internal/audit"
	"shopifyapp/internal/logging"
	"shopifyapp/internal/queue"
	"shopifyapp/internal/shop"
)

// AfterFactory builds a job for a shop that just finished OAuth.
type AfterFactory func(sh *shop.Shop) queue.Job

// AfterJobs maps configured after-authenticate job names to factories. It is
// filled at startup and read-only afterwards.
type AfterJobs struct {
	factories map[string]AfterFactory
}

func NewAfterJobs() *AfterJobs {
	return &AfterJobs{factories: map[string]AfterFactory{}}
}

// Register binds name to f. Registering the same name twice panics.
func (a *AfterJobs) Register(name string, f AfterFactory) {
	if name == "" || f == nil {
		panic("auth: empty job name or nil factory")
	}
	if _, dup := a.factories[name]; dup {
		panic(fmt.Sprintf("auth: after-authenticate job %q registered twice", name))
	}
	a.factories[name] = f
}

func (a *AfterJobs) Lookup(name string) (AfterFactory, bool) {
	if a == nil {
		return nil, false
	}
	f, ok := a.factories[name]
	return f, ok
}

// RecordLogin appends a login entry to the shop's audit trail.
type RecordLogin struct {
	ShopID int64
	Domain string
	Audit  audit.Recorder
}

func (RecordLogin) Name() string { return "record_login" }

func (j RecordLogin) Handle(ctx context.Context) error {
	if j.Audit == nil {
		return nil
	}
	return j.Audit.Record(ctx, j.ShopID, audit.ActionAuthenticated, "merchant", map[string]string{"domain": j.Domain})
}

// RecordLoginFactory builds RecordLogin jobs writing through rec.
func RecordLoginFactory(rec audit.Recorder) AfterFactory {
	return func(sh *shop.Shop) queue.Job {
		return RecordLogin{ShopID: sh.ID, Domain: sh.Domain, Audit: rec}
	}
}

// runAfterAuthenticate starts the configured jobs for sh. Inline jobs run
// before the response, the rest are queued. Failures are logged only.
func (h Handlers) runAfterAuthenticate(ctx context.Context, sh *shop.Shop) {
	log := logging.From(ctx)
	for _, entry := range h.Cfg.AfterAuthenticate {
		f, ok := h.After.Lookup(entry.Job)
		if !ok {
			log.Warn().Str("job", entry.Job).Msg("unknown after-authenticate job")
			continue
		}
		job := f(sh)
		var err error
		if entry.Inline {
			err = h.Queue.DispatchNow(ctx, job)
		} else {
			err = h.Queue.Dispatch(job, queue.DefaultQueue)
		}
		if err != nil {
			log.Error().Err(err).Str("job", entry.Job).Bool("inline", entry.Inline).Msg("after-authenticate job")
		}
	}
}
