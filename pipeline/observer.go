package pipeline

// Observer receives the events the pipeline emits. Implementations must be
// safe for concurrent use: every worker reports through the same Observer.
// Observers should not panic. A panic from a processor-side event is
// recovered and the event dropped; a panic from a poller-side event ends
// that poller like any other poller panic.
//
// The observe package provides zap and prometheus implementations.
type Observer interface {
	// ItemEnqueued is called once an item has been accepted by the queue.
	ItemEnqueued(id string)
	// ItemProcessed is called after a processor handled an item successfully.
	ItemProcessed(id string, worker int)
	// ProcessingFailed is called when a processor returned an error (or
	// panicked) for an item. The item is not retried.
	ProcessingFailed(id string, worker int, err error)
	// TransientSourceError is called for every retryable poll failure.
	TransientSourceError(worker int, err error)
	// FatalSourceError is called when a poller hits a fatal error and
	// requests a pipeline-wide stop.
	FatalSourceError(worker int, err error)
	// PipelineStopping is called once when the supervisor begins stopping.
	// cause is nil for an external shutdown request.
	PipelineStopping(cause error)
	// PipelineStopped is called once with the final report; report.State
	// tells drained and timed out apart.
	PipelineStopped(report Report)
}

// NopObserver ignores every event. Embed it to implement only part of
// Observer.
type NopObserver struct{}

func (NopObserver) ItemEnqueued(string) {}
func (NopObserver) ItemProcessed(string, int) {}
func (NopObserver) ProcessingFailed(string, int, error) {}
func (NopObserver) TransientSourceError(int, error) {}
func (NopObserver) FatalSourceError(int, error) {}
func (NopObserver) PipelineStopping(error) {}
func (NopObserver) PipelineStopped(Report) {}

type multiObserver []Observer

// MultiObserver fans every event out to all observers, in order.
// Nil observers are skipped.
func MultiObserver(observers ...Observer) Observer {
	m := make(multiObserver, 0, len(observers))
	for _, o := range observers {
		if o != nil {
			m = append(m, o)
		}
	}
	return m
}

func (m multiObserver) ItemEnqueued(id string) {
	for _, o := range m {
		o.ItemEnqueued(id)
	}
}

func (m multiObserver) ItemProcessed(id string, worker int) {
	for _, o := range m {
		o.ItemProcessed(id, worker)
	}
}

func (m multiObserver) ProcessingFailed(id string, worker int, err error) {
	for _, o := range m {
		o.ProcessingFailed(id, worker, err)
	}
}

func (m multiObserver) TransientSourceError(worker int, err error) {
	for _, o := range m {
		o.TransientSourceError(worker, err)
	}
}

func (m multiObserver) FatalSourceError(worker int, err error) {
	for _, o := range m {
		o.FatalSourceError(worker, err)
	}
}

func (m multiObserver) PipelineStopping(cause error) {
	for _, o := range m {
		o.PipelineStopping(cause)
	}
}

func (m multiObserver) PipelineStopped(report Report) {
	for _, o := range m {
		o.PipelineStopped(report)
	}
}
