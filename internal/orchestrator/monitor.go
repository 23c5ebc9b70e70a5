package orchestrator

// monitor is the tagged union over the single monitoring slot. Exactly one
// variant is installed at a time; the transition always tears down the
// previous variant first, so a timer or subscription can never leak.
type monitor interface {
	describe() string
	stop(o *Orchestrator)
}

type notMonitoring struct{}

func (notMonitoring) describe() string   { return "none" }
func (notMonitoring) stop(*Orchestrator) {}

type monitorPolling struct{}

func (monitorPolling) describe() string { return "polling" }
func (monitorPolling) stop(o *Orchestrator) {
	if o.poller != nil {
		o.poller.Stop()
	}
}

type monitorStreaming struct {
	sessionID string
}

func (monitorStreaming) describe() string { return "streaming" }
func (monitorStreaming) stop(o *Orchestrator) {
	if o.stream != nil {
		o.stream.Detach()
	}
}

// setMonitorLocked is the only place the monitoring slot changes. Callers
// hold o.mu; the teardown calls fire no callbacks, so no re-entry happens.
func (o *Orchestrator) setMonitorLocked(next monitor) {
	if o.mon != nil {
		o.mon.stop(o)
	}
	o.mon = next
}
