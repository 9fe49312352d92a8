package pipeline

// Phase names the four coarse stages of a migration run.
type Phase string

const (
	PhaseExtraction    Phase = "extraction"
	PhaseDatabaseSetup Phase = "database-setup"
	PhaseMigration     Phase = "migration"
	PhaseExport        Phase = "export"
)

// Event is a fire-and-forget progress update, delivered synchronously at
// fixed checkpoints as the pipeline advances.
type Event struct {
	Phase   Phase
	Percent int // 0-100 across the whole run
	Message string
}

// Observer consumes progress events. Delivery is synchronous and ordered;
// observers must not block.
type Observer func(Event)

func (c *Coordinator) emit(phase Phase, percent int, message string) {
	if c.cfg.Observer != nil {
		c.cfg.Observer(Event{Phase: phase, Percent: percent, Message: message})
	}
}
