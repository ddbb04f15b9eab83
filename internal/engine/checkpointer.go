package engine

import "context"

// Checkpointer marks durable suspend/resume support as available. The
// source's checkpointer persists full graph state so an interrupted run can
// be reconstructed from a checkpoint store; this engine's per-round state is
// already fully recoverable from the task record itself (worker outputs and
// reviews are tagged by revision), so Checkpointer carries no state of its
// own — it only gates which resume path the interrupt/resume controller
// takes. Ping is called once at Engine construction so a broken store fails
// the process at startup rather than degrading silently (see the design
// notes on the checkpointer-construction open question).
type Checkpointer interface {
	Ping(ctx context.Context) error
}

// GormCheckpointer wraps the same *gorm.DB the relational repositories use —
// durable mode is available whenever the relational backend is.
type GormCheckpointer struct {
	ping func(ctx context.Context) error
}

// NewGormCheckpointer builds a Checkpointer whose Ping delegates to ping
// (typically (*gorm.DB).WithContext(ctx).Exec("SELECT 1").Error, supplied by
// the caller so this package stays gorm-agnostic).
func NewGormCheckpointer(ping func(ctx context.Context) error) *GormCheckpointer {
	return &GormCheckpointer{ping: ping}
}

func (c *GormCheckpointer) Ping(ctx context.Context) error {
	return c.ping(ctx)
}
