package routes

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Group is one business route group attached during registration.
type Group interface {
	Name() string
	Register(ctx context.Context, b *Builder) error
}

// RegistrationError reports the group that aborted a registration attempt.
type RegistrationError struct {
	Group string
	Err   error
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("route group %q failed to register: %v", e.Group, e.Err)
}

func (e *RegistrationError) Unwrap() error {
	return e.Err
}

// Registrar attaches groups in a fixed priority order.
type Registrar struct {
	groups []Group
	logger *zap.Logger
}

// NewRegistrar creates a Registrar; groups are attached in the order given.
func NewRegistrar(logger *zap.Logger, groups ...Group) *Registrar {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registrar{groups: append([]Group(nil), groups...), logger: logger}
}

// RegisterAll builds the full table. Any group failure (error or panic)
// discards everything collected so far and returns a *RegistrationError.
func (r *Registrar) RegisterAll(ctx context.Context) (Table, error) {
	b := NewBuilder()
	for _, g := range r.groups {
		if err := r.attach(ctx, g, b); err != nil {
			r.logger.Warn("route registration abandoned",
				zap.String("group", g.Name()),
				zap.Int("discarded_routes", len(b.routes)),
				zap.Error(err),
			)
			return Table{}, &RegistrationError{Group: g.Name(), Err: err}
		}
		r.logger.Debug("route group attached", zap.String("group", g.Name()))
	}
	table := b.Table()
	r.logger.Info("routes registered",
		zap.Int("groups", len(r.groups)),
		zap.Int("routes", table.Len()),
	)
	return table, nil
}

func (r *Registrar) attach(ctx context.Context, g Group, b *Builder) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("registration canceled: %w", err)
	}
	b.group = g.Name()
	return g.Register(ctx, b)
}

// GroupFunc adapts a function to Group.
type GroupFunc struct {
	GroupName string
	Fn        func(ctx context.Context, b *Builder) error
}

// Name returns the group name.
func (g GroupFunc) Name() string { return g.GroupName }

// Register calls Fn.
func (g GroupFunc) Register(ctx context.Context, b *Builder) error { return g.Fn(ctx, b) }
