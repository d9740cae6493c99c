// Package ops compiles declared resources into a named operation graph
// with two aggregate entry points, up and down.
//
// Every registration adds a create and a destroy operation under a
// namespaced key (security:<name>, host:<name>) and appends them to the
// aggregates. Execution is single threaded, in declaration order, and
// fail fast: the first error aborts the remaining chain. Nothing is
// memoized, so a name registered twice runs twice.
package ops

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"

	"github.com/yairfalse/nosto/journal"
	"github.com/yairfalse/nosto/telemetry"
	"github.com/yairfalse/nosto/types"
)

// Aggregate operation names.
const (
	OpUp   = "up"
	OpDown = "down"
)

// ErrUnknownOperation is returned when a requested operation was never
// registered.
var ErrUnknownOperation = errors.New("unknown operation")

// Operation is one node in the graph. Deps run first, in order, then
// the body. A nil body is a pure aggregate.
type Operation struct {
	Name string
	Deps []string
	Run  func(ctx context.Context) error
}

// SecurityController converges security groups. Implemented by
// reconciler.Reconciler.
type SecurityController interface {
	Create(ctx context.Context, spec types.SecurityGroupSpec) error
	Destroy(ctx context.Context, name string) error
}

// HostController drives host lifecycles. Implemented by
// lifecycle.Manager.
type HostController interface {
	Spinup(ctx context.Context, spec types.HostSpec) (*types.Instance, error)
	Provision(ctx context.Context, spec types.HostSpec) error
	Destroy(ctx context.Context, spec types.HostSpec) error
}

// Options configures execution side channels. All fields are optional.
type Options struct {
	Journal *journal.Journal
	Metrics *telemetry.Provider
	DryRun  bool
}

// Registry maps operation names to operations. The up and down dep
// lists grow by registration and stay additive even when a name is
// re-registered.
type Registry struct {
	ops     map[string]Operation
	names   []string
	up      []string
	down    []string
	options Options
}

// NewRegistry creates an empty registry.
func NewRegistry(options Options) *Registry {
	return &Registry{
		ops:     make(map[string]Operation),
		options: options,
	}
}

// RegisterSecurityGroup compiles a security group declaration into its
// create and destroy operations and returns the create operation name.
func (r *Registry) RegisterSecurityGroup(spec types.SecurityGroupSpec, ctl SecurityController) string {
	createName := fmt.Sprintf("security:%s:create", spec.Name)
	destroyName := fmt.Sprintf("security:%s:destroy", spec.Name)

	r.register(Operation{
		Name: createName,
		Run: func(ctx context.Context) error {
			return ctl.Create(ctx, spec)
		},
	})
	r.register(Operation{
		Name: destroyName,
		Run: func(ctx context.Context) error {
			return ctl.Destroy(ctx, spec.Name)
		},
	})

	r.up = append(r.up, createName)
	r.down = append(r.down, destroyName)

	return createName
}

// RegisterHost compiles a host declaration into spinup, provision,
// create and destroy operations and returns the create operation name.
// Create is a pure composition of spinup then provision.
func (r *Registry) RegisterHost(spec types.HostSpec, ctl HostController) string {
	spinupName := fmt.Sprintf("host:%s:spinup", spec.Name)
	provisionName := fmt.Sprintf("host:%s:provision", spec.Name)
	createName := fmt.Sprintf("host:%s:create", spec.Name)
	destroyName := fmt.Sprintf("host:%s:destroy", spec.Name)

	r.register(Operation{
		Name: spinupName,
		Run: func(ctx context.Context) error {
			_, err := ctl.Spinup(ctx, spec)
			return err
		},
	})
	r.register(Operation{
		Name: provisionName,
		Run: func(ctx context.Context) error {
			return ctl.Provision(ctx, spec)
		},
	})
	r.register(Operation{
		Name: createName,
		Deps: []string{spinupName, provisionName},
	})
	r.register(Operation{
		Name: destroyName,
		Run: func(ctx context.Context) error {
			return ctl.Destroy(ctx, spec)
		},
	})

	r.up = append(r.up, createName)
	r.down = append(r.down, destroyName)

	return createName
}

// register overwrites any operation already stored under the same name.
// The listing keeps the first registration's position.
func (r *Registry) register(op Operation) {
	if _, exists := r.ops[op.Name]; !exists {
		r.names = append(r.names, op.Name)
	}
	r.ops[op.Name] = op
}

// Operations returns the aggregates followed by every registered
// operation name in declaration order.
func (r *Registry) Operations() []string {
	names := make([]string, 0, len(r.names)+2)
	names = append(names, OpUp, OpDown)
	names = append(names, r.names...)
	return names
}

// Up executes every registered create operation in declaration order.
func (r *Registry) Up(ctx context.Context) error {
	return r.Run(ctx, OpUp)
}

// Down executes every registered destroy operation in declaration order.
func (r *Registry) Down(ctx context.Context) error {
	return r.Run(ctx, OpDown)
}

// Run executes the named operation: prerequisites first, then the body.
// Deps are resolved by name at execution time, so a re-registered
// operation runs its latest body.
func (r *Registry) Run(ctx context.Context, name string) error {
	op, ok := r.lookup(name)
	if !ok {
		return fmt.Errorf("operation %s: %w", name, ErrUnknownOperation)
	}

	for _, dep := range op.Deps {
		if err := r.Run(ctx, dep); err != nil {
			return err
		}
	}

	if op.Run == nil {
		return nil
	}

	return r.execute(ctx, op)
}

func (r *Registry) lookup(name string) (Operation, bool) {
	switch name {
	case OpUp:
		return Operation{Name: OpUp, Deps: r.up}, true
	case OpDown:
		return Operation{Name: OpDown, Deps: r.down}, true
	}
	op, ok := r.ops[name]
	return op, ok
}

func (r *Registry) execute(ctx context.Context, op Operation) error {
	if r.options.DryRun {
		log.Info().Str("operation", op.Name).Msg("dry run, would execute")
		return nil
	}

	if r.options.Metrics != nil {
		var span trace.Span
		ctx, span = r.options.Metrics.StartSpan(ctx, op.Name)
		defer span.End()
	}

	r.journalStarted(op.Name)
	log.Debug().Ctx(ctx).Str("operation", op.Name).Msg("operation started")

	start := time.Now()
	err := op.Run(ctx)
	took := time.Since(start)

	if err != nil {
		r.journalFailed(op.Name, took, err)
		if r.options.Metrics != nil {
			r.options.Metrics.RecordError(ctx, op.Name)
		}
		log.Error().Ctx(ctx).Err(err).Str("operation", op.Name).Msg("operation failed")
		return fmt.Errorf("operation %s: %w", op.Name, err)
	}

	r.journalCompleted(op.Name, took)
	if r.options.Metrics != nil {
		r.options.Metrics.RecordOperation(ctx, op.Name, took)
	}
	log.Info().Ctx(ctx).Str("operation", op.Name).Dur("took", took).Msg("operation completed")

	return nil
}

// Journal failures are warnings. The journal is an audit channel, never
// a reason to abort provisioning.

func (r *Registry) journalStarted(name string) {
	if r.options.Journal == nil {
		return
	}
	if err := r.options.Journal.Started(name); err != nil {
		log.Warn().Err(err).Str("operation", name).Msg("journal write failed")
	}
}

func (r *Registry) journalCompleted(name string, took time.Duration) {
	if r.options.Journal == nil {
		return
	}
	if err := r.options.Journal.Completed(name, took); err != nil {
		log.Warn().Err(err).Str("operation", name).Msg("journal write failed")
	}
}

func (r *Registry) journalFailed(name string, took time.Duration, cause error) {
	if r.options.Journal == nil {
		return
	}
	if err := r.options.Journal.Failed(name, took, cause); err != nil {
		log.Warn().Err(err).Str("operation", name).Msg("journal write failed")
	}
}
