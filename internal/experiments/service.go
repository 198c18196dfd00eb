package experiments

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"voiceops-platform/pkg/logger"
)

// Repository is the persistence contract for experiments.
//
// Tenancy invariant: tenant_id is required and enforced in all queries.
// ListVariants must return control variants first so traversal order is
// deterministic for a fixed random draw.
type Repository interface {
	Create(ctx context.Context, exp Experiment, variants []Variant) error
	FindRunning(ctx context.Context, tenantID, agentID string) (Experiment, bool, error)
	ListVariants(ctx context.Context, tenantID, experimentID string) ([]Variant, error)

	// SetStatus applies a guarded lifecycle transition: to running from
	// draft/paused (and only while the agent has no other running
	// experiment), to paused from running. A transition whose guard does not
	// match returns ErrNotFound.
	SetStatus(ctx context.Context, tenantID, experimentID string, to Status, at time.Time) error

	Complete(ctx context.Context, tenantID, experimentID, winnerVariantID string, at time.Time) error
}

var (
	ErrNotFound        = errors.New("experiments: not found")
	ErrInvalidArgument = errors.New("experiments: invalid argument")
	ErrTooFewVariants  = errors.New("experiments: at least two variants required")
	ErrControlCount    = errors.New("experiments: exactly one control variant required")
)

// Service resolves per-call experiment assignments and manages experiment
// lifecycle writes.
//
// Resolution is best-effort: any lookup failure is swallowed and logged, and
// the call dispatches with the agent's live prompt. It must never block a
// dispatch.
type Service struct {
	repo  Repository
	rng   *rand.Rand
	clock func() time.Time
}

func NewService(repo Repository, rng *rand.Rand) *Service {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Service{repo: repo, rng: rng, clock: time.Now}
}

// Create persists an experiment with its variants atomically.
func (s *Service) Create(ctx context.Context, exp Experiment, variants []Variant) (Experiment, error) {
	if exp.TenantID == "" || exp.AgentID == "" || exp.Name == "" {
		return Experiment{}, ErrInvalidArgument
	}
	if len(variants) < 2 {
		return Experiment{}, ErrTooFewVariants
	}
	controls := 0
	for _, v := range variants {
		if v.TrafficWeight < 0 {
			return Experiment{}, ErrInvalidArgument
		}
		if v.IsControl {
			controls++
		}
	}
	if controls != 1 {
		return Experiment{}, ErrControlCount
	}

	now := s.clock().UTC()
	if exp.ID == "" {
		exp.ID = uuid.NewString()
	}
	if exp.Status == "" {
		exp.Status = StatusDraft
	}
	exp.CreatedAt = now
	exp.UpdatedAt = now
	for i := range variants {
		if variants[i].ID == "" {
			variants[i].ID = uuid.NewString()
		}
		variants[i].ExperimentID = exp.ID
		variants[i].CreatedAt = now
	}
	if err := s.repo.Create(ctx, exp, variants); err != nil {
		return Experiment{}, err
	}
	return exp, nil
}

// Start makes a draft or paused experiment resolvable. At most one running
// experiment per (tenant, agent) pair; starting a second fails until the
// first is paused or promoted.
func (s *Service) Start(ctx context.Context, tenantID, experimentID string) error {
	if tenantID == "" || experimentID == "" {
		return ErrInvalidArgument
	}
	return s.repo.SetStatus(ctx, tenantID, experimentID, StatusRunning, s.clock().UTC())
}

// Pause takes a running experiment out of resolution without recording a
// winner. Calls already dispatched keep their drawn variant metadata.
func (s *Service) Pause(ctx context.Context, tenantID, experimentID string) error {
	if tenantID == "" || experimentID == "" {
		return ErrInvalidArgument
	}
	return s.repo.SetStatus(ctx, tenantID, experimentID, StatusPaused, s.clock().UTC())
}

// Promote marks a variant as the winner and completes the experiment.
// Writing the winning prompt back to the live agent configuration is the
// agent service's job, keyed off the returned winner id.
func (s *Service) Promote(ctx context.Context, tenantID, experimentID, winnerVariantID string) error {
	if tenantID == "" || experimentID == "" || winnerVariantID == "" {
		return ErrInvalidArgument
	}
	return s.repo.Complete(ctx, tenantID, experimentID, winnerVariantID, s.clock().UTC())
}

// Resolve picks a variant for one dispatch of the given agent.
//
// Returns nil when no running experiment exists, when the experiment has no
// variants, or when any lookup fails; nil means "use the agent's live prompt".
func (s *Service) Resolve(ctx context.Context, tenantID, agentID string) *Assignment {
	if tenantID == "" || agentID == "" {
		return nil
	}
	log := logger.From(ctx)

	exp, ok, err := s.repo.FindRunning(ctx, tenantID, agentID)
	if err != nil {
		log.Warn("experiment lookup failed, dispatching without assignment", "agent_id", agentID, "err", err)
		return nil
	}
	if !ok {
		return nil
	}

	variants, err := s.repo.ListVariants(ctx, tenantID, exp.ID)
	if err != nil {
		log.Warn("variant lookup failed, dispatching without assignment", "experiment_id", exp.ID, "err", err)
		return nil
	}
	if len(variants) == 0 {
		return nil
	}

	v := s.pick(variants)
	a := &Assignment{
		ExperimentID: exp.ID,
		VariantID:    v.ID,
		VariantName:  v.Name,
		IsControl:    v.IsControl,
	}
	if !v.IsControl {
		a.PromptOverride = v.Prompt
	}
	return a
}

// pick draws a variant proportionally to TrafficWeight. A non-positive weight
// sum falls back to a uniform draw so a misconfigured experiment still
// resolves.
func (s *Service) pick(variants []Variant) Variant {
	total := 0.0
	for _, v := range variants {
		if v.TrafficWeight > 0 {
			total += v.TrafficWeight
		}
	}
	if total <= 0 {
		return variants[s.rng.Intn(len(variants))]
	}

	draw := s.rng.Float64() * total
	acc := 0.0
	for _, v := range variants {
		if v.TrafficWeight <= 0 {
			continue
		}
		acc += v.TrafficWeight
		if draw < acc {
			return v
		}
	}
	// Floating-point accumulation can leave draw == acc; last positive-weight
	// variant absorbs it.
	for i := len(variants) - 1; i >= 0; i-- {
		if variants[i].TrafficWeight > 0 {
			return variants[i]
		}
	}
	return variants[len(variants)-1]
}
