package agents

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"voiceops-platform/internal/dispatch"
	"voiceops-platform/internal/schedcalls"
)

type Repository interface {
	Save(ctx context.Context, a Agent) error
	GetByID(ctx context.Context, tenantID, id string) (Agent, error)
	ListByTenant(ctx context.Context, tenantID string) ([]Agent, error)
}

// Service manages agents and resolves them to provider routes for dispatch.
type Service struct {
	repo      Repository
	providers map[string]dispatch.Provider

	clock func() time.Time
}

func NewService(repo Repository, providers map[string]dispatch.Provider) *Service {
	return &Service{repo: repo, providers: providers, clock: time.Now}
}

func (s *Service) Save(ctx context.Context, a Agent) (Agent, error) {
	if err := a.validate(); err != nil {
		return Agent{}, err
	}
	if _, ok := s.providers[a.Provider]; !ok {
		return Agent{}, fmt.Errorf("%w: provider %q not configured", ErrInvalidArgument, a.Provider)
	}
	now := s.clock().UTC()
	if a.ID == "" {
		a.ID = uuid.NewString()
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	if err := s.repo.Save(ctx, a); err != nil {
		return Agent{}, err
	}
	return a, nil
}

func (s *Service) Get(ctx context.Context, tenantID, id string) (Agent, error) {
	if tenantID == "" || id == "" {
		return Agent{}, ErrInvalidArgument
	}
	return s.repo.GetByID(ctx, tenantID, id)
}

func (s *Service) List(ctx context.Context, tenantID string) ([]Agent, error) {
	if tenantID == "" {
		return nil, ErrInvalidArgument
	}
	return s.repo.ListByTenant(ctx, tenantID)
}

// ForAgent resolves the dispatch route for an agent. Inactive agents do not
// route; a pending call for a deactivated agent fails at dispatch rather
// than silently going out.
func (s *Service) ForAgent(ctx context.Context, tenantID, agentID string) (schedcalls.AgentRoute, error) {
	a, err := s.repo.GetByID(ctx, tenantID, agentID)
	if err != nil {
		return schedcalls.AgentRoute{}, err
	}
	if !a.IsActive {
		return schedcalls.AgentRoute{}, fmt.Errorf("agents: agent %s is inactive", agentID)
	}
	p, ok := s.providers[a.Provider]
	if !ok {
		return schedcalls.AgentRoute{}, fmt.Errorf("agents: provider %q not configured", a.Provider)
	}
	return schedcalls.AgentRoute{
		Provider:        p,
		ExternalAgentID: a.ExternalAgentID,
		FromNumber:      a.FromNumber,
	}, nil
}
