package inject

import (
	"context"

	"go.viam.com/navtester/services/lifecycle"
)

// LifecycleService represents a fake instance of a lifecycle service.
type LifecycleService struct {
	lifecycle.Service
	AvailableFunc func(ctx context.Context, service string) (bool, error)
	GetStateFunc  func(ctx context.Context, node string) (string, error)
	ManageFunc    func(ctx context.Context, manager string, command lifecycle.Command) (bool, error)
}

// Available calls the injected AvailableFunc or the real version.
func (svc *LifecycleService) Available(ctx context.Context, service string) (bool, error) {
	if svc.AvailableFunc == nil {
		return svc.Service.Available(ctx, service)
	}
	return svc.AvailableFunc(ctx, service)
}

// GetState calls the injected GetStateFunc or the real version.
func (svc *LifecycleService) GetState(ctx context.Context, node string) (string, error) {
	if svc.GetStateFunc == nil {
		return svc.Service.GetState(ctx, node)
	}
	return svc.GetStateFunc(ctx, node)
}

// Manage calls the injected ManageFunc or the real version.
func (svc *LifecycleService) Manage(ctx context.Context, manager string, command lifecycle.Command) (bool, error) {
	if svc.ManageFunc == nil {
		return svc.Service.Manage(ctx, manager, command)
	}
	return svc.ManageFunc(ctx, manager, command)
}
