package inject

import (
	"context"

	"go.viam.com/navtester/action"
	"go.viam.com/navtester/services/route"
)

// RouteService represents a fake instance of a route service.
type RouteService struct {
	route.Service
	AvailableFunc            func(ctx context.Context, actionName string) (bool, error)
	ComputeRouteFunc         func(ctx context.Context, req route.Request) (*action.Handle[route.Result], error)
	ComputeAndTrackRouteFunc func(
		ctx context.Context,
		req route.Request,
		onFeedback func(route.FeedbackEvent),
	) (*action.Handle[route.Result], error)
}

// Available calls the injected AvailableFunc or the real version.
func (svc *RouteService) Available(ctx context.Context, actionName string) (bool, error) {
	if svc.AvailableFunc == nil {
		return svc.Service.Available(ctx, actionName)
	}
	return svc.AvailableFunc(ctx, actionName)
}

// ComputeRoute calls the injected ComputeRouteFunc or the real version.
func (svc *RouteService) ComputeRoute(ctx context.Context, req route.Request) (*action.Handle[route.Result], error) {
	if svc.ComputeRouteFunc == nil {
		return svc.Service.ComputeRoute(ctx, req)
	}
	return svc.ComputeRouteFunc(ctx, req)
}

// ComputeAndTrackRoute calls the injected ComputeAndTrackRouteFunc or the real version.
func (svc *RouteService) ComputeAndTrackRoute(
	ctx context.Context,
	req route.Request,
	onFeedback func(route.FeedbackEvent),
) (*action.Handle[route.Result], error) {
	if svc.ComputeAndTrackRouteFunc == nil {
		return svc.Service.ComputeAndTrackRoute(ctx, req, onFeedback)
	}
	return svc.ComputeAndTrackRouteFunc(ctx, req, onFeedback)
}
