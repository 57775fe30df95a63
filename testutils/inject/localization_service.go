package inject

import (
	"context"

	"go.viam.com/navtester/referenceframe"
	"go.viam.com/navtester/services/localization"
)

// LocalizationService represents a fake instance of a localization service.
type LocalizationService struct {
	localization.Service
	SetInitialPoseFunc func(ctx context.Context, pose *referenceframe.PoseInFrame) error
	SubscribePoseFunc  func(ctx context.Context, onPose func(*referenceframe.PoseInFrame)) (func(), error)
}

// SetInitialPose calls the injected SetInitialPoseFunc or the real version.
func (svc *LocalizationService) SetInitialPose(ctx context.Context, pose *referenceframe.PoseInFrame) error {
	if svc.SetInitialPoseFunc == nil {
		return svc.Service.SetInitialPose(ctx, pose)
	}
	return svc.SetInitialPoseFunc(ctx, pose)
}

// SubscribePose calls the injected SubscribePoseFunc or the real version.
func (svc *LocalizationService) SubscribePose(
	ctx context.Context,
	onPose func(*referenceframe.PoseInFrame),
) (func(), error) {
	if svc.SubscribePoseFunc == nil {
		return svc.Service.SubscribePose(ctx, onPose)
	}
	return svc.SubscribePoseFunc(ctx, onPose)
}
