// Package domain describes pre-flight quota decisions for chargeable operations.
package domain

import (
	"strings"

	plandomain "github.com/smallbiznis/mediavault/internal/plan/domain"
	usagedomain "github.com/smallbiznis/mediavault/internal/usage/domain"
)

type OperationKind string

const (
	OperationImageUpload OperationKind = "image_upload"
	OperationVideoUpload OperationKind = "video_upload"
	OperationTransform   OperationKind = "transform"
)

// VideoRenditions is the number of derived renditions produced per video upload.
const VideoRenditions = 3

// TransformationUnits is the transformation cost of one operation of kind k.
func (k OperationKind) TransformationUnits() int64 {
	switch k {
	case OperationVideoUpload:
		return VideoRenditions
	case OperationTransform:
		return 1
	default:
		return 0
	}
}

func (k OperationKind) Valid() bool {
	switch k {
	case OperationImageUpload, OperationVideoUpload, OperationTransform:
		return true
	default:
		return false
	}
}

// KindForMediaType maps an upload media type ("image", "video/mp4") to its operation.
// An empty media type is treated as an image upload.
func KindForMediaType(mediaType string) (OperationKind, error) {
	mediaType = strings.ToLower(strings.TrimSpace(mediaType))
	if idx := strings.IndexByte(mediaType, '/'); idx >= 0 {
		mediaType = mediaType[:idx]
	}
	switch mediaType {
	case "", "image":
		return OperationImageUpload, nil
	case "video":
		return OperationVideoUpload, nil
	default:
		return "", ErrInvalidOperation
	}
}

type Outcome string

const (
	OutcomeAllow            Outcome = "allow"
	OutcomeReject           Outcome = "reject"
	OutcomeAllowWithWarning Outcome = "allow_with_warning"
)

type Reason string

const (
	ReasonNone                        Reason = ""
	ReasonFileTooLarge                Reason = "file_too_large"
	ReasonStorageLimitExceeded        Reason = "storage_limit_exceeded"
	ReasonTransformationLimitExceeded Reason = "transformation_limit_exceeded"
)

type Decision struct {
	Outcome   Outcome       `json:"outcome"`
	Reason    Reason        `json:"reason,omitempty"`
	Kind      OperationKind `json:"kind"`
	SizeBytes int64         `json:"sizeBytes"`

	// TransformationUnits is what the caller should record once the operation
	// completes. It is zero when the transformation check degraded to a warning.
	TransformationUnits int64                     `json:"transformationUnits"`
	Limits              plandomain.PlanLimits     `json:"limits"`
	Usage               usagedomain.UsageTracking `json:"-"`
}

func (d Decision) Allowed() bool {
	return d.Outcome != OutcomeReject
}

// Err returns the sentinel matching a rejection, or nil.
func (d Decision) Err() error {
	if d.Outcome != OutcomeReject {
		return nil
	}
	switch d.Reason {
	case ReasonFileTooLarge:
		return ErrFileTooLarge
	case ReasonStorageLimitExceeded:
		return ErrStorageLimitExceeded
	case ReasonTransformationLimitExceeded:
		return ErrTransformationLimitExceeded
	default:
		return ErrQuotaExceeded
	}
}
