package service

import (
	apperrors "lxmchat/internal/errors"
	"lxmchat/internal/models"
)

// UserFacingError is the single most-recent error slot the presentation
// layer may display. Last error wins; the presentation layer clears it
// explicitly.
type UserFacingError struct {
	Title   string              `json:"title"`
	Message string              `json:"message"`
	Kind    apperrors.ErrorCode `json:"kind"`
}

// Observer receives optimistic message surfacing and status updates. The
// in-memory state an observer maintains is a cache of the durable store and
// is reconciled with the same monotonic-rank rule, so the two never
// disagree in an unsafe direction.
type Observer interface {
	OnMessage(msg *models.Message)
	OnStatusChange(id int64, status models.DeliveryStatus)
	OnError(err UserFacingError)
}

// NopObserver discards all notifications.
type NopObserver struct{}

func (NopObserver) OnMessage(*models.Message)                   {}
func (NopObserver) OnStatusChange(int64, models.DeliveryStatus) {}
func (NopObserver) OnError(UserFacingError)                     {}
