package application

import (
	"context"
	"strconv"
	"time"
)

// NotificationKind names the event a student is told about.
type NotificationKind string

const (
	NotificationRequestSubmitted       NotificationKind = "allocation.request_submitted"
	NotificationRequestUpdated         NotificationKind = "allocation.request_updated"
	NotificationRequestCancelled       NotificationKind = "allocation.request_cancelled"
	NotificationRoomChangeRequested    NotificationKind = "allocation.room_change_requested"
	NotificationRequestApproved        NotificationKind = "allocation.request_approved"
	NotificationRequestRejected        NotificationKind = "allocation.request_rejected"
	NotificationAllocated              NotificationKind = "allocation.allocated"
	NotificationAllocatedDifferentRoom NotificationKind = "allocation.allocated_different_room"
	NotificationDeallocated            NotificationKind = "allocation.deallocated"
)

// Notification is a fire-and-forget message for one student.
type Notification struct {
	StudentID  string
	Kind       NotificationKind
	Payload    map[string]string
	OccurredAt time.Time
}

// Notifier delivers notifications. Errors are logged by the caller and never
// fail the operation that produced the notification.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, notification Notification) error

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, notification Notification) error {
	return f(ctx, notification)
}

func placementPayload(prefix string, p Placement, payload map[string]string) {
	payload[prefix+"block"] = p.Block
	payload[prefix+"room_number"] = p.RoomNumber
	payload[prefix+"bed"] = strconv.Itoa(p.Bed)
}
