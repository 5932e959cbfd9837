// Package registry keeps the push endpoint registrations: one document per device (or token when the
// device is unknown) in the fcm_tokens collection.
package registry

import (
	"context"
	"strings"
	"time"
)

const (
	//DefaultDeviceID Device id stored when the app does not send one.
	DefaultDeviceID = "unknown"
	//DefaultPlatform Platform stored when the app does not send one.
	DefaultPlatform = "android"
	//DefaultAppVersion App version stored when the app does not send one.
	DefaultAppVersion = "1.0.0"
)

//Registration DB entity for push endpoint registration.
type Registration struct {
	ID          string     `firestore:"-" json:"id"`
	Token       string     `firestore:"token" json:"-"`
	DeviceID    string     `firestore:"deviceId" json:"deviceId"`
	Platform    string     `firestore:"platform" json:"platform"`
	AppVersion  string     `firestore:"appVersion" json:"appVersion"`
	CreatedAt   time.Time  `firestore:"createdAt" json:"createdAt"`
	LastUpdated time.Time  `firestore:"lastUpdated" json:"lastUpdated"`
	LastUsed    *time.Time `firestore:"lastUsed,omitempty" json:"lastUsed,omitempty"`
	Active      bool       `firestore:"active" json:"active"`
}

//Request Registration request. Empty optional fields mean "keep what is stored".
type Request struct {
	Token      string
	DeviceID   string
	Platform   string
	AppVersion string
}

//DocumentID Device id when known, the token itself otherwise.
func (r Request) DocumentID() string {
	if r.DeviceID != "" {
		return r.DeviceID
	}
	return r.Token
}

//Merge Applies the request on top of the stored registration (nil when there is none yet). createdAt is
//only ever set on creation.
func Merge(id string, existing *Registration, req Request, now time.Time) Registration {
	var reg Registration
	if existing != nil {
		reg = *existing
	} else {
		reg = Registration{
			DeviceID:   DefaultDeviceID,
			Platform:   DefaultPlatform,
			AppVersion: DefaultAppVersion,
			CreatedAt:  now,
		}
	}

	reg.ID = id
	reg.Token = req.Token
	if req.DeviceID != "" {
		reg.DeviceID = req.DeviceID
	}
	if req.Platform != "" {
		reg.Platform = req.Platform
	}
	if req.AppVersion != "" {
		reg.AppVersion = req.AppVersion
	}
	if reg.CreatedAt.IsZero() {
		reg.CreatedAt = now
	}
	reg.LastUpdated = now
	reg.Active = true

	return reg
}

func (r Registration) fields() map[string]interface{} {
	m := map[string]interface{}{
		"token":       r.Token,
		"deviceId":    r.DeviceID,
		"platform":    r.Platform,
		"appVersion":  r.AppVersion,
		"createdAt":   r.CreatedAt,
		"lastUpdated": r.LastUpdated,
		"active":      r.Active,
	}
	if r.LastUsed != nil {
		m["lastUsed"] = *r.LastUsed
	}
	return m
}

//LooksLikeFCMToken Loose check of the FCM registration token shape; used for logging only.
func LooksLikeFCMToken(token string) bool {
	return strings.Contains(token, "APA91b")
}

//WriteOutcome Result of one independent registry write.
type WriteOutcome struct {
	ID  string
	Op  string
	Err error
}

const (
	//OpDelete Registration deleted.
	OpDelete = "delete"
	//OpMarkDelivered lastUsed/active refreshed.
	OpMarkDelivered = "mark-delivered"
)

//Failed Outcomes which ended with an error.
func Failed(outcomes []WriteOutcome) []WriteOutcome {
	var failed []WriteOutcome
	for _, o := range outcomes {
		if o.Err != nil {
			failed = append(failed, o)
		}
	}
	return failed
}

//Repository Storage of registrations.
type Repository interface {
	// List returns all registrations ordered by id.
	List(ctx context.Context) ([]Registration, error)
	FindByDevice(ctx context.Context, deviceID string) ([]Registration, error)
	// Upsert merges the request into the registration with given id atomically.
	Upsert(ctx context.Context, id string, req Request, now time.Time) (Registration, error)
	// Delete is idempotent: deleting a missing registration succeeds.
	Delete(ctx context.Context, id string) error
	// DeleteMany deletes independently and reports every outcome.
	DeleteMany(ctx context.Context, ids []string) []WriteOutcome
	MarkDelivered(ctx context.Context, id string, at time.Time) error
}
