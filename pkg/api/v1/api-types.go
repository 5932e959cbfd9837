package v1

import "time"

/*
This files contains request/response structs for all endpoints. The structs have to be changed in
backward-compatible way and when it's not possible, copied to `v2` and changed there.
*/

//RegisterTokenRequest Request for RegisterToken function
type RegisterTokenRequest struct {
	Token      string `json:"token" validate:"required"`
	DeviceID   string `json:"deviceId"`
	Platform   string `json:"platform"`
	AppVersion string `json:"appVersion"`
}

//RegisterTokenResponse Response for RegisterToken function
type RegisterTokenResponse struct {
	Message      string    `json:"message"`
	RegisteredAt time.Time `json:"registeredAt"`
}

//DeviceStatusResponse Response for DeviceStatus function. The request is the raw status object sent by the
//device, it must contain the Stability block.
type DeviceStatusResponse struct {
	Message string `json:"message"`
}

//AnnouncementRequest Request for Announcement function
type AnnouncementRequest struct {
	Title       string `json:"title" validate:"required"`
	Body        string `json:"body" validate:"required"`
	TargetToken string `json:"targetToken"`
}

//AnnouncementStats Delivery counts of an announcement.
type AnnouncementStats struct {
	Success int `json:"success"`
	Failure int `json:"failure"`
}

//AnnouncementResponse Response for Announcement function
type AnnouncementResponse struct {
	Message string            `json:"message"`
	Stats   AnnouncementStats `json:"stats"`
}

//ErrorResponse Body of every non 2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}
