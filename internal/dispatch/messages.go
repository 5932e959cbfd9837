package dispatch

import (
	"fmt"
	"strconv"
	"time"

	fbmessaging "firebase.google.com/go/v4/messaging"
	"github.com/sta1300/notifier-backend/internal/constants"
	"github.com/sta1300/notifier-backend/internal/utils"
)

//AlertTitle Notification title of error alerts.
const AlertTitle = "🔔 Stability Error Alert"

const (
	typeError        = "error"
	typeAnnouncement = "announcement"
	clickAction      = "FLUTTER_NOTIFICATION_CLICK"
	messageTTL       = time.Hour
)

//Content What is sent to every endpoint of one dispatch; only the token differs per message.
type Content struct {
	Title string
	Body  string
	Data  map[string]string
}

//AlertContent Content of an error alert.
func AlertContent(code int, message string, now time.Time) Content {
	return Content{
		Title: AlertTitle,
		Body:  fmt.Sprintf("Error %d: %s", code, message),
		Data: map[string]string{
			"errorCode":    strconv.Itoa(code),
			"errorMessage": message,
			"type":         typeError,
			"priority":     "high",
			"timestamp":    utils.ISOTimestamp(now),
		},
	}
}

//AnnouncementContent Content of an announcement.
func AnnouncementContent(a Announcement, now time.Time) Content {
	return Content{
		Title: a.Title,
		Body:  a.Body,
		Data: map[string]string{
			"type":         typeAnnouncement,
			"timestamp":    utils.ISOTimestamp(now),
			"click_action": clickAction,
		},
	}
}

//Message Builds the FCM message for one token, including Android and APNs delivery hints.
func (c Content) Message(token string) *fbmessaging.Message {
	ttl := messageTTL
	count := 1
	badge := 1

	data := make(map[string]string, len(c.Data))
	for k, v := range c.Data {
		data[k] = v
	}

	return &fbmessaging.Message{
		Token: token,
		Notification: &fbmessaging.Notification{
			Title: c.Title,
			Body:  c.Body,
		},
		Data: data,
		Android: &fbmessaging.AndroidConfig{
			Priority: "high",
			TTL:      &ttl,
			Notification: &fbmessaging.AndroidNotification{
				ChannelID:             constants.AndroidChannelID,
				Sound:                 "default",
				Priority:              fbmessaging.PriorityHigh,
				DefaultSound:          true,
				DefaultVibrateTimings: true,
				DefaultLightSettings:  true,
				NotificationCount:     &count,
			},
		},
		APNS: &fbmessaging.APNSConfig{
			Headers: map[string]string{
				"apns-priority":  "10",
				"apns-push-type": "alert",
			},
			Payload: &fbmessaging.APNSPayload{
				Aps: &fbmessaging.Aps{
					Alert: &fbmessaging.ApsAlert{
						Title: c.Title,
						Body:  c.Body,
					},
					Sound:            "default",
					Badge:            &badge,
					ContentAvailable: true,
					CustomData: map[string]interface{}{
						"interruption-level": "time-sensitive",
					},
				},
			},
		},
	}
}
