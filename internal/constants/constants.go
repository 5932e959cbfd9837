package constants

//Noop Value of FIREBASE_DATABASE_URL / PROJECT_ID which selects no-op backends.
const Noop = "NOOP"

//CollectionRegistrations Name of the collection.
const CollectionRegistrations = "fcm_tokens"

//CollectionSystemLocks Name of the collection.
const CollectionSystemLocks = "system_locks"

//CollectionDeviceStatus Name of the collection.
const CollectionDeviceStatus = "device_status"

//DocNotificationLock Singleton document holding the notification cooldown lock.
const DocNotificationLock = "notification_lock"

//MutexScheduledAnnouncement Name of the distributed lock around the scheduled announcement.
const MutexScheduledAnnouncement = "scheduled-announcement"

//MutexDuplicateSweep Name of the distributed lock around the duplicate token sweep.
const MutexDuplicateSweep = "duplicate-token-sweep"

//FeedSourceRealtimeDB Source tag of status payloads built from the change feed.
const FeedSourceRealtimeDB = "RTDB_LISTENER"

//AndroidChannelID Notification channel registered by the mobile app.
const AndroidChannelID = "high_importance_channel_new"
