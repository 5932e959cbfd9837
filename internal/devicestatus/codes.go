package devicestatus

//UnknownErrorMessage Message of codes missing from the table.
const UnknownErrorMessage = "Unknown Error"

var errorMessages = map[int]string{
	100: "Temperature Sensor Disconnected",
	200: "Humidity Sensor Error",
	201: "Humidity Sensor Over Range",
	300: "Steamer Sensor Error",
	400: "Chamber Overheat Warning",
	401: "Steamer Overheat Warning",
	500: "Over Humidity Warning",
	600: "SD Card Init Failed",
	601: "SD Card Open Failed",
	602: "SD Card Write Failed",
	700: "USB Not Ready",
	701: "USB Transfer Failed",
}

//Message Human readable message of an error code.
func Message(code int) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}
	return UnknownErrorMessage
}
