package model

// ScheduleWindow is an item's validity period. Instants are ISO-8601 strings
// as stored remotely; this layer does not normalize timezones or enforce
// start <= end.
type ScheduleWindow struct {
	StartISO string `json:"startISO"`
	EndISO   string `json:"endISO"`
}
