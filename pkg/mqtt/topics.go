package mqtt

import "fmt"

// Availability payloads, published retained
const (
	PayloadOnline  = "online"
	PayloadOffline = "offline"
)

// Command names accepted on the command topic
const (
	CommandRefresh = "refresh"
	CommandPreview = "preview"
	CommandRestore = "restore"
	CommandStorm   = "storm"
)

// AvailabilityTopic carries the retained online/offline state of a service
// Pattern: rpilight/{service}/availability
func AvailabilityTopic(service string) string {
	return fmt.Sprintf("rpilight/%s/availability", service)
}

// ChannelsTopic carries the retained channel levels of a service
// Pattern: rpilight/{service}/channels
func ChannelsTopic(service string) string {
	return fmt.Sprintf("rpilight/%s/channels", service)
}

// CommandTopic receives remote commands for a service
// Pattern: rpilight/{service}/command
func CommandTopic(service string) string {
	return fmt.Sprintf("rpilight/%s/command", service)
}
