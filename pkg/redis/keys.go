package redis

import "fmt"

// ChannelsKey returns the key for the last channel levels of a service (hash)
// Pattern: rpilight:{service}:channels
func ChannelsKey(service string) string {
	return fmt.Sprintf("rpilight:%s:channels", service)
}

// StatusKey returns the key for the controller status document of a service (string)
// Pattern: rpilight:{service}:status
func StatusKey(service string) string {
	return fmt.Sprintf("rpilight:%s:status", service)
}
