package transport

import (
	"fmt"
	"strings"
)

const topicPrefix = "/topic/session/"

const (
	ActionPlay  = "play"
	ActionPause = "pause"
	ActionSeek  = "seek"
	ActionSync  = "sync"
	ActionNote  = "note"
)

// TopicDestination is the per-session broadcast topic.
func TopicDestination(sessionID string) string {
	return topicPrefix + sessionID
}

// SessionFromTopic is the inverse of TopicDestination.
func SessionFromTopic(destination string) (string, bool) {
	sessionID, ok := strings.CutPrefix(destination, topicPrefix)
	return sessionID, ok && sessionID != ""
}

// CommandDestination is where a session command is published.
func CommandDestination(sessionID, action string) string {
	return fmt.Sprintf("/app/session/%s/%s", sessionID, action)
}
