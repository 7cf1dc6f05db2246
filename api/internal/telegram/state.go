package telegram

import "sync"

// lastSample remembers the most recent sample per chat so /status and
// /report work without an argument.
var lastSample sync.Map // chatID -> sample id

func setLast(chatID int64, id string) { lastSample.Store(chatID, id) }

func getLast(chatID int64) string {
	if v, ok := lastSample.Load(chatID); ok {
		if s, _ := v.(string); s != "" {
			return s
		}
	}
	return ""
}
