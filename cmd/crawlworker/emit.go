package main

import (
	"encoding/json"
	"fmt"
	"os"
)

// emit writes one structured stdout line: "<PREFIX> <json>\n", matching
// internal/crawljob.ParseLine's expectations exactly.
func emit(prefix string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(os.Stdout, "%s %s\n", prefix, data)
}

func emitProgress(current, total int64, stage, message string) {
	emit("PROGRESS", map[string]interface{}{
		"current": current, "total": total, "stage": stage, "message": message,
	})
}

func emitQueue(action, url string, depth int, host, reason string, queueSize int) {
	emit("QUEUE", map[string]interface{}{
		"action": action, "url": url, "depth": depth, "host": host,
		"reason": reason, "queue_size": queueSize,
	})
}

func emitProblem(kind, scope, target, message string) {
	emit("PROBLEM", map[string]interface{}{
		"kind": kind, "scope": scope, "target": target, "message": message,
	})
}

func emitMilestone(kind, scope, target, message string) {
	emit("MILESTONE", map[string]interface{}{
		"kind": kind, "scope": scope, "target": target, "message": message,
	})
}

func emitError(message string, fatal bool) {
	emit("ERROR", map[string]interface{}{"message": message, "fatal": fatal})
}
