package session

import "fmt"

func LatestKey(sessionID string) string {
	return fmt.Sprintf("session:%s:latest", sessionID)
}

func HistoryKey(sessionID string) string {
	return fmt.Sprintf("session:%s:history", sessionID)
}

func StatusKey(sessionID string) string {
	return fmt.Sprintf("session:%s:status", sessionID)
}

func LastCallKey(sessionID string) string {
	return fmt.Sprintf("session:%s:last_call", sessionID)
}

func LastHashKey(sessionID string) string {
	return fmt.Sprintf("session:%s:last_hash", sessionID)
}

func LockKey(sessionID string) string {
	return fmt.Sprintf("session:%s:lock", sessionID)
}

func GuideStateKey(sessionID string) string {
	return fmt.Sprintf("session:%s:guide_state", sessionID)
}

func GuidePlanKey(sessionID string) string {
	return fmt.Sprintf("session:%s:guide_plan", sessionID)
}

func SolutionKey(sessionID string) string {
	return fmt.Sprintf("session:%s:solution_latest", sessionID)
}

func RateLimitKey(bucket string) string {
	return fmt.Sprintf("ratelimit:%s", bucket)
}
