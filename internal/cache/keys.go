package cache

import "strings"

const (
	GlobalKeyPrefix = "mathquiz"
)

// GenerateCacheKey joins the prefix, service, object type and identifier with
// ":". Any params are joined by "_" and appended as a final segment.
func GenerateCacheKey(serviceName, objectType, identifier string, paramsKey ...string) string {
	baseKey := strings.Join([]string{GlobalKeyPrefix, serviceName, objectType, identifier}, ":")
	if len(paramsKey) > 0 {
		return baseKey + ":" + strings.Join(paramsKey, "_")
	}
	return baseKey
}

// ScoreKey addresses one checkpointed judgment score.
func ScoreKey(contentHash, mode, paramsHash string) string {
	return GenerateCacheKey("pipeline", "score", contentHash, mode, paramsHash)
}
