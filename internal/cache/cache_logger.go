package cache

import (
	"context"
	"fmt"
	"log/slog"
)

// SafeDelete safely deletes cache keys with logging
func SafeDelete(ctx context.Context, helper *CacheHelper, keys ...string) {
	if err := helper.Delete(ctx, keys...); err != nil {
		slog.ErrorContext(ctx, "Failed to delete cache keys",
			"error", err,
			"keys", keys)
	}
}

func SessionSummaryKey(sessionID uint) string {
	return fmt.Sprintf("session:%d", sessionID)
}

func InvalidateSessionSummary(ctx context.Context, cm *CacheManager, sessionID uint) {
	SafeDelete(ctx, cm.Summary, SessionSummaryKey(sessionID))
}

func InvalidateTemplateCache(ctx context.Context, cm *CacheManager, templateID uint) {
	SafeDelete(ctx, cm.Template, fmt.Sprintf("id:%d", templateID))
}

func InvalidateQuestionCache(ctx context.Context, cm *CacheManager, questionID uint) {
	SafeDelete(ctx, cm.Question, fmt.Sprintf("id:%d", questionID))
}

func InvalidateUserCache(ctx context.Context, cm *CacheManager, userID string) {
	SafeDelete(ctx, cm.User, "id:"+userID)
}
