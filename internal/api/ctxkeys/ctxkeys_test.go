package ctxkeys

import (
	"context"
	"testing"
)

func TestWithValue_RoundTrip(t *testing.T) {
	t.Parallel()

	ctx := WithValue(context.Background(), UserID, "api-client")
	if got, _ := ctx.Value(UserID).(string); got != "api-client" {
		t.Errorf("expected api-client, got %q", got)
	}
}

func TestKeyType_NoCollisionWithPlainString(t *testing.T) {
	t.Parallel()

	ctx := context.WithValue(context.Background(), "user_id", "plain") //nolint:staticcheck
	if got := ctx.Value(UserID); got != nil {
		t.Errorf("typed key must not collide with a plain string key, got %v", got)
	}
}
