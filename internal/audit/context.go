package audit

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
)

type ctxKey struct{}

const ginKey = "audit_client"

func WithClient(ctx context.Context, c *Client) context.Context {
	if c == nil {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, c)
}

func FromContext(ctx context.Context) *Client {
	if ctx == nil {
		return nil
	}
	c, _ := ctx.Value(ctxKey{}).(*Client)
	return c
}

// Emit sends an event on a detached context with a 2s budget. Failures are
// dropped.
func Emit(ctx context.Context, action, level string, details map[string]any) {
	c := FromContext(ctx)
	if c == nil {
		return
	}
	sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = c.Send(sctx, Event{Action: action, Level: level, Details: details})
}

// EmitTrade is Emit tagged with a trade id.
func EmitTrade(ctx context.Context, tradeID, action, level string, details map[string]any) {
	c := FromContext(ctx)
	if c == nil {
		return
	}
	sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = c.Send(sctx, Event{Action: action, Level: level, Details: details, TradeID: tradeID})
}

// Inject makes the client reachable from handlers and from the request
// context passed down to services.
func Inject(c *Client) gin.HandlerFunc {
	return func(gc *gin.Context) {
		if c != nil {
			gc.Set(ginKey, c)
			gc.Request = gc.Request.WithContext(WithClient(gc.Request.Context(), c))
		}
		gc.Next()
	}
}

func FromGin(gc *gin.Context) *Client {
	if gc == nil {
		return nil
	}
	v, ok := gc.Get(ginKey)
	if !ok {
		return nil
	}
	c, _ := v.(*Client)
	return c
}
