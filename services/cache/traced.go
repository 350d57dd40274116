package cachesvc

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/trezcool/mycourse/core"
)

const tracerName = "github.com/trezcool/mycourse/services/cache"

type tracedCache struct {
	next   core.Cache
	tracer trace.Tracer
}

// Traced records a span for every call to c.
func Traced(c core.Cache) core.Cache {
	return &tracedCache{next: c, tracer: otel.Tracer(tracerName)}
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (c *tracedCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	ctx, span := c.tracer.Start(ctx, "cache.get", trace.WithAttributes(attribute.String("cache.key", key)))
	found, err := c.next.Get(ctx, key, dest)
	span.SetAttributes(attribute.Bool("cache.hit", found))
	finish(span, err)
	return found, err
}

func (c *tracedCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	ctx, span := c.tracer.Start(ctx, "cache.set", trace.WithAttributes(
		attribute.String("cache.key", key),
		attribute.Int64("cache.ttl_ms", ttl.Milliseconds()),
	))
	err := c.next.Set(ctx, key, value, ttl)
	finish(span, err)
	return err
}

func (c *tracedCache) Delete(ctx context.Context, keys ...string) error {
	ctx, span := c.tracer.Start(ctx, "cache.delete", trace.WithAttributes(attribute.StringSlice("cache.keys", keys)))
	err := c.next.Delete(ctx, keys...)
	finish(span, err)
	return err
}
