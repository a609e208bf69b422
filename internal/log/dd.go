package log

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"
)

// WithDD подвязывает запись к активному трейсу: при наличии спана в ctx
// добавляет dd.trace_id и dd.span_id. Идентификаторы — строками, иначе
// коррелятор логов Datadog их не склеит.
func WithDD(ctx context.Context, base *zap.Logger, extra ...zap.Field) *zap.Logger {
	sp, ok := tracer.SpanFromContext(ctx)
	if !ok || sp == nil {
		return base.With(extra...)
	}
	sc, ok := sp.Context().(ddtrace.SpanContext)
	if !ok {
		return base.With(extra...)
	}
	extra = append(extra,
		zap.String("dd.trace_id", fmt.Sprintf("%d", sc.TraceID())),
		zap.String("dd.span_id", fmt.Sprintf("%d", sc.SpanID())))
	return base.With(extra...)
}
