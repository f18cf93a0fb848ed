package otel

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// NewResource describes the service to exporters. extra is added as string
// attributes next to the service name.
func NewResource(serviceName string, extra map[string]string) *resource.Resource {
	attrs := make([]attribute.KeyValue, 0, len(extra)+1)
	attrs = append(attrs, semconv.ServiceName(serviceName))
	attrs = append(attrs, attributesFromMap(extra)...)

	return resource.NewWithAttributes(semconv.SchemaURL, attrs...)
}
