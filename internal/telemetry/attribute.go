package telemetry

import (
	"chordkv/internal/domain"

	"go.opentelemetry.io/otel/attribute"
)

// IdAttributes renders id in three representations under prefix, so traces
// and resource metadata can be inspected however is most convenient.
func IdAttributes(prefix string, id domain.ID) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(prefix+".dec", id.ToBigInt().String()),
		attribute.String(prefix+".hex", id.ToHexString(true)),
		attribute.String(prefix+".bin", id.ToBinaryString(true)),
	}
}
