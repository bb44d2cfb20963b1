// Package trace attaches a per-request trace identifier, combining the
// originating node's ID with a time-sortable ULID, so a single lookup or
// replication chain can be followed across log lines from every node it
// touches.
package trace

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"

	"chordkv/internal/domain"
)

type traceKey struct{}

// GenerateTraceID builds a globally unique trace ID in the form
// <nodeID>-<ULID>.
func GenerateTraceID(nodeID string) string {
	t := time.Now().UTC()
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	id := ulid.MustNew(ulid.Timestamp(t), entropy)
	return fmt.Sprintf("%s-%s", nodeID, id.String())
}

// AttachTraceID generates a fresh trace ID anchored on nodeID and stores
// it in ctx, returning both the new context and the ID itself.
func AttachTraceID(ctx context.Context, nodeID domain.ID) (context.Context, string) {
	traceID := GenerateTraceID(nodeID.ToHexString(true))
	return context.WithValue(ctx, traceKey{}, traceID), traceID
}

// GetTraceID retrieves the trace ID carried by ctx, or "" if unset.
func GetTraceID(ctx context.Context) string {
	if v := ctx.Value(traceKey{}); v != nil {
		if id, ok := v.(string); ok && id != "" {
			return id
		}
	}
	return ""
}
