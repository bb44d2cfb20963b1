package ring

import "chordkv/internal/logger"

// Option customizes a State at construction time.
type Option func(*State)

// WithLogger sets the logger used for ring state operations.
func WithLogger(l logger.Logger) Option {
	return func(st *State) {
		st.logger = l
	}
}
