package toolloop

import "errors"

var (
	// ErrMaxIterations indicates the model kept calling tools past Config.MaxIterations
	// without producing a final answer.
	ErrMaxIterations = errors.New("maximum tool iterations exceeded")

	// ErrGracefulShutdown indicates the loop was interrupted by context cancellation.
	ErrGracefulShutdown = errors.New("graceful shutdown requested")
)
