package application

import "context"

// UseCase is one application operation: a command in, a result or an error out.
// Implementations record their own span, RED metrics and use_case_done log line.
type UseCase[C any, R any] interface {
	Execute(ctx context.Context, cmd C) (R, error)
}
