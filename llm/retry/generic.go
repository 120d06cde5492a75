package retry

import "context"

// Value runs fn under r and returns its typed result. The retryer only sees
// the error, so a value from a failed final attempt is discarded.
//
//	reply, err := retry.Value(r, ctx, func() (agentReply, error) {
//	    return user.Continue(ctx, history)
//	})
func Value[T any](r Retryer, ctx context.Context, fn func() (T, error)) (T, error) {
	var last T
	err := r.Do(ctx, func() error {
		v, err := fn()
		if err != nil {
			return err
		}
		last = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return last, nil
}
