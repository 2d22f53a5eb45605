// Package retry provides exponential backoff for one-shot operations and the
// reconnect policy for long-running loops.
//
// # One-shot retries
//
//	err := retry.Do(ctx, retry.Quick(), func() error {
//	    return natsClient.Connect(ctx)
//	})
//
// Wrap an error with NonRetryable to stop retrying early.
//
// # Reconnect policy
//
// Policy is consulted by a loop that keeps failing and must decide whether to
// try again and how long to wait first. The zero value retries forever without
// delay:
//
//	p := retry.Policy{InitialDelay: 500 * time.Millisecond, MaxDelay: 30 * time.Second, Multiplier: 2}
//	for failures := 1; !p.Exhausted(failures); failures++ {
//	    if err := retry.Sleep(ctx, p.Delay(failures)); err != nil {
//	        return err
//	    }
//	    ...
//	}
//
// # Context Cancellation
//
// Do and Sleep stop as soon as the context is done, either during the
// operation or during the backoff wait.
package retry
