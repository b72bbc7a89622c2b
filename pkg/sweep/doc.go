/*
Package sweep runs the periodic reconciliation loops.

Two loops keep the system honest when no user request arrives:

ExpiryReconciler:
  - Finds challenges whose window elapsed without a judgment and fails
    them (reason timeout) through the engine
  - Re-drives settlement for challenges stuck in fail, covering crashes
    between the fail transition and the processor call

RetrySweeper:
  - Finds payment attempts whose backoff elapsed and retries them
    within their budget

Both loops are stateless tickers. All duplicate-firing safety lives in
the engine's conditional writes: running a sweep twice, or concurrently
with a user request, changes nothing beyond the first winner's effect.
RunOnce is exported so an external cron or an operator endpoint can
drive the identical code path.

# Usage

	expiry := sweep.NewExpiryReconciler(store, eng, clk, time.Minute)
	retry := sweep.NewRetrySweeper(store, eng, clk, time.Minute)

	expiry.Start()
	retry.Start()
	defer expiry.Stop()
	defer retry.Stop()
*/
package sweep
