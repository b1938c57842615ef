// Package work defines the job contract and the registry the heartbeat loop
// schedules from.
//
// # Jobs
//
// Every periodic task implements Job: a unique name, a nominal interval and a
// single Run entrypoint. JobType adapts a plain function to the contract so
// heterogeneous features all go through one Registry.
//
// # Due computation
//
// A job is due when it has no last-run entry or when at least its interval has
// elapsed since the last run:
//
//	due := !ok || now.Sub(lastRun) >= job.Interval()
//
// Registration seeds the entry with the registry clock's current time, so a job
// registered at t0 first runs at t0+interval. Reset removes the entry, which
// makes the job due on the next tick.
//
// Jobs that need a different rule implement Scheduler.
//
// # Ordering
//
// DueJobs returns jobs in registration order. The loop runs them sequentially
// and always calls MarkRan afterwards, whether Run returned an error, panicked
// or succeeded, so a failing job keeps its normal cadence instead of retrying in
// a tight loop.
package work
