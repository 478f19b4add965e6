// Package scheduler triggers periodic jobs on robfig/cron.
//
// Every schedule carries a run guard: when a trigger fires while the previous
// run of the same schedule is still in flight, the trigger is skipped and
// logged instead of queued.
package scheduler
