// Package tui provides the live terminal dashboard for a running swarm.
//
// The dashboard polls a swarm snapshot on a short interval and shows:
//   - Overall progress (completed, failed and unallocated tasks)
//   - Each agent with its role, status, current task and success rate
//   - The coordination log, scrollable on its own tab
//
// It is read-only. Pressing 'q' or Ctrl+C closes the dashboard and reports
// that the operator asked for a stop; the caller decides how to stop.
//
// Usage:
//
//	stopRequested, err := tui.Run(sw)
//	if stopRequested {
//	    sw.Stop(ctx)
//	}
package tui
