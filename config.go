package aiologic

import "github.com/x42005e1f/aiologic/lowlevel"

// SetPerfectFairness switches the process-wide wait-queue discipline:
// true selects eager removal of cancelled waiters (strict FIFO
// wakeups), false the default tombstone-and-compact mode.
func SetPerfectFairness(on bool) {
	cfg := *lowlevel.CurrentConfig()
	cfg.PerfectFairness = on
	lowlevel.SetConfig(cfg)
}

// SetCheckpoints enables or disables success-path scheduler yields for
// green- and async-class runtimes.
func SetCheckpoints(green, async bool) {
	cfg := *lowlevel.CurrentConfig()
	cfg.GreenCheckpoints = green
	cfg.AsyncCheckpoints = async
	lowlevel.SetConfig(cfg)
}
