/*
Package scheduler runs the maintenance sweeps spec §4.4/§4.5 define but
leave to a caller to invoke on a schedule: time-series retention
(delete_old), CDC log retention (delete_before), and continuous
aggregate rollups.

Scheduler holds no state beyond an Engine reference and a Config; every
sweep reads whatever it needs from the engine on each cycle, so a crash
and restart just picks the schedule back up.

	sched := scheduler.NewScheduler(eng, scheduler.Config{
		Interval:         time.Minute,
		TSRetention:      30 * 24 * time.Hour,
		CDCRetentionKeep: 1_000_000,
	})
	sched.Start()
	defer sched.Stop()

CDCRetentionKeep and TSRetention are independently optional: a zero
value disables that sweep, leaving the other to run on its own.
*/
package scheduler
