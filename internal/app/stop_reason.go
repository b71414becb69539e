package app

// StopReason is logged when the process shuts down.
type StopReason string

const (
	StopUnknown    StopReason = "unknown"
	StopSIGINT     StopReason = "sigint"
	StopSIGTERM    StopReason = "sigterm"
	StopFatalError StopReason = "fatal_error"
	StopWorkDone   StopReason = "work_done"
	// StopPairEnded means the watchdog role left its loop after a shutdown
	// request from the application.
	StopPairEnded StopReason = "pair_ended"
)
