package bus

// Init selects where a new subscription starts reading.
type Init int

const (
	// InitOldest starts at the first packet still stored.
	InitOldest Init = iota
	// InitMostRecent starts at the latest stored packet.
	InitMostRecent
	// InitAwaitNew skips everything already stored.
	InitAwaitNew
)

func (i Init) String() string {
	switch i {
	case InitOldest:
		return "OLDEST"
	case InitMostRecent:
		return "MOST_RECENT"
	case InitAwaitNew:
		return "AWAIT_NEW"
	default:
		return "UNKNOWN"
	}
}

// Iter selects how a subscription advances.
type Iter int

const (
	// IterNext delivers every packet in order.
	IterNext Iter = iota
	// IterNewest jumps to the latest packet on every wakeup, skipping older ones.
	IterNewest
)

func (i Iter) String() string {
	switch i {
	case IterNext:
		return "NEXT"
	case IterNewest:
		return "NEWEST"
	default:
		return "UNKNOWN"
	}
}

// ReadOptions positions a subscription.
type ReadOptions struct {
	Init Init
	Iter Iter
	// MinSeq skips packets whose transport sequence is below it. Zero disables
	// the filter.
	MinSeq uint64
}

// LogLevel orders log packets by severity; lower values are more severe.
type LogLevel int

const (
	LogCrit LogLevel = iota
	LogErr
	LogWarn
	LogInfo
	LogDbg
)

var logLevelNames = []string{"CRIT", "ERR", "WARN", "INFO", "DBG"}

func (l LogLevel) String() string {
	if l < LogCrit || l > LogDbg {
		return "UNKNOWN"
	}
	return logLevelNames[l]
}

// ParseLogLevel maps a level name onto its value.
func ParseLogLevel(name string) (LogLevel, bool) {
	for i, n := range logLevelNames {
		if n == name {
			return LogLevel(i), true
		}
	}
	return 0, false
}
