package db

// Error wraps a driver or server-level failure. Callers decide whether to
// roll back; nothing at this layer retries.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return "database " + e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }
