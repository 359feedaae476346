package download

import "fmt"

// State is one step of a download's lifecycle: Idle, then zero or more Downloading, then exactly one of Success or
// Failed. Consumers handle it with a type switch.
type State interface {
	isState()
	String() string
}

type Idle struct{}

// Downloading reports progress of the current attempt. Before the first successful response URL is empty; each new
// attempt starts again from zero.
type Downloading struct {
	// Attempt is the 1-based index into Task.URLs of the URL being read, 0 before any response.
	Attempt    int
	URL        string
	BytesRead  int64
	TotalBytes int64
	// Percent is floor(BytesRead*100/TotalBytes) clamped to [0, 100], or 0 if the total is unknown.
	Percent int
}

type Success struct {
	Path  string
	URL   string
	Bytes int64
}

type FailureKind string

const (
	FailureNetwork      FailureKind = "network"
	FailureHTTPStatus   FailureKind = "http_status"
	FailureSizeMismatch FailureKind = "size_mismatch"
	FailureCancelled    FailureKind = "cancelled"
	FailureIO           FailureKind = "io"
	FailureInvalidTask  FailureKind = "invalid_task"
)

type Failed struct {
	Kind FailureKind
	// Reason is a human-readable description, suitable for display.
	Reason string
}

func (Idle) isState()        {}
func (Downloading) isState() {}
func (Success) isState()     {}
func (Failed) isState()      {}

func (Idle) String() string {
	return "Idle"
}

func (d Downloading) String() string {
	if d.Indeterminate() {
		return fmt.Sprintf("Downloading(%d bytes)", d.BytesRead)
	}
	return fmt.Sprintf("Downloading(%d%%)", d.Percent)
}

func (s Success) String() string {
	return fmt.Sprintf("Success(%s)", s.Path)
}

func (f Failed) String() string {
	return fmt.Sprintf("Failed(%s: %s)", f.Kind, f.Reason)
}

// Indeterminate returns true if the total size is unknown, in which case Percent is meaningless and the download
// should be shown as busy.
func (d Downloading) Indeterminate() bool {
	return d.TotalBytes <= 0
}

// IsTerminal returns true for Success and Failed.
func IsTerminal(s State) bool {
	switch s.(type) {
	case Success, Failed:
		return true
	default:
		return false
	}
}

// percent computes floor(read*100/total) clamped to [0, 100]; 0 when total is unknown.
func percent(read, total int64) int {
	if total <= 0 || read <= 0 {
		return 0
	}
	if read >= total {
		return 100
	}
	return int(read * 100 / total)
}
