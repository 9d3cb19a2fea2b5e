package installer

import (
	"errors"
	"fmt"
)

// ErrCheckFileMissing is wrapped by the ExtractionError returned when an archive
// unpacked cleanly but the catalog's check file is not where it should be.
var ErrCheckFileMissing = errors.New("check file not found after extraction")

// DownloadError reports a failed archive download: a transport error or a non-2xx status.
type DownloadError struct {
	URL    string
	Status int // HTTP status when the server answered, zero otherwise
	Err    error
}

func (e *DownloadError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("download %s: HTTP status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("download %s: %v", e.URL, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// ExtractionError reports an archive that could not be read or unpacked, or whose
// check file is missing afterwards.
type ExtractionError struct {
	Tool string
	Path string
	Err  error
}

func (e *ExtractionError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("extract %s (%s): %v", e.Tool, e.Path, e.Err)
	}
	return fmt.Sprintf("extract %s: %v", e.Tool, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// ExternalProcessError reports a spawned command (hdiutil, cp, make) that failed to
// start or exited non-zero.
type ExternalProcessError struct {
	Command  string
	ExitCode int // -1 when the process never produced an exit status
	Output   string
	Err      error
}

func (e *ExternalProcessError) Error() string {
	msg := fmt.Sprintf("command %q failed", e.Command)
	if e.ExitCode >= 0 {
		msg += fmt.Sprintf(" with exit code %d", e.ExitCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Output != "" {
		msg += "\nOutput: " + e.Output
	}
	return msg
}

func (e *ExternalProcessError) Unwrap() error { return e.Err }
