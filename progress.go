package vpk

// Reporter receives human-readable progress strings during long operations:
// per hash record and per file CRC check while verifying, and per chunk
// file while writing a chunked archive (spec §5). It
// carries no notion of percentage or cancellation — callers wanting a
// transport (a progress bar, a log stream) adapt Reporter themselves; that
// adaptation is explicitly out of scope for this package (spec §1).
type Reporter interface {
	Report(message string)
}

// ReporterFunc adapts a plain function to Reporter.
type ReporterFunc func(message string)

func (f ReporterFunc) Report(message string) { f(message) }

// NopReporter discards every message. It is the default when no Reporter is
// configured.
type NopReporter struct{}

func (NopReporter) Report(string) {}
