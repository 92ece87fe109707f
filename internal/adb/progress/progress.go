// Package progress reports walker activity (spec §4.8) to whatever the
// caller wants: nothing, a log line, or a terminal UI.
package progress

// Sink receives walker progress events. Start is called once with the
// total entry count from the counting pass; Advance is called once per
// processed entry (file, directory, or skip) with the entry count just
// processed (always 1, from the walker) and the entry's name; Done marks
// the end of the transaction.
type Sink interface {
	Start(total int)
	Advance(n int, current string)
	Done()
}

// NullSink discards every event; it is the default when no progress sink
// is configured.
type NullSink struct{}

func (NullSink) Start(int)           {}
func (NullSink) Advance(int, string) {}
func (NullSink) Done()               {}
