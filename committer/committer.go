package committer

// Committer decides when the spout pushes acknowledged offsets to the source.
type Committer interface {
	// Due reports whether a commit should run now. A true result starts a new
	// period.
	Due() bool
	RecordAcked(count int)
}
