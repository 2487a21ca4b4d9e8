package migration

// WithRunID overrides the generated run identifier.
func WithRunID(id string) Options {
	return func(o *options) {
		o.runID = id
	}
}
