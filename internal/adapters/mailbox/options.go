package mailbox

// Option applies a configuration option to a Mailbox.
type Option func(*options)

type options struct {
	name string
}

// WithName labels the mailbox in metrics.
func WithName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.name = name
		}
	}
}
