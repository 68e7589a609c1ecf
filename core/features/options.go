package features

// Default settings applied when a request leaves a control parameter out.
const (
	DefaultSort         = "-createdAt"
	DefaultVersionField = "__v"
	DefaultPage         = 1
	DefaultLimit        = 10
)

// Options tunes the defaults the stages fall back to.
type Options struct {
	// DefaultSort is a sort spec in wire form, used when `sort` is absent.
	DefaultSort string
	// VersionField is excluded when `fields` is absent. Empty disables the
	// default exclusion.
	VersionField string
	// DefaultLimit is the page size used when `limit` is absent or invalid.
	DefaultLimit int
	// MaxLimit clamps the page size. Zero means no ceiling.
	MaxLimit int
}

// Option mutates Options.
type Option func(*Options)

// DefaultOptions returns newest-first sorting, version-field exclusion and
// ten items per page, with no ceiling on the page size.
func DefaultOptions() Options {
	return Options{
		DefaultSort:  DefaultSort,
		VersionField: DefaultVersionField,
		DefaultLimit: DefaultLimit,
	}
}

// WithDefaultSort sets the sort spec used when `sort` is absent.
func WithDefaultSort(spec string) Option {
	return func(o *Options) {
		o.DefaultSort = spec
	}
}

// WithVersionField sets the field excluded when `fields` is absent.
func WithVersionField(name string) Option {
	return func(o *Options) {
		o.VersionField = name
	}
}

// WithDefaultLimit sets the page size used when `limit` is absent. Values
// below one are ignored.
func WithDefaultLimit(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.DefaultLimit = n
		}
	}
}

// WithMaxLimit caps the page size at n. Zero or less removes the cap.
func WithMaxLimit(n int) Option {
	return func(o *Options) {
		if n < 0 {
			n = 0
		}
		o.MaxLimit = n
	}
}

func buildOptions(opts []Option) Options {
	o := DefaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}
