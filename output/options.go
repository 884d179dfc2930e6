package output

// Format specifies the diagnostic output format of the check command.
type Format string

const (
	FormatText  Format = "text"
	FormatJSON  Format = "json"
	FormatSARIF Format = "sarif"
)

// Options configures diagnostic rendering.
type Options struct {
	Verbosity VerbosityLevel
	Format    Format

	// AbsolutePaths emits absolute rather than project-relative paths.
	AbsolutePaths bool

	// FullModulePath emits fully qualified exception class names.
	FullModulePath bool
}

// NewDefaultOptions returns options with the defaults the CLI starts from.
func NewDefaultOptions() *Options {
	return &Options{
		Verbosity: VerbosityDefault,
		Format:    FormatText,
	}
}
