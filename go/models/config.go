package models

// Config holds the options of the elfplan tool. Fields are tagged so a
// config.yaml can provide defaults that command line flags override.
type Config struct {
	Base         uint64 `yaml:"base"`
	Color        bool   `yaml:"color"`
	Demangle     bool   `yaml:"demangle"`
	MiniDebug    bool   `yaml:"minidebug"`
	RequireEntry bool   `yaml:"require_entry"`
	SkipEmpty    bool   `yaml:"skip_empty"`
	Verbose      bool   `yaml:"verbose"`

	Show []string `yaml:"show"`
}

// Shows reports whether the named report was requested. An empty Show
// list selects every report.
func (c *Config) Shows(name string) bool {
	if len(c.Show) == 0 {
		return true
	}
	for _, s := range c.Show {
		if s == name || s == "all" {
			return true
		}
	}
	return false
}
