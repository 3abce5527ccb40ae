package config

import (
	"github.com/spf13/pflag"
)

// RegisterFlags declares the command-line overrides on fs, defaulting to
// the values in Default.
func RegisterFlags(fs *pflag.FlagSet) {
	def := Default()

	fs.IntP("resources", "n", def.NumResources, "Number of resources available")
	fs.IntP("projects", "p", def.NumProjects, "Number of projects")
	fs.Duration("interval", def.Interval, "Pause between allocation passes")
	fs.Bool("wake-on-enqueue", false, "Run an allocation pass as soon as a task is enqueued")
	fs.String("metrics-addr", def.MetricsAddr, "Prometheus listen address, empty to disable")
	fs.String("redis-addr", def.RedisAddr, "Redis address for the event journal, empty to disable")
	fs.String("report", def.ReportSpec, "Cron spec of the status report")
	fs.String("log-level", def.LogLevel, "Log level (debug, info, warn, error)")
}

// ApplyFlags copies onto c only the flags set explicitly on the command line,
// so values from the file and the environment survive flag defaults.
func (c *Config) ApplyFlags(fs *pflag.FlagSet) error {
	var err error

	fs.Visit(func(f *pflag.Flag) {
		if err != nil {
			return
		}

		switch f.Name {
		case "resources":
			c.NumResources, err = fs.GetInt(f.Name)
		case "projects":
			c.NumProjects, err = fs.GetInt(f.Name)
		case "interval":
			c.Interval, err = fs.GetDuration(f.Name)
		case "wake-on-enqueue":
			c.WakeOnEnqueue, err = fs.GetBool(f.Name)
		case "metrics-addr":
			c.MetricsAddr, err = fs.GetString(f.Name)
		case "redis-addr":
			c.RedisAddr, err = fs.GetString(f.Name)
		case "report":
			c.ReportSpec, err = fs.GetString(f.Name)
		case "log-level":
			c.LogLevel, err = fs.GetString(f.Name)
		}
	})

	return err
}
