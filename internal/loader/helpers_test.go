package loader

import "github.com/OCAP2/framereplay/internal/config"

func configSource(c Config, location string) config.SourceConfig {
	return config.SourceConfig{
		Encoding: c.Encoding,
		Location: location,
		Columns:  c.Columns,
	}
}
