package config

type Storage struct {
	SQLite *SQLiteStorage `mapstructure:"sqlite,omitempty"`
	Memory bool           `mapstructure:"memory,omitempty"`
}

type SQLiteStorage struct {
	Path string `mapstructure:"path,omitempty"`
}
