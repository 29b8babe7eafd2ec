package execution

import "errors"

const (
	DefaultMaxAccessListEntries = 1024
	DefaultMaxAccessListRounds  = 3
)

type Config struct {
	// MaxAccessListEntries bounds the accounts plus storage keys of an upstream access list.
	MaxAccessListEntries int `toml:"max-access-list-entries" yaml:"max-access-list-entries" cli:"execution.max-access-list-entries"`
	// VerifyAccessList re-executes with the entries that execution touched but the access list missed.
	VerifyAccessList bool `toml:"verify-access-list" yaml:"verify-access-list" cli:"execution.verify-access-list"`
	// MaxAccessListRounds is the number of executions allowed to complete the access list.
	MaxAccessListRounds int `toml:"max-access-list-rounds" yaml:"max-access-list-rounds" cli:"execution.max-access-list-rounds"`
}

func DefaultConfig() Config {
	return Config{
		MaxAccessListEntries: DefaultMaxAccessListEntries,
		VerifyAccessList:     true,
		MaxAccessListRounds:  DefaultMaxAccessListRounds,
	}
}

func (c *Config) Check() error {
	if c.MaxAccessListEntries <= 0 {
		return errors.New("max access list entries must be positive")
	}
	if c.VerifyAccessList && c.MaxAccessListRounds <= 0 {
		return errors.New("max access list rounds must be positive when verifying the access list")
	}
	return nil
}
