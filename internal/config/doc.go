// Package config loads the framelink YAML configuration.
//
// Values of the form ${VAR} are expanded from the environment before
// parsing. Durations use Go syntax ("5s", "200ms").
package config
