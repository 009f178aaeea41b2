// Package config defines the optional settings file of plug-power and provides
// helpers to load, validate and save it in YAML format.
//
// The file only supplies defaults: an explicit --host always wins.
package config
