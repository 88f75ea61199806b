package main

import (
	"flag"
	"fmt"
)

const version = "1.0.0"

// Flags holds all command-line flags
type Flags struct {
	Config *string
	Input  *string // Input file path (overrides input section of config)
	Method *string // Load method override (append-only, upsert, truncate-insert)

	Version *bool
	Help    *bool

	// Config Creation
	CreateConfigPG     *bool
	CreateConfigMySQL  *bool
	CreateConfigMSSQL  *bool
	CreateConfigSQLite *bool
}

// ParseFlags разбирает аргументы командной строки
func ParseFlags() *Flags {
	flags := &Flags{
		Config: flag.String("config", "config.yaml", "Path to YAML config file"),
		Input:  flag.String("input", "", "Input file (JSON Lines, .gz/.zst supported); overrides config"),
		Method: flag.String("method", "", "Load method override: append-only, upsert, truncate-insert"),

		Version: flag.Bool("version", false, "Print version and exit"),
		Help:    flag.Bool("help", false, "Print help and exit"),

		CreateConfigPG:     flag.Bool("create-config-pg", false, "Create sample PostgreSQL config"),
		CreateConfigMySQL:  flag.Bool("create-config-mysql", false, "Create sample MySQL config"),
		CreateConfigMSSQL:  flag.Bool("create-config-mssql", false, "Create sample MS SQL config"),
		CreateConfigSQLite: flag.Bool("create-config-sqlite", false, "Create sample SQLite config"),
	}

	flag.Parse()
	return flags
}

// PrintVersion выводит версию
func PrintVersion() {
	fmt.Printf("dwsink version %s\n", version)
}

// PrintHelp выводит справку
func PrintHelp() {
	fmt.Println(`dwsink - batch loader of JSON Lines event streams into SQL warehouses

Usage:
  dwsink --config config.yaml               Load from input defined in config
  cat events.jsonl | dwsink --config c.yaml Load from stdin
  dwsink --config c.yaml --input data.jsonl.gz

Flags:
  --config PATH          Path to YAML config (default: config.yaml)
  --input PATH           Input file override (.gz/.zst decompressed transparently)
  --method NAME          Load method override: append-only, upsert, truncate-insert
  --version              Print version
  --help                 Print this help

Config templates:
  --create-config-pg     Create sample PostgreSQL config.yaml
  --create-config-mysql  Create sample MySQL config.yaml
  --create-config-mssql  Create sample MS SQL config.yaml
  --create-config-sqlite Create sample SQLite config.yaml`)
}
