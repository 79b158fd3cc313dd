package main

import (
	"github.com/electrolux-oss/infrawallet-sub000/internal/buildinfo"
	"github.com/electrolux-oss/infrawallet-sub000/internal/cli"
	"github.com/electrolux-oss/infrawallet-sub000/internal/logging"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func init() {
	logging.SetupBaseLogger()
	buildinfo.Version = Version
	buildinfo.Commit = Commit
	buildinfo.BuildDate = BuildDate
}

func main() {
	cli.Execute()
}
