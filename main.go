package main

import (
	"github.com/stevedore-sh/stevedore/cmd"
)

var (
	version string
	commit  string
	date    string
)

func main() {
	cmd.Execute(version, commit, date)
}
