// Command hoard is the bulk concurrent downloader CLI: it reads a URL
// list, scrapes each supported site for the media behind it, and
// downloads everything with rate limiting, resume, hashing and dedup.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	app := cli.NewApp()
	app.Name = "hoard"
	app.Usage = "bulk concurrent downloader for file hosts"
	app.Version = version
	app.Flags = appFlags
	app.Action = runAction
	app.Commands = []cli.Command{
		{
			Name:   "hash",
			Usage:  "fingerprint an existing folder and record the hashes",
			Flags:  hashFlags,
			Action: hashAction,
		},
		{
			Name:   "sort",
			Usage:  "sort a finished download folder into media categories",
			Flags:  sortFlags,
			Action: sortAction,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "hoard:", err)
		os.Exit(1)
	}
}
