package main

import "github.com/urfave/cli"

var appFlags = []cli.Flag{
	cli.StringFlag{
		Name:  "input-file, i",
		Usage: "read URLs from `FILE` (one per line, # comments, ---/=== groups)",
	},
	cli.StringFlag{
		Name:  "download-dir, d",
		Usage: "root destination `DIR` for completed files",
		Value: "Downloads",
	},
	cli.StringFlag{
		Name:  "appdata-dir",
		Usage: "`DIR` for the history database and logs",
		Value: "AppData",
	},
	cli.Int64Flag{
		Name:  "max-simultaneous-downloads, m",
		Usage: "global number of files downloading at once",
		Value: 5,
	},
	cli.Int64Flag{
		Name:  "max-simultaneous-downloads-per-domain",
		Usage: "per-domain number of files downloading at once",
		Value: 3,
	},
	cli.Float64Flag{
		Name:  "rate-limit",
		Usage: "per-domain requests per second (0 disables)",
		Value: 25,
	},
	cli.Float64Flag{
		Name:  "global-rate-limit",
		Usage: "global requests per second (0 disables)",
	},
	cli.StringFlag{
		Name:  "speed-limit",
		Usage: "download speed cap, e.g. 2MB (0 disables)",
	},
	cli.Float64Flag{
		Name:  "slow-download-speed",
		Usage: "abort transfers below this many bytes/second for 10s (0 disables)",
	},
	cli.DurationFlag{
		Name:  "download-delay",
		Usage: "sleep before each transfer",
	},
	cli.DurationFlag{
		Name:  "jitter",
		Usage: "extra uniform random sleep before each transfer",
	},
	cli.StringFlag{
		Name:  "required-free-space",
		Usage: "refuse downloads when destination free space drops below, e.g. 5GB",
		Value: "5GB",
	},
	cli.IntFlag{
		Name:  "download-attempts",
		Usage: "attempts per retry-eligible download error",
		Value: 5,
	},
	cli.BoolFlag{
		Name:  "disable-download-attempt-limit",
		Usage: "single attempt per download",
	},
	cli.StringSliceFlag{
		Name:  "skip-hosts",
		Usage: "never download from matching hosts",
	},
	cli.StringSliceFlag{
		Name:  "only-hosts",
		Usage: "only download from matching hosts",
	},
	cli.StringSliceFlag{
		Name:  "blocked-domains",
		Usage: "reject input URLs for these domains",
	},
	cli.StringFlag{
		Name:  "filename-regex-filter",
		Usage: "skip items whose filename matches `REGEX`",
	},
	cli.StringFlag{
		Name:  "exclude-before",
		Usage: "skip items uploaded before `YYYY-MM-DD`",
	},
	cli.StringFlag{
		Name:  "exclude-after",
		Usage: "skip items uploaded after `YYYY-MM-DD`",
	},
	cli.BoolFlag{
		Name:  "ignore-history",
		Usage: "disable the previously-downloaded skip and dedup",
	},
	cli.BoolFlag{
		Name:  "skip-download-mark-completed",
		Usage: "record items as complete without fetching bytes",
	},
	cli.StringFlag{
		Name:  "hashing",
		Usage: "off, in_place or post_download",
		Value: "in_place",
	},
	cli.StringSliceFlag{
		Name:  "add-hash",
		Usage: "extra hash algorithms (md5, sha256)",
	},
	cli.BoolTFlag{
		Name:  "auto-dedupe",
		Usage: "delete duplicates of previously downloaded files",
	},
	cli.BoolTFlag{
		Name:  "send-deleted-to-trash",
		Usage: "move deduped files to the OS trash instead of unlinking",
	},
	cli.BoolFlag{
		Name:  "disable-ranges",
		Usage: "never resume partial files",
	},
	cli.BoolFlag{
		Name:  "disable-file-timestamps",
		Usage: "leave file mtimes alone after download",
	},
	cli.BoolFlag{
		Name:  "sort-downloads",
		Usage: "sort completed files into media categories after the run",
	},
	cli.StringFlag{
		Name:  "cookies-dir",
		Usage: "`DIR` of Netscape cookie files to import",
	},
	cli.StringFlag{
		Name:  "browser-cookies",
		Usage: "browser cookie store `FILE` to import",
	},
	cli.StringFlag{
		Name:  "user-agent",
		Usage: "User-Agent header for all requests",
	},
	cli.BoolFlag{
		Name:  "disable-ssl-verification",
		Usage: "skip TLS certificate verification",
	},
	cli.BoolFlag{
		Name:  "no-ui",
		Usage: "disable progress bars",
	},
}

var hashFlags = []cli.Flag{
	cli.StringFlag{
		Name:  "appdata-dir",
		Usage: "`DIR` for the history database",
		Value: "AppData",
	},
	cli.StringSliceFlag{
		Name:  "add-hash",
		Usage: "extra hash algorithms (md5, sha256)",
	},
}

var sortFlags = []cli.Flag{
	cli.StringFlag{
		Name:  "dest",
		Usage: "sorted output `DIR` (defaults to the source)",
	},
	cli.BoolFlag{
		Name:  "keep-folder-structure",
		Usage: "preserve album folders inside each category",
	},
}
