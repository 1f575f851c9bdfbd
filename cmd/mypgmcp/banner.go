package main

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// isTTY returns true if the given file descriptor is a terminal.
func isTTY(fd uintptr) bool {
	return term.IsTerminal(int(fd))
}

func stderrFd() uintptr {
	return os.Stderr.Fd()
}

var bannerLines = []string{
	`                                                      `,
	`  _ __ ___  _   _ _ __   __ _ _ __ ___   ___ _ __     `,
	` | '_ ' _ \| | | | '_ \ / _' | '_ ' _ \ / __| '_ \    `,
	` | | | | | | |_| | |_) | (_| | | | | | | (__| |_) |   `,
	` |_| |_| |_|\__, | .__/ \__, |_| |_| |_|\___| .__/    `,
	`            |___/|_|    |___/               |_|       `,
	`                                                      `,
}

// bannerColors is a bold green to blue gradient, one entry per line.
var bannerColors = []string{
	"\033[1;32m",
	"\033[1;32m",
	"\033[1;92m",
	"\033[1;36m",
	"\033[1;34m",
	"\033[1;94m",
	"\033[0m",
}

// printBanner prints the mypgmcp ASCII art banner, colored when useColor is true.
func printBanner(w io.Writer, useColor bool) {
	for i, line := range bannerLines {
		if !useColor {
			fmt.Fprintln(w, line)
			continue
		}
		fmt.Fprintf(w, "%s%s\033[0m\n", bannerColors[i%len(bannerColors)], line)
	}
}
