// Package main provides the entry point for the BoxHunt CLI.
//
// BoxHunt collects cardboard-box images from image APIs, curated manifests
// and websites, filters them by quality, drops near-duplicates and keeps a
// crash-safe ledger of every decision so interrupted runs can be resumed.
//
// Usage:
//
//	boxhunt crawl [keywords...]
//	boxhunt crawl-site <url>
//	boxhunt resume [--retry-failed]
//
// See --help for all available options.
package main

func main() {
	Execute()
}
