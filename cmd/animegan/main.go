// Package main provides the animegan command line tool.
//
// Usage:
//
//	animegan catalogue render -o README.md
//	animegan dataset stats --root ~/data/animefacedataset/images
//	animegan train --config config.yaml
//
// See --help for all available options.
package main

func main() {
	Execute()
}
