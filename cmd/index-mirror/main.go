// Package main provides the index-mirror command.
//
// index-mirror walks the "Index of /" pages served under a root URL and
// downloads every file it finds, mirroring the remote tree locally.
//
// Usage:
//
//	index-mirror https://files.example.com/pub/ -o ./mirror -t 4
//	index-mirror history https://files.example.com/pub/ --state-dir ./state
package main

func main() {
	Execute()
}
