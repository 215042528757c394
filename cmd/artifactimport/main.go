// Copyright (c) 2019 Siemens AG
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies of
// the Software, and to permit persons to whom the Software is furnished to do so,
// subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY, FITNESS
// FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR
// COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
// IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
// CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
//
// Author(s): Jonas Plum

// Package main implements the artifactimport command line tool that imports
// and extracts forensic artifacts collected from Windows systems.
//     import    Expand collected archives and import artifacts into tables
//     extract   Expand collected archives and extract artifacts
//     unpack    Copy extracted items from a SQLite archive to a directory
//     ls        List extracted items of a SQLite archive
//
// Usage
//
// Import event logs and CSV artifacts into a SQLite database
//     artifactimport import --config import.json --output artifacts.db --report report.csv collect.p7b
// Extract artifacts into a SQLite archive
//     artifactimport extract --extract '*.evtx' --extract-output artifacts.sqlar collect.zip
package main

import (
	"fmt"
	"os"

	"github.com/forensicanalysis/artifactimport/cmd"
)

func main() {
	if err := cmd.Root().Execute(); err != nil {
		fmt.Println("Error:", err)
		os.Exit(1)
	}
}
