// Copyright 2020 Grail Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"os"

	"github.com/grailbio/base/log"
	cli "github.com/urfave/cli/v2"
)

func newApp() *cli.App {
	return &cli.App{
		Name:            "bio-sv-evidence",
		Usage:           "Classify the reads supporting a structural variant",
		HideHelpCommand: true,
		Commands: []*cli.Command{
			evidenceCommand(),
			insertSizeCommand(),
			faidxCommand(),
		},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatalf("%v", err)
	}
	log.Debug.Printf("exiting")
}
