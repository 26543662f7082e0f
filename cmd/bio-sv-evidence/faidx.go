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
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/svevidence/encoding/fasta"
	cli "github.com/urfave/cli/v2"
)

func runFaidx(c *cli.Context) (err error) {
	if c.NArg() != 1 {
		return errors.E(errors.Invalid, "faidx takes exactly one FASTA path")
	}
	ctx := vcontext.Background()
	path := c.Args().First()
	in, err := file.Open(ctx, path)
	if err != nil {
		return err
	}
	defer file.CloseAndReport(ctx, in, &err)
	out, err := file.Create(ctx, path+".fai")
	if err != nil {
		return err
	}
	defer file.CloseAndReport(ctx, out, &err)
	if err = fasta.GenerateIndex(out.Writer(ctx), in.Reader(ctx)); err != nil {
		return err
	}
	log.Printf("wrote %s.fai", path)
	return nil
}

func faidxCommand() *cli.Command {
	return &cli.Command{
		Name:      "faidx",
		Usage:     "Write the .fai index of an uncompressed FASTA file",
		ArgsUsage: "fasta",
		Action:    runFaidx,
	}
}
