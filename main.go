/*
Copyright (C) 2026  LogUnit Contributors

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/
package main

import (
	"flag"
	"fmt"

	"github.com/dc0d/onexit"
	"github.com/launix-de/logunit/logunit"
)

func main() {
	fmt.Print(`logunit Copyright (C) 2026  LogUnit Contributors
    This program comes with ABSOLUTELY NO WARRANTY;
    This is free software, and you are welcome to redistribute it
    under certain conditions;
`)

	memory := flag.Bool("memory", false, "use an in-memory segment log (data lost on exit)")
	logPath := flag.String("log-path", "data", "base directory for on-disk logs")
	maxCache := flag.String("max-cache", "256MiB", "write-through cache size bound")
	noVerify := flag.Bool("no-verify", false, "skip per-record checksum verification on read")
	flag.Parse()

	opts := []logunit.Option{
		logunit.WithLogPath(*logPath),
		logunit.WithMaxCache(*maxCache),
	}
	if *memory {
		opts = append(opts, logunit.WithMemory())
	}
	if *noVerify {
		opts = append(opts, logunit.WithNoVerify())
	}

	cfg, err := logunit.NewConfig(opts...)
	if err != nil {
		panic(err)
	}

	unit, err := logunit.NewLogUnit(cfg, logunit.DefaultLogger())
	if err != nil {
		panic(err)
	}
	onexit.Register(func() { unit.Shutdown() })

	fmt.Printf("logunit listening on log-path=%q memory=%v\n", *logPath, *memory)
	select {}
}
