// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command uscl-bench drives a single uscl.Mutex with a configurable set of
// weighted participants and reports per-thread completion/ban counts.
//
// Usage:
//
//	uscl-bench <nthreads> <duration-s> <cs-us non-cs-us prio>...
package main

import (
	"strconv"
	"time"

	"github.com/nviradia/scl/bench"
	"github.com/nviradia/scl/internal/cmdline"
	"github.com/nviradia/scl/internal/flagvar"
	"github.com/nviradia/scl/platform"
)

// flags holds the harness's optional tuning knobs, registered against
// root.Flags via flagvar so they show up in uscl-bench's usage output
// alongside the positional arguments.
var flags struct {
	Warmup      time.Duration `cmdline:"warmup,0,time to run before counting completions/bans"`
	CyclesPerUS uint64        `cmdline:"cycles-per-us,1000,calibration used to convert the lock's cycle clock to wall time"`
}

var root = &cmdline.Command{
	Name:     "uscl-bench",
	Short:    "Benchmark the u-scl fairlock under configurable contention",
	Long:     "uscl-bench spawns nthreads goroutines against a single uscl.Mutex, each with its own critical-section length and scheduling priority, runs them for duration-s seconds, and reports how many acquisitions and bans each one saw.",
	ArgsName: "<nthreads> <duration-s> <cs-us non-cs-us prio>...",
	ArgsLong: "nthreads is the number of participants. duration-s is how long to run. Each participant needs a (cs-us, non-cs-us, prio) triple: cs-us is time held inside the lock, non-cs-us is time spent outside it between acquisitions, and prio is the nice value its weight is derived from.",
	Runner:   cmdline.RunnerFunc(run),
}

func init() {
	if err := flagvar.RegisterFlagsInStruct(&root.Flags, "cmdline", &flags, nil, nil); err != nil {
		panic(err)
	}
}

func run(env *cmdline.Env, args []string) error {
	if len(args) < 2 {
		return env.UsageErrorf("uscl-bench: requires at least <nthreads> <duration-s>")
	}
	nthreads, err := strconv.Atoi(args[0])
	if err != nil || nthreads <= 0 {
		return env.UsageErrorf("uscl-bench: invalid nthreads %q", args[0])
	}
	durationS, err := strconv.ParseFloat(args[1], 64)
	if err != nil || durationS <= 0 {
		return env.UsageErrorf("uscl-bench: invalid duration-s %q", args[1])
	}

	triples := args[2:]
	if len(triples) != 3*nthreads {
		return env.UsageErrorf("uscl-bench: expected %d (cs-us non-cs-us prio) triples, got %d values", nthreads, len(triples))
	}

	participants := make([]bench.Participant, nthreads)
	for i := 0; i < nthreads; i++ {
		csUS, err := strconv.Atoi(triples[3*i])
		if err != nil {
			return env.UsageErrorf("uscl-bench: invalid cs-us %q for thread %d", triples[3*i], i)
		}
		nonCSUS, err := strconv.Atoi(triples[3*i+1])
		if err != nil {
			return env.UsageErrorf("uscl-bench: invalid non-cs-us %q for thread %d", triples[3*i+1], i)
		}
		prio, err := strconv.Atoi(triples[3*i+2])
		if err != nil {
			return env.UsageErrorf("uscl-bench: invalid prio %q for thread %d", triples[3*i+2], i)
		}
		participants[i] = bench.Participant{
			Nice:      prio,
			CSTime:    time.Duration(csUS) * time.Microsecond,
			NonCSTime: time.Duration(nonCSUS) * time.Microsecond,
		}
	}

	clock := platform.MustNewClock(flags.CyclesPerUS)
	results := bench.RunUSCL(clock, participants, flags.Warmup, time.Duration(durationS*float64(time.Second)))
	bench.PrintResults(env.Stdout, results)
	return nil
}

func main() {
	cmdline.Main(root)
}
