// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command rwscl-bench drives a single rwscl.RWMutex with a configurable mix
// of reader and writer participants and reports per-thread completion
// counts.
//
// Usage:
//
//	rwscl-bench <read-threads> <write-threads> <duration-s> <cs-us prio>...
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
// root.Flags via flagvar so they show up in rwscl-bench's usage output
// alongside the positional arguments.
var flags struct {
	Warmup      time.Duration `cmdline:"warmup,0,time to run before counting completions"`
	CyclesPerUS uint64        `cmdline:"cycles-per-us,1000,calibration used to convert the lock's cycle clock to wall time"`
}

var root = &cmdline.Command{
	Name:     "rwscl-bench",
	Short:    "Benchmark RW-SCL under a configurable reader/writer mix",
	Long:     "rwscl-bench spawns read-threads readers and write-threads writers against a single rwscl.RWMutex, each with its own critical-section length and scheduling priority, runs them for duration-s seconds, and reports how many acquisitions each one completed.",
	ArgsName: "<read-threads> <write-threads> <duration-s> <cs-us prio>...",
	ArgsLong: "Participants are listed writers first, then readers, each needing a (cs-us, prio) pair: cs-us is time held inside the lock, prio is the nice value its weight is derived from.",
	Runner:   cmdline.RunnerFunc(run),
}

func init() {
	if err := flagvar.RegisterFlagsInStruct(&root.Flags, "cmdline", &flags, nil, nil); err != nil {
		panic(err)
	}
}

func run(env *cmdline.Env, args []string) error {
	if len(args) < 3 {
		return env.UsageErrorf("rwscl-bench: requires at least <read-threads> <write-threads> <duration-s>")
	}
	readers, err := strconv.Atoi(args[0])
	if err != nil || readers < 0 {
		return env.UsageErrorf("rwscl-bench: invalid read-threads %q", args[0])
	}
	writers, err := strconv.Atoi(args[1])
	if err != nil || writers < 0 {
		return env.UsageErrorf("rwscl-bench: invalid write-threads %q", args[1])
	}
	durationS, err := strconv.ParseFloat(args[2], 64)
	if err != nil || durationS <= 0 {
		return env.UsageErrorf("rwscl-bench: invalid duration-s %q", args[2])
	}

	total := readers + writers
	pairs := args[3:]
	if len(pairs) != 2*total {
		return env.UsageErrorf("rwscl-bench: expected %d (cs-us prio) pairs, got %d values", total, len(pairs))
	}

	participants := make([]bench.Participant, total)
	for i := 0; i < total; i++ {
		csUS, err := strconv.Atoi(pairs[2*i])
		if err != nil {
			return env.UsageErrorf("rwscl-bench: invalid cs-us %q for thread %d", pairs[2*i], i)
		}
		prio, err := strconv.Atoi(pairs[2*i+1])
		if err != nil {
			return env.UsageErrorf("rwscl-bench: invalid prio %q for thread %d", pairs[2*i+1], i)
		}
		participants[i] = bench.Participant{Nice: prio, CSTime: time.Duration(csUS) * time.Microsecond}
	}

	clock := platform.MustNewClock(flags.CyclesPerUS)
	results := bench.RunRWSCL(clock, platform.DefaultTopology(), participants, writers, flags.Warmup, time.Duration(durationS*float64(time.Second)))
	bench.PrintResults(env.Stdout, results)
	return nil
}

func main() {
	cmdline.Main(root)
}
