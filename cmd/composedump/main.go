// Command composedump runs a small scripted composition for a fixed
// number of frames and dumps the resulting node tree to stdout.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/loomkit/compose/applier"
	"github.com/loomkit/compose/compose"
	"github.com/loomkit/compose/runtime"
	"github.com/loomkit/compose/slot"
	"github.com/loomkit/compose/snapshot"
)

func init() {
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage:", os.Args[0], "<frames>")
		flag.PrintDefaults()
		fmt.Fprintln(os.Stderr, `
Builds a one-item-per-frame list composition, advances it through <frames>
frames, and dumps the resulting node tree and slot table size.`)
	}
}

const counterObj snapshot.ObjectID = 1

var seenCountLoc = compose.Location{File: "cmd/composedump/main.go", Line: 40}

func main() {
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Error: one argument needed")
		flag.Usage()
		os.Exit(2)
	}
	frames, err := strconv.Atoi(flag.Arg(0))
	if err != nil || frames < 1 {
		fmt.Fprintln(os.Stderr, "Error: <frames> must be a positive integer")
		os.Exit(2)
	}

	table := slot.NewChunked()
	app := applier.NewMemApplier()
	h := runtime.New(table, app, 2)
	c := h.Composer()

	root := func() {
		c.WithGroup(slot.Key(1), func() {
			v, _ := c.Snapshot().Read(counterObj)
			n, _ := v.(int)

			seen := c.Remember(seenCountLoc, func() interface{} { return 0 })
			sv, _ := seen.Value()
			last := sv.(int)
			for i := last; i < n; i++ {
				h.RecordEvent(applier.Event{
					Kind:     applier.EventInsert,
					ParentID: 0,
					Index:    i,
					NodeID:   applier.NodeId(i + 1),
				})
			}
			if n > last {
				seen.Set(n)
			}
		})
	}

	if err := h.Compose(root); err != nil {
		fmt.Fprintln(os.Stderr, "Error: initial compose:", err)
		os.Exit(1)
	}

	for i := 0; i < frames; i++ {
		if res := h.Mutate(func(snap *snapshot.Snapshot) {
			v, _ := snap.Read(counterObj)
			n, _ := v.(int)
			snap.Write(counterObj, n+1)
		}); res != snapshot.Success {
			fmt.Fprintln(os.Stderr, "Error: mutate conflict on frame", i)
			os.Exit(1)
		}
		if _, err := h.Update(int64(i)); err != nil {
			fmt.Fprintln(os.Stderr, "Error: update on frame", i, ":", err)
			os.Exit(1)
		}
	}

	fmt.Print(app.DumpTree(nil))
	fmt.Fprintf(os.Stderr, "slot table length: %d\n", table.Len())
}
