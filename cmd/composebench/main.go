// Command composebench drives a scrolling lazy-list scenario and a
// recomposition scenario for a fixed number of frames and reports the
// lazy-list reuse pool's hit rate alongside the scheduler's fuel use.
package main

import (
	"fmt"
	"os"

	"github.com/loomkit/compose/applier"
	"github.com/loomkit/compose/lazylist"
	"github.com/loomkit/compose/runtime"
	"github.com/loomkit/compose/scheduler"
	"github.com/loomkit/compose/slot"
	"github.com/loomkit/compose/snapshot"
	"gopkg.in/urfave/cli.v1"
)

var (
	framesFlag = cli.IntFlag{
		Name:  "frames",
		Value: 200,
		Usage: "number of frames to drive both scenarios for",
	}
	itemsFlag = cli.Int64Flag{
		Name:  "items",
		Value: 5000,
		Usage: "total item count for the lazy-list scenario",
	}
	viewportFlag = cli.Float64Flag{
		Name:  "viewport",
		Value: 600,
		Usage: "viewport extent, in the same units as item size",
	}
	itemSizeFlag = cli.Float64Flag{
		Name:  "item-size",
		Value: 48,
		Usage: "fixed main-axis size of each list item",
	}
	scrollStepFlag = cli.Float64Flag{
		Name:  "scroll-step",
		Value: 30,
		Usage: "scroll delta dispatched once per frame",
	}
)

func main() {
	app := cli.NewApp()
	app.Name = "composebench"
	app.Usage = "benchmark the lazy-list reuse pool and the recompose scheduler"
	app.Flags = []cli.Flag{framesFlag, itemsFlag, viewportFlag, itemSizeFlag, scrollStepFlag}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(ctx *cli.Context) error {
	frames := ctx.Int(framesFlag.Name)
	if frames < 1 {
		return fmt.Errorf("--frames must be positive")
	}

	hits, misses := runLazyListScenario(
		frames,
		uint64(ctx.Int64(itemsFlag.Name)),
		ctx.Float64(viewportFlag.Name),
		ctx.Float64(itemSizeFlag.Name),
		ctx.Float64(scrollStepFlag.Name),
	)
	recomposed, fuelUsed, err := runRecomposeScenario(frames)
	if err != nil {
		return err
	}

	total := hits + misses
	rate := 0.0
	if total > 0 {
		rate = float64(hits) / float64(total)
	}
	fmt.Printf("lazy-list reuse: %d hits, %d misses (%.1f%% hit rate)\n", hits, misses, rate*100)
	fmt.Printf("recompose scheduler: %d scopes recomposed over %d frames, %d fuel units spent\n", recomposed, frames, fuelUsed)
	return nil
}

const reuseContentType = 0

// runLazyListScenario scrolls a long list forward by scrollStep every
// frame, detaching items that leave the visible window into a reuse pool
// and reattaching items that re-enter one, reporting the pool's
// cumulative hit/miss counts.
func runLazyListScenario(frames int, items uint64, viewport, itemSize, scrollStep float64) (hits, misses int64) {
	pool := lazylist.NewReusePool(0, 0)
	state := lazylist.NewState()
	cfg := lazylist.DefaultConfig()

	prevVisible := make(map[uint64]bool)
	for frame := 0; frame < frames; frame++ {
		state.DispatchScrollDelta(scrollStep)
		result := lazylist.Measure(items, state, viewport, itemSize, cfg, func(index uint64) lazylist.MeasuredItem {
			if !prevVisible[index] {
				pool.Reattach(reuseContentType)
			}
			return lazylist.MeasuredItem{
				Index:         index,
				Key:           index,
				ContentType:   reuseContentType,
				MainAxisSize:  itemSize,
				CrossAxisSize: itemSize,
			}
		})

		nowVisible := make(map[uint64]bool, len(result.VisibleItems))
		for _, it := range result.VisibleItems {
			nowVisible[it.Index] = true
		}
		for index := range prevVisible {
			if !nowVisible[index] {
				pool.Detach(reuseContentType, index)
			}
		}
		prevVisible = nowVisible
	}
	return pool.Stats()
}

const benchCounterObj snapshot.ObjectID = 1

// runRecomposeScenario mutates a single counter once per frame and counts
// how many times the one scope reading it actually re-runs, along with
// how much fuel the scheduler spent doing so.
func runRecomposeScenario(frames int) (recomposed, fuelUsed int, err error) {
	h := runtime.New(slot.NewChunked(), applier.NewMemApplier(), 2)
	c := h.Composer()

	counting := false
	body := func() {
		c.WithGroup(slot.Key(1), func() {
			if counting {
				recomposed++
			}
			c.Snapshot().Read(benchCounterObj)
		})
	}
	if err := h.Compose(body); err != nil {
		return recomposed, fuelUsed, fmt.Errorf("initial compose: %w", err)
	}
	counting = true

	for frame := 0; frame < frames; frame++ {
		if res := h.Mutate(func(snap *snapshot.Snapshot) {
			v, _ := snap.Read(benchCounterObj)
			n, _ := v.(int64)
			snap.Write(benchCounterObj, n+1)
		}); res != snapshot.Success {
			return recomposed, fuelUsed, fmt.Errorf("mutate conflict on frame %d", frame)
		}
		if _, err := h.Update(int64(frame)); err != nil {
			if err == scheduler.ErrFuelExhausted {
				fuelUsed += h.Scheduler().FuelUsed()
				return recomposed, fuelUsed, nil
			}
			return recomposed, fuelUsed, fmt.Errorf("update on frame %d: %w", frame, err)
		}
		fuelUsed += h.Scheduler().FuelUsed()
	}
	return recomposed, fuelUsed, nil
}
