package main

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jvmcore/engine/pkg/bmb"
	"github.com/jvmcore/engine/pkg/cache"
	"github.com/jvmcore/engine/pkg/engine"
	"github.com/jvmcore/engine/pkg/fetch"
	"github.com/jvmcore/engine/pkg/image"
	"github.com/jvmcore/engine/pkg/mem"
	"github.com/jvmcore/engine/pkg/microcode"
	"github.com/jvmcore/engine/pkg/trace"
	"github.com/jvmcore/engine/pkg/watchdog"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "jvmcore",
		Short: "Cycle-accurate JVM hardware bytecode processor simulator",
	}

	rootCmd.AddCommand(newRunCmd(), newStepCmd(), newTraceCmd())
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadROM reads a gob-encoded microcode.ROM. The real toolchain's
// bit-packed encoding is explicitly out of scope for pkg/microcode, so
// the CLI reads the same plain-data representation tests build in code,
// persisted with the same encoding/gob idiom pkg/trace uses for
// checkpoints.
func loadROM(path string) (*microcode.ROM, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("jvmcore: open rom: %w", err)
	}
	defer f.Close()
	var rom microcode.ROM
	if err := gob.NewDecoder(f).Decode(&rom); err != nil {
		return nil, fmt.Errorf("jvmcore: decode rom: %w", err)
	}
	return &rom, nil
}

// buildCores wires n engines against one shared SimMemory backing the
// loaded image, each with its own private caches per C8-C10's per-core
// ownership.
func buildCores(img *image.Image, rom *microcode.ROM, n int) (*bmb.SimMemory, []*engine.Engine) {
	bus := bmb.NewSimMemory(len(img.Bytes()))
	copy(bus.Bytes, img.Bytes())

	cores := make([]*engine.Engine, n)
	for i := 0; i < n; i++ {
		e := engine.NewEngine(i, bus, mem.NullIOPort{},
			cache.NewMethodCache(fetch.JBCSize), &cache.ObjectCache{}, &cache.ArrayCache{})
		e.ROM = *rom
		e.Recorder = trace.NewRecorder()
		cores[i] = e
	}
	return bus, cores
}

func newRunCmd() *cobra.Command {
	var cores int
	var useWatchdog bool
	var maxCycles uint64
	var romPath string

	cmd := &cobra.Command{
		Use:   "run [image]",
		Short: "Load a boot image and step every core until halt or --max-cycles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			img, err := image.Load(f)
			if err != nil {
				return err
			}
			rom, err := loadROM(romPath)
			if err != nil {
				return err
			}

			_, engines := buildCores(img, rom, cores)
			sup := engine.NewSupervisor(engines, engines[0].Mem.Bus)

			if useWatchdog {
				wd, err := watchdog.New()
				if err != nil {
					return fmt.Errorf("jvmcore: starting watchdog: %w", err)
				}
				defer wd.Close()
				sup.Watchdog = wd
			}

			ctx := context.Background()
			var cycle uint64
			for !sup.Halted() {
				if maxCycles != 0 && cycle >= maxCycles {
					fmt.Printf("stopped after %d cycles without halting\n", cycle)
					break
				}
				if err := sup.Step(ctx); err != nil {
					return fmt.Errorf("jvmcore: cycle %d: %w", cycle, err)
				}
				cycle++
			}

			for _, e := range engines {
				fmt.Printf("core %d: PC=%d A=%d B=%d SP=%d halted=%v\n",
					e.ID, e.State.PC, e.State.A, e.State.B, e.State.SP, e.Halted)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&cores, "cores", 1, "Number of cores to run")
	cmd.Flags().BoolVar(&useWatchdog, "watchdog", false, "Launch an external bus-hang watchdog")
	cmd.Flags().Uint64Var(&maxCycles, "max-cycles", 0, "Stop after this many cycles (0 = unbounded)")
	cmd.Flags().StringVar(&romPath, "rom", "", "Path to a gob-encoded microcode ROM")
	cmd.MarkFlagRequired("rom")
	return cmd
}

func newStepCmd() *cobra.Command {
	var romPath string

	cmd := &cobra.Command{
		Use:   "step [image]",
		Short: "Step one core a cycle at a time, dumping registers after each press of Enter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			img, err := image.Load(f)
			if err != nil {
				return err
			}
			rom, err := loadROM(romPath)
			if err != nil {
				return err
			}

			_, engines := buildCores(img, rom, 1)
			e := engines[0]

			scanner := bufio.NewScanner(os.Stdin)
			fmt.Println("jvmcore step debugger: Enter to step, q<Enter> to quit")
			for {
				dumpRegisters(e)
				if e.Halted {
					return nil
				}
				fmt.Print("> ")
				if !scanner.Scan() {
					return nil
				}
				if scanner.Text() == "q" {
					return nil
				}
				if err := e.Step(); err != nil {
					return fmt.Errorf("jvmcore: step: %w", err)
				}
			}
		},
	}
	cmd.Flags().StringVar(&romPath, "rom", "", "Path to a gob-encoded microcode ROM")
	cmd.MarkFlagRequired("rom")
	return cmd
}

func dumpRegisters(e *engine.Engine) {
	fmt.Printf("PC=%-5d JPC=%-6d A=%-10d B=%-10d SP=%-3d halted=%v\n",
		e.State.PC, e.Fetch.JPC, e.State.A, e.State.B, e.State.SP, e.Halted)
}

func newTraceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trace [checkpoint]",
		Short: "Replay a saved checkpoint's per-core register snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ckpt, err := trace.LoadCheckpoint(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("checkpoint at cycle %d, %d cores\n", ckpt.Cycle, len(ckpt.Cores))
			for i, s := range ckpt.Cores {
				fmt.Printf("core %d: PC=%d A=%d B=%d SP=%d\n", i, s.PC, s.A, s.B, s.SP)
			}
			return nil
		},
	}
	return cmd
}
