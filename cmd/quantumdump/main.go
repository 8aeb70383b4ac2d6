// Command quantumdump drives a quantumalloc.Allocator through a synthetic
// workload and prints its stats. It stands in for the foreign-memory API
// callers this library has no wire protocol for: a way to exercise and
// inspect the allocator from outside a Go process embedding it.
package main

import (
	"fmt"
	"math/rand"
	"os"

	"github.com/spf13/cobra"

	"quantumalloc"
)

var (
	shared     bool
	secure     bool
	small      uint32
	medium     uint32
	large      uint32
	maxSlabs   uint32
	operations int
	maxSize    uint64
	seed       int64
)

var rootCmd = &cobra.Command{
	Use:     "quantumdump",
	Short:   "Run a synthetic workload against a quantumalloc.Allocator and print stats",
	Version: "0.1.0",
	RunE:    runWorkload,
}

func init() {
	rootCmd.Flags().BoolVar(&shared, "shared", false, "use the lock-free Shared registry variant")
	rootCmd.Flags().BoolVar(&secure, "secure", false, "zero-fill quanta on deallocate and slab recycle")
	rootCmd.Flags().Uint32Var(&small, "small", 64, "partition count for the small quantum tier")
	rootCmd.Flags().Uint32Var(&medium, "medium", 32, "partition count for the medium quantum tier")
	rootCmd.Flags().Uint32Var(&large, "large", 8, "partition count for the large quantum tier")
	rootCmd.Flags().Uint32Var(&maxSlabs, "max-slabs", 16, "slab slot count")
	rootCmd.Flags().IntVar(&operations, "ops", 100000, "number of allocate/deallocate operations to run")
	rootCmd.Flags().Uint64Var(&maxSize, "max-size", 1<<20, "largest request size the workload will generate")
	rootCmd.Flags().Int64Var(&seed, "seed", 1, "workload RNG seed")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runWorkload(cmd *cobra.Command, args []string) error {
	a, err := quantumalloc.New(quantumalloc.Config{
		Shared:               shared,
		Secure:               secure,
		SmallPartitionCount:  small,
		MediumPartitionCount: medium,
		LargePartitionCount:  large,
		MaxSlabs:             maxSlabs,
	})
	if err != nil {
		return fmt.Errorf("open allocator: %w", err)
	}
	defer a.Close()

	rng := rand.New(rand.NewSource(seed))
	live := make([]uint64, 0, operations)

	for i := 0; i < operations; i++ {
		if len(live) > 0 && rng.Intn(3) == 0 {
			j := rng.Intn(len(live))
			a.Deallocate(live[j])
			live[j] = live[len(live)-1]
			live = live[:len(live)-1]
			continue
		}
		size := uint64(rng.Int63n(int64(maxSize))) + 1
		addr := a.Allocate(size)
		if addr == 0 {
			continue
		}
		live = append(live, addr)
	}

	printStats(a)
	return nil
}

func printStats(a *quantumalloc.Allocator) {
	const orders = 65
	counts := make([]uint64, orders)
	sizes := make([]uint64, orders)
	a.Stats(counts, sizes)

	fmt.Printf("live allocations: %d, live bytes: %d\n\n", counts[0], sizes[0])
	fmt.Println("order   size        count       bytes")

	printed := 0
	for order := 1; order < orders; order++ {
		if counts[order] == 0 {
			continue
		}
		fmt.Printf("%5d  %10d  %10d  %10d\n", order, uint64(1)<<order, counts[order], sizes[order])
		printed++
	}
	if printed == 0 {
		fmt.Println("(no live allocations)")
	}
}
