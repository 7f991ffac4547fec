package main

import (
	"fmt"
	"io"
	"math/big"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/satmihir/justlru/lru"
)

var demoCommand = &cli.Command{
	Name:  "demo",
	Usage: "walk through the cache and the memoizer",
	Action: func(c *cli.Context) error {
		return runDemo(c.App.Writer)
	},
}

var benchCommand = &cli.Command{
	Name:  "bench",
	Usage: "time a plain recursive function against its memoized version",
	Flags: []cli.Flag{
		&cli.IntFlag{Name: "n", Value: 32, Usage: "fibonacci argument"},
		&cli.IntFlag{Name: "capacity", Value: lru.DefaultMemoCapacity, Usage: "memo cache capacity"},
	},
	Action: func(c *cli.Context) error {
		return runBench(c.App.Writer, c.Int("n"), c.Int("capacity"))
	},
}

func runDemo(w io.Writer) error {
	cache, err := lru.New[int, int](2)
	if err != nil {
		return err
	}

	fmt.Fprintln(w, "contains 1:", cache.Contains(1))
	cache.Put(1, 1)
	fmt.Fprintln(w, "contains 1:", cache.Contains(1))
	cache.Put(2, 2)
	fmt.Fprintln(w, cache.Dump())

	steps := []struct {
		put bool
		key int
	}{
		{false, 1}, {true, 3}, {false, 2}, {true, 4}, {false, 1}, {false, 3}, {false, 4},
	}
	for _, s := range steps {
		if s.put {
			cache.Put(s.key, s.key)
			fmt.Fprintf(w, "put %d\n", s.key)
			continue
		}
		v, ok := cache.Get(s.key)
		fmt.Fprintf(w, "get %d -> %d %t\n", s.key, v, ok)
	}
	fmt.Fprintln(w, cache.Dump())
	fmt.Fprintln(w, cache)

	fib, err := newBigMemoFib(100)
	if err != nil {
		return err
	}
	for n := 1; n < 100; n++ {
		fmt.Fprintf(w, "fib(%d) = %d\n", n, fib.Call(n))
	}
	fmt.Fprintln(w, fib.CacheInfo())
	return nil
}

func runBench(w io.Writer, n, capacity int) error {
	fib, err := newMemoFib(capacity)
	if err != nil {
		return err
	}

	start := time.Now()
	plain := plainFib(n)
	plainElapsed := time.Since(start)

	start = time.Now()
	memo := fib.Call(n)
	memoElapsed := time.Since(start)

	fmt.Fprintf(w, "%-24s = %d -- %s\n", fmt.Sprintf("fib(%d)", n), plain, plainElapsed)
	fmt.Fprintf(w, "%-24s = %d -- %s\n", fmt.Sprintf("memo_fib(%d)", n), memo, memoElapsed)
	fmt.Fprintln(w, fib.CacheInfo())
	return nil
}

func plainFib(n int) uint64 {
	if n <= 2 {
		return 1
	}
	return plainFib(n-1) + plainFib(n-2)
}

func newMemoFib(capacity int) (*lru.Memoized[int, uint64], error) {
	var fib *lru.Memoized[int, uint64]
	var err error
	fib, err = lru.Memoize(func(n int) uint64 {
		if n <= 2 {
			return 1
		}
		return fib.Call(n-1) + fib.Call(n-2)
	}, lru.WithCapacity(capacity))
	return fib, err
}

// newBigMemoFib is newMemoFib for arguments past uint64 range.
func newBigMemoFib(capacity int) (*lru.Memoized[int, *big.Int], error) {
	var fib *lru.Memoized[int, *big.Int]
	var err error
	fib, err = lru.Memoize(func(n int) *big.Int {
		if n <= 2 {
			return big.NewInt(1)
		}
		return new(big.Int).Add(fib.Call(n-1), fib.Call(n-2))
	}, lru.WithCapacity(capacity))
	return fib, err
}
