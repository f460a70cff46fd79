package main

import (
	"fmt"
	"log"
	"os"

	"github.com/adam-mcdaniel/garbage"
	"golang.org/x/exp/slog"
)

type point struct {
	X, Y int
}

func (p point) String() string {
	return fmt.Sprintf("(%d, %d)", p.X, p.Y)
}

func printValue[T any](h garbage.Handle[T]) {
	fmt.Println(h)
}

// sum takes ownership of both handles and releases them before returning
func sum(a, b garbage.Handle[int]) int {
	defer garbage.Release(a, b)
	return a.Value() + b.Value()
}

func integers(heap *garbage.Heap) {
	x := garbage.NewHandle(heap, 27)
	y := garbage.NewHandle(heap, 15)

	fmt.Println("sum:", sum(x.Copy(), y.Copy()))
	fmt.Println("count of x after sum:", x.Count())

	garbage.Release(x, y)
}

func closures(heap *garbage.Heap) {
	garbage.WithScope(func(s *garbage.Scope) {
		total := garbage.Track(s, garbage.NewHandle(heap, 0))
		add := garbage.Track(s, garbage.NewHandle(heap, func(n int) {
			*total.Ptr() += n
		}))

		for i := 1; i <= 10; i++ {
			add.Value()(i)
		}
		fmt.Println("total:", total.Value())
	})
}

func printables(heap *garbage.Heap) {
	origin := garbage.NewHandle(heap, point{})
	alias := origin.Copy()

	alias.Replace(point{X: 3, Y: 4})
	printValue(origin)

	origin.Release()
	printValue(alias)
	alias.Release()
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr))

	heap, err := garbage.New(logger, garbage.CreateOptions{})
	if err != nil {
		log.Fatalln(err)
	}

	integers(heap)
	closures(heap)
	printables(heap)

	fmt.Println(heap.BuildStatsString(true))
	heap.CheckHeap()
}
