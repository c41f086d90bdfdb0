package main

import (
	"fmt"
	"unsafe"
)

func sink(p *int, v int) { fmt.Println(*p, v) }

func safeAdd(a, b int) int { return a + b }

//ptafilter:unsafe
func raw(p *int) uintptr {
	return uintptr(unsafe.Pointer(p))
}

func mixed(p *int, q *int) int {
	x := *q
	//ptafilter:unsafe
	{
		sink(p, x)
	}
	return x
}

func peek(p *int) int {
	if p != nil {
		u := unsafe.Pointer(p)
		return *(*int)(u)
	}
	return 0
}

func id[T any](v T) T { return v }

func twice[T any](v T) T { return id(v) }

func useID() int { return id(3) + twice(4) }

func main() {
	n, m := 1, 2
	fmt.Println(safeAdd(n, m), raw(&n), mixed(&n, &m), peek(&m), useID())
}
