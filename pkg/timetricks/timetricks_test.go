package timetricks

import (
	"fmt"
	"time"
)

func ExampleTrimClock() {
	t := time.Date(2021, time.April, 3, 10, 30, 15, 99, time.UTC)
	fmt.Println(TrimClock(t).Format(time.RFC3339Nano))
	fmt.Println(SameDay(t, TrimClock(t)))
	// Output:
	// 2021-04-03T00:00:00Z
	// true
}
