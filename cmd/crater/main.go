package main

import "github.com/crater-dev/crater/cmd/crater/internal"

func main() {
	internal.Execute()
}
