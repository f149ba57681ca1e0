package main

import (
	"os"

	"github.com/tanalabo/kumacollect/internal/app"
)

func main() {
	os.Exit(app.Run(os.Args[1:]))
}
