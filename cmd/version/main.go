package main

import (
	"fmt"

	"github.com/typeflow/typeflow/internal/buildinfo"
)

func main() {
	info := buildinfo.GetInfo()
	fmt.Println(info.String())
}
