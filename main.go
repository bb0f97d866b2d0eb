package main

import (
	"fmt"

	"github.com/batata-io/batata/cmd"
)

func main() {
	if err := cmd.Run(); err != nil {
		fmt.Println(err.Error())
		return
	}
}
