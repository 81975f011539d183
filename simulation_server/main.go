package main

import (
	"fmt"
	"os"

	"github.com/fernglen/townsim/simulation_server/cmd"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		panic(fmt.Sprintf("Could not load .env file: %v", err))
	}

	cmd.Execute()
}
