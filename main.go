package main

import "github.com/llehouerou/wavelet/internal/cli"

func main() {
	cli.Execute()
}
