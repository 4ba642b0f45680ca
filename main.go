package main

import "github.com/gardenfresh/order-payments/cmd"

func main() {
	cmd.Execute()
}
