package main

import "github.com/SoarinFerret/ActivityLedger/cmd/ledgerctl/arg"

func main() {
	arg.Execute()
}
