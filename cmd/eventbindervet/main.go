// Command eventbindervet runs the eventhandler analyzer.
//
// Use it standalone or as a vet tool:
//
//	go vet -vettool=$(which eventbindervet) ./...
package main

import (
	"golang.org/x/tools/go/analysis/singlechecker"

	"github.com/ehabterra/eventbinder/passes/eventhandler"
)

func main() { singlechecker.Main(eventhandler.Analyzer) }
