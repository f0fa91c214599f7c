/*
Package junit5 discovers and executes tests through pluggable test engines.

A TestEngine contributes element resolvers that turn selectors into a tree of
descriptors, and extensions that participate in execution. The Launcher runs
discovery for every engine into a Plan, filters it, and executes it with the
extension model: execution conditions, lifecycle callbacks, parameter
resolution, instance post-processing, exception handling and dynamic tests.

# Usage

Build an engine, for example with the Go DSL of package dsl, and hand it to
the launcher.

	package main

	import (
		"context"
		"log"
		"os"

		"github.com/tuchang/junit5"
		"github.com/tuchang/junit5/pkg/domain"
		"github.com/tuchang/junit5/pkg/dsl"
	)

	func main() {
		calc := dsl.Container("Calculator")
		calc.Test("adds", func() error {
			if 1+2 != 3 {
				return domain.Fail("math is broken")
			}
			return nil
		})

		engine, err := dsl.NewEngine("dsl", calc)
		if err != nil {
			log.Fatal(err)
		}

		launcher, err := junit5.New(junit5.WithEngines(engine))
		if err != nil {
			log.Fatal(err)
		}

		ctx := context.Background()
		plan, err := launcher.Discover(ctx, junit5.DiscoveryRequest{})
		if err != nil {
			log.Fatal(err)
		}

		run, err := launcher.Execute(ctx, plan)
		if err != nil {
			log.Fatal(err)
		}
		run.Summary.PrintTo(os.Stdout)
	}
*/
package junit5
