// Package suite discovers tests declared in suite files and runs them as
// local commands.
//
// A suite file is YAML (*.suite.yaml, *.suite.yml) or HCL (*.suite.hcl). It
// declares a top-level container holding command-backed tests, lifecycle
// commands, nested containers, tags, conditions and extensions:
//
//	name: calculator
//	tags: [math]
//	env: {LANG: C}
//	before_all:
//	  - run: make
//	    args: [build]
//	tests:
//	  - name: adds
//	    run: ./calc
//	    args: ["1", "+", "2"]
//	    expect:
//	      stdout_contains: "3"
//	    extensions:
//	      - type: timeout
//	        config: {duration: 5s}
//
// NewEngine turns a set of files and directories into a junit5.TestEngine
// whose unique ids look like [engine:suites]/[suite:calculator]/[test:adds].
package suite
